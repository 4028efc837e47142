package api

import (
	"encoding/json"
	"net/http"
	"time"

	"wbautoslot/internal/domain"
	"wbautoslot/pkg/logx"
)

type eventResponse struct {
	ID        int64           `json:"id"`
	TaskID    string          `json:"task_id,omitempty"`
	Kind      string          `json:"kind"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toEventResponses(events []domain.Event) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp := eventResponse{
			ID:        e.ID,
			TaskID:    e.TaskID,
			Kind:      string(e.Kind),
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		}
		if e.Details != "" {
			resp.Details = json.RawMessage(e.Details)
		}
		out = append(out, resp)
	}
	return out
}

func (s *Server) userEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListEventsByUser(r.Context(), userIDFrom(r.Context()), 100)
	if err != nil {
		s.log.Error("event list failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toEventResponses(events), "count": len(events)})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetUserStats(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.log.Error("stats query failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activeTasks":   st.ActiveTasks,
		"totalTasks":    st.TotalTasks,
		"foundSlots":    st.FoundSlots,
		"notifications": st.Events,
		"wbAccounts":    st.Accounts,
	})
}

func (s *Server) workerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Snapshot())
}

func (s *Server) listBackups(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}
	infos, err := s.backups.List()
	if err != nil {
		s.log.Error("backup list failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": infos, "count": len(infos)})
}

func (s *Server) createBackup(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}
	info, err := s.backups.RunNow(r.Context(), "manual")
	if err != nil {
		s.log.Error("manual backup failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"wbautoslot/internal/domain"
	"wbautoslot/internal/scheduler"
	"wbautoslot/pkg/logx"
)

const (
	dateLayout          = "2006-01-02"
	defaultPollInterval = 30 * time.Minute
)

type createTaskRequest struct {
	Name           string  `json:"name"`
	Warehouse      string  `json:"warehouse"`
	DateFrom       string  `json:"date_from"`
	DateTo         string  `json:"date_to"`
	Coefficient    float64 `json:"coefficient"`
	Packaging      string  `json:"packaging"`
	ShipmentNumber string  `json:"shipment_number,omitempty"`
	AutoBook       bool    `json:"auto_book,omitempty"`
	AccountID      string  `json:"account_id,omitempty"`
	PollIntervalS  int     `json:"poll_interval_s,omitempty"`
}

type updateTaskRequest struct {
	Name           *string  `json:"name,omitempty"`
	Warehouse      *string  `json:"warehouse,omitempty"`
	Coefficient    *float64 `json:"coefficient,omitempty"`
	Packaging      *string  `json:"packaging,omitempty"`
	ShipmentNumber *string  `json:"shipment_number,omitempty"`
	AutoBook       *bool    `json:"auto_book,omitempty"`
	AccountID      *string  `json:"account_id,omitempty"`
	PollIntervalS  *int     `json:"poll_interval_s,omitempty"`
	Status         *string  `json:"status,omitempty"`
}

type taskResponse struct {
	ID             string     `json:"id"`
	AccountID      string     `json:"account_id,omitempty"`
	Name           string     `json:"name"`
	Warehouse      string     `json:"warehouse"`
	DateFrom       string     `json:"date_from"`
	DateTo         string     `json:"date_to"`
	Coefficient    float64    `json:"coefficient"`
	Packaging      string     `json:"packaging"`
	ShipmentNumber string     `json:"shipment_number,omitempty"`
	AutoBook       bool       `json:"auto_book"`
	Status         string     `json:"status"`
	LastCheckedAt  *time.Time `json:"last_checked_at,omitempty"`
	FoundSlots     int        `json:"found_slots"`
	PollIntervalS  int        `json:"poll_interval_s"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toTaskResponse(t domain.Task) taskResponse {
	resp := taskResponse{
		ID:             t.ID,
		AccountID:      t.AccountID,
		Name:           t.Name,
		Warehouse:      t.Warehouse,
		DateFrom:       t.DateFrom.Format(dateLayout),
		DateTo:         t.DateTo.Format(dateLayout),
		Coefficient:    t.MinCoefficient,
		Packaging:      t.Packaging,
		ShipmentNumber: t.ShipmentNumber,
		AutoBook:       t.AutoBook,
		Status:         string(t.Status),
		FoundSlots:     t.FoundSlots,
		PollIntervalS:  int(t.PollInterval.Seconds()),
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
	if !t.LastCheckedAt.IsZero() {
		at := t.LastCheckedAt
		resp.LastCheckedAt = &at
	}
	return resp
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasksByUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.log.Error("task list failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out, "count": len(out)})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	if s.limiter != nil && s.limits.TaskCreate.Max > 0 {
		ok, _ := s.limiter.Allow("task_create:"+userID, s.limits.TaskCreate.Max, s.limits.TaskCreate.Window)
		if !ok {
			writeError(w, http.StatusTooManyRequests, "task creation rate limit exceeded")
			return
		}
	}

	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	task, err := s.buildTask(r, userID, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.CreateTask(r.Context(), task); err != nil {
		s.log.Error("task create failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	s.appendTaskEvent(r, task, domain.EventInfo, fmt.Sprintf("task %q created", task.Name))

	// Register first so the immediate run and the periodic cadence share one
	// in-flight guard.
	s.sched.Register(task.ID, task.PollInterval)
	if err := s.sched.RunNow(task.ID); err != nil && !errors.Is(err, scheduler.ErrRunInFlight) {
		s.log.Warn("immediate run failed", logx.String("task_id", task.ID), logx.Err(err))
	}

	s.log.Info("task created",
		logx.String("task_id", task.ID),
		logx.String("user_id", userID),
		logx.String("warehouse", task.Warehouse))
	writeJSON(w, http.StatusCreated, toTaskResponse(task))
}

func (s *Server) buildTask(r *http.Request, userID string, req createTaskRequest) (domain.Task, error) {
	name := strings.TrimSpace(req.Name)
	warehouse := strings.TrimSpace(req.Warehouse)
	packaging := strings.TrimSpace(req.Packaging)
	if name == "" || warehouse == "" || packaging == "" {
		return domain.Task{}, errors.New("name, warehouse and packaging are required")
	}
	if req.Coefficient <= 0 {
		return domain.Task{}, errors.New("coefficient must be a positive number")
	}

	from, err := time.Parse(dateLayout, req.DateFrom)
	if err != nil {
		return domain.Task{}, errors.New("invalid date_from, use YYYY-MM-DD")
	}
	to, err := time.Parse(dateLayout, req.DateTo)
	if err != nil {
		return domain.Task{}, errors.New("invalid date_to, use YYYY-MM-DD")
	}
	if from.After(to) {
		return domain.Task{}, errors.New("date_from cannot be after date_to")
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if to.Before(today) {
		return domain.Task{}, errors.New("date range is entirely in the past")
	}

	accountID := strings.TrimSpace(req.AccountID)
	if accountID != "" {
		acc, err := s.store.GetAccount(r.Context(), accountID)
		if err != nil || acc.UserID != userID || !acc.IsActive {
			return domain.Task{}, errors.New("invalid or inactive supplier account")
		}
	}

	interval := defaultPollInterval
	if req.PollIntervalS > 0 {
		interval = time.Duration(req.PollIntervalS) * time.Second
	}

	now := time.Now().UTC()
	return domain.Task{
		ID:             uuid.NewString(),
		UserID:         userID,
		AccountID:      accountID,
		Name:           name,
		Warehouse:      warehouse,
		DateFrom:       from,
		DateTo:         to,
		MinCoefficient: req.Coefficient,
		Packaging:      packaging,
		ShipmentNumber: strings.TrimSpace(req.ShipmentNumber),
		AutoBook:       req.AutoBook,
		Status:         domain.TaskActive,
		PollInterval:   interval,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.ownedTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.ownedTask(w, r)
	if !ok {
		return
	}
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		task.Name = strings.TrimSpace(*req.Name)
	}
	if req.Warehouse != nil && strings.TrimSpace(*req.Warehouse) != "" {
		task.Warehouse = strings.TrimSpace(*req.Warehouse)
	}
	if req.Coefficient != nil && *req.Coefficient > 0 {
		task.MinCoefficient = *req.Coefficient
	}
	if req.Packaging != nil && strings.TrimSpace(*req.Packaging) != "" {
		task.Packaging = strings.TrimSpace(*req.Packaging)
	}
	if req.ShipmentNumber != nil {
		task.ShipmentNumber = strings.TrimSpace(*req.ShipmentNumber)
	}
	if req.AutoBook != nil {
		task.AutoBook = *req.AutoBook
	}
	if req.AccountID != nil {
		accountID := strings.TrimSpace(*req.AccountID)
		if accountID != "" {
			acc, err := s.store.GetAccount(r.Context(), accountID)
			if err != nil || acc.UserID != task.UserID || !acc.IsActive {
				writeError(w, http.StatusBadRequest, "invalid or inactive supplier account")
				return
			}
		}
		task.AccountID = accountID
	}
	if req.PollIntervalS != nil && *req.PollIntervalS > 0 {
		task.PollInterval = time.Duration(*req.PollIntervalS) * time.Second
	}

	statusChanged := false
	if req.Status != nil {
		next := domain.TaskStatus(*req.Status)
		if !next.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		statusChanged = next != task.Status
		task.Status = next
	}

	task.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveTask(r.Context(), task); err != nil {
		s.log.Error("task update failed", logx.String("task_id", task.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	if statusChanged {
		s.appendTaskEvent(r, task, domain.EventInfo, fmt.Sprintf("task %q status changed to %s", task.Name, task.Status))
		s.syncSchedule(task)
	} else if s.sched.Registered(task.ID) {
		// pick up interval/criteria changes on the next dispatch
		s.sched.Register(task.ID, task.PollInterval)
	}

	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.ownedTask(w, r)
	if !ok {
		return
	}
	s.sched.Unregister(task.ID)
	if err := s.store.DeleteTask(r.Context(), task.ID); err != nil {
		s.log.Error("task delete failed", logx.String("task_id", task.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "task deleted"})
}

func (s *Server) startTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.ownedTask(w, r)
	if !ok {
		return
	}
	if task.Status == domain.TaskActive {
		writeError(w, http.StatusBadRequest, "task is already active")
		return
	}

	task.Status = domain.TaskActive
	task.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveTask(r.Context(), task); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start task")
		return
	}
	s.appendTaskEvent(r, task, domain.EventInfo, fmt.Sprintf("task %q started", task.Name))

	s.sched.Register(task.ID, task.PollInterval)
	if err := s.sched.RunNow(task.ID); err != nil && !errors.Is(err, scheduler.ErrRunInFlight) {
		s.log.Warn("immediate run failed", logx.String("task_id", task.ID), logx.Err(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "task started"})
}

func (s *Server) pauseTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.ownedTask(w, r)
	if !ok {
		return
	}
	if task.Status != domain.TaskActive {
		writeError(w, http.StatusBadRequest, "task is not active")
		return
	}

	task.Status = domain.TaskPaused
	task.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveTask(r.Context(), task); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to pause task")
		return
	}
	s.appendTaskEvent(r, task, domain.EventInfo, fmt.Sprintf("task %q paused", task.Name))
	s.sched.Unregister(task.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "task paused"})
}

func (s *Server) stopTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.ownedTask(w, r)
	if !ok {
		return
	}
	task.Status = domain.TaskCompleted
	task.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveTask(r.Context(), task); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stop task")
		return
	}
	s.appendTaskEvent(r, task, domain.EventInfo, fmt.Sprintf("task %q stopped", task.Name))
	s.sched.Unregister(task.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "task stopped"})
}

func (s *Server) taskEvents(w http.ResponseWriter, r *http.Request) {
	task, ok := s.ownedTask(w, r)
	if !ok {
		return
	}
	events, err := s.store.ListEventsByTask(r.Context(), task.ID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toEventResponses(events), "count": len(events)})
}

// ownedTask loads the task from the URL and enforces ownership. Tasks of
// other users are reported as 404, not 403, so IDs don't leak.
func (s *Server) ownedTask(w http.ResponseWriter, r *http.Request) (domain.Task, bool) {
	task, err := s.store.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil || task.UserID != userIDFrom(r.Context()) {
		writeError(w, http.StatusNotFound, "task not found")
		return domain.Task{}, false
	}
	return task, true
}

func (s *Server) syncSchedule(task domain.Task) {
	if task.Status == domain.TaskActive {
		s.sched.Register(task.ID, task.PollInterval)
		return
	}
	s.sched.Unregister(task.ID)
}

func (s *Server) appendTaskEvent(r *http.Request, task domain.Task, kind domain.EventKind, msg string) {
	err := s.store.AppendEvent(r.Context(), domain.Event{
		TaskID:  task.ID,
		UserID:  task.UserID,
		Kind:    kind,
		Message: msg,
	})
	if err != nil {
		s.log.Warn("event append failed", logx.String("task_id", task.ID), logx.Err(err))
	}
}

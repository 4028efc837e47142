package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"wbautoslot/internal/domain"
	"wbautoslot/pkg/logx"
)

type accountRequest struct {
	Name     string `json:"name"`
	Cookies  string `json:"cookies"`
	IsActive *bool  `json:"is_active,omitempty"`
}

type accountResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Cookies are write-only: accepted on create/update, never echoed back.
func toAccountResponse(a domain.SupplierAccount) accountResponse {
	resp := accountResponse{
		ID:        a.ID,
		Name:      a.Name,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
	}
	if !a.LastLogin.IsZero() {
		at := a.LastLogin
		resp.LastLogin = &at
	}
	return resp
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccountsByUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.log.Error("account list failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out, "count": len(out)})
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || strings.TrimSpace(req.Cookies) == "" {
		writeError(w, http.StatusBadRequest, "name and cookies are required")
		return
	}

	acc := domain.SupplierAccount{
		ID:        uuid.NewString(),
		UserID:    userIDFrom(r.Context()),
		Name:      name,
		Cookies:   req.Cookies,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAccount(r.Context(), acc); err != nil {
		s.log.Error("account create failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(acc))
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.ownedAccount(w, r)
	if !ok {
		return
	}
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		acc.Name = name
	}
	if strings.TrimSpace(req.Cookies) != "" {
		acc.Cookies = req.Cookies
	}
	if req.IsActive != nil {
		acc.IsActive = *req.IsActive
	}
	if err := s.store.SaveAccount(r.Context(), acc); err != nil {
		s.log.Error("account update failed", logx.String("account_id", acc.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to update account")
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.ownedAccount(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteAccount(r.Context(), acc.ID); err != nil {
		s.log.Error("account delete failed", logx.String("account_id", acc.ID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

func (s *Server) verifyAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.ownedAccount(w, r)
	if !ok {
		return
	}
	if s.portal == nil {
		writeError(w, http.StatusServiceUnavailable, "portal client is not configured")
		return
	}

	alive, err := s.portal.CheckSession(r.Context(), acc)
	if err != nil {
		s.log.Warn("session check failed", logx.String("account_id", acc.ID), logx.Err(err))
		writeError(w, http.StatusBadGateway, "failed to reach supplier portal")
		return
	}

	acc.IsActive = alive
	if alive {
		acc.LastLogin = time.Now().UTC()
	}
	if err := s.store.SaveAccount(r.Context(), acc); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": alive, "account": toAccountResponse(acc)})
}

func (s *Server) ownedAccount(w http.ResponseWriter, r *http.Request) (domain.SupplierAccount, bool) {
	acc, err := s.store.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil || acc.UserID != userIDFrom(r.Context()) {
		writeError(w, http.StatusNotFound, "account not found")
		return domain.SupplierAccount{}, false
	}
	return acc, true
}

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"wbautoslot/internal/auth"
	"wbautoslot/internal/domain"
	"wbautoslot/internal/storage"
	"wbautoslot/pkg/logx"
)

type registerRequest struct {
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

type loginRequest struct {
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	ExpiresIn    int64        `json:"expires_in"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{ID: u.ID, Phone: u.Phone, Email: u.Email, CreatedAt: u.CreatedAt}
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	phone, err := domain.NormalizePhone(req.Phone)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid phone number")
		return
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Phone:        phone,
		Email:        domain.NormalizeEmail(req.Email),
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			writeError(w, http.StatusConflict, "phone or email already registered")
			return
		}
		s.log.Error("user create failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	s.log.Info("user registered", logx.String("user_id", user.ID))
	s.issueTokens(w, http.StatusCreated, user)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Password == "" || (req.Phone == "" && req.Email == "") {
		writeError(w, http.StatusBadRequest, "phone or email, and password are required")
		return
	}

	var (
		user domain.User
		err  error
	)
	if req.Phone != "" {
		phone, perr := domain.NormalizePhone(req.Phone)
		if perr != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		user, err = s.store.GetUserByPhone(r.Context(), phone)
	} else {
		user, err = s.store.GetUserByEmail(r.Context(), domain.NormalizeEmail(req.Email))
	}
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !user.IsActive {
		writeError(w, http.StatusUnauthorized, "account is deactivated")
		return
	}

	s.issueTokens(w, http.StatusOK, user)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}
	claims, err := s.tokens.Validate(req.RefreshToken, auth.TokenRefresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}
	user, err := s.store.GetUser(r.Context(), claims.UserID)
	if err != nil || !user.IsActive {
		writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	access, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: access,
		ExpiresIn:   int64(s.tokens.AccessTTL().Seconds()),
		User:        toUserResponse(user),
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) issueTokens(w http.ResponseWriter, code int, user domain.User) {
	access, err := s.tokens.IssueAccess(user.ID)
	if err == nil {
		var refresh string
		refresh, err = s.tokens.IssueRefresh(user.ID)
		if err == nil {
			writeJSON(w, code, tokenResponse{
				AccessToken:  access,
				RefreshToken: refresh,
				ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
				User:         toUserResponse(user),
			})
			return
		}
	}
	s.log.Error("token issue failed", logx.Err(err))
	writeError(w, http.StatusInternalServerError, "token issue failed")
}

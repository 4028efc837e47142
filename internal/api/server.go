package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wbautoslot/internal/auth"
	"wbautoslot/internal/backup"
	"wbautoslot/internal/domain"
	"wbautoslot/internal/ratelimit"
	"wbautoslot/internal/scheduler"
	"wbautoslot/internal/storage"
	"wbautoslot/pkg/logx"
)

// SessionChecker verifies that a supplier account still holds a valid
// portal session.
type SessionChecker interface {
	CheckSession(ctx context.Context, acc domain.SupplierAccount) (bool, error)
}

// Limit is one sliding-window rule. A zero Max disables the rule.
type Limit struct {
	Max    int
	Window time.Duration
}

type Limits struct {
	// Global applies to every request, keyed per client IP.
	Global Limit
	// Auth applies to register/login/refresh, keyed per client IP.
	Auth Limit
	// TaskCreate applies to task creation, keyed per user.
	TaskCreate Limit
}

type Deps struct {
	Store     *storage.Store
	Tokens    *auth.Manager
	Scheduler *scheduler.Service
	Backups   *backup.Service
	Portal    SessionChecker
	Limiter   *ratelimit.Limiter
	Limits    Limits
	Log       logx.Logger
}

type Server struct {
	store   *storage.Store
	tokens  *auth.Manager
	sched   *scheduler.Service
	backups *backup.Service
	portal  SessionChecker
	limiter *ratelimit.Limiter
	limits  Limits
	log     logx.Logger
}

func NewServer(d Deps) http.Handler {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		store:   d.Store,
		tokens:  d.Tokens,
		sched:   d.Scheduler,
		backups: d.Backups,
		portal:  d.Portal,
		limiter: d.Limiter,
		limits:  d.Limits,
		log:     log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer)
	if s.limiter != nil && s.limits.Global.Max > 0 {
		r.Use(s.limiter.PerIP("global", s.limits.Global.Max, s.limits.Global.Window))
	}

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if s.limiter != nil && s.limits.Auth.Max > 0 {
				r.Use(s.limiter.PerIP("auth", s.limits.Auth.Max, s.limits.Auth.Window))
			}
			r.Post("/register", s.register)
			r.Post("/login", s.login)
			r.Post("/refresh", s.refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/auth/me", s.me)

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", s.listTasks)
				r.Post("/", s.createTask)
				r.Get("/{id}", s.getTask)
				r.Put("/{id}", s.updateTask)
				r.Delete("/{id}", s.deleteTask)
				r.Post("/{id}/start", s.startTask)
				r.Post("/{id}/pause", s.pauseTask)
				r.Post("/{id}/stop", s.stopTask)
				r.Get("/{id}/events", s.taskEvents)
			})

			r.Get("/events", s.userEvents)
			r.Get("/stats", s.stats)
			r.Get("/worker/status", s.workerStatus)

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", s.listAccounts)
				r.Post("/", s.createAccount)
				r.Put("/{id}", s.updateAccount)
				r.Delete("/{id}", s.deleteAccount)
				r.Post("/{id}/verify", s.verifyAccount)
			})

			r.Route("/backups", func(r chi.Router) {
				r.Get("/", s.listBackups)
				r.Post("/", s.createBackup)
			})
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbOK := s.store.Ping(ctx) == nil
	snap := s.sched.Snapshot()

	code := http.StatusOK
	if !dbOK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    statusWord(dbOK),
		"database":  dbOK,
		"scheduler": snap.Running,
		"tasks":     snap.Registered,
	})
}

func statusWord(ok bool) string {
	if ok {
		return "ok"
	}
	return "degraded"
}

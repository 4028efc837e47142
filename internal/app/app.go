// Package app assembles the service: configuration, storage, the slot
// search pipeline, HTTP API and background services, with ordered startup
// and shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"wbautoslot/internal/api"
	"wbautoslot/internal/auth"
	"wbautoslot/internal/backup"
	"wbautoslot/internal/config"
	"wbautoslot/internal/notify"
	"wbautoslot/internal/ratelimit"
	"wbautoslot/internal/scheduler"
	"wbautoslot/internal/search"
	"wbautoslot/internal/storage"
	"wbautoslot/internal/wb"
	logx "wbautoslot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store   *storage.Store
	counter *ratelimit.Counter
	sched   *scheduler.Service
	backups *backup.Service

	httpSrv *http.Server
	httpErr chan error

	watchCancel context.CancelFunc
	cfgCh       chan *config.Config
	reloadDone  chan struct{}
}

func New(cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("info").With(logx.String("comp", "config"))
	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Parse everything config-derived up front so no resource is opened
	// for a config that cannot start.
	accessTTL, err := config.ParseDurationOrDefault("auth.access_ttl", cfg.Auth.AccessTTL, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := config.ParseDurationOrDefault("auth.refresh_ttl", cfg.Auth.RefreshTTL, 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	portalTimeout, err := config.ParseDurationOrDefault("supplier.timeout", cfg.Supplier.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	tick, err := config.ParseDurationOrDefault("scheduler.tick_interval", cfg.Scheduler.TickInterval, time.Minute)
	if err != nil {
		return nil, err
	}
	runTimeout, err := config.ParseDurationOrDefault("scheduler.run_timeout", cfg.Scheduler.RunTimeout, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	limits, err := mapLimits(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	srvTimeouts, err := mapServerTimeouts(cfg.Server)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg.Logging))
	log = log.With(logx.String("comp", "app"))

	store, err := storage.Open(storage.Config{Path: cfg.Database.Path},
		log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	tokens := auth.NewManager(cfg.Auth.Secret, accessTTL, refreshTTL)
	portal := wb.NewClient(wb.Config{
		BaseURL: cfg.Supplier.BaseURL,
		Timeout: portalTimeout,
	}, store, log.With(logx.String("comp", "wb")))

	notif, err := notify.New(notify.Config{
		Enabled:    cfg.Notifications.Enabled,
		RatePerSec: cfg.Notifications.RatePerSec,
		Telegram: notify.TelegramConfig{
			Token:  cfg.Notifications.Telegram.Token,
			ChatID: cfg.Notifications.Telegram.ChatID,
		},
		Email: notify.EmailConfig{
			Host:     cfg.Notifications.Email.Host,
			Port:     cfg.Notifications.Email.Port,
			From:     cfg.Notifications.Email.From,
			Username: cfg.Notifications.Email.Username,
			Password: cfg.Notifications.Email.Password,
		},
	}, log.With(logx.String("comp", "notify")))
	if err != nil {
		store.Close()
		logSvc.Close()
		return nil, fmt.Errorf("notifications: %w", err)
	}

	orch := search.NewOrchestrator(store, store, store, store, portal, portal, notif,
		log.With(logx.String("comp", "search")))

	sched := scheduler.New(scheduler.Config{
		TickInterval: tick,
		RunTimeout:   runTimeout,
	}, orch, log.With(logx.String("comp", "scheduler")))

	backups := backup.New(backup.Config{
		Enabled:       cfg.Backup.Enabled,
		Dir:           cfg.Backup.Dir,
		Schedule:      cfg.Backup.Schedule,
		RetentionDays: cfg.Backup.RetentionDays,
	}, store, log.With(logx.String("comp", "backup")))

	counter := ratelimit.NewCounter(log.With(logx.String("comp", "ratelimit")))
	limiter := ratelimit.NewLimiter(counter, cfg.RateLimit.Enabled, log.With(logx.String("comp", "ratelimit")))

	handler := api.NewServer(api.Deps{
		Store:     store,
		Tokens:    tokens,
		Scheduler: sched,
		Backups:   backups,
		Portal:    portal,
		Limiter:   limiter,
		Limits:    limits,
		Log:       log.With(logx.String("comp", "api")),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  srvTimeouts.read,
		WriteTimeout: srvTimeouts.write,
		IdleTimeout:  srvTimeouts.idle,
	}

	return &App{
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		store:   store,
		counter: counter,
		sched:   sched,
		backups: backups,
		httpSrv: srv,
		httpErr: make(chan error, 1),
	}, nil
}

// Start brings the service up: rate limit sweeper, scheduler (with tasks
// re-registered from storage), backups, config watcher, then the HTTP
// listener last so no request arrives before its dependencies run.
func (a *App) Start(ctx context.Context) error {
	a.counter.Start(ctx)
	a.sched.Start(ctx)

	if err := a.reconcileTasks(ctx); err != nil {
		return err
	}
	if err := a.backups.Start(ctx); err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel
	a.cfgCh = a.cfgm.Subscribe(1)
	a.reloadDone = make(chan struct{})
	go a.reloadLoop()
	go func() {
		if err := a.cfgm.Watch(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	ln, err := net.Listen("tcp", a.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.httpSrv.Addr, err)
	}
	go func() {
		if err := a.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.httpErr <- err
		}
	}()

	a.log.Info("service started", logx.String("addr", a.httpSrv.Addr))
	return nil
}

// Err reports a fatal HTTP serve failure. The channel never closes.
func (a *App) Err() <-chan error { return a.httpErr }

// Stop shuts down in reverse start order: stop accepting requests, drain
// the scheduler, then background services, storage last.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	var firstErr error
	if err := a.httpSrv.Shutdown(ctx); err != nil {
		firstErr = err
	}

	if a.watchCancel != nil {
		a.watchCancel()
	}
	if a.cfgCh != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
		<-a.reloadDone
	}

	a.sched.Stop(ctx)
	a.backups.Stop(ctx)
	a.counter.Stop(ctx)

	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	a.log.Info("stopped")
	a.logs.Close()
	return firstErr
}

// reconcileTasks re-registers every active task after a restart so in-flight
// searches survive process boundaries.
func (a *App) reconcileTasks(ctx context.Context) error {
	tasks, err := a.store.ListActiveTasks(ctx)
	if err != nil {
		return fmt.Errorf("reconcile tasks: %w", err)
	}
	for _, t := range tasks {
		a.sched.Register(t.ID, t.PollInterval)
	}
	if len(tasks) > 0 {
		a.log.Info("active tasks re-registered", logx.Int("count", len(tasks)))
	}
	return nil
}

// reloadLoop applies hot-reloadable settings from config file changes.
// Only logging takes effect live; everything else needs a restart.
func (a *App) reloadLoop() {
	defer close(a.reloadDone)
	for cfg := range a.cfgCh {
		a.logs.Apply(mapLogConfig(cfg.Logging))
		a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
	}
}

func mapLogConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}

func mapLimits(rl config.RateLimitConfig) (api.Limits, error) {
	window := func(path string, w config.RateWindow) (api.Limit, error) {
		d, err := config.ParseDurationField(path+".window", w.Window)
		if err != nil {
			return api.Limit{}, err
		}
		return api.Limit{Max: w.Max, Window: d}, nil
	}

	var limits api.Limits
	var err error
	if limits.Global, err = window("rate_limit.global", rl.Global); err != nil {
		return api.Limits{}, err
	}
	if limits.Auth, err = window("rate_limit.auth", rl.Auth); err != nil {
		return api.Limits{}, err
	}
	if limits.TaskCreate, err = window("rate_limit.task_create", rl.TaskCreate); err != nil {
		return api.Limits{}, err
	}
	return limits, nil
}

type serverTimeouts struct {
	read, write, idle time.Duration
}

func mapServerTimeouts(sc config.ServerConfig) (serverTimeouts, error) {
	read, err := config.ParseDurationOrDefault("server.read_timeout", sc.ReadTimeout, 15*time.Second)
	if err != nil {
		return serverTimeouts{}, err
	}
	write, err := config.ParseDurationOrDefault("server.write_timeout", sc.WriteTimeout, 30*time.Second)
	if err != nil {
		return serverTimeouts{}, err
	}
	idle, err := config.ParseDurationOrDefault("server.idle_timeout", sc.IdleTimeout, time.Minute)
	if err != nil {
		return serverTimeouts{}, err
	}
	return serverTimeouts{read: read, write: write, idle: idle}, nil
}

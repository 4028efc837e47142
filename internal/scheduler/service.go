package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"wbautoslot/internal/domain"
	"wbautoslot/internal/search"
	"wbautoslot/pkg/logx"
)

// Service drives periodic search runs for registered tasks.
//
// One goroutine ticks; each due task is dispatched on its own goroutine with
// a bounded context. At most one run per task is in flight at any time.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	log     logx.Logger
	runner  Runner
	entries map[string]*entry

	stopCh   chan struct{}
	loopDone chan struct{}
	runWG    sync.WaitGroup

	// now is swapped in tests.
	now func() time.Time

	completed uint64
	failed    uint64
}

func New(cfg Config, runner Runner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		log:     log,
		runner:  runner,
		entries: map[string]*entry{},
		now:     time.Now,
	}
}

// Register adds (or resets) a task. The task becomes due on the very next
// tick: lastRun is backdated by one full interval.
//
// Re-registering an already-registered task updates the entry in place: the
// cadence resets, but the in-flight flag is untouched. That flag belongs to
// the dispatched run and only its completion releases it.
func (s *Service) Register(taskID string, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	s.mu.Lock()
	if e, ok := s.entries[taskID]; ok {
		e.interval = interval
		e.lastRun = s.now().Add(-interval)
	} else {
		s.entries[taskID] = &entry{
			interval: interval,
			lastRun:  s.now().Add(-interval),
		}
	}
	n := len(s.entries)
	s.mu.Unlock()
	s.log.Info("task registered", logx.String("task_id", taskID), logx.Duration("interval", interval), logx.Int("registered", n))
}

// Unregister removes a task. A run already in flight for it finishes
// normally; its outcome is simply discarded.
func (s *Service) Unregister(taskID string) {
	s.mu.Lock()
	_, ok := s.entries[taskID]
	delete(s.entries, taskID)
	n := len(s.entries)
	s.mu.Unlock()
	if ok {
		s.log.Info("task unregistered", logx.String("task_id", taskID), logx.Int("registered", n))
	}
}

// Registered reports whether taskID is currently scheduled.
func (s *Service) Registered(taskID string) bool {
	s.mu.Lock()
	_, ok := s.entries[taskID]
	s.mu.Unlock()
	return ok
}

// RunNow dispatches a run for taskID immediately, outside the tick cadence.
// The in-flight rule still applies.
func (s *Service) RunNow(taskID string) error {
	s.mu.Lock()
	e, ok := s.entries[taskID]
	if !ok {
		s.mu.Unlock()
		return ErrNotRegistered
	}
	if e.inFlight {
		s.mu.Unlock()
		return ErrRunInFlight
	}
	e.inFlight = true
	e.lastRun = s.now()
	s.mu.Unlock()

	s.dispatch(taskID, e)
	return nil
}

func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		s.log.Warn("start requested while already running")
		return
	}
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	stopCh := s.stopCh
	loopDone := s.loopDone
	tick := s.cfg.TickInterval
	n := len(s.entries)
	s.mu.Unlock()

	go s.loop(stopCh, loopDone, tick)
	s.log.Info("service started", logx.Duration("tick", tick), logx.Int("registered", n))
}

// Stop halts ticking and waits for in-flight runs until ctx expires.
// Registered entries are kept; a later Start resumes them.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	loopDone := s.loopDone
	s.stopCh = nil
	s.loopDone = nil
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-loopDone:
	case <-ctx.Done():
	}

	drained := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		// in-flight runs continue in background
	}

	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) loop(stopCh, done chan struct{}, tick time.Duration) {
	defer close(done)
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-t.C:
			s.tick()
		}
	}
}

// tick collects due tasks under the lock, marks them in flight, and
// dispatches each on its own goroutine.
func (s *Service) tick() {
	now := s.now()

	type dueRun struct {
		id string
		e  *entry
	}

	s.mu.Lock()
	var due []dueRun
	for id, e := range s.entries {
		if e.inFlight {
			continue
		}
		if now.Sub(e.lastRun) >= e.interval {
			e.inFlight = true
			e.lastRun = now
			due = append(due, dueRun{id: id, e: e})
		}
	}
	s.mu.Unlock()

	for _, d := range due {
		s.dispatch(d.id, d.e)
	}
}

// dispatch spawns a worker for one run. The worker survives runner panics:
// a panicking task is logged and released so other tasks keep running.
// The entry pointer identifies the registration this run belongs to.
func (s *Service) dispatch(taskID string, e *entry) {
	s.mu.Lock()
	timeout := s.cfg.RunTimeout
	s.mu.Unlock()

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()

		var out search.Outcome
		func() {
			defer func() {
				if r := recover(); r != nil {
					atomic.AddUint64(&s.failed, 1)
					s.log.Error("panic in search run",
						logx.String("task_id", taskID),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			out = s.runner.RunOnce(ctx, taskID)
		}()

		s.finish(taskID, e, out)
	}()
}

// finish applies a run's outcome to the registration that dispatched it.
// If the task was unregistered, or unregistered and registered again, while
// the run was in flight, the outcome belongs to a dead registration and is
// discarded; the current entry keeps its own schedule.
func (s *Service) finish(taskID string, e *entry, out search.Outcome) {
	switch out.Status {
	case domain.TaskCompleted:
		atomic.AddUint64(&s.completed, 1)
	case domain.TaskError:
		atomic.AddUint64(&s.failed, 1)
	}

	s.mu.Lock()
	cur, ok := s.entries[taskID]
	if !ok || cur != e {
		s.mu.Unlock()
		s.log.Debug("outcome of superseded run discarded",
			logx.String("task_id", taskID),
			logx.String("status", string(out.Status)))
		return
	}
	cur.inFlight = false
	if out.Unregister {
		delete(s.entries, taskID)
	}
	s.mu.Unlock()

	if out.Unregister {
		s.log.Info("task finished and unregistered",
			logx.String("task_id", taskID),
			logx.String("status", string(out.Status)),
			logx.Int("slots_found", out.SlotsFound))
	}
}

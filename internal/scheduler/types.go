package scheduler

import (
	"context"
	"errors"
	"time"

	"wbautoslot/internal/search"
)

// Runner executes one full search cycle for a registered task and reports
// what happened. The scheduler never inspects task state itself; the runner
// owns all task semantics.
type Runner interface {
	RunOnce(ctx context.Context, taskID string) search.Outcome
}

type Config struct {
	// TickInterval is how often registered tasks are checked for due-ness.
	TickInterval time.Duration
	// RunTimeout bounds a single dispatched run. A run that exceeds it gets
	// a cancelled context; the in-flight flag is still released when the
	// runner returns.
	RunTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Minute
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 5 * time.Minute
	}
	return c
}

var (
	ErrNotRegistered = errors.New("scheduler: task not registered")
	ErrRunInFlight   = errors.New("scheduler: run already in flight")
)

// entry is the scheduler's per-task bookkeeping. lastRun is advanced at
// dispatch time, not completion time, so a slow run never compresses the
// gap to the next one.
//
// Pointer identity doubles as the registration identity: Unregister followed
// by Register allocates a fresh entry, and a run dispatched against the old
// one cannot touch the new one.
type entry struct {
	interval time.Duration
	lastRun  time.Time
	inFlight bool
}

package ratelimit

import (
	"context"
	"sync"
	"time"

	logx "wbautoslot/pkg/logx"
)

const (
	// sweepInterval is how often the background sweeper runs, independent
	// of call traffic.
	sweepInterval = 5 * time.Minute
	// idleHorizon is how long a key may sit with no recorded events before
	// the sweeper forgets it.
	idleHorizon = time.Hour
)

// Counter counts events per key within a trailing window.
// Safe for concurrent use.
type Counter struct {
	mu   sync.Mutex
	hits map[string][]time.Time

	log logx.Logger
	now func() time.Time

	stopCh   chan struct{}
	loopDone chan struct{}
}

func NewCounter(log logx.Logger) *Counter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Counter{
		hits: map[string][]time.Time{},
		log:  log,
		now:  time.Now,
	}
}

// Allow reports whether one more event for key fits into the trailing
// window, and how many events remain after this call. The event is recorded
// only when admitted.
func (c *Counter) Allow(key string, maxCount int, window time.Duration) (bool, int) {
	now := c.now()
	cutoff := now.Add(-window)

	c.mu.Lock()
	defer c.mu.Unlock()

	times := c.hits[key]
	// Discard events that fell out of the window.
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		times = append(times[:0], times[i:]...)
	}

	if len(times) >= maxCount {
		c.hits[key] = times
		return false, 0
	}

	times = append(times, now)
	c.hits[key] = times
	return true, maxCount - len(times)
}

// Start launches the background sweeper. Idempotent.
func (c *Counter) Start(ctx context.Context) {
	c.mu.Lock()
	if c.stopCh != nil {
		c.mu.Unlock()
		return
	}
	c.stopCh = make(chan struct{})
	c.loopDone = make(chan struct{})
	stopCh := c.stopCh
	done := c.loopDone
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				c.sweep(c.now())
			}
		}
	}()
	c.log.Debug("rate limit sweeper started", logx.Duration("every", sweepInterval))
}

// Stop halts the sweeper and waits (bounded by ctx) for it to exit.
func (c *Counter) Stop(ctx context.Context) {
	c.mu.Lock()
	stopCh := c.stopCh
	done := c.loopDone
	c.stopCh = nil
	c.loopDone = nil
	c.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// sweep forgets keys whose entire history is older than the idle horizon.
func (c *Counter) sweep(now time.Time) {
	cutoff := now.Add(-idleHorizon)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, times := range c.hits {
		if len(times) == 0 || times[len(times)-1].Before(cutoff) {
			delete(c.hits, key)
			removed++
		}
	}
	if removed > 0 {
		c.log.Debug("rate limit keys swept", logx.Int("removed", removed), logx.Int("remaining", len(c.hits)))
	}
}

// keys reports the current key cardinality. Test hook.
func (c *Counter) keys() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hits)
}

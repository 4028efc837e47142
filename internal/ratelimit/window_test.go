package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "wbautoslot/pkg/logx"
)

// fakeClock lets tests march time forward without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCounter(clk *fakeClock) *Counter {
	c := NewCounter(logx.Nop())
	c.now = clk.now
	return c
}

func TestAllowWithinWindow(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestCounter(clk)

	const max = 5
	window := 300 * time.Second

	for i := 0; i < max; i++ {
		allowed, remaining := c.Allow("auth:1.2.3.4", max, window)
		if !allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
		if want := max - i - 1; remaining != want {
			t.Fatalf("remaining = %d, want %d", remaining, want)
		}
		clk.advance(time.Second)
	}

	if allowed, remaining := c.Allow("auth:1.2.3.4", max, window); allowed || remaining != 0 {
		t.Fatalf("6th call should be rejected, got allowed=%v remaining=%d", allowed, remaining)
	}
}

func TestAllowAfterWindowElapses(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestCounter(clk)

	window := 300 * time.Second
	for i := 0; i < 5; i++ {
		c.Allow("k", 5, window)
	}
	if allowed, _ := c.Allow("k", 5, window); allowed {
		t.Fatal("should be rejected while window is full")
	}

	clk.advance(window + time.Second)
	if allowed, remaining := c.Allow("k", 5, window); !allowed || remaining != 4 {
		t.Fatalf("expected fresh window, got allowed=%v remaining=%d", allowed, remaining)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestCounter(clk)

	for i := 0; i < 3; i++ {
		c.Allow("a", 3, time.Minute)
	}
	if allowed, _ := c.Allow("a", 3, time.Minute); allowed {
		t.Fatal("key a should be exhausted")
	}
	if allowed, _ := c.Allow("b", 3, time.Minute); !allowed {
		t.Fatal("key b should be unaffected")
	}
}

func TestSweepForgetsIdleKeys(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestCounter(clk)

	c.Allow("old", 10, time.Minute)
	clk.advance(30 * time.Minute)
	c.Allow("fresh", 10, time.Minute)

	c.sweep(clk.now().Add(idleHorizon - 29*time.Minute))
	if c.keys() != 1 {
		t.Fatalf("expected only fresh key to survive, have %d keys", c.keys())
	}
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestCounter(clk)
	lim := NewLimiter(c, true, logx.Nop())

	h := lim.PerIP("auth", 2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.9:51234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(); rec.Code != http.StatusOK {
		t.Fatalf("first call: code = %d", rec.Code)
	}
	if rec := do(); rec.Code != http.StatusOK {
		t.Fatalf("second call: code = %d", rec.Code)
	}
	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third call: code = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("X-RateLimit-Remaining = %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	lim := NewLimiter(newTestCounter(clk), false, logx.Nop())

	h := lim.PerIP("auth", 1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:51234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("disabled limiter rejected call %d", i+1)
		}
	}
}

package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	logx "wbautoslot/pkg/logx"
)

// Limiter applies the sliding window counter to inbound HTTP requests.
// When disabled it passes everything through untouched.
type Limiter struct {
	counter *Counter
	enabled bool
	log     logx.Logger
}

func NewLimiter(counter *Counter, enabled bool, log logx.Logger) *Limiter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Limiter{counter: counter, enabled: enabled, log: log}
}

// Allow exposes the raw counter decision for non-HTTP callers.
func (l *Limiter) Allow(key string, maxCount int, window time.Duration) (bool, int) {
	if !l.enabled {
		return true, maxCount
	}
	return l.counter.Allow(key, maxCount, window)
}

// PerIP limits requests per client address.
func (l *Limiter) PerIP(prefix string, maxCount int, window time.Duration) func(http.Handler) http.Handler {
	return l.middleware(maxCount, window, func(r *http.Request) string {
		return prefix + ":" + clientIP(r)
	})
}

// PerEndpoint limits requests per endpoint+client pair, so one hot endpoint
// cannot eat the caller's whole budget.
func (l *Limiter) PerEndpoint(endpoint string, maxCount int, window time.Duration) func(http.Handler) http.Handler {
	return l.middleware(maxCount, window, func(r *http.Request) string {
		return endpoint + ":" + clientIP(r)
	})
}

func (l *Limiter) middleware(maxCount int, window time.Duration, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.enabled {
				next.ServeHTTP(w, r)
				return
			}
			key := keyFn(r)
			allowed, remaining := l.counter.Allow(key, maxCount, window)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(maxCount))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				l.log.Warn("rate limit exceeded",
					logx.String("key", key),
					logx.Int("max", maxCount),
					logx.Duration("window", window),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":       "rate limit exceeded",
					"retry_after": int(window.Seconds()),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from X-Forwarded-For /
	// X-Real-IP before we get here.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Package ratelimit provides a sliding-window request limiter used to
// slow brute-force attempts against the wallet authentication endpoints.
package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Result describes the outcome of a single limiter check.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// Limiter tracks request timestamps per key in a sliding window.
// State is process local; a shared deployment would back this with
// Redis the same way session storage is.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the limiter's time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records one request for key and reports whether it fits in the
// current window.
func (l *Limiter) Allow(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	stamps := l.windows[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.windows[key] = kept
		return Result{
			Allowed: false,
			Limit:   l.limit,
			ResetAt: kept[0].Add(l.window),
		}
	}

	kept = append(kept, now)
	l.windows[key] = kept
	return Result{
		Allowed:   true,
		Remaining: l.limit - len(kept),
		Limit:     l.limit,
		ResetAt:   kept[0].Add(l.window),
	}
}

// Reset clears the window for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Middleware limits requests per client IP and answers 429 with
// standard X-RateLimit headers once the window is exhausted.
func Middleware(limiter *Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := limiter.Allow(clientIP(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := int(time.Until(result.ResetAt).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
				logger.WarnContext(r.Context(), "rate limit exceeded",
					"path", r.URL.Path,
					"retry_after_s", retryAfter,
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/R3E-Network/dispatch_layer/internal/mapping"
	"github.com/R3E-Network/dispatch_layer/pkg/logger"
)

// maxLimiters is the active bucket count above which Cleanup warns.
const maxLimiters = 10000

// KeyFunc groups requests into rate limit buckets.
type KeyFunc func(r *http.Request) string

// RateLimiter throttles requests per bucket, by default one bucket per
// remote IP.
type RateLimiter struct {
	buckets map[string]*rate.Limiter
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	key     KeyFunc
	log     *logger.Logger
}

// NewRateLimiter allows rps requests per second with the given burst.
func NewRateLimiter(rps int, burst int, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(rps),
		burst:   burst,
		key:     ClientKey,
		log:     log,
	}
}

// WithKey replaces the bucket key function.
func (rl *RateLimiter) WithKey(key KeyFunc) *RateLimiter {
	if key != nil {
		rl.key = key
	}
	return rl
}

func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.buckets[key]
	if !ok {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.buckets[key] = limiter
	}
	return limiter
}

// Handler rejects requests over the limit with 429.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.key(r)
		if rl.bucket(key).Allow() {
			next.ServeHTTP(w, r)
			return
		}

		rl.log.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
			"bucket": key,
			"path":   r.URL.Path,
		})
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// Cleanup drops buckets that have refilled to their full burst. Such a
// bucket behaves like a new one, so throttled clients keep their state.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, limiter := range rl.buckets {
		if limiter.Tokens() >= float64(rl.burst) {
			delete(rl.buckets, key)
		}
	}
	if len(rl.buckets) > maxLimiters {
		rl.log.WithField("buckets", len(rl.buckets)).Warn("rate limiter holds many active buckets")
	}
}

// StartCleanup runs Cleanup every interval until stop is closed.
func (rl *RateLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-stop:
				return
			}
		}
	}()
}

// ClientKey buckets by remote IP.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientModeKey buckets by remote IP and dispatch mode when known accepts
// the mode, and by remote IP alone otherwise. Router middleware runs after
// route matching, so path-variable modes are visible.
func ClientModeKey(res mapping.ModeResolver, known func(mapping.Mode) bool) KeyFunc {
	return func(r *http.Request) string {
		mode, ok := mapping.ModeOf(r, res)
		if !ok || known == nil || !known(mode) {
			return ClientKey(r)
		}
		return ClientKey(r) + "|" + string(mode)
	}
}

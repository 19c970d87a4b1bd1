package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiterConfig holds configuration for rate limiting.
type RateLimiterConfig struct {
	// Per-IP limit for all requests.
	GeneralRequestsPerMin int
	// Per-IP limit for report submissions and votes.
	ReportRequestsPerMin int
	// StaleAfter is how long an idle bucket is kept before Sweep drops it.
	StaleAfter time.Duration
	// TrustProxy makes the limiter key on the first X-Forwarded-For entry.
	TrustProxy bool
}

// DefaultRateLimiterConfig returns sensible defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRequestsPerMin: 120,
		ReportRequestsPerMin:  10,
		StaleAfter:            10 * time.Minute,
	}
}

// tokenBucket implements a simple token bucket rate limiter.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(maxTokens float64, refillRate float64) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RateLimiter keeps one token bucket per (class, IP) pair.
type RateLimiter struct {
	config RateLimiterConfig

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

// NewRateLimiter creates a RateLimiter. Idle buckets are only released by
// Sweep.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.StaleAfter <= 0 {
		config.StaleAfter = 10 * time.Minute
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*tokenBucket),
	}
}

// Allow reports whether one more request keyed by key fits under
// perMinLimit requests per minute.
func (rl *RateLimiter) Allow(key string, perMinLimit int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = newTokenBucket(float64(perMinLimit), float64(perMinLimit)/60.0)
		rl.buckets[key] = b
	}
	return b.allow()
}

// Sweep drops buckets idle since before now minus StaleAfter.
func (rl *RateLimiter) Sweep(_ context.Context, now time.Time) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.config.StaleAfter)
	n := 0
	for key, b := range rl.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(rl.buckets, key)
			n++
		}
	}
	return n, nil
}

// IPRateLimitMiddleware enforces the general per-IP limit. It returns 429
// Too Many Requests when the limit is exceeded.
func IPRateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return rateLimit(rl, "ip:", rl.config.GeneralRequestsPerMin)
}

// ReportRateLimitMiddleware enforces the stricter per-IP limit on
// endpoints that write to the API.
func ReportRateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return rateLimit(rl, "report:", rl.config.ReportRequestsPerMin)
}

func rateLimit(rl *RateLimiter, class string, perMin int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(class+extractIP(r, rl.config.TrustProxy), perMin) {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractIP returns the client IP. X-Forwarded-For is only honored behind a
// trusted reverse proxy.
func extractIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

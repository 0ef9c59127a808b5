package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/leadqual-platform/internal/tenancy"
)

const (
	bucketIdleTTL   = 10 * time.Minute
	pruneInterval   = 5 * time.Minute
	rateLimitHeader = "Retry-After"
)

// RateLimiter is a keyed token-bucket limiter. Idle buckets are pruned lazily
// on Allow.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      float64 // tokens per second
	burst     int
	now       func() time.Time
	lastPrune time.Time
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

// NewRateLimiter allows rate requests/sec per key with the given burst.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether a request for key is within the limit and consumes a
// token if so.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastPrune) >= pruneInterval {
		rl.prune(now)
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.burst), lastTime: now}
		rl.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastTime).Seconds() * rl.rate
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.lastTime = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (rl *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-bucketIdleTTL)
	for key, b := range rl.buckets {
		if b.lastTime.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
	rl.lastPrune = now
}

// ClientKey identifies the caller: the scoped business when one is on the
// context, otherwise the client IP.
func ClientKey(r *http.Request) string {
	if id, ok := tenancy.BusinessIDFromContext(r.Context()); ok {
		return "biz:" + id
	}
	ip := r.RemoteAddr
	// chi's RealIP middleware sets X-Real-Ip
	if xri := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xri != "" {
		ip = xri
	}
	return "ip:" + ip
}

// RateLimit rejects requests exceeding the limiter's budget with 429.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(ClientKey(r)) {
				w.Header().Set(rateLimitHeader, "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

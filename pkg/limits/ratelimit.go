// Package limits provides per-key request rate limiting.
package limits

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"
)

// ErrRateLimitExceeded is the message of a limited request.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimiter limits the rate of operations.
type RateLimiter interface {
	// Allow returns true if the operation is allowed.
	Allow(key string) bool

	// AllowN returns true if n operations are allowed.
	AllowN(key string, n int) bool
}

// TokenBucket implements a token bucket rate limiter per key.
type TokenBucket struct {
	rate    float64 // Tokens per second
	burst   int     // Maximum tokens (bucket size)
	idle    time.Duration
	buckets sync.Map // key -> *bucket
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
	mu       sync.Mutex
}

// NewTokenBucket creates a token bucket limiter. Buckets unused for an
// hour are dropped by Run.
func NewTokenBucket(rate float64, burst int) *TokenBucket {
	return &TokenBucket{
		rate:  rate,
		burst: burst,
		idle:  time.Hour,
		now:   time.Now,
	}
}

// Allow checks if an operation is allowed for the given key.
func (tb *TokenBucket) Allow(key string) bool {
	return tb.AllowN(key, 1)
}

// AllowN checks if n operations are allowed for the given key.
func (tb *TokenBucket) AllowN(key string, n int) bool {
	b := tb.getBucket(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	// Refill tokens
	now := tb.now()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * tb.rate
	if b.tokens > float64(tb.burst) {
		b.tokens = float64(tb.burst)
	}
	b.lastFill = now

	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

func (tb *TokenBucket) getBucket(key string) *bucket {
	if b, ok := tb.buckets.Load(key); ok {
		return b.(*bucket)
	}

	newBucket := &bucket{
		tokens:   float64(tb.burst),
		lastFill: tb.now(),
	}

	actual, _ := tb.buckets.LoadOrStore(key, newBucket)
	return actual.(*bucket)
}

// Cleanup drops buckets idle for longer than the idle period and returns
// how many were removed.
func (tb *TokenBucket) Cleanup() int {
	now := tb.now()
	removed := 0
	tb.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		if now.Sub(b.lastFill) > tb.idle {
			tb.buckets.Delete(key)
			removed++
		}
		b.mu.Unlock()
		return true
	})
	return removed
}

// Run calls Cleanup every interval until ctx is done.
func (tb *TokenBucket) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tb.Cleanup()
		case <-ctx.Done():
			return nil
		}
	}
}

// RateLimitMiddleware rejects requests over the limit with onLimit, or a
// plain 429 when onLimit is nil.
func RateLimitMiddleware(limiter RateLimiter, keyFunc func(*http.Request) string, onLimit http.Handler) func(http.Handler) http.Handler {
	if onLimit == nil {
		onLimit = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		})
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(keyFunc(r)) {
				onLimit.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc keys requests by client IP. Forwarded headers are expected to
// have been applied to RemoteAddr already (chi's RealIP).
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

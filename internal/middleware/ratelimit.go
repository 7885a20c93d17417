package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// idle buckets are dropped after this long without a request
const bucketIdleTTL = 10 * time.Minute

// bucket is a token bucket refilled continuously at rate tokens per second.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter keeps one bucket per client address. Idle buckets are swept
// while serving requests, so it owns no goroutine.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	capacity  float64
	rate      float64
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(capacity, refillRate int) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		capacity: float64(capacity),
		rate:     float64(refillRate),
		now:      time.Now,
	}
}

// Allow takes one token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > bucketIdleTTL {
		rl.sweep(now)
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.capacity, lastSeen: now}
		rl.buckets[key] = b
	}
	b.tokens = min(rl.capacity, b.tokens+now.Sub(b.lastSeen).Seconds()*rl.rate)
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Len is the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *RateLimiter) sweep(now time.Time) {
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > bucketIdleTTL {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}

// RateLimitMiddleware limits requests per client IP.
// capacity: max tokens in bucket
// refillRate: tokens added per second
// A capacity of zero or less disables limiting.
func RateLimitMiddleware(capacity, refillRate int) func(http.Handler) http.Handler {
	if capacity <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := NewRateLimiter(capacity, refillRate)

	retryAfter := "60"
	if refillRate > 0 {
		retryAfter = strconv.Itoa(max(1, 1/refillRate))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the host part of RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

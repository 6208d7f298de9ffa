package collab

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is the reference in-process enforcement point for
// routing.RateLimitPolicy: a token bucket per descriptor key, created
// lazily. It exists so RateLimitPolicy is exercised end-to-end and not
// merely data carried by the matcher.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewRateLimiter creates an empty limiter registry.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*rate.Limiter)}
}

// Allow reports whether a request keyed by descriptorKey may proceed under a
// requestsPerUnit/unit policy, creating the bucket for that key on first use.
func (l *RateLimiter) Allow(descriptorKey string, requestsPerUnit int, unit string) bool {
	if requestsPerUnit <= 0 {
		return true
	}

	l.mu.Lock()
	b, ok := l.buckets[descriptorKey]
	if !ok {
		b = rate.NewLimiter(ratePerSecond(requestsPerUnit, unit), requestsPerUnit)
		l.buckets[descriptorKey] = b
	}
	l.mu.Unlock()

	return b.Allow()
}

func ratePerSecond(n int, unit string) rate.Limit {
	var period time.Duration
	switch unit {
	case "hour":
		period = time.Hour
	case "minute":
		period = time.Minute
	default:
		period = time.Second
	}
	return rate.Every(period / time.Duration(n))
}

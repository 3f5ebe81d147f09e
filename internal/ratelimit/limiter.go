// Package ratelimit implements per-user token-bucket rate limiting for
// websocket events.
package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter manages one token bucket per identity. Buckets are created lazily at
// full capacity on first use and live for the process lifetime; with a
// low-cardinality user set no eviction is needed. Revisit if identities grow
// unbounded.
type Limiter struct {
	buckets map[string]*rate.Limiter
	mu      sync.Mutex
	rpm     int
	logger  *zap.Logger
}

// NewLimiter creates a limiter allowing rpm events per minute per identity.
// Capacity below 1 is clamped to 1.
func NewLimiter(rpm int, logger *zap.Logger) *Limiter {
	if rpm < 1 {
		rpm = 1
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rpm:     rpm,
		logger:  logger,
	}
}

// Allow reports whether the identity may spend cost tokens right now.
// It never blocks or queues; callers decide the rejection behavior.
func (l *Limiter) Allow(identity string, cost int) bool {
	return l.allowAt(time.Now(), identity, cost)
}

func (l *Limiter) allowAt(now time.Time, identity string, cost int) bool {
	bucket := l.getBucket(identity)

	allowed := bucket.AllowN(now, cost)
	if !allowed {
		l.logger.Debug("rate limit exceeded",
			zap.String("identity", identity),
			zap.Int("cost", cost),
		)
	}
	return allowed
}

// getBucket retrieves or creates the bucket for an identity. New buckets start
// full and refill linearly at rpm/60 tokens per second.
func (l *Limiter) getBucket(identity string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if bucket, exists := l.buckets[identity]; exists {
		return bucket
	}

	bucket := rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.rpm)
	l.buckets[identity] = bucket
	return bucket
}

// Size returns the number of tracked identities.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Reset clears all buckets (useful for testing)
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buckets = make(map[string]*rate.Limiter)
	l.logger.Info("rate limiter reset")
}

package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const initialBackoff = 100 * time.Millisecond

// Limiter paces requests to one API and tracks the backoff applied after
// the API reports throttling.
type Limiter struct {
	limiter *rate.Limiter
	name    string
	mu      sync.Mutex
	backoff time.Duration
	maxWait time.Duration
}

// NewLimiter creates a new rate limiter.
// perMinute is the number of requests allowed per minute; zero or less
// disables pacing.
func NewLimiter(name string, perMinute int) *Limiter {
	if perMinute <= 0 {
		return &Limiter{
			limiter: rate.NewLimiter(rate.Inf, 1),
			name:    name,
			backoff: initialBackoff,
			maxWait: 2 * time.Minute,
		}
	}
	// Convert per-minute rate to per-second
	rps := float64(perMinute) / 60.0
	// Burst of 1/10th of the per-minute limit, between 1 and 5
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    name,
		backoff: initialBackoff,
		maxWait: 2 * time.Minute,
	}
}

// Wait blocks until a token is available or context is cancelled
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SignalRateLimited doubles the backoff, capped at the max wait. Call it
// when the API answers with a throttling response.
func (l *Limiter) SignalRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.backoff *= 2
	if l.backoff > l.maxWait {
		l.backoff = l.maxWait
	}
}

// ResetBackoff resets the backoff duration after successful request
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = initialBackoff
}

// GetBackoff returns the current backoff duration
func (l *Limiter) GetBackoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff
}

// SetMaxWait caps the backoff
func (l *Limiter) SetMaxWait(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxWait = d
	if l.backoff > d {
		l.backoff = d
	}
}

// Backoff sleeps for the current backoff duration or until ctx is done
func (l *Limiter) Backoff(ctx context.Context) error {
	timer := time.NewTimer(l.GetBackoff())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Name returns the limiter name
func (l *Limiter) Name() string {
	return l.name
}

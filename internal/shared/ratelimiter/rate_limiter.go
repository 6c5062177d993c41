// Package ratelimiter paces calls against the external data gateway.
package ratelimiter

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RateLimiter limits how many gateway requests may start per interval. Waits
// are explicit and cancellable; nothing busy-polls.
type RateLimiter struct {
	limit    int           // calls allowed per interval
	interval time.Duration // reset window

	mu        sync.Mutex
	count     int
	lastReset time.Time
}

// NewRateLimiter creates a RateLimiter allowing limit calls per interval.
func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:     limit,
		interval:  interval,
		lastReset: time.Now(),
	}
}

// Wait blocks until the next call is allowed to start or the context is
// cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	now := time.Now()
	if now.Sub(rl.lastReset) >= rl.interval {
		rl.count = 0
		rl.lastReset = now
	}

	rl.count++
	if rl.count <= rl.limit {
		rl.mu.Unlock()
		return nil
	}

	sleep := rl.interval - now.Sub(rl.lastReset)
	rl.count = 1
	rl.lastReset = now.Add(sleep)
	rl.mu.Unlock()

	if sleep <= 0 {
		return nil
	}
	slog.Debug("rate limit reached, pacing", "sleep", sleep)

	select {
	case <-time.After(sleep):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package ratelimit caps how many API requests one client may make in a
// sliding window.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is set only when the request was refused.
	RetryAfter time.Duration
}

// Store counts requests per key over a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Limiter applies one limit and window to every key.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

// New returns nil when limit is not positive; a nil Limiter allows everything.
func New(store Store, limit int, window time.Duration) *Limiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	return &Limiter{store: store, limit: limit, window: window}
}

func (l *Limiter) Check(ctx context.Context, key string) (Result, error) {
	if l == nil {
		return Result{Allowed: true}, nil
	}
	return l.store.Allow(ctx, key, l.limit, l.window)
}

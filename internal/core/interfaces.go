package core

import (
	"context"
	"time"
)

// RateLimitStore abstracts the backing store for request limiting. The API
// runs as a single process, so the in-memory store is the only
// implementation.
type RateLimitStore interface {
	// IncrementAndCheck atomically increments the counter for key and reports
	// whether it is still within limit for the current window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

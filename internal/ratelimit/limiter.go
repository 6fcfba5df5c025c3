// Package ratelimit implements per-caller fixed-window rate limiting over
// the shared store, so every server instance enforces one common quota.
//
// Time is divided into consecutive windows of equal length. Each call
// atomically increments the counter for (caller, window index) and is
// allowed while the new count does not exceed the limit. Counters expire
// with their window, so no cleanup process is needed. A burst straddling
// a window boundary can briefly see up to twice the limit.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a caller may proceed.
type Limiter interface {
	// Allow records one call for key and reports the decision.
	Allow(ctx context.Context, key string) (Result, error)
}

// Result is the outcome of a rate limit check.
type Result struct {
	// Allowed reports whether the call may proceed.
	Allowed bool

	// Limit is the maximum number of calls per window.
	Limit int

	// Count is the number of calls recorded in the current window,
	// including this one.
	Count int64

	// Remaining is the number of calls left in the current window.
	Remaining int

	// ResetAfter is the time until the current window ends.
	ResetAfter time.Duration
}

// Package retry runs an operation again with capped exponential backoff
// until it succeeds, the attempts run out, or the context ends.
//
//	err := retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context) error {
//	    return client.Ping(ctx).Err()
//	}, retry.WithRetryIf(isTransient))
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Default policy values.
const (
	DefaultAttempts       = 4
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 2 * time.Second
	DefaultJitter         = 0.25
)

// Policy bounds the number of attempts and the wait between them.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Jitter adds up to this fraction of the computed wait, in [0, 1].
	Jitter float64
}

// DefaultPolicy returns the policy used for shared-store operations.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:       DefaultAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		Jitter:         DefaultJitter,
	}
}

// Once is a policy that never retries.
func Once() Policy {
	return Policy{Attempts: 1}
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultInitialBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	p.Jitter = math.Max(0, math.Min(1, p.Jitter))
	return p
}

// Backoff returns the wait after the given zero-based failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 0 {
		attempt = 0
	}

	wait := float64(p.InitialBackoff) * math.Pow(2, float64(attempt))
	if p.Jitter > 0 {
		//nolint:gosec // timing jitter, not security sensitive
		wait += wait * p.Jitter * rand.Float64()
	}
	if wait > float64(p.MaxBackoff) {
		wait = float64(p.MaxBackoff)
	}
	return time.Duration(wait)
}

// Option customizes a Do call.
type Option func(*options)

type options struct {
	retryIf func(error) bool
	notify  func(attempt int, err error, wait time.Duration)
}

// WithRetryIf limits retries to errors for which fn returns true.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) { o.retryIf = fn }
}

// WithNotify registers a callback invoked before each wait.
func WithNotify(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(o *options) { o.notify = fn }
}

// Do calls fn until it returns nil or the policy is exhausted, and returns
// the last error. A done context stops the loop with ctx.Err().
func Do(ctx context.Context, p Policy, fn func(context.Context) error, opts ...Option) error {
	p = p.normalized()

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if o.retryIf != nil && !o.retryIf(lastErr) {
			return lastErr
		}
		if attempt == p.Attempts-1 {
			break
		}

		wait := p.Backoff(attempt)
		if o.notify != nil {
			o.notify(attempt+1, lastErr, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// Package retry implements the shared linear-backoff helper used by every
// component that resends a failed call a bounded number of times: the Model
// Client Port's provider adapters and RPC Framing's request path.
package retry

import (
	"context"
	"time"
)

// Policy carries the shared backoff configuration.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Default returns the policy used when a caller doesn't override it.
func Default() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second}
}

// Do runs op, retrying with linear backoff while isRetryable(err) is true,
// up to MaxRetries attempts. It never sleeps past context cancellation: the
// ctx.Done() check happens both before each attempt and during the backoff
// wait, so Do returns promptly once the caller gives up. A zero-value Policy
// runs op exactly once, with no retries.
func (p Policy) Do(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) {
			return err
		}
		if attempt >= maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay * time.Duration(attempt)):
		}
	}
	return lastErr
}

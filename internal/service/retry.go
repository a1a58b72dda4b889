// Package service orchestrates the repositories behind the HTTP adapter.
// It owns the retry policy on optimistic conflicts: each retried attempt
// re-runs the whole read-fold-write cycle, so the policy lives here and
// not inside the repositories.
package service

import (
	"context"
	"math/rand"
	"time"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
)

const (
	maxAttempts    = 5
	retryBaseDelay = 50 * time.Millisecond
	retryMaxDelay  = 1000 * time.Millisecond
)

// withRetry re-runs fn while it fails with a retryable error, sleeping a
// full-jitter backoff between attempts: uniform over [0, min(1s, 50ms·2^k)]
// after the k-th failure. The context deadline cuts the wait short; the
// last error is returned once attempts are exhausted.
func withRetry[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var out T
	var err error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, err = fn(ctx)
		if err == nil || !apperr.IsRetryable(err) {
			return out, err
		}
		if attempt == maxAttempts-1 {
			break
		}

		delay := time.Duration(rand.Int63n(int64(retryCeiling(attempt)) + 1))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, apperr.Unavailable("request ended while awaiting retry", false, ctx.Err())
		case <-timer.C:
		}
	}

	var zero T
	return zero, err
}

// retryCeiling bounds the jittered delay after the k-th failed attempt
// (zero-based): 100ms doubling per failure, capped at retryMaxDelay.
func retryCeiling(attempt int) time.Duration {
	ceil := retryBaseDelay << (attempt + 1)
	if ceil > retryMaxDelay {
		ceil = retryMaxDelay
	}
	return ceil
}

// retryErr adapts withRetry for operations without a result.
func retryErr(ctx context.Context, fn func(context.Context) error) error {
	_, err := withRetry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

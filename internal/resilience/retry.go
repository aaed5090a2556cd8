package resilience

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy describes how often and how patiently to retry a call.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int

	// Backoff is the constant pause between attempts.
	Backoff time.Duration

	// Retryable decides whether an error is worth another attempt. A nil
	// Retryable retries every error.
	Retryable func(error) bool

	// OnRetry, when set, is called before each pause with the attempt that
	// just failed (1-based).
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy is three attempts one second apart.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: time.Second}

// Retry runs fn until it succeeds, fails with a non-retryable error, runs out
// of attempts, or ctx is done. The last error is returned unchanged so
// callers can inspect it with errors.Is.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is [Retry] for calls that return a value.
func RetryValue[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(p.MaxAttempts, 1)
	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("resilience: retry: %w", err)
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return zero, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if p.Backoff > 0 {
			t := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, err
			case <-t.C:
			}
		}
	}
}

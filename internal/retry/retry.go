// Package retry implements the exponential backoff policy used by the
// search service's vector-search call: 100ms*2^attempt, capped at
// three attempts, applied only to the retryable error kinds in
// apperrors. The store does not call it; store failures are returned
// on the first error.
package retry

import (
	"context"
	"time"

	"github.com/codetriever/ingestcore/internal/apperrors"
)

const (
	MaxAttempts = 3
	baseDelay   = 100 * time.Millisecond
)

// Do runs fn up to MaxAttempts times, retrying only when fn returns
// an *apperrors.Error whose Kind is retryable. Any other error, or
// exhausting the attempt budget, returns the last error immediately.
func Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		appErr, ok := err.(*apperrors.Error)
		if !ok || !appErr.Kind.Retryable() {
			return err
		}
	}
	return lastErr
}

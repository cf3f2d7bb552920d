package reconciler

import (
	"context"
	"time"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
)

// WithRetry runs op, retrying transient failures with exponential backoff.
// Fatal errors and context cancellation stop retrying immediately.
func WithRetry(ctx context.Context, attempts int, baseDelay time.Duration, op func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := baseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !sageerrors.IsTransient(err) || attempt == attempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

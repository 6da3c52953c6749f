package billing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultAttempts = 3
)

var retryBackoff = 20 * time.Millisecond

// WithTimeout bounds a single backend round trip.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

// Retry runs fn until it succeeds, fails with something other than ErrPersistenceConflict,
// or the attempts are used up. Timeouts are never retried.
func Retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = Classify(fn(ctx))
		if err == nil || !errors.Is(err, ErrPersistenceConflict) {
			return err
		}

		select {
		case <-ctx.Done():
			return Classify(ctx.Err())
		case <-time.After(retryBackoff * time.Duration(i+1)):
		}
	}

	return fmt.Errorf("%w: %w", ErrTransient, err)
}

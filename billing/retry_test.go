package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return fmt.Errorf("balance moved: %w", ErrPersistenceConflict)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryGivesUpAsTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, func(ctx context.Context) error {
		calls++
		return ErrPersistenceConflict
	})

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, ErrPersistenceConflict)
}

func TestRetryDoesNotRetryValidationErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, func(ctx context.Context) error {
		calls++
		return ErrInsufficientPoints
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.True(t, IsValidation(err))
}

func TestRetryNeverRetriesTimeouts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, func(ctx context.Context) error {
		calls++
		return fmt.Errorf("update voucher: %w", context.DeadlineExceeded)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrOutcomeUnknown)
}

func TestWithTimeoutDefaults(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(DefaultTimeout), deadline, time.Second)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))
	assert.True(t, errors.Is(Classify(ErrNotFound), ErrNotFound))
	assert.False(t, errors.Is(Classify(ErrNotFound), ErrOutcomeUnknown))
}

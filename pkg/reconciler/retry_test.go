package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
)

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return sageerrors.NewTransientIO(nil, "connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_DoesNotRetryFatalErrors(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func(_ context.Context) error {
		calls++
		return sageerrors.NewValidation("bad input")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, sageerrors.IsKind(err, sageerrors.KindValidation))
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func(_ context.Context) error {
		calls++
		return sageerrors.NewTransientIO(nil, "still down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, sageerrors.IsTransient(err))
}

func TestWithRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := WithRetry(ctx, 5, 50*time.Millisecond, func(_ context.Context) error {
		calls++
		cancel()
		return sageerrors.NewTransientIO(nil, "flaky")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

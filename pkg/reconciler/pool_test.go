package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	pool := NewPool(2, 4, testLogger())
	defer pool.Shutdown()

	ran := make(chan struct{})
	handle, err := pool.Submit(context.Background(), func(_ context.Context) error {
		close(ran)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}

	require.NoError(t, handle.Wait(context.Background()))
	assert.True(t, handle.Finished())
	assert.NoError(t, handle.Err())
}

func TestPool_TaskErrorSurfacesOnHandle(t *testing.T) {
	pool := NewPool(1, 1, testLogger())
	defer pool.Shutdown()

	wantErr := sageerrors.NewReconciliation(nil, "scoring blew up")
	handle, err := pool.Submit(context.Background(), func(_ context.Context) error {
		return wantErr
	})
	require.NoError(t, err)

	err = handle.Wait(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestPool_CancelStopsTask(t *testing.T) {
	pool := NewPool(1, 1, testLogger())
	defer pool.Shutdown()

	handle, err := pool.Submit(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	handle.Cancel()
	err = handle.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPool_FullQueueRejects(t *testing.T) {
	pool := NewPool(1, 1, testLogger())
	defer pool.Shutdown()

	release := make(chan struct{})
	defer close(release)

	blocker := func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Occupy the single worker, then fill the queue
	_, err := pool.Submit(context.Background(), blocker)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := pool.Submit(context.Background(), blocker)
		if err != nil {
			assert.True(t, sageerrors.IsKind(err, sageerrors.KindResourceExhausted))
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPool_RecoversPanics(t *testing.T) {
	pool := NewPool(1, 1, testLogger())
	defer pool.Shutdown()

	handle, err := pool.Submit(context.Background(), func(_ context.Context) error {
		panic("boom")
	})
	require.NoError(t, err)

	err = handle.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, sageerrors.IsKind(err, sageerrors.KindReconciliation))
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(1, 1, testLogger())
	pool.Shutdown()

	_, err := pool.Submit(context.Background(), func(_ context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, sageerrors.IsKind(err, sageerrors.KindInvalidState))
}

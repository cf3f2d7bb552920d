package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
)

func TestMemoryLimiter_EnforcesPerTenantCap(t *testing.T) {
	limiter := NewMemoryLimiter(2)
	ctx := context.Background()

	release1, err := limiter.Acquire(ctx, "t1")
	require.NoError(t, err)
	_, err = limiter.Acquire(ctx, "t1")
	require.NoError(t, err)

	_, err = limiter.Acquire(ctx, "t1")
	require.Error(t, err)
	assert.True(t, sageerrors.IsKind(err, sageerrors.KindResourceExhausted))

	// Other tenants are unaffected
	_, err = limiter.Acquire(ctx, "t2")
	assert.NoError(t, err)

	// Releasing frees a slot
	release1()
	_, err = limiter.Acquire(ctx, "t1")
	assert.NoError(t, err)
}

func TestMemoryLimiter_ReleaseIsIdempotent(t *testing.T) {
	limiter := NewMemoryLimiter(1)

	release, err := limiter.Acquire(context.Background(), "t1")
	require.NoError(t, err)

	release()
	release()

	assert.Equal(t, 0, limiter.Active("t1"))
}

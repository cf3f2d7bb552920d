package errors

import (
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := NewValidation("datasets must not be empty")

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, kind)
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := NewTransientIO(pkgerrors.New("connection refused"), "failed to query search index")
	err := pkgerrors.Wrap(inner, "scoring phase failed")

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindTransientIO, kind)
}

func TestKindOf_PlainError(t *testing.T) {
	_, ok := KindOf(pkgerrors.New("boom"))
	assert.False(t, ok)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewTransientIO(nil, "store unavailable")))
	assert.False(t, IsTransient(NewValidation("bad request")))
	assert.False(t, IsTransient(pkgerrors.New("boom")))
}

func TestError_Unwrap(t *testing.T) {
	cause := pkgerrors.New("artifact checksum mismatch")
	err := NewModelLoad("pairwise-similarity", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "pairwise-similarity")
	assert.Contains(t, err.Error(), "artifact checksum mismatch")
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindConfiguration, http.StatusBadRequest},
		{KindResourceExhausted, http.StatusTooManyRequests},
		{KindNotFound, http.StatusNotFound},
		{KindModelNotFound, http.StatusNotFound},
		{KindConcurrentModification, http.StatusConflict},
		{KindInvalidState, http.StatusConflict},
		{KindTransientIO, http.StatusServiceUnavailable},
		{KindReconciliation, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusCode(tt.kind))
		})
	}
}

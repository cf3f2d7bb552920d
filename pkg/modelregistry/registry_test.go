package modelregistry

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeStore struct {
	artifacts map[string][]byte
	errs      map[string]error
	fetches   int
}

func (s *fakeStore) Fetch(_ context.Context, name string) ([]byte, error) {
	s.fetches++
	if err, ok := s.errs[name]; ok {
		return nil, err
	}
	raw, ok := s.artifacts[name]
	if !ok {
		return nil, sageerrors.NewModelNotFound(name)
	}
	return raw, nil
}

func artifact(version string) []byte {
	return []byte(`{"name":"scoring-v1","version":"` + version + `","bias":-2.0,"weights":{"name":3.0},"default_weight":1.0}`)
}

func TestRefresh_LoadsAndServesModel(t *testing.T) {
	store := &fakeStore{artifacts: map[string][]byte{"scoring-v1": artifact("1")}}
	registry := NewRegistry(store, 1, testLogger())

	require.NoError(t, registry.Refresh(context.Background(), "scoring-v1"))

	model, err := registry.GetModel("scoring-v1")
	require.NoError(t, err)
	assert.Equal(t, "scoring-v1", model.Name())
	assert.Equal(t, "1", model.Version())

	score := model.Score(map[string]float64{"name": 1.0})
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)
}

func TestRefresh_FailureKeepsActiveVersion(t *testing.T) {
	store := &fakeStore{artifacts: map[string][]byte{"scoring-v1": artifact("1")}}
	registry := NewRegistry(store, 1, testLogger())
	require.NoError(t, registry.Refresh(context.Background(), "scoring-v1"))

	// Store starts failing mid-download
	store.errs = map[string]error{"scoring-v1": sageerrors.NewTransientIO(pkgerrors.New("connection reset"), "model store request failed")}
	err := registry.Refresh(context.Background(), "scoring-v1")
	require.Error(t, err)

	model, err := registry.GetModel("scoring-v1")
	require.NoError(t, err)
	assert.Equal(t, "1", model.Version())
}

func TestRefresh_RetriesTransientErrors(t *testing.T) {
	store := &fakeStore{errs: map[string]error{"scoring-v1": sageerrors.NewTransientIO(nil, "store unavailable")}}
	registry := NewRegistry(store, 3, testLogger())

	err := registry.Refresh(context.Background(), "scoring-v1")
	require.Error(t, err)
	assert.Equal(t, 3, store.fetches)
}

func TestRefresh_DoesNotRetryFatalErrors(t *testing.T) {
	store := &fakeStore{artifacts: map[string][]byte{"scoring-v1": []byte(`{"version":""}`)}}
	registry := NewRegistry(store, 3, testLogger())

	err := registry.Refresh(context.Background(), "scoring-v1")
	require.Error(t, err)
	assert.Equal(t, 1, store.fetches)

	kind, ok := sageerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, sageerrors.KindModelLoad, kind)
}

func TestGetModel_UnknownName(t *testing.T) {
	registry := NewRegistry(&fakeStore{}, 1, testLogger())

	_, err := registry.GetModel("nope")
	require.Error(t, err)
	assert.True(t, sageerrors.IsKind(err, sageerrors.KindModelNotFound))
}

func TestRefresh_HotSwapsNewVersion(t *testing.T) {
	store := &fakeStore{artifacts: map[string][]byte{"scoring-v1": artifact("1")}}
	registry := NewRegistry(store, 1, testLogger())
	require.NoError(t, registry.Refresh(context.Background(), "scoring-v1"))

	store.artifacts["scoring-v1"] = artifact("2")
	require.NoError(t, registry.Refresh(context.Background(), "scoring-v1"))

	model, err := registry.GetModel("scoring-v1")
	require.NoError(t, err)
	assert.Equal(t, "2", model.Version())
}

// Package modelregistry holds the pairwise scoring models and hot-swaps
// them as new artifact versions are published. Lookups never block on a
// refresh: readers always see the last successfully loaded version.
package modelregistry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/scoring"
)

// Registry manages named models with atomic hot swap
type Registry struct {
	store           ArtifactStore
	logger          ectologger.Logger
	loadMaxAttempts int

	mu     sync.Mutex
	models map[string]*atomic.Pointer[PairwiseModel]
}

// NewRegistry creates a Registry backed by the given artifact store
func NewRegistry(store ArtifactStore, loadMaxAttempts int, logger ectologger.Logger) *Registry {
	if loadMaxAttempts <= 0 {
		loadMaxAttempts = 1
	}
	return &Registry{
		store:           store,
		logger:          logger,
		loadMaxAttempts: loadMaxAttempts,
		models:          make(map[string]*atomic.Pointer[PairwiseModel]),
	}
}

// GetModel returns the active version of the named model
func (r *Registry) GetModel(name string) (scoring.Model, error) {
	r.mu.Lock()
	slot, ok := r.models[name]
	r.mu.Unlock()
	if !ok {
		return nil, sageerrors.NewModelNotFound(name)
	}

	model := slot.Load()
	if model == nil {
		return nil, sageerrors.NewModelNotFound(name)
	}
	return model, nil
}

// Refresh fetches and swaps in the latest artifact for the named model. On
// any failure the previously loaded version stays active and keeps serving.
func (r *Registry) Refresh(ctx context.Context, name string) error {
	var lastErr error
	for attempt := 1; attempt <= r.loadMaxAttempts; attempt++ {
		raw, err := r.store.Fetch(ctx, name)
		if err != nil {
			lastErr = err
			if sageerrors.IsTransient(err) && attempt < r.loadMaxAttempts {
				continue
			}
			break
		}

		model, err := LoadModel(name, raw)
		if err != nil {
			lastErr = err
			break
		}

		slot := r.slot(name)
		previous := slot.Swap(model)
		if previous == nil || previous.Version() != model.Version() {
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"model":   name,
				"version": model.Version(),
			}).Infof("model activated")
		}
		metrics.ModelRefreshesTotal.WithLabelValues(name, "success").Inc()
		return nil
	}

	metrics.ModelRefreshesTotal.WithLabelValues(name, "failure").Inc()
	r.logger.WithContext(ctx).WithError(lastErr).Errorf("model refresh failed for %s, keeping active version", name)
	return lastErr
}

// RefreshAll refreshes every registered model name
func (r *Registry) RefreshAll(ctx context.Context) {
	r.mu.Lock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	r.mu.Unlock()

	for _, name := range names {
		_ = r.Refresh(ctx, name)
	}
}

// Watch refreshes the named models on the given interval until ctx is done.
// The initial refresh runs immediately; a model that fails its first load
// simply stays unavailable until a later refresh succeeds.
func (r *Registry) Watch(ctx context.Context, interval time.Duration, names ...string) {
	for _, name := range names {
		r.slot(name)
		_ = r.Refresh(ctx, name)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// slot returns the swap slot for a name, registering it if needed
func (r *Registry) slot(name string) *atomic.Pointer[PairwiseModel] {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.models[name]
	if !ok {
		slot = &atomic.Pointer[PairwiseModel]{}
		r.models[name] = slot
	}
	return slot
}

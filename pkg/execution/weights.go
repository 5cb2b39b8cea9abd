package execution

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/klokku/ritual/pkg/progress"
	"github.com/klokku/ritual/pkg/storage"
	log "github.com/sirupsen/logrus"
)

var ErrWeightsNotSaved = errors.New("weight overrides could not be saved")

// TitleWeightStore holds the title-keyed weight overrides shared by every
// routine and date. It is loaded on first use and written through on change.
type TitleWeightStore struct {
	store *storage.Store

	mu      sync.Mutex
	loaded  bool
	weights progress.TitleWeights
}

func NewTitleWeightStore(store *storage.Store) *TitleWeightStore {
	return &TitleWeightStore{store: store}
}

// Snapshot returns a copy of the current overrides.
func (w *TitleWeightStore) Snapshot(ctx context.Context) progress.TitleWeights {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.load(ctx)
	return maps.Clone(w.weights)
}

func (w *TitleWeightStore) Set(ctx context.Context, title string, weight float64) error {
	return w.update(ctx, func(weights progress.TitleWeights) {
		weights[title] = progress.SafeWeight(weight, 1)
	})
}

func (w *TitleWeightStore) Clear(ctx context.Context, title string) error {
	return w.update(ctx, func(weights progress.TitleWeights) {
		delete(weights, title)
	})
}

// Forget drops the cached overrides so the next use reads them again.
func (w *TitleWeightStore) Forget() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loaded = false
	w.weights = nil
}

func (w *TitleWeightStore) update(ctx context.Context, fn func(weights progress.TitleWeights)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.load(ctx)
	next := maps.Clone(w.weights)
	fn(next)
	if !storage.Save(ctx, w.store, storage.WeightsKey, next) {
		return ErrWeightsNotSaved
	}
	w.weights = next
	return nil
}

func (w *TitleWeightStore) load(ctx context.Context) {
	if w.loaded {
		return
	}
	weights, found := storage.Load[progress.TitleWeights](ctx, w.store, storage.WeightsKey)
	if !found || weights == nil {
		weights = progress.TitleWeights{}
	}
	log.Tracef("loaded %d weight overrides", len(weights))
	w.weights = weights
	w.loaded = true
}

// layered resolves titles against the shared overrides first and then against
// the overrides older releases kept inside each execution state.
func layered(shared, own progress.TitleWeights) progress.TitleWeights {
	merged := make(progress.TitleWeights, len(shared)+len(own))
	maps.Copy(merged, own)
	maps.Copy(merged, shared)
	return merged
}

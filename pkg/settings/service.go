package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/klokku/ritual/internal/event_bus"
	"github.com/klokku/ritual/pkg/storage"
	log "github.com/sirupsen/logrus"
)

var ErrUnknownSetting = errors.New("unknown setting")
var ErrStorage = errors.New("settings storage unavailable")

type Service interface {
	Get(ctx context.Context) AppSettings
	// Update merges patch into the stored partial settings.
	Update(ctx context.Context, patch map[string]json.RawMessage) (AppSettings, error)
}

type ServiceImpl struct {
	mu      sync.Mutex
	store   *storage.Store
	current AppSettings
	loaded  bool
	stale   atomic.Bool
}

func NewService(store *storage.Store, eventBus *event_bus.EventBus) *ServiceImpl {
	s := &ServiceImpl{store: store}
	// The handlers only flag the cache: they may run while Update holds mu.
	event_bus.SubscribeTyped[event_bus.KeyWritten](eventBus, event_bus.StorageKeyWritten,
		func(e event_bus.EventT[event_bus.KeyWritten]) error {
			if e.Data.Key == storage.SettingsKey {
				s.stale.Store(true)
			}
			return nil
		})
	event_bus.SubscribeTyped[event_bus.KeysReplaced](eventBus, event_bus.StorageKeysReplaced,
		func(e event_bus.EventT[event_bus.KeysReplaced]) error {
			if slices.Contains(e.Data.Keys, storage.SettingsKey) {
				log.Debugf("settings replaced by %s, reloading", e.Data.Source)
				s.stale.Store(true)
			}
			return nil
		})
	return s
}

func (s *ServiceImpl) Get(ctx context.Context) AppSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || s.stale.Swap(false) {
		s.current = Merge(s.loadPartial(ctx))
		s.loaded = true
	}
	return s.current
}

func (s *ServiceImpl) Update(ctx context.Context, patch map[string]json.RawMessage) (AppSettings, error) {
	known := Keys()
	for key := range patch {
		if !slices.Contains(known, key) {
			return AppSettings{}, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	partial := s.loadPartial(ctx)
	for key, raw := range patch {
		if string(raw) == "null" {
			delete(partial, key)
			continue
		}
		partial[key] = raw
	}
	if !s.store.Set(ctx, storage.SettingsKey, partial) {
		return AppSettings{}, ErrStorage
	}
	s.current = Merge(partial)
	s.loaded = true
	s.stale.Store(false)
	return s.current, nil
}

func (s *ServiceImpl) loadPartial(ctx context.Context) map[string]json.RawMessage {
	partial, found := storage.Load[map[string]json.RawMessage](ctx, s.store, storage.SettingsKey)
	if !found || partial == nil {
		return map[string]json.RawMessage{}
	}
	return partial
}

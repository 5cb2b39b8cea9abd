// Package storage is the key/value persistence layer shared by every
// controller. Values are JSON documents; writes keep the previous value under
// a shadow key so empty or corrupted reads of critical keys can be restored.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/klokku/ritual/internal/event_bus"
	log "github.com/sirupsen/logrus"
)

type Store struct {
	backend  Backend
	eventBus *event_bus.EventBus

	mu            sync.Mutex
	legacyScanned map[string]bool
}

func NewStore(backend Backend, eventBus *event_bus.EventBus) *Store {
	return &Store{
		backend:       backend,
		eventBus:      eventBus,
		legacyScanned: make(map[string]bool),
	}
}

func (s *Store) Backend() Backend {
	return s.backend
}

// GetRaw returns the document stored under key. Missing, unreadable and
// malformed values all read as absent. For restorable keys an absent or
// empty primary is replaced by the shadow copy when one exists.
func (s *Store) GetRaw(ctx context.Context, key string) (json.RawMessage, bool) {
	primary, ok := s.read(ctx, key)
	if ok && !IsEmptyJSON(primary) {
		return primary, true
	}
	if !Restorable(key) {
		return primary, ok
	}

	shadow, shadowOk := s.read(ctx, ShadowKey(key))
	if !shadowOk || IsEmptyJSON(shadow) {
		return primary, ok
	}

	log.Warnf("restoring %s from its backup copy", key)
	// Written straight to the backend so the restore does not rotate the
	// shadow it was read from.
	if err := s.backend.Set(ctx, key, shadow); err != nil {
		log.Errorf("failed to restore %s: %v", key, err)
	} else {
		s.publish(ctx, key, shadow)
	}
	return shadow, true
}

// Get decodes the document under key into out and reports whether it was
// found. A decoding failure leaves out untouched and reads as absent.
func (s *Store) Get(ctx context.Context, key string, out any) bool {
	raw, ok := s.GetRaw(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Warnf("ignoring unreadable value at %s: %v", key, err)
		return false
	}
	return true
}

// Set stores value under key, keeping the previous non-empty value as the
// shadow copy.
func (s *Store) Set(ctx context.Context, key string, value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Errorf("failed to encode value for %s: %v", key, err)
		return false
	}
	return s.SetRaw(ctx, key, raw)
}

func (s *Store) SetRaw(ctx context.Context, key string, raw json.RawMessage) bool {
	if !json.Valid(raw) {
		log.Errorf("refusing to store invalid JSON at %s", key)
		return false
	}
	if !IsShadowKey(key) {
		s.rotate(ctx, key)
	}
	if err := s.backend.Set(ctx, key, raw); err != nil {
		log.Errorf("failed to write %s: %v", key, err)
		return false
	}
	s.publish(ctx, key, raw)
	return true
}

// Seed writes raw under key without rotating or announcing the write. It is
// used to adopt remote values into empty local slots.
func (s *Store) Seed(ctx context.Context, key string, raw json.RawMessage) bool {
	if !json.Valid(raw) {
		return false
	}
	if err := s.backend.Set(ctx, key, raw); err != nil {
		log.Errorf("failed to seed %s: %v", key, err)
		return false
	}
	return true
}

func (s *Store) Delete(ctx context.Context, key string) bool {
	if err := s.backend.Delete(ctx, key); err != nil {
		log.Errorf("failed to delete %s: %v", key, err)
		return false
	}
	return true
}

// Keys lists primary keys, shadows excluded.
func (s *Store) Keys(ctx context.Context) []string {
	keys, err := s.backend.Keys(ctx)
	if err != nil {
		log.Errorf("failed to list keys: %v", err)
		return nil
	}
	result := make([]string, 0, len(keys))
	for _, k := range keys {
		if !IsShadowKey(k) {
			result = append(result, k)
		}
	}
	return result
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) read(ctx context.Context, key string) (json.RawMessage, bool) {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		log.Errorf("failed to read %s: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if !json.Valid(raw) {
		log.Warnf("malformed JSON at %s, treating as absent", key)
		return nil, false
	}
	return raw, true
}

func (s *Store) rotate(ctx context.Context, key string) {
	current, ok := s.read(ctx, key)
	if !ok || IsEmptyJSON(current) {
		return
	}
	if err := s.backend.Set(ctx, ShadowKey(key), current); err != nil {
		log.Warnf("failed to keep backup of %s: %v", key, err)
	}
}

func (s *Store) publish(ctx context.Context, key string, raw json.RawMessage) {
	if s.eventBus == nil {
		return
	}
	event := event_bus.NewEvent(ctx, event_bus.StorageKeyWritten, event_bus.KeyWritten{Key: key, Value: raw})
	if err := s.eventBus.Publish(event); err != nil {
		log.Warnf("write of %s: %v", key, err)
	}
}

// IsEmptyJSON reports whether raw is null, an empty string, an empty array or
// an object without keys.
func IsEmptyJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}
	switch string(trimmed) {
	case "null", `""`, "[]", "{}":
		return true
	}
	switch trimmed[0] {
	case '[':
		var list []json.RawMessage
		return json.Unmarshal(trimmed, &list) == nil && len(list) == 0
	case '{':
		var obj map[string]json.RawMessage
		return json.Unmarshal(trimmed, &obj) == nil && len(obj) == 0
	}
	return false
}

// Load reads key into a fresh T. The zero value is returned when absent.
func Load[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var value T
	if !s.Get(ctx, key, &value) {
		var zero T
		return zero, false
	}
	return value, true
}

func Save[T any](ctx context.Context, s *Store, key string, value T) bool {
	return s.Set(ctx, key, value)
}

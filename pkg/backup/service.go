package backup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klokku/ritual/internal/event_bus"
	"github.com/klokku/ritual/internal/utils"
	"github.com/klokku/ritual/pkg/routine"
	"github.com/klokku/ritual/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// Flusher writes pending in-memory edits, so an export sees them and an
// import is not overwritten by them.
type Flusher interface {
	Flush()
}

type ImportResult struct {
	Routines   int  `json:"routines"`
	Executions int  `json:"executions"`
	Settings   bool `json:"settings"`
}

type Service interface {
	Export(ctx context.Context) (BackupData, error)
	// Import writes every part of data, or nothing when data is invalid.
	Import(ctx context.Context, data BackupData) (ImportResult, error)
}

type ServiceImpl struct {
	store    *storage.Store
	routines routine.Repository
	eventBus *event_bus.EventBus
	clock    utils.Clock
	flushers []Flusher
}

func NewService(
	store *storage.Store,
	routines routine.Repository,
	eventBus *event_bus.EventBus,
	clock utils.Clock,
	flushers ...Flusher,
) *ServiceImpl {
	return &ServiceImpl{store: store, routines: routines, eventBus: eventBus, clock: clock, flushers: flushers}
}

func (s *ServiceImpl) Export(ctx context.Context) (BackupData, error) {
	s.flush()
	routines, err := s.routines.List(ctx)
	if err != nil {
		return BackupData{}, err
	}
	data := BackupData{
		Version:    Version,
		ExportedAt: s.clock.Now(),
		Routines:   routines,
		Executions: map[string]json.RawMessage{},
		Settings:   json.RawMessage(`{}`),
	}
	for _, key := range s.store.Keys(ctx) {
		if !storage.IsExecutionKey(key) {
			continue
		}
		if raw, found := s.store.GetRaw(ctx, key); found {
			data.Executions[key] = raw
		}
	}
	if raw, found := s.store.GetRaw(ctx, storage.SettingsKey); found {
		data.Settings = raw
	}
	log.Infof("exported %d routines and %d execution states", len(data.Routines), len(data.Executions))
	return data, nil
}

func (s *ServiceImpl) Import(ctx context.Context, data BackupData) (ImportResult, error) {
	if err := data.Validate(); err != nil {
		return ImportResult{}, err
	}
	s.flush()

	var result ImportResult
	var replaced []string
	// An empty list would read as missing and be restored from the shadow.
	if len(data.Routines) > 0 {
		if err := s.routines.SaveAll(ctx, data.Routines); err != nil {
			return result, fmt.Errorf("failed to import routines: %w", err)
		}
		replaced = append(replaced, storage.RoutinesKey)
		result.Routines = len(data.Routines)
	}
	for key, raw := range data.Executions {
		if !s.store.SetRaw(ctx, key, raw) {
			log.Errorf("failed to import execution state %s", key)
			continue
		}
		replaced = append(replaced, key)
		result.Executions++
	}
	if len(data.Settings) > 0 && !storage.IsEmptyJSON(data.Settings) {
		if s.store.SetRaw(ctx, storage.SettingsKey, data.Settings) {
			replaced = append(replaced, storage.SettingsKey)
			result.Settings = true
		} else {
			log.Errorf("failed to import settings")
		}
	}

	err := s.eventBus.Publish(event_bus.NewEvent(ctx, event_bus.StorageKeysReplaced, event_bus.KeysReplaced{
		Keys:   replaced,
		Source: event_bus.SourceBackup,
	}))
	if err != nil {
		log.Warnf("backup import listeners failed: %v", err)
	}
	log.Infof("imported %d routines and %d execution states", result.Routines, result.Executions)
	return result, nil
}

func (s *ServiceImpl) flush() {
	for _, f := range s.flushers {
		f.Flush()
	}
}

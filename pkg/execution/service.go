// Package execution tracks the live execution state of routines per date.
// States are loaded lazily, mutated in memory and written back after a quiet
// period, so bursts of taps produce a single write carrying the latest state.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/klokku/ritual/internal/event_bus"
	"github.com/klokku/ritual/internal/utils"
	"github.com/klokku/ritual/pkg/interaction"
	"github.com/klokku/ritual/pkg/progress"
	"github.com/klokku/ritual/pkg/routine"
	"github.com/klokku/ritual/pkg/settings"
	"github.com/klokku/ritual/pkg/storage"
	log "github.com/sirupsen/logrus"
)

var ErrNotMental = errors.New("reflections are only kept for mental items")
var ErrInvalidDate = errors.New("invalid date")

type RoutineReader interface {
	Get(ctx context.Context, id string) (routine.Routine, error)
}

type SettingsReader interface {
	Get(ctx context.Context) settings.AppSettings
}

type Service interface {
	Get(ctx context.Context, routineId, date string) (ExecutionState, error)
	Toggle(ctx context.Context, routineId, date, itemId string) (ExecutionState, error)
	SetWeight(ctx context.Context, routineId, date, itemId string, weight float64) (ExecutionState, error)
	ClearWeight(ctx context.Context, routineId, date, itemId string) (ExecutionState, error)
	StartTimer(ctx context.Context, routineId, date, itemId string) (ExecutionState, error)
	// StopTimer clears the running timer; complete also checks its item.
	StopTimer(ctx context.Context, routineId, date string, complete bool) (ExecutionState, error)
	SetMood(ctx context.Context, routineId, date, itemId string, mood interaction.Mood) (ExecutionState, error)
	SetReflection(ctx context.Context, routineId, date, itemId, text string) (ExecutionState, error)
	SetDeclined(ctx context.Context, routineId, date, itemId, note string) (ExecutionState, error)
	DismissSuggestion(ctx context.Context, routineId, date, suggestionId string) (ExecutionState, error)
	// Flush writes every pending state now.
	Flush()
	Close()
}

type ServiceImpl struct {
	store    *storage.Store
	routines RoutineReader
	settings SettingsReader
	clock    utils.Clock
	live     *storage.LiveSet[interaction.State]
	weights  *TitleWeightStore
	unsub    []func()
}

func NewService(
	store *storage.Store,
	routines RoutineReader,
	settings SettingsReader,
	clock utils.Clock,
	eventBus *event_bus.EventBus,
	saveDelay time.Duration,
) *ServiceImpl {
	s := &ServiceImpl{
		store:    store,
		routines: routines,
		settings: settings,
		clock:    clock,
		weights:  NewTitleWeightStore(store),
	}
	s.live = storage.NewLiveSet(store, saveDelay, s.load, interaction.State.Clone)
	s.unsub = append(s.unsub, event_bus.SubscribeTyped[event_bus.DateChanged](eventBus, event_bus.DateRolledOver,
		func(e event_bus.EventT[event_bus.DateChanged]) error {
			log.Debugf("execution: date rolled over from %s to %s", e.Data.Previous, e.Data.Current)
			s.Rollover(e.Data.Previous)
			return nil
		}))
	s.unsub = append(s.unsub, event_bus.SubscribeTyped[event_bus.KeysReplaced](eventBus, event_bus.StorageKeysReplaced,
		func(e event_bus.EventT[event_bus.KeysReplaced]) error {
			s.live.Forget(e.Data.Keys)
			if slices.Contains(e.Data.Keys, storage.WeightsKey) {
				s.weights.Forget()
			}
			return nil
		}))
	return s
}

func (s *ServiceImpl) Get(ctx context.Context, routineId, date string) (ExecutionState, error) {
	r, err := s.routine(ctx, routineId, date)
	if err != nil {
		return ExecutionState{}, err
	}
	shared := s.weights.Snapshot(ctx)
	var state ExecutionState
	s.live.View(ctx, storage.ExecutionKey(routineId, date), func(st *interaction.State) {
		state = snapshot(r, date, st, shared)
	})
	return state, nil
}

func (s *ServiceImpl) Toggle(ctx context.Context, routineId, date, itemId string) (ExecutionState, error) {
	return s.mutateItem(ctx, routineId, date, itemId, func(st *interaction.State, item routine.RoutineItem) error {
		st.Toggle(item.Id)
		return nil
	})
}

// SetWeight overrides the weight of every item sharing the title of itemId,
// in every routine and on every date.
func (s *ServiceImpl) SetWeight(ctx context.Context, routineId, date, itemId string, weight float64) (ExecutionState, error) {
	r, err := s.routine(ctx, routineId, date)
	if err != nil {
		return ExecutionState{}, err
	}
	item, _, ok := r.FindItem(itemId)
	if !ok {
		return ExecutionState{}, routine.ErrItemNotFound
	}
	if err := s.weights.Set(ctx, item.Title, s.settings.Get(ctx).ClampWeight(weight)); err != nil {
		return ExecutionState{}, err
	}
	return s.Get(ctx, routineId, date)
}

// ClearWeight removes the shared override of the item's title, along with
// one an older release may have kept in this state.
func (s *ServiceImpl) ClearWeight(ctx context.Context, routineId, date, itemId string) (ExecutionState, error) {
	r, err := s.routine(ctx, routineId, date)
	if err != nil {
		return ExecutionState{}, err
	}
	item, _, ok := r.FindItem(itemId)
	if !ok {
		return ExecutionState{}, routine.ErrItemNotFound
	}
	if err := s.weights.Clear(ctx, item.Title); err != nil {
		return ExecutionState{}, err
	}
	return s.mutateItem(ctx, routineId, date, itemId, func(st *interaction.State, item routine.RoutineItem) error {
		st.ClearWeight(item.Title)
		return nil
	})
}

func (s *ServiceImpl) StartTimer(ctx context.Context, routineId, date, itemId string) (ExecutionState, error) {
	now := s.clock.Now()
	return s.mutateItem(ctx, routineId, date, itemId, func(st *interaction.State, item routine.RoutineItem) error {
		_, err := st.StartTimer(item.Id, now, item.DurationMinutes)
		return err
	})
}

func (s *ServiceImpl) StopTimer(ctx context.Context, routineId, date string, complete bool) (ExecutionState, error) {
	return s.mutate(ctx, routineId, date, func(st *interaction.State, _ routine.Routine) error {
		if t := st.StopTimer(); t != nil && complete {
			st.SetChecked(t.ItemId, true)
		}
		return nil
	})
}

func (s *ServiceImpl) SetMood(ctx context.Context, routineId, date, itemId string, mood interaction.Mood) (ExecutionState, error) {
	return s.mutateItem(ctx, routineId, date, itemId, func(st *interaction.State, item routine.RoutineItem) error {
		return st.SetMood(item.Id, mood)
	})
}

func (s *ServiceImpl) SetReflection(ctx context.Context, routineId, date, itemId, text string) (ExecutionState, error) {
	return s.mutateItem(ctx, routineId, date, itemId, func(st *interaction.State, item routine.RoutineItem) error {
		if !item.IsMental {
			return ErrNotMental
		}
		st.SetReflection(item.Id, text)
		return nil
	})
}

func (s *ServiceImpl) SetDeclined(ctx context.Context, routineId, date, itemId, note string) (ExecutionState, error) {
	return s.mutateItem(ctx, routineId, date, itemId, func(st *interaction.State, item routine.RoutineItem) error {
		st.SetDeclined(item.Id, note)
		return nil
	})
}

func (s *ServiceImpl) DismissSuggestion(ctx context.Context, routineId, date, suggestionId string) (ExecutionState, error) {
	return s.mutate(ctx, routineId, date, func(st *interaction.State, _ routine.Routine) error {
		st.DismissSuggestion(suggestionId)
		return nil
	})
}

func (s *ServiceImpl) Flush() {
	s.live.Flush()
}

// Rollover writes pending states and drops the in-memory states of date.
func (s *ServiceImpl) Rollover(date string) {
	s.live.Evict(func(key string) bool {
		_, d, ok := storage.SplitExecutionKey(key)
		return ok && d == date
	})
}

func (s *ServiceImpl) Close() {
	for _, unsub := range s.unsub {
		unsub()
	}
	s.live.Close()
}

func (s *ServiceImpl) mutateItem(
	ctx context.Context,
	routineId, date, itemId string,
	fn func(st *interaction.State, item routine.RoutineItem) error,
) (ExecutionState, error) {
	return s.mutate(ctx, routineId, date, func(st *interaction.State, r routine.Routine) error {
		item, _, ok := r.FindItem(itemId)
		if !ok {
			return routine.ErrItemNotFound
		}
		return fn(st, item)
	})
}

func (s *ServiceImpl) mutate(
	ctx context.Context,
	routineId, date string,
	fn func(st *interaction.State, r routine.Routine) error,
) (ExecutionState, error) {
	r, err := s.routine(ctx, routineId, date)
	if err != nil {
		return ExecutionState{}, err
	}

	shared := s.weights.Snapshot(ctx)
	var state ExecutionState
	err = s.live.Update(ctx, storage.ExecutionKey(routineId, date), func(st *interaction.State) error {
		if err := fn(st, r); err != nil {
			return err
		}
		state = snapshot(r, date, st, shared)
		return nil
	})
	if err != nil {
		return ExecutionState{}, err
	}
	return state, nil
}

func (s *ServiceImpl) routine(ctx context.Context, routineId, date string) (routine.Routine, error) {
	if _, err := utils.ParseDate(date); err != nil {
		return routine.Routine{}, errors.Join(ErrInvalidDate, err)
	}
	return s.routines.Get(ctx, routineId)
}

// load reads a state on first use, falling back to the legacy key layouts.
func (s *ServiceImpl) load(ctx context.Context, key string) interaction.State {
	st := interaction.NewState()
	routineId, date, ok := storage.SplitExecutionKey(key)
	if !ok {
		return st
	}
	raw, found := s.store.GetRaw(ctx, key)
	if !found {
		raw, found = s.store.MigrateLegacyExecution(ctx, routineId, date)
	}
	if !found {
		return st
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		log.Warnf("unreadable execution state %s, starting fresh: %v", key, err)
		return interaction.NewState()
	}
	return st
}

// snapshot reports the overrides in effect for the state, shared ones
// included; only the state's own are persisted.
func snapshot(r routine.Routine, date string, st *interaction.State, shared progress.TitleWeights) ExecutionState {
	clone := st.Clone()
	clone.Weights = layered(shared, clone.Weights)
	return ExecutionState{
		RoutineId: r.Id,
		Date:      date,
		State:     clone,
		Progress:  clone.Progress(r.ProgressItems()),
	}
}

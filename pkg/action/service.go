// Package action manages the per-date list of actions picked from routines
// or written ad hoc.
package action

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/ritual/internal/event_bus"
	"github.com/klokku/ritual/internal/utils"
	"github.com/klokku/ritual/pkg/interaction"
	"github.com/klokku/ritual/pkg/progress"
	"github.com/klokku/ritual/pkg/routine"
	"github.com/klokku/ritual/pkg/settings"
	"github.com/klokku/ritual/pkg/storage"
	log "github.com/sirupsen/logrus"
)

var ErrActionNotFound = errors.New("action not found")
var ErrEmptyTitle = errors.New("action title must not be empty")
var ErrInvalidDate = errors.New("invalid date")

type RoutineItemFinder interface {
	FindItem(ctx context.Context, routineId string, itemId string) (routine.Routine, routine.RoutineItem, routine.RoutinePhase, error)
}

type SettingsReader interface {
	Get(ctx context.Context) settings.AppSettings
}

// Snapshot is the action list of a date with its progress.
type Snapshot struct {
	Date     string
	Actions  DailyActionState
	Progress progress.Progress
}

type Service interface {
	Get(ctx context.Context, date string) (Snapshot, error)
	AddFromRoutine(ctx context.Context, date, routineId, itemId string) (DailyAction, error)
	AddCustom(ctx context.Context, date, title string, tags []string) (DailyAction, error)
	Remove(ctx context.Context, date, actionId string) error
	Rename(ctx context.Context, date, actionId, title string) (DailyAction, error)
	SetTags(ctx context.Context, date, actionId string, tags []string) (DailyAction, error)
	SetWeight(ctx context.Context, date, actionId string, weight float64) (DailyAction, error)
	Toggle(ctx context.Context, date, actionId string) (Snapshot, error)
	StartTimer(ctx context.Context, date, actionId string) (Snapshot, error)
	StopTimer(ctx context.Context, date string, complete bool) (Snapshot, error)
	SetMood(ctx context.Context, date, actionId string, mood interaction.Mood) (Snapshot, error)
	Flush()
	Close()
}

type ServiceImpl struct {
	routines RoutineItemFinder
	settings SettingsReader
	clock    utils.Clock
	live     *storage.LiveSet[DailyActionState]
	unsub    []func()
}

func NewService(
	store *storage.Store,
	routines RoutineItemFinder,
	settings SettingsReader,
	clock utils.Clock,
	eventBus *event_bus.EventBus,
	saveDelay time.Duration,
) *ServiceImpl {
	s := &ServiceImpl{
		routines: routines,
		settings: settings,
		clock:    clock,
	}
	s.live = storage.NewLiveSet(store, saveDelay, func(ctx context.Context, key string) DailyActionState {
		state, found := storage.Load[DailyActionState](ctx, store, key)
		if !found {
			return NewDailyActionState()
		}
		return state
	}, DailyActionState.Clone)

	s.unsub = append(s.unsub, event_bus.SubscribeTyped[event_bus.DateChanged](eventBus, event_bus.DateRolledOver,
		func(e event_bus.EventT[event_bus.DateChanged]) error {
			previous := storage.ActionsKey(e.Data.Previous)
			s.live.Evict(func(key string) bool { return key == previous })
			return nil
		}))
	s.unsub = append(s.unsub, event_bus.SubscribeTyped[event_bus.KeysReplaced](eventBus, event_bus.StorageKeysReplaced,
		func(e event_bus.EventT[event_bus.KeysReplaced]) error {
			s.live.Forget(e.Data.Keys)
			return nil
		}))
	return s
}

func (s *ServiceImpl) Get(ctx context.Context, date string) (Snapshot, error) {
	if err := validDate(date); err != nil {
		return Snapshot{}, err
	}
	var snapshot Snapshot
	s.live.View(ctx, storage.ActionsKey(date), func(d *DailyActionState) {
		snapshot = snapshotOf(date, d)
	})
	return snapshot, nil
}

func (s *ServiceImpl) AddFromRoutine(ctx context.Context, date, routineId, itemId string) (DailyAction, error) {
	if err := validDate(date); err != nil {
		return DailyAction{}, err
	}
	r, item, phase, err := s.routines.FindItem(ctx, routineId, itemId)
	if err != nil {
		return DailyAction{}, err
	}
	a := DailyAction{
		Id:           uuid.NewString(),
		SourceItemId: item.Id,
		RoutineId:    r.Id,
		RoutineName:  r.Name,
		RoutineColor: r.Color,
		PhaseTitle:   phase.Title,
		Title:        item.Title,
		Weight:       item.Weight,
		Tags:         []string{},
		IsMental:     item.IsMental,
		AddedAt:      s.clock.Now(),
	}
	if item.DurationMinutes != nil {
		minutes := *item.DurationMinutes
		a.DurationMinutes = &minutes
	}
	return s.add(ctx, date, a)
}

// AddCustom adds an ad hoc action weighted with the configured default weight.
func (s *ServiceImpl) AddCustom(ctx context.Context, date, title string, tags []string) (DailyAction, error) {
	if err := validDate(date); err != nil {
		return DailyAction{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return DailyAction{}, ErrEmptyTitle
	}
	a := DailyAction{
		Id:      uuid.NewString(),
		Title:   title,
		Weight:  s.settings.Get(ctx).DefaultWeight,
		Tags:    cleanTags(tags),
		AddedAt: s.clock.Now(),
	}
	return s.add(ctx, date, a)
}

func (s *ServiceImpl) add(ctx context.Context, date string, a DailyAction) (DailyAction, error) {
	err := s.live.Update(ctx, storage.ActionsKey(date), func(d *DailyActionState) error {
		d.Actions = append(d.Actions, a)
		return nil
	})
	if err != nil {
		return DailyAction{}, err
	}
	log.Debugf("added action %s (%s) to %s", a.Id, a.Title, date)
	return a, nil
}

// Remove deletes the action and every annotation referencing it.
func (s *ServiceImpl) Remove(ctx context.Context, date, actionId string) error {
	if err := validDate(date); err != nil {
		return err
	}
	return s.live.Update(ctx, storage.ActionsKey(date), func(d *DailyActionState) error {
		idx, ok := d.Find(actionId)
		if !ok {
			return ErrActionNotFound
		}
		d.Actions = slices.Delete(d.Actions, idx, idx+1)
		d.State.Forget(actionId)
		return nil
	})
}

func (s *ServiceImpl) Rename(ctx context.Context, date, actionId, title string) (DailyAction, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return DailyAction{}, ErrEmptyTitle
	}
	return s.updateAction(ctx, date, actionId, func(a *DailyAction) {
		a.Title = title
	})
}

func (s *ServiceImpl) SetTags(ctx context.Context, date, actionId string, tags []string) (DailyAction, error) {
	return s.updateAction(ctx, date, actionId, func(a *DailyAction) {
		a.Tags = cleanTags(tags)
	})
}

// SetWeight changes the action's own weight, bounded by the weightMax setting.
func (s *ServiceImpl) SetWeight(ctx context.Context, date, actionId string, weight float64) (DailyAction, error) {
	clamped := int(s.settings.Get(ctx).ClampWeight(weight))
	return s.updateAction(ctx, date, actionId, func(a *DailyAction) {
		a.Weight = clamped
	})
}

func (s *ServiceImpl) Toggle(ctx context.Context, date, actionId string) (Snapshot, error) {
	return s.mutateState(ctx, date, actionId, func(st *interaction.State, a *DailyAction) error {
		st.Toggle(a.Id)
		return nil
	})
}

func (s *ServiceImpl) StartTimer(ctx context.Context, date, actionId string) (Snapshot, error) {
	now := s.clock.Now()
	return s.mutateState(ctx, date, actionId, func(st *interaction.State, a *DailyAction) error {
		_, err := st.StartTimer(a.Id, now, a.DurationMinutes)
		return err
	})
}

func (s *ServiceImpl) StopTimer(ctx context.Context, date string, complete bool) (Snapshot, error) {
	return s.mutateState(ctx, date, "", func(st *interaction.State, _ *DailyAction) error {
		if t := st.StopTimer(); t != nil && complete {
			st.SetChecked(t.ItemId, true)
		}
		return nil
	})
}

func (s *ServiceImpl) SetMood(ctx context.Context, date, actionId string, mood interaction.Mood) (Snapshot, error) {
	return s.mutateState(ctx, date, actionId, func(st *interaction.State, a *DailyAction) error {
		return st.SetMood(a.Id, mood)
	})
}

func (s *ServiceImpl) Flush() {
	s.live.Flush()
}

func (s *ServiceImpl) Close() {
	for _, unsub := range s.unsub {
		unsub()
	}
	s.live.Close()
}

func (s *ServiceImpl) updateAction(ctx context.Context, date, actionId string, fn func(a *DailyAction)) (DailyAction, error) {
	if err := validDate(date); err != nil {
		return DailyAction{}, err
	}
	var updated DailyAction
	err := s.live.Update(ctx, storage.ActionsKey(date), func(d *DailyActionState) error {
		idx, ok := d.Find(actionId)
		if !ok {
			return ErrActionNotFound
		}
		fn(&d.Actions[idx])
		updated = d.Actions[idx]
		return nil
	})
	if err != nil {
		return DailyAction{}, err
	}
	return updated, nil
}

// mutateState runs fn on the date's interaction state. A non-empty actionId
// must name an existing action, which fn receives; otherwise fn gets nil.
func (s *ServiceImpl) mutateState(
	ctx context.Context,
	date, actionId string,
	fn func(st *interaction.State, a *DailyAction) error,
) (Snapshot, error) {
	if err := validDate(date); err != nil {
		return Snapshot{}, err
	}
	var snapshot Snapshot
	err := s.live.Update(ctx, storage.ActionsKey(date), func(d *DailyActionState) error {
		var a *DailyAction
		if actionId != "" {
			idx, ok := d.Find(actionId)
			if !ok {
				return ErrActionNotFound
			}
			a = &d.Actions[idx]
		}
		if err := fn(&d.State, a); err != nil {
			return err
		}
		snapshot = snapshotOf(date, d)
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

func snapshotOf(date string, d *DailyActionState) Snapshot {
	clone := d.Clone()
	return Snapshot{
		Date:     date,
		Actions:  clone,
		Progress: clone.State.Progress(clone.ProgressItems()),
	}
}

func validDate(date string) error {
	if _, err := utils.ParseDate(date); err != nil {
		return errors.Join(ErrInvalidDate, err)
	}
	return nil
}

func cleanTags(tags []string) []string {
	result := []string{}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" && !slices.Contains(result, tag) {
			result = append(result, tag)
		}
	}
	return result
}

package day

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/ritual/internal/event_bus"
	"github.com/klokku/ritual/internal/utils"
	"github.com/klokku/ritual/pkg/interaction"
	"github.com/klokku/ritual/pkg/storage"
	log "github.com/sirupsen/logrus"
)

var ErrInvalidDate = errors.New("invalid date")
var ErrDayClosed = errors.New("day is closed")
var ErrSuggestionNotFound = errors.New("suggestion not found")
var ErrEmptySuggestion = errors.New("suggestion title must not be empty")

type Service interface {
	Get(ctx context.Context, date string) (DayState, error)
	LogVital(ctx context.Context, date string, kind VitalKind, value int) (DayState, error)
	LogMood(ctx context.Context, date string, mood interaction.Mood, note string) (DayState, error)
	// CheckIn records a check-in; its stamina and mental values also extend
	// the vitals series.
	CheckIn(ctx context.Context, date string, checkIn CheckIn) (DayState, error)
	SetNotes(ctx context.Context, date, notes string) (DayState, error)
	AddSuggestion(ctx context.Context, date, title string) (Suggestion, error)
	RemoveSuggestion(ctx context.Context, date, suggestionId string) (DayState, error)
	// CloseDay marks the day finished. A closed day only accepts notes.
	CloseDay(ctx context.Context, date string) (DayState, error)
	Reopen(ctx context.Context, date string) (DayState, error)
	Flush()
	Close()
}

type ServiceImpl struct {
	clock utils.Clock
	live  *storage.LiveSet[DayState]
	unsub []func()
}

func NewService(store *storage.Store, clock utils.Clock, eventBus *event_bus.EventBus, saveDelay time.Duration) *ServiceImpl {
	s := &ServiceImpl{clock: clock}
	s.live = storage.NewLiveSet(store, saveDelay, func(ctx context.Context, key string) DayState {
		state, found := storage.Load[DayState](ctx, store, key)
		if !found {
			return NewDayState()
		}
		state.Normalize()
		return state
	}, DayState.Clone)

	s.unsub = append(s.unsub, event_bus.SubscribeTyped[event_bus.DateChanged](eventBus, event_bus.DateRolledOver,
		func(e event_bus.EventT[event_bus.DateChanged]) error {
			previous := storage.DayKey(e.Data.Previous)
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

func (s *ServiceImpl) Get(ctx context.Context, date string) (DayState, error) {
	if err := validDate(date); err != nil {
		return DayState{}, err
	}
	var state DayState
	s.live.View(ctx, storage.DayKey(date), func(d *DayState) {
		state = d.Clone()
	})
	return state, nil
}

func (s *ServiceImpl) LogVital(ctx context.Context, date string, kind VitalKind, value int) (DayState, error) {
	if !kind.Valid() {
		return DayState{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidVital, kind)
	}
	if !validVital(value) {
		return DayState{}, fmt.Errorf("%w: %d is outside %d..%d", ErrInvalidVital, value, MinVital, MaxVital)
	}
	now := s.clock.Now()
	return s.mutate(ctx, date, func(d *DayState) error {
		d.Vitals = append(d.Vitals, VitalEntry{Kind: kind, Value: value, At: now})
		return nil
	})
}

func (s *ServiceImpl) LogMood(ctx context.Context, date string, mood interaction.Mood, note string) (DayState, error) {
	if !mood.Valid() {
		return DayState{}, interaction.ErrInvalidMood
	}
	now := s.clock.Now()
	return s.mutate(ctx, date, func(d *DayState) error {
		d.Moods = append(d.Moods, MoodEntry{Mood: mood, Note: strings.TrimSpace(note), At: now})
		return nil
	})
}

func (s *ServiceImpl) CheckIn(ctx context.Context, date string, checkIn CheckIn) (DayState, error) {
	for _, v := range []*int{checkIn.Stamina, checkIn.Mental} {
		if v != nil && !validVital(*v) {
			return DayState{}, fmt.Errorf("%w: %d is outside %d..%d", ErrInvalidVital, *v, MinVital, MaxVital)
		}
	}
	checkIn.At = s.clock.Now()
	checkIn.Tags = cleanTags(checkIn.Tags)
	checkIn.Comment = strings.TrimSpace(checkIn.Comment)
	return s.mutate(ctx, date, func(d *DayState) error {
		if checkIn.Stamina != nil {
			d.Vitals = append(d.Vitals, VitalEntry{Kind: VitalStamina, Value: *checkIn.Stamina, At: checkIn.At})
		}
		if checkIn.Mental != nil {
			d.Vitals = append(d.Vitals, VitalEntry{Kind: VitalMental, Value: *checkIn.Mental, At: checkIn.At})
		}
		d.CheckIns = append(d.CheckIns, checkIn)
		return nil
	})
}

func (s *ServiceImpl) SetNotes(ctx context.Context, date, notes string) (DayState, error) {
	return s.update(ctx, date, func(d *DayState) error {
		d.Notes = notes
		return nil
	})
}

func (s *ServiceImpl) AddSuggestion(ctx context.Context, date, title string) (Suggestion, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Suggestion{}, ErrEmptySuggestion
	}
	suggestion := Suggestion{Id: uuid.NewString(), Title: title, CreatedAt: s.clock.Now()}
	_, err := s.mutate(ctx, date, func(d *DayState) error {
		d.Suggestions = append(d.Suggestions, suggestion)
		return nil
	})
	if err != nil {
		return Suggestion{}, err
	}
	return suggestion, nil
}

func (s *ServiceImpl) RemoveSuggestion(ctx context.Context, date, suggestionId string) (DayState, error) {
	return s.mutate(ctx, date, func(d *DayState) error {
		idx := slices.IndexFunc(d.Suggestions, func(sg Suggestion) bool { return sg.Id == suggestionId })
		if idx < 0 {
			return ErrSuggestionNotFound
		}
		d.Suggestions = slices.Delete(d.Suggestions, idx, idx+1)
		return nil
	})
}

func (s *ServiceImpl) CloseDay(ctx context.Context, date string) (DayState, error) {
	now := s.clock.Now()
	return s.update(ctx, date, func(d *DayState) error {
		if d.ClosedAt == nil {
			d.ClosedAt = &now
			log.Infof("closed day %s", date)
		}
		return nil
	})
}

func (s *ServiceImpl) Reopen(ctx context.Context, date string) (DayState, error) {
	return s.update(ctx, date, func(d *DayState) error {
		d.ClosedAt = nil
		return nil
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

// mutate changes an open day.
func (s *ServiceImpl) mutate(ctx context.Context, date string, fn func(d *DayState) error) (DayState, error) {
	return s.update(ctx, date, func(d *DayState) error {
		if d.Closed() {
			return ErrDayClosed
		}
		return fn(d)
	})
}

func (s *ServiceImpl) update(ctx context.Context, date string, fn func(d *DayState) error) (DayState, error) {
	if err := validDate(date); err != nil {
		return DayState{}, err
	}
	var state DayState
	err := s.live.Update(ctx, storage.DayKey(date), func(d *DayState) error {
		if err := fn(d); err != nil {
			return err
		}
		state = d.Clone()
		return nil
	})
	if err != nil {
		return DayState{}, err
	}
	return state, nil
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

// Package interaction holds the user interaction snapshot layered on top of
// structural items: checks, weight overrides, the active timer, moods and
// notes. Routine executions and today's action list persist the same shape.
package interaction

import (
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/klokku/ritual/pkg/progress"
)

var ErrInvalidMood = errors.New("invalid mood")
var ErrEmptyItemId = errors.New("item id must not be empty")

type Mood string

const (
	MoodGreat Mood = "great"
	MoodGood  Mood = "good"
	MoodOkay  Mood = "okay"
	MoodLow   Mood = "low"
	MoodBad   Mood = "bad"
)

var Moods = []Mood{MoodGreat, MoodGood, MoodOkay, MoodLow, MoodBad}

func (m Mood) Valid() bool {
	return slices.Contains(Moods, m)
}

type ActiveTimer struct {
	ItemId          string    `json:"itemId"`
	StartedAt       time.Time `json:"startedAt"`
	DurationMinutes *int      `json:"durationMinutes,omitempty"`
}

// Remaining returns the countdown left at now, or false for an open-ended timer.
func (t ActiveTimer) Remaining(now time.Time) (time.Duration, bool) {
	if t.DurationMinutes == nil {
		return 0, false
	}
	left := time.Duration(*t.DurationMinutes)*time.Minute - now.Sub(t.StartedAt)
	if left < 0 {
		left = 0
	}
	return left, true
}

type State struct {
	Checked              map[string]bool       `json:"checked"`
	Weights              progress.TitleWeights `json:"weights"`
	Timer                *ActiveTimer          `json:"timer,omitempty"`
	Moods                map[string]Mood       `json:"moods"`
	Declined             map[string]string     `json:"declined"`
	DismissedSuggestions []string              `json:"dismissedSuggestions"`
	Reflections          map[string]string     `json:"reflections"`
}

func NewState() State {
	s := State{}
	s.Normalize()
	return s
}

// Normalize replaces nil collections with empty ones.
func (s *State) Normalize() {
	if s.Checked == nil {
		s.Checked = map[string]bool{}
	}
	if s.Weights == nil {
		s.Weights = progress.TitleWeights{}
	}
	if s.Moods == nil {
		s.Moods = map[string]Mood{}
	}
	if s.Declined == nil {
		s.Declined = map[string]string{}
	}
	if s.DismissedSuggestions == nil {
		s.DismissedSuggestions = []string{}
	}
	if s.Reflections == nil {
		s.Reflections = map[string]string{}
	}
}

// Clone returns a deep copy safe to hand out of a controller.
func (s State) Clone() State {
	c := State{
		Checked:              cloneMap(s.Checked),
		Weights:              progress.TitleWeights(cloneMap(map[string]float64(s.Weights))),
		Moods:                cloneMap(s.Moods),
		Declined:             cloneMap(s.Declined),
		DismissedSuggestions: slices.Clone(s.DismissedSuggestions),
		Reflections:          cloneMap(s.Reflections),
	}
	if s.Timer != nil {
		t := *s.Timer
		if s.Timer.DurationMinutes != nil {
			d := *s.Timer.DurationMinutes
			t.DurationMinutes = &d
		}
		c.Timer = &t
	}
	c.Normalize()
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Toggle flips the checked flag of id and returns the new value.
func (s *State) Toggle(id string) bool {
	s.Normalize()
	if s.Checked[id] {
		delete(s.Checked, id)
		return false
	}
	s.Checked[id] = true
	return true
}

func (s *State) SetChecked(id string, checked bool) {
	s.Normalize()
	if checked {
		s.Checked[id] = true
		return
	}
	delete(s.Checked, id)
}

// SetWeight stores a title-keyed override. Weights below 1 are rejected by
// clamping to 1.
func (s *State) SetWeight(title string, weight float64) {
	s.Normalize()
	s.Weights[title] = progress.SafeWeight(weight, 1)
}

func (s *State) ClearWeight(title string) {
	s.Normalize()
	delete(s.Weights, title)
}

// StartTimer replaces any running timer; a state never holds more than one.
func (s *State) StartTimer(itemId string, now time.Time, durationMinutes *int) (ActiveTimer, error) {
	if itemId == "" {
		return ActiveTimer{}, ErrEmptyItemId
	}
	t := ActiveTimer{ItemId: itemId, StartedAt: now}
	if durationMinutes != nil && *durationMinutes > 0 {
		d := *durationMinutes
		t.DurationMinutes = &d
	}
	s.Timer = &t
	return t, nil
}

// StopTimer clears the running timer and returns it, if any.
func (s *State) StopTimer() *ActiveTimer {
	t := s.Timer
	s.Timer = nil
	return t
}

func (s *State) SetMood(id string, mood Mood) error {
	s.Normalize()
	if mood == "" {
		delete(s.Moods, id)
		return nil
	}
	if !mood.Valid() {
		return ErrInvalidMood
	}
	s.Moods[id] = mood
	return nil
}

// SetReflection stores the note of a mental item; an empty text removes it.
func (s *State) SetReflection(id string, text string) {
	s.Normalize()
	if text == "" {
		delete(s.Reflections, id)
		return
	}
	s.Reflections[id] = text
}

func (s *State) SetDeclined(id string, note string) {
	s.Normalize()
	if note == "" {
		delete(s.Declined, id)
		return
	}
	s.Declined[id] = note
}

func (s *State) DismissSuggestion(id string) {
	s.Normalize()
	if slices.Contains(s.DismissedSuggestions, id) {
		return
	}
	s.DismissedSuggestions = append(s.DismissedSuggestions, id)
}

// Forget drops every annotation referencing id.
func (s *State) Forget(id string) {
	s.Normalize()
	delete(s.Checked, id)
	delete(s.Moods, id)
	delete(s.Declined, id)
	delete(s.Reflections, id)
	if s.Timer != nil && s.Timer.ItemId == id {
		s.Timer = nil
	}
}

// Progress computes metrics for items against this state.
func (s State) Progress(items []progress.Item) progress.Progress {
	return progress.Compute(items, s.Checked, s.Weights)
}

// UnmarshalJSON accepts the current shape and older ones: a checked list of
// ids instead of a map, "completed" for "checked" and "activeTimer" for
// "timer".
func (s *State) UnmarshalJSON(data []byte) error {
	var raw struct {
		Checked              json.RawMessage       `json:"checked"`
		Completed            json.RawMessage       `json:"completed"`
		Weights              progress.TitleWeights `json:"weights"`
		Timer                *ActiveTimer          `json:"timer"`
		ActiveTimer          *ActiveTimer          `json:"activeTimer"`
		Moods                map[string]Mood       `json:"moods"`
		Declined             map[string]string     `json:"declined"`
		DismissedSuggestions []string              `json:"dismissedSuggestions"`
		Reflections          map[string]string     `json:"reflections"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	checked := raw.Checked
	if len(checked) == 0 {
		checked = raw.Completed
	}
	timer := raw.Timer
	if timer == nil {
		timer = raw.ActiveTimer
	}
	if timer != nil && timer.ItemId == "" {
		timer = nil
	}

	*s = State{
		Checked:              decodeChecked(checked),
		Weights:              raw.Weights,
		Timer:                timer,
		Moods:                raw.Moods,
		Declined:             raw.Declined,
		DismissedSuggestions: raw.DismissedSuggestions,
		Reflections:          raw.Reflections,
	}
	for id, mood := range s.Moods {
		if !mood.Valid() {
			delete(s.Moods, id)
		}
	}
	s.Normalize()
	return nil
}

func decodeChecked(data json.RawMessage) map[string]bool {
	result := map[string]bool{}
	if len(data) == 0 {
		return result
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		for _, id := range ids {
			result[id] = true
		}
		return result
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return result
	}
	for id, v := range values {
		switch t := v.(type) {
		case bool:
			if t {
				result[id] = true
			}
		case float64:
			if t != 0 {
				result[id] = true
			}
		}
	}
	return result
}

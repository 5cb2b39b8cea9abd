// Package day keeps the per-date journal: vitals, mood timeline, check-ins,
// notes and custom suggestions, and renders it as a markdown note.
package day

import (
	"errors"
	"slices"
	"time"

	"github.com/klokku/ritual/pkg/interaction"
)

var ErrInvalidVital = errors.New("invalid vital")

type VitalKind string

const (
	VitalStamina VitalKind = "stamina"
	VitalMental  VitalKind = "mental"
	VitalAux     VitalKind = "aux"

	MinVital = 0
	MaxVital = 10
)

var VitalKinds = []VitalKind{VitalStamina, VitalMental, VitalAux}

func (k VitalKind) Valid() bool {
	return slices.Contains(VitalKinds, k)
}

type VitalEntry struct {
	Kind  VitalKind `json:"kind"`
	Value int       `json:"value"`
	At    time.Time `json:"at"`
}

type MoodEntry struct {
	Mood interaction.Mood `json:"mood"`
	Note string           `json:"note,omitempty"`
	At   time.Time        `json:"at"`
}

type CheckIn struct {
	Stamina *int      `json:"stamina,omitempty"`
	Mental  *int      `json:"mental,omitempty"`
	Tags    []string  `json:"tags"`
	Comment string    `json:"comment,omitempty"`
	At      time.Time `json:"at"`
}

type Suggestion struct {
	Id        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

type DayState struct {
	Vitals      []VitalEntry `json:"vitals"`
	Moods       []MoodEntry  `json:"moods"`
	CheckIns    []CheckIn    `json:"checkIns"`
	Notes       string       `json:"notes"`
	Suggestions []Suggestion `json:"suggestions"`
	ClosedAt    *time.Time   `json:"closedAt,omitempty"`
}

func NewDayState() DayState {
	d := DayState{}
	d.Normalize()
	return d
}

func (d *DayState) Normalize() {
	if d.Vitals == nil {
		d.Vitals = []VitalEntry{}
	}
	if d.Moods == nil {
		d.Moods = []MoodEntry{}
	}
	if d.CheckIns == nil {
		d.CheckIns = []CheckIn{}
	}
	for i := range d.CheckIns {
		if d.CheckIns[i].Tags == nil {
			d.CheckIns[i].Tags = []string{}
		}
	}
	if d.Suggestions == nil {
		d.Suggestions = []Suggestion{}
	}
}

func (d DayState) Clone() DayState {
	c := DayState{
		Vitals:      slices.Clone(d.Vitals),
		Moods:       slices.Clone(d.Moods),
		CheckIns:    make([]CheckIn, 0, len(d.CheckIns)),
		Notes:       d.Notes,
		Suggestions: slices.Clone(d.Suggestions),
	}
	for _, ci := range d.CheckIns {
		ci.Stamina = cloneInt(ci.Stamina)
		ci.Mental = cloneInt(ci.Mental)
		ci.Tags = slices.Clone(ci.Tags)
		c.CheckIns = append(c.CheckIns, ci)
	}
	if d.ClosedAt != nil {
		closedAt := *d.ClosedAt
		c.ClosedAt = &closedAt
	}
	c.Normalize()
	return c
}

// Latest returns the most recent value logged for kind.
func (d DayState) Latest(kind VitalKind) (int, bool) {
	for i := len(d.Vitals) - 1; i >= 0; i-- {
		if d.Vitals[i].Kind == kind {
			return d.Vitals[i].Value, true
		}
	}
	return 0, false
}

// Series returns the values logged for kind in logging order.
func (d DayState) Series(kind VitalKind) []VitalEntry {
	var series []VitalEntry
	for _, v := range d.Vitals {
		if v.Kind == kind {
			series = append(series, v)
		}
	}
	return series
}

// Values returns the values logged for kind in logging order, never nil.
func (d DayState) Values(kind VitalKind) []int {
	values := []int{}
	for _, v := range d.Series(kind) {
		values = append(values, v.Value)
	}
	return values
}

// DominantMood is the most frequent mood of the timeline. Ties go to the
// mood logged most recently.
func (d DayState) DominantMood() (interaction.Mood, bool) {
	counts := make(map[interaction.Mood]int)
	lastSeen := make(map[interaction.Mood]int)
	for i, m := range d.Moods {
		counts[m.Mood]++
		lastSeen[m.Mood] = i
	}
	var dominant interaction.Mood
	found := false
	for mood, count := range counts {
		if !found || count > counts[dominant] || (count == counts[dominant] && lastSeen[mood] > lastSeen[dominant]) {
			dominant = mood
			found = true
		}
	}
	return dominant, found
}

func (d DayState) Closed() bool {
	return d.ClosedAt != nil
}

func validVital(value int) bool {
	return value >= MinVital && value <= MaxVital
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

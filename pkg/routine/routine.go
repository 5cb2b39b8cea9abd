package routine

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/ritual/pkg/progress"
)

type RoutineItem struct {
	Id              string `json:"id"`
	Time            string `json:"time,omitempty"`
	Title           string `json:"title"`
	DurationMinutes *int   `json:"duration,omitempty"`
	Weight          int    `json:"weight"`
	IsMental        bool   `json:"isMental,omitempty"`
	IsRest          bool   `json:"isRest,omitempty"`
	SourceLine      string `json:"sourceLine,omitempty"`
}

type RoutinePhase struct {
	Id    string        `json:"id"`
	Title string        `json:"title"`
	Items []RoutineItem `json:"items"`
}

// Routine is a named routine definition. Its phases are always derived from
// its text: they are computed together by FromText or WithText and cannot be
// set on their own.
type Routine struct {
	Id        string
	Name      string
	Color     string
	Memo      string
	CreatedAt time.Time
	UpdatedAt time.Time

	text   string
	phases []RoutinePhase
}

// FromText creates a new routine with a fresh id.
func FromText(name string, text string) Routine {
	return Routine{
		Id:     uuid.NewString(),
		Name:   name,
		text:   text,
		phases: Parse(text),
	}
}

// WithText returns a copy holding text and its freshly parsed phases. The
// same text keeps the current phases so item ids stay stable.
func (r Routine) WithText(text string) Routine {
	if text == r.text && r.phases != nil {
		return r
	}
	r.text = text
	r.phases = Parse(text)
	return r
}

func (r Routine) Text() string {
	return r.text
}

func (r Routine) Phases() []RoutinePhase {
	return r.phases
}

// Items returns all items of all phases in order.
func (r Routine) Items() []RoutineItem {
	var items []RoutineItem
	for _, phase := range r.phases {
		items = append(items, phase.Items...)
	}
	return items
}

// FindItem looks an item up by id together with its phase.
func (r Routine) FindItem(itemId string) (RoutineItem, RoutinePhase, bool) {
	for _, phase := range r.phases {
		for _, item := range phase.Items {
			if item.Id == itemId {
				return item, phase, true
			}
		}
	}
	return RoutineItem{}, RoutinePhase{}, false
}

// ProgressItems adapts the routine's items for progress computation.
func (r Routine) ProgressItems() []progress.Item {
	items := r.Items()
	result := make([]progress.Item, 0, len(items))
	for _, item := range items {
		result = append(result, progress.Item{Id: item.Id, Title: item.Title, Weight: float64(item.Weight)})
	}
	return result
}

type routineJSON struct {
	Id        string         `json:"id"`
	Name      string         `json:"name"`
	Text      string         `json:"text"`
	Phases    []RoutinePhase `json:"phases"`
	Color     string         `json:"color,omitempty"`
	Memo      string         `json:"memo,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (r Routine) MarshalJSON() ([]byte, error) {
	phases := r.phases
	if phases == nil {
		phases = Parse(r.text)
	}
	return json.Marshal(routineJSON{
		Id:        r.Id,
		Name:      r.Name,
		Text:      r.text,
		Phases:    phases,
		Color:     r.Color,
		Memo:      r.Memo,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	})
}

// UnmarshalJSON keeps persisted phases, and with them the item ids execution
// states refer to, only while they still match the text. Otherwise phases
// are regenerated from the text.
func (r *Routine) UnmarshalJSON(data []byte) error {
	var raw routineJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	phases := raw.Phases
	parsed := Parse(raw.Text)
	if !SameStructure(phases, parsed) || !hasIds(phases) {
		phases = parsed
	}
	*r = Routine{
		Id:        raw.Id,
		Name:      raw.Name,
		Color:     raw.Color,
		Memo:      raw.Memo,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
		text:      raw.Text,
		phases:    phases,
	}
	if r.Id == "" {
		r.Id = uuid.NewString()
	}
	return nil
}

func hasIds(phases []RoutinePhase) bool {
	for _, phase := range phases {
		if phase.Id == "" {
			return false
		}
		for _, item := range phase.Items {
			if item.Id == "" {
				return false
			}
		}
	}
	return true
}

// SameStructure compares phases ignoring identifiers and source lines.
func SameStructure(a, b []RoutinePhase) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Title != b[i].Title || len(a[i].Items) != len(b[i].Items) {
			return false
		}
		for j := range a[i].Items {
			if !sameItem(a[i].Items[j], b[i].Items[j]) {
				return false
			}
		}
	}
	return true
}

func sameItem(a, b RoutineItem) bool {
	if a.Time != b.Time || a.Title != b.Title || a.Weight != b.Weight || a.IsMental != b.IsMental || a.IsRest != b.IsRest {
		return false
	}
	if (a.DurationMinutes == nil) != (b.DurationMinutes == nil) {
		return false
	}
	return a.DurationMinutes == nil || *a.DurationMinutes == *b.DurationMinutes
}

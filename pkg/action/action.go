package action

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/klokku/ritual/pkg/interaction"
	"github.com/klokku/ritual/pkg/progress"
)

// DailyAction is an item copied into a day's action list. It keeps a
// snapshot of where it came from and has its own id, so the same routine
// item can be added again after being removed.
type DailyAction struct {
	Id              string    `json:"id"`
	SourceItemId    string    `json:"sourceItemId,omitempty"`
	RoutineId       string    `json:"routineId,omitempty"`
	RoutineName     string    `json:"routineName,omitempty"`
	RoutineColor    string    `json:"routineColor,omitempty"`
	PhaseTitle      string    `json:"phaseTitle,omitempty"`
	Title           string    `json:"title"`
	Weight          int       `json:"weight"`
	Tags            []string  `json:"tags"`
	IsMental        bool      `json:"isMental,omitempty"`
	DurationMinutes *int      `json:"duration,omitempty"`
	AddedAt         time.Time `json:"addedAt"`
}

// DailyActionState is the action list of one date with its interaction
// state. It is stored as one flat document: the actions next to the
// interaction fields.
type DailyActionState struct {
	Actions []DailyAction
	State   interaction.State
}

func NewDailyActionState() DailyActionState {
	return DailyActionState{Actions: []DailyAction{}, State: interaction.NewState()}
}

func (d DailyActionState) Clone() DailyActionState {
	actions := make([]DailyAction, 0, len(d.Actions))
	for _, a := range d.Actions {
		a.Tags = slices.Clone(a.Tags)
		if a.DurationMinutes != nil {
			minutes := *a.DurationMinutes
			a.DurationMinutes = &minutes
		}
		actions = append(actions, a)
	}
	return DailyActionState{Actions: actions, State: d.State.Clone()}
}

func (d DailyActionState) Find(id string) (int, bool) {
	idx := slices.IndexFunc(d.Actions, func(a DailyAction) bool { return a.Id == id })
	return idx, idx >= 0
}

func (d DailyActionState) ProgressItems() []progress.Item {
	items := make([]progress.Item, 0, len(d.Actions))
	for _, a := range d.Actions {
		items = append(items, progress.Item{Id: a.Id, Title: a.Title, Weight: float64(a.Weight)})
	}
	return items
}

func (d DailyActionState) MarshalJSON() ([]byte, error) {
	state, err := json.Marshal(d.State)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(state, &fields); err != nil {
		return nil, err
	}
	actions := d.Actions
	if actions == nil {
		actions = []DailyAction{}
	}
	if fields["actions"], err = json.Marshal(actions); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func (d *DailyActionState) UnmarshalJSON(data []byte) error {
	var state interaction.State
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	var list struct {
		Actions []DailyAction `json:"actions"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	if list.Actions == nil {
		list.Actions = []DailyAction{}
	}
	for i := range list.Actions {
		list.Actions[i].Weight = int(progress.SafeWeight(float64(list.Actions[i].Weight), 1))
		if list.Actions[i].Tags == nil {
			list.Actions[i].Tags = []string{}
		}
	}
	*d = DailyActionState{Actions: list.Actions, State: state}
	return nil
}

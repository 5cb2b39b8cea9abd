package day

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/klokku/ritual/pkg/action"
	"github.com/klokku/ritual/pkg/execution"
	"github.com/klokku/ritual/pkg/interaction"
	"github.com/klokku/ritual/pkg/progress"
	"github.com/klokku/ritual/pkg/routine"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const ActionsSectionTitle = "Actions"

type NoteItem struct {
	Title      string
	Checked    bool
	IsMental   bool
	Mood       interaction.Mood
	Reflection string
}

type NoteSection struct {
	Title string
	Items []NoteItem
}

// Note is everything rendered into the markdown note of a date.
type Note struct {
	Date     string
	Day      DayState
	Sections []NoteSection
	// Progress is weighted over every section.
	Progress progress.Progress
	Tags     []string
}

type noteFrontmatter struct {
	Date            string   `yaml:"date"`
	Stamina         []int    `yaml:"stamina,flow"`
	Mental          []int    `yaml:"mental,flow"`
	MoodFlow        []string `yaml:"mood_flow"`
	DominantMood    string   `yaml:"dominant_mood"`
	Completion      string   `yaml:"completion"`
	CompletionRatio float64  `yaml:"completion_ratio"`
	CheckInCount    int      `yaml:"check_in_count"`
	Tags            []string `yaml:"tags"`
}

func (n Note) frontmatter() noteFrontmatter {
	fm := noteFrontmatter{
		Date:         n.Date,
		Stamina:      n.Day.Values(VitalStamina),
		Mental:       n.Day.Values(VitalMental),
		MoodFlow:     []string{},
		CheckInCount: len(n.Day.CheckIns),
		Tags:         n.Tags,
	}
	for _, m := range n.Day.Moods {
		fm.MoodFlow = append(fm.MoodFlow, string(m.Mood))
	}
	if mood, ok := n.Day.DominantMood(); ok {
		fm.DominantMood = string(mood)
	}
	done, total := 0, 0
	for _, section := range n.Sections {
		for _, item := range section.Items {
			total++
			if item.Checked {
				done++
			}
		}
	}
	fm.Completion = fmt.Sprintf("%d/%d", done, total)
	fm.CompletionRatio = math.Round(n.Progress.Ratio*100) / 100
	if fm.Tags == nil {
		fm.Tags = []string{}
	}
	return fm
}

// Render writes the note as markdown with a YAML frontmatter block.
func (n Note) Render() (string, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n.frontmatter()); err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# %s\n", n.Date)

	if len(n.Day.CheckIns) > 0 {
		buf.WriteString("\n## Check-ins\n\n")
		for _, ci := range n.Day.CheckIns {
			buf.WriteString("- " + checkInLine(ci) + "\n")
		}
	}

	if len(n.Day.Moods) > 0 {
		buf.WriteString("\n## Mood flow\n\n")
		for _, m := range n.Day.Moods {
			line := fmt.Sprintf("- %s %s", m.At.Format("15:04"), m.Mood)
			if m.Note != "" {
				line += ": " + m.Note
			}
			buf.WriteString(line + "\n")
		}
	}

	for _, section := range n.Sections {
		fmt.Fprintf(&buf, "\n## %s\n\n", section.Title)
		for _, item := range section.Items {
			buf.WriteString(checklistLine(item) + "\n")
			if item.IsMental && item.Checked && item.Reflection != "" {
				for _, line := range strings.Split(item.Reflection, "\n") {
					buf.WriteString("  > " + line + "\n")
				}
			}
		}
	}

	if strings.TrimSpace(n.Day.Notes) != "" {
		buf.WriteString("\n## Notes\n\n")
		buf.WriteString(strings.TrimRight(n.Day.Notes, "\n") + "\n")
	}
	return buf.String(), nil
}

func checklistLine(item NoteItem) string {
	box := "[ ]"
	if item.Checked {
		box = "[x]"
	}
	line := fmt.Sprintf("- %s %s", box, item.Title)
	if item.IsMental {
		line += " @mental"
	}
	if item.Mood != "" {
		line += fmt.Sprintf(" (%s)", item.Mood)
	}
	return line
}

func checkInLine(ci CheckIn) string {
	parts := []string{ci.At.Format("15:04")}
	if ci.Stamina != nil {
		parts = append(parts, fmt.Sprintf("stamina %d", *ci.Stamina))
	}
	if ci.Mental != nil {
		parts = append(parts, fmt.Sprintf("mental %d", *ci.Mental))
	}
	line := strings.Join(parts, " ")
	for _, tag := range ci.Tags {
		line += " #" + tag
	}
	if ci.Comment != "" {
		line += ": " + ci.Comment
	}
	return line
}

type RoutineLister interface {
	List(ctx context.Context) ([]routine.Routine, error)
}

type ExecutionReader interface {
	Get(ctx context.Context, routineId, date string) (execution.ExecutionState, error)
}

type ActionReader interface {
	Get(ctx context.Context, date string) (action.Snapshot, error)
}

// Exporter assembles the note of a date from the day journal, the routines
// touched that day and the action list.
type Exporter struct {
	days       Service
	routines   RoutineLister
	executions ExecutionReader
	actions    ActionReader
}

func NewExporter(days Service, routines RoutineLister, executions ExecutionReader, actions ActionReader) *Exporter {
	return &Exporter{days: days, routines: routines, executions: executions, actions: actions}
}

func (e *Exporter) Build(ctx context.Context, date string) (Note, error) {
	dayState, err := e.days.Get(ctx, date)
	if err != nil {
		return Note{}, err
	}
	note := Note{Date: date, Day: dayState}
	var capacity, energy float64

	routines, err := e.routines.List(ctx)
	if err != nil {
		return Note{}, err
	}
	for _, r := range routines {
		state, err := e.executions.Get(ctx, r.Id, date)
		if err != nil {
			log.Warnf("skipping routine %s in note for %s: %v", r.Id, date, err)
			continue
		}
		if !touched(state.State) {
			continue
		}
		for _, phase := range r.Phases() {
			title := r.Name
			if phase.Title != "" {
				title = r.Name + " / " + phase.Title
			}
			section := NoteSection{Title: title}
			for _, item := range phase.Items {
				section.Items = append(section.Items, NoteItem{
					Title:      item.Title,
					Checked:    state.State.Checked[item.Id],
					IsMental:   item.IsMental,
					Mood:       state.State.Moods[item.Id],
					Reflection: state.State.Reflections[item.Id],
				})
			}
			if len(section.Items) > 0 {
				note.Sections = append(note.Sections, section)
			}
		}
		capacity += state.Progress.Capacity
		energy += state.Progress.Energy
	}

	actions, err := e.actions.Get(ctx, date)
	if err != nil {
		return Note{}, err
	}
	if len(actions.Actions.Actions) > 0 {
		section := NoteSection{Title: ActionsSectionTitle}
		for _, a := range actions.Actions.Actions {
			section.Items = append(section.Items, NoteItem{
				Title:      a.Title,
				Checked:    actions.Actions.State.Checked[a.Id],
				IsMental:   a.IsMental,
				Mood:       actions.Actions.State.Moods[a.Id],
				Reflection: actions.Actions.State.Reflections[a.Id],
			})
		}
		note.Sections = append(note.Sections, section)
		capacity += actions.Progress.Capacity
		energy += actions.Progress.Energy
	}

	note.Progress = progress.Progress{Capacity: capacity, Energy: energy, Stamina: capacity - energy}
	if capacity > 0 {
		note.Progress.Ratio = energy / capacity
	}
	note.Tags = noteTags(dayState, actions.Actions.Actions)
	return note, nil
}

func (e *Exporter) Export(ctx context.Context, date string) (string, error) {
	note, err := e.Build(ctx, date)
	if err != nil {
		return "", err
	}
	return note.Render()
}

// touched reports whether the user interacted with a routine execution.
func touched(st interaction.State) bool {
	return len(st.Checked) > 0 || len(st.Moods) > 0 || len(st.Reflections) > 0 || len(st.Declined) > 0 || st.Timer != nil
}

// noteTags is the ordered union of check-in tags followed by action tags.
func noteTags(d DayState, actions []action.DailyAction) []string {
	tags := []string{}
	add := func(list []string) {
		for _, tag := range list {
			if !slices.Contains(tags, tag) {
				tags = append(tags, tag)
			}
		}
	}
	for _, ci := range d.CheckIns {
		add(ci.Tags)
	}
	for _, a := range actions {
		add(a.Tags)
	}
	return tags
}

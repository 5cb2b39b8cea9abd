package routine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	MinItemWeight = 1
	MaxItemWeight = 5
	// MaxDurationMinutes bounds a parsed duration; longer ones stay in the title.
	MaxDurationMinutes = 24 * 60
)

var (
	phaseHeader  = regexp.MustCompile(`^\s*##(?:\s+(.*?))?\s*$`)
	itemMarker   = regexp.MustCompile(`^\s*[-*]\s+(.*)$`)
	leadingTime  = regexp.MustCompile(`^(\d{1,2}:\d{2})\s+(.*)$`)
	restSuffix   = regexp.MustCompile(`(?i)\s*@rest\s*$`)
	mentalSuffix = regexp.MustCompile(`(?i)\s*@mental\s*$`)
	weightSuffix = regexp.MustCompile(`\s*\*(\d+)\s*$`)
	// Longer units come first so "10min" is not read as "10m" + "in".
	durationSuffix = regexp.MustCompile(`(?i)(\d+)\s*(時間|min|分|h|m)\s*$`)
)

// Parse turns routine text into phases. It never fails: lines that are
// neither a "## phase" header nor a "- item" are skipped, and so are items
// whose title ends up empty.
//
// An item line may carry, in this order:
//
//	- 06:30 Stretch 10min *3 @mental @rest
//
// Decorations are stripped from the end of the line one after another
// (@rest, @mental, weight, duration), so a different tail order leaves the
// unmatched ones in the title.
func Parse(text string) []RoutinePhase {
	var phases []RoutinePhase
	var current *RoutinePhase

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if m := phaseHeader.FindStringSubmatch(line); m != nil {
			phases = append(phases, RoutinePhase{
				Id:    uuid.NewString(),
				Title: strings.TrimSpace(m[1]),
				Items: []RoutineItem{},
			})
			current = &phases[len(phases)-1]
			continue
		}

		item, ok := parseItem(line)
		if !ok {
			continue
		}
		if current == nil {
			phases = append(phases, RoutinePhase{Id: uuid.NewString(), Title: "", Items: []RoutineItem{}})
			current = &phases[len(phases)-1]
		}
		current.Items = append(current.Items, item)
	}

	if phases == nil {
		return []RoutinePhase{}
	}
	return phases
}

func parseItem(line string) (RoutineItem, bool) {
	m := itemMarker.FindStringSubmatch(line)
	if m == nil {
		return RoutineItem{}, false
	}
	content := strings.TrimSpace(m[1])
	item := RoutineItem{Weight: MinItemWeight, SourceLine: line}

	if tm := leadingTime.FindStringSubmatch(content); tm != nil {
		item.Time = tm[1]
		content = tm[2]
	}

	if loc := restSuffix.FindStringIndex(content); loc != nil {
		item.IsRest = true
		content = content[:loc[0]]
	}

	if loc := mentalSuffix.FindStringIndex(content); loc != nil {
		item.IsMental = true
		content = content[:loc[0]]
	}

	if wm := weightSuffix.FindStringSubmatchIndex(content); wm != nil {
		item.Weight = clampWeight(content[wm[2]:wm[3]])
		content = content[:wm[0]]
	}

	if dm := durationSuffix.FindStringSubmatchIndex(content); dm != nil {
		if minutes, ok := durationMinutes(content[dm[2]:dm[3]], content[dm[4]:dm[5]]); ok {
			item.DurationMinutes = &minutes
			content = content[:dm[0]]
		}
	}

	item.Title = strings.TrimSpace(content)
	if item.Title == "" {
		return RoutineItem{}, false
	}
	item.Id = uuid.NewString()
	return item, true
}

func clampWeight(digits string) int {
	w, err := strconv.Atoi(digits)
	if err != nil {
		// Only digits reach here, so the number overflowed.
		return MaxItemWeight
	}
	return min(max(w, MinItemWeight), MaxItemWeight)
}

func durationMinutes(digits, unit string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil || n > MaxDurationMinutes {
		return 0, false
	}
	switch strings.ToLower(unit) {
	case "h", "時間":
		n *= 60
	}
	if n > MaxDurationMinutes {
		return 0, false
	}
	return n, true
}

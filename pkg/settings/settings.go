// Package settings holds the global application settings. Only the keys a
// user changed are stored; everything else comes from Defaults.
package settings

import (
	"encoding/json"
	"math"
	"slices"
	"time"

	"github.com/klokku/ritual/internal/utils"
	"github.com/klokku/ritual/pkg/progress"
	log "github.com/sirupsen/logrus"
)

const (
	ThemeSystem = "system"
	ThemeLight  = "light"
	ThemeDark   = "dark"

	// WeightCeiling bounds weightMax.
	WeightCeiling = 10
)

type AppSettings struct {
	// DefaultWeight applies to items created outside the parser, e.g. custom actions.
	DefaultWeight int `json:"defaultWeight"`
	// WeightMax is the highest weight offered when adjusting an item.
	WeightMax           int     `json:"weightMax"`
	SoftCapRatio        float64 `json:"softCapRatio"`
	DayStartHour        int     `json:"dayStartHour"`
	ReminderLeadMinutes int     `json:"reminderLeadMinutes"`
	Theme               string  `json:"theme"`
	SyncEnabled         bool    `json:"syncEnabled"`
}

func Defaults() AppSettings {
	return AppSettings{
		DefaultWeight:       1,
		WeightMax:           5,
		SoftCapRatio:        progress.DefaultSoftCapRatio,
		DayStartHour:        0,
		ReminderLeadMinutes: 0,
		Theme:               ThemeSystem,
		SyncEnabled:         true,
	}
}

// Keys lists the settings keys accepted in a partial document.
func Keys() []string {
	return []string{"defaultWeight", "weightMax", "softCapRatio", "dayStartHour", "reminderLeadMinutes", "theme", "syncEnabled"}
}

// Merge applies a partial settings document over the defaults. Entries with
// an unknown key or an unreadable value are ignored.
func Merge(partial map[string]json.RawMessage) AppSettings {
	merged := Defaults()
	known := Keys()
	for key, raw := range partial {
		if !slices.Contains(known, key) {
			continue
		}
		candidate := merged
		single, err := json.Marshal(map[string]json.RawMessage{key: raw})
		if err != nil {
			continue
		}
		if err := json.Unmarshal(single, &candidate); err != nil {
			log.Debugf("ignoring setting %s: %v", key, err)
			continue
		}
		merged = candidate
	}
	return merged.Sanitize()
}

// Sanitize replaces out of range values with their defaults.
func (s AppSettings) Sanitize() AppSettings {
	d := Defaults()
	if s.WeightMax < 1 || s.WeightMax > WeightCeiling {
		s.WeightMax = d.WeightMax
	}
	if s.DefaultWeight < 1 || s.DefaultWeight > s.WeightMax {
		s.DefaultWeight = min(d.DefaultWeight, s.WeightMax)
	}
	if s.SoftCapRatio <= 0 || s.SoftCapRatio > 1 || math.IsNaN(s.SoftCapRatio) {
		s.SoftCapRatio = d.SoftCapRatio
	}
	if s.DayStartHour < 0 || s.DayStartHour > 23 {
		s.DayStartHour = d.DayStartHour
	}
	if s.ReminderLeadMinutes < 0 || s.ReminderLeadMinutes > 24*60 {
		s.ReminderLeadMinutes = d.ReminderLeadMinutes
	}
	if !slices.Contains([]string{ThemeSystem, ThemeLight, ThemeDark}, s.Theme) {
		s.Theme = d.Theme
	}
	return s
}

// DateOf returns the calendar date t belongs to, honouring DayStartHour.
func (s AppSettings) DateOf(t time.Time) string {
	return utils.DateKey(t, s.DayStartHour)
}

// ClampWeight bounds a user supplied weight to [1, WeightMax].
func (s AppSettings) ClampWeight(w float64) float64 {
	w = progress.SafeWeight(w, 1)
	return min(w, float64(s.WeightMax))
}

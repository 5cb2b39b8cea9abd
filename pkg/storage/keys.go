package storage

import (
	"regexp"
	"strings"
)

const (
	RoutinesKey  = "routines"
	SettingsKey  = "settings"
	RemindersKey = "reminders"
	// WeightsKey holds the title-keyed weight overrides shared by all routines.
	WeightsKey = "weights"

	actionsPrefix       = "actions:"
	dayPrefix           = "day:"
	reminderStatePrefix = "reminder-state:"
	shadowSuffix        = ":prev"
)

var executionKeyPattern = regexp.MustCompile(`^([^:]+):(\d{4}-\d{2}-\d{2})$`)

// ExecutionKey is the key of a routine's execution state on date.
func ExecutionKey(routineId, date string) string {
	return routineId + ":" + date
}

func ActionsKey(date string) string {
	return actionsPrefix + date
}

func DayKey(date string) string {
	return dayPrefix + date
}

func ReminderStateKey(date string) string {
	return reminderStatePrefix + date
}

// ShadowKey is where the previous value of key is kept.
func ShadowKey(key string) string {
	return key + shadowSuffix
}

func IsShadowKey(key string) bool {
	return strings.HasSuffix(key, shadowSuffix)
}

func IsDayKey(key string) bool {
	return strings.HasPrefix(key, dayPrefix) && !IsShadowKey(key)
}

// SplitExecutionKey returns the routine id and date of an execution key.
func SplitExecutionKey(key string) (routineId string, date string, ok bool) {
	if IsShadowKey(key) {
		return "", "", false
	}
	for _, prefix := range []string{actionsPrefix, dayPrefix, reminderStatePrefix} {
		if strings.HasPrefix(key, prefix) {
			return "", "", false
		}
	}
	m := executionKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

func IsExecutionKey(key string) bool {
	_, _, ok := SplitExecutionKey(key)
	return ok
}

// Restorable reports whether an empty read of key falls back to its shadow.
func Restorable(key string) bool {
	return key == RoutinesKey || key == SettingsKey || IsExecutionKey(key)
}

// Syncable reports whether key is mirrored to the remote backend.
func Syncable(key string) bool {
	if key == "" || IsShadowKey(key) {
		return false
	}
	return !strings.HasPrefix(key, reminderStatePrefix)
}

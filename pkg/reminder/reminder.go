// Package reminder schedules daily reminders and fires each of them at most
// once per date.
package reminder

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var ErrInvalidTime = errors.New("reminder time must be HH:MM")
var ErrInvalidWeekday = errors.New("weekday must be between 0 (Sunday) and 6 (Saturday)")
var ErrEmptyTitle = errors.New("reminder title must not be empty")

type Reminder struct {
	Id    string `json:"id"`
	Title string `json:"title"`
	// Time is the local time of day as HH:MM.
	Time string `json:"time"`
	// Weekdays restricts the reminder to the listed days; empty means every day.
	Weekdays  []time.Weekday `json:"weekdays"`
	Enabled   bool           `json:"enabled"`
	Message   string         `json:"message,omitempty"`
	RoutineId string         `json:"routineId,omitempty"`
}

// Instance records what happened to a reminder on one date.
type Instance struct {
	FiredAt   *time.Time `json:"firedAt,omitempty"`
	Dismissed bool       `json:"dismissed,omitempty"`
}

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrEmptyTitle
	}
	if _, _, err := parseClock(r.Time); err != nil {
		return err
	}
	for _, wd := range r.Weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return ErrInvalidWeekday
		}
	}
	return nil
}

// ActiveOn reports whether the reminder is enabled on weekday.
func (r Reminder) ActiveOn(weekday time.Weekday) bool {
	return r.Enabled && (len(r.Weekdays) == 0 || slices.Contains(r.Weekdays, weekday))
}

// DueAt is the moment the reminder fires for a calendar date. Times before
// dayStartHour belong to the early hours of the following calendar day.
func (r Reminder) DueAt(date time.Time, dayStartHour int, loc *time.Location) (time.Time, error) {
	hour, minute, err := parseClock(r.Time)
	if err != nil {
		return time.Time{}, err
	}
	due := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc)
	if hour < dayStartHour {
		due = due.AddDate(0, 0, 1)
	}
	return due, nil
}

func parseClock(value string) (int, int, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

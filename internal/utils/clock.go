package utils

import (
	"fmt"
	"sync"
	"time"
)

// DateLayout is the calendar date format used in every storage key.
const DateLayout = "2006-01-02"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (s SystemClock) Now() time.Time {
	return time.Now()
}

// MockClock is a settable clock for tests. It is safe to share between the
// test goroutine and background jobs.
type MockClock struct {
	mu       sync.Mutex
	FixedNow time.Time
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FixedNow
}

func (m *MockClock) SetNow(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FixedNow = now
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FixedNow = m.FixedNow.Add(d)
}

// DateKey formats t as a calendar date in t's own location, shifted back by
// dayStartHour so that e.g. 02:00 still belongs to the previous day when the
// user's day starts at 04:00.
func DateKey(t time.Time, dayStartHour int) string {
	if dayStartHour > 0 && dayStartHour < 24 {
		t = t.Add(-time.Duration(dayStartHour) * time.Hour)
	}
	return t.Format(DateLayout)
}

// ParseDate validates a YYYY-MM-DD date string.
func ParseDate(date string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return parsed, nil
}

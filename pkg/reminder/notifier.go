package reminder

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Notifier delivers a fired reminder to the user.
type Notifier interface {
	Notify(ctx context.Context, r Reminder, at time.Time) error
}

// LogNotifier writes fired reminders to the application log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, r Reminder, at time.Time) error {
	entry := log.WithFields(log.Fields{
		"reminder": r.Id,
		"time":     r.Time,
		"at":       at.Format(time.RFC3339),
	})
	if r.Message != "" {
		entry.Infof("reminder: %s: %s", r.Title, r.Message)
	} else {
		entry.Infof("reminder: %s", r.Title)
	}
	return nil
}

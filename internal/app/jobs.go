package app

import (
	"context"
	"sync"
	"time"

	"github.com/klokku/ritual/internal/event_bus"
	"github.com/klokku/ritual/internal/utils"
	"github.com/klokku/ritual/pkg/settings"
	log "github.com/sirupsen/logrus"
)

type SettingsReader interface {
	Get(ctx context.Context) settings.AppSettings
}

// DayWatcher publishes date.rolled_over when the tracked date moves on,
// honouring the configured day start hour.
type DayWatcher struct {
	clock    utils.Clock
	settings SettingsReader
	eventBus *event_bus.EventBus

	mu      sync.Mutex
	current string
}

func NewDayWatcher(clock utils.Clock, settings SettingsReader, eventBus *event_bus.EventBus) *DayWatcher {
	return &DayWatcher{clock: clock, settings: settings, eventBus: eventBus}
}

// Check returns the tracked date, announcing a change since the last call.
func (w *DayWatcher) Check(ctx context.Context) string {
	date := w.settings.Get(ctx).DateOf(w.clock.Now())

	w.mu.Lock()
	previous := w.current
	w.current = date
	w.mu.Unlock()

	if previous == "" || previous == date {
		return date
	}
	log.Infof("day rolled over from %s to %s", previous, date)
	event := event_bus.NewEvent(ctx, event_bus.DateRolledOver, event_bus.DateChanged{Previous: previous, Current: date})
	if err := w.eventBus.Publish(event); err != nil {
		log.Warnf("rollover listeners failed: %v", err)
	}
	return date
}

// every runs fn each interval on its own goroutine until ctx is done.
func every(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		log.Debugf("job %s disabled", name)
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

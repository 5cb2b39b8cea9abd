package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/klokku/ritual/internal/event_bus"
	"github.com/klokku/ritual/pkg/settings"
	"github.com/klokku/ritual/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()
var store *storage.Store
var appSettings *settings.ServiceImpl
var notifier = NewNotifierStub()
var service *ServiceImpl

// 2025-03-03 is a Monday.
var monday = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func setup(t *testing.T) {
	t.Helper()
	bus := event_bus.NewEventBus()
	store = storage.NewStore(storage.NewMemoryBackend(), bus)
	appSettings = settings.NewService(store, bus)
	service = NewService(store, appSettings, notifier)
	t.Cleanup(notifier.Reset)
}

func at(hour, minute int) time.Time {
	return monday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func TestServiceImpl_CRUD(t *testing.T) {
	t.Run("should create update and delete reminders", func(t *testing.T) {
		setup(t)

		created, err := service.Create(ctx, Reminder{Title: " Stretch ", Time: "07:30", Enabled: true})
		require.NoError(t, err)
		assert.NotEmpty(t, created.Id)
		assert.Equal(t, "Stretch", created.Title)

		created.Time = "08:00"
		_, err = service.Update(ctx, created)
		require.NoError(t, err)
		assert.Equal(t, "08:00", service.List(ctx)[0].Time)

		require.NoError(t, service.Delete(ctx, created.Id))
		assert.Empty(t, service.List(ctx))
		assert.ErrorIs(t, service.Delete(ctx, created.Id), ErrReminderNotFound)
	})

	t.Run("should validate time weekdays and title", func(t *testing.T) {
		setup(t)

		_, err := service.Create(ctx, Reminder{Title: "x", Time: "7h"})
		assert.ErrorIs(t, err, ErrInvalidTime)
		_, err = service.Create(ctx, Reminder{Title: "x", Time: "07:00", Weekdays: []time.Weekday{7}})
		assert.ErrorIs(t, err, ErrInvalidWeekday)
		_, err = service.Create(ctx, Reminder{Time: "07:00"})
		assert.ErrorIs(t, err, ErrEmptyTitle)
	})
}

func TestServiceImpl_Poll(t *testing.T) {
	t.Run("should fire a due reminder once per day", func(t *testing.T) {
		// given
		setup(t)
		r, err := service.Create(ctx, Reminder{Title: "Water", Time: "07:30", Enabled: true})
		require.NoError(t, err)

		// when
		early := service.Poll(ctx, at(7, 29))
		due := service.Poll(ctx, at(7, 30))
		again := service.Poll(ctx, at(7, 45))

		// then
		assert.Empty(t, early)
		require.Len(t, due, 1)
		assert.Equal(t, r.Id, due[0].Id)
		assert.Empty(t, again)
		require.Len(t, notifier.Sent(), 1)

		instances, err := service.Instances(ctx, "2025-03-03")
		require.NoError(t, err)
		require.NotNil(t, instances[r.Id].FiredAt)
		assert.Equal(t, at(7, 30), *instances[r.Id].FiredAt)
	})

	t.Run("should fire again on the next day", func(t *testing.T) {
		setup(t)
		_, err := service.Create(ctx, Reminder{Title: "Water", Time: "07:30", Enabled: true})
		require.NoError(t, err)

		service.Poll(ctx, at(7, 30))
		fired := service.Poll(ctx, at(24+7, 31))

		assert.Len(t, fired, 1)
		assert.Len(t, notifier.Sent(), 2)
	})

	t.Run("should honour the reminder lead setting", func(t *testing.T) {
		setup(t)
		_, err := appSettings.Update(ctx, map[string]json.RawMessage{"reminderLeadMinutes": json.RawMessage(`10`)})
		require.NoError(t, err)
		_, err = service.Create(ctx, Reminder{Title: "Water", Time: "07:30", Enabled: true})
		require.NoError(t, err)

		assert.Empty(t, service.Poll(ctx, at(7, 19)))
		assert.Len(t, service.Poll(ctx, at(7, 20)), 1)
	})

	t.Run("should skip disabled reminders and other weekdays", func(t *testing.T) {
		setup(t)
		_, err := service.Create(ctx, Reminder{Title: "Off", Time: "07:00", Enabled: false})
		require.NoError(t, err)
		_, err = service.Create(ctx, Reminder{Title: "Weekend", Time: "07:00", Enabled: true, Weekdays: []time.Weekday{time.Saturday, time.Sunday}})
		require.NoError(t, err)

		assert.Empty(t, service.Poll(ctx, at(7, 0)))
	})

	t.Run("should not fire reminders missed by more than the catch-up window", func(t *testing.T) {
		setup(t)
		_, err := service.Create(ctx, Reminder{Title: "Water", Time: "07:30", Enabled: true})
		require.NoError(t, err)

		assert.Empty(t, service.Poll(ctx, at(9, 0)))
	})

	t.Run("should retry after a failed delivery", func(t *testing.T) {
		setup(t)
		_, err := service.Create(ctx, Reminder{Title: "Water", Time: "07:30", Enabled: true})
		require.NoError(t, err)
		notifier.Fail(errors.New("offline"))

		assert.Empty(t, service.Poll(ctx, at(7, 30)))
		notifier.Fail(nil)
		assert.Len(t, service.Poll(ctx, at(7, 31)), 1)
	})

	t.Run("should not fire a dismissed reminder", func(t *testing.T) {
		setup(t)
		r, err := service.Create(ctx, Reminder{Title: "Water", Time: "07:30", Enabled: true})
		require.NoError(t, err)

		require.NoError(t, service.Dismiss(ctx, "2025-03-03", r.Id))

		assert.Empty(t, service.Poll(ctx, at(7, 30)))
	})

	t.Run("should place early-hour reminders after the day start", func(t *testing.T) {
		setup(t)
		_, err := appSettings.Update(ctx, map[string]json.RawMessage{"dayStartHour": json.RawMessage(`4`)})
		require.NoError(t, err)
		_, err = service.Create(ctx, Reminder{Title: "Sleep", Time: "01:00", Enabled: true})
		require.NoError(t, err)

		// 01:00 on Tuesday still belongs to Monday's day.
		fired := service.Poll(ctx, at(24+1, 0))

		require.Len(t, fired, 1)
		instances, err := service.Instances(ctx, "2025-03-03")
		require.NoError(t, err)
		assert.NotNil(t, instances[fired[0].Id].FiredAt)
	})
}

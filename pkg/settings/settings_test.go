package settings

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/klokku/ritual/internal/event_bus"
	"github.com/klokku/ritual/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	t.Run("should use defaults for an empty document", func(t *testing.T) {
		assert.Equal(t, Defaults(), Merge(nil))
	})

	t.Run("should overlay readable values", func(t *testing.T) {
		merged := Merge(map[string]json.RawMessage{
			"softCapRatio": json.RawMessage(`0.75`),
			"theme":        json.RawMessage(`"dark"`),
			"syncEnabled":  json.RawMessage(`false`),
			"unknown":      json.RawMessage(`1`),
		})

		assert.Equal(t, 0.75, merged.SoftCapRatio)
		assert.Equal(t, ThemeDark, merged.Theme)
		assert.False(t, merged.SyncEnabled)
		assert.Equal(t, 1, merged.DefaultWeight)
	})

	t.Run("should fall back on invalid values", func(t *testing.T) {
		merged := Merge(map[string]json.RawMessage{
			"weightMax":     json.RawMessage(`"five"`),
			"defaultWeight": json.RawMessage(`9`),
			"softCapRatio":  json.RawMessage(`3`),
			"dayStartHour":  json.RawMessage(`-1`),
			"theme":         json.RawMessage(`"neon"`),
		})

		assert.Equal(t, Defaults(), merged)
	})
}

func TestAppSettings(t *testing.T) {
	t.Run("should shift dates by the day start hour", func(t *testing.T) {
		s := Defaults()
		s.DayStartHour = 4
		late := time.Date(2025, 3, 2, 2, 30, 0, 0, time.UTC)

		assert.Equal(t, "2025-03-01", s.DateOf(late))
		assert.Equal(t, "2025-03-02", Defaults().DateOf(late))
	})

	t.Run("should clamp weights to the configured maximum", func(t *testing.T) {
		s := Defaults()
		s.WeightMax = 3

		assert.Equal(t, 3.0, s.ClampWeight(8))
		assert.Equal(t, 1.0, s.ClampWeight(-2))
		assert.Equal(t, 2.0, s.ClampWeight(2))
	})
}

func TestServiceImpl(t *testing.T) {
	ctx := context.Background()

	setup := func() (*ServiceImpl, *storage.Store, *event_bus.EventBus) {
		bus := event_bus.NewEventBus()
		store := storage.NewStore(storage.NewMemoryBackend(), bus)
		return NewService(store, bus), store, bus
	}

	t.Run("should store only the changed keys", func(t *testing.T) {
		// given
		service, store, _ := setup()

		// when
		updated, err := service.Update(ctx, map[string]json.RawMessage{"weightMax": json.RawMessage(`7`)})

		// then
		require.NoError(t, err)
		assert.Equal(t, 7, updated.WeightMax)
		raw, found := store.GetRaw(ctx, storage.SettingsKey)
		require.True(t, found)
		assert.JSONEq(t, `{"weightMax":7}`, string(raw))
	})

	t.Run("should reject unknown keys", func(t *testing.T) {
		service, _, _ := setup()

		_, err := service.Update(ctx, map[string]json.RawMessage{"color": json.RawMessage(`"red"`)})

		assert.ErrorIs(t, err, ErrUnknownSetting)
	})

	t.Run("should restore a default with null", func(t *testing.T) {
		service, _, _ := setup()
		_, err := service.Update(ctx, map[string]json.RawMessage{"theme": json.RawMessage(`"dark"`), "weightMax": json.RawMessage(`7`)})
		require.NoError(t, err)

		updated, err := service.Update(ctx, map[string]json.RawMessage{"theme": json.RawMessage(`null`)})

		require.NoError(t, err)
		assert.Equal(t, ThemeSystem, updated.Theme)
		assert.Equal(t, 7, updated.WeightMax)
	})

	t.Run("should reload after an external write", func(t *testing.T) {
		service, store, _ := setup()
		assert.Equal(t, ThemeSystem, service.Get(ctx).Theme)

		store.Set(ctx, storage.SettingsKey, map[string]string{"theme": "light"})

		assert.Equal(t, ThemeLight, service.Get(ctx).Theme)
	})

	t.Run("should reload after a remote seed", func(t *testing.T) {
		service, store, bus := setup()
		assert.Equal(t, ThemeSystem, service.Get(ctx).Theme)

		store.Seed(ctx, storage.SettingsKey, json.RawMessage(`{"theme":"dark"}`))
		require.NoError(t, bus.Publish(event_bus.NewEvent(ctx, event_bus.StorageKeysReplaced, event_bus.KeysReplaced{Keys: []string{storage.SettingsKey}, Source: event_bus.SourceRemote})))

		assert.Equal(t, ThemeDark, service.Get(ctx).Theme)
	})
}

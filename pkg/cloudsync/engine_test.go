package cloudsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klokku/ritual/internal/event_bus"
	"github.com/klokku/ritual/internal/utils"
	"github.com/klokku/ritual/pkg/storage"
	"github.com/klokku/ritual/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

var account = user.User{Uid: "user-1", Email: "jane@example.com"}

var (
	remote  *RemoteStub
	bus     *event_bus.EventBus
	store   *storage.Store
	clock   *utils.MockClock
	enabled atomic.Bool
	engine  *Engine
)

func setup(t *testing.T) {
	t.Helper()
	remote = NewRemoteStub()
	remote.SignIn(account)
	bus = event_bus.NewEventBus()
	store = storage.NewStore(storage.NewMemoryBackend(), bus)
	clock = &utils.MockClock{FixedNow: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	enabled.Store(true)
	// An hour of quiet keeps timers from firing on their own during a test.
	engine = NewEngine(store, remote, bus, clock, time.Hour, func(context.Context) bool { return enabled.Load() })
	t.Cleanup(func() { engine.Shutdown(ctx) })
}

func TestEngine_Init(t *testing.T) {
	t.Run("should seed only keys that are empty locally", func(t *testing.T) {
		// given
		setup(t)
		remote.Put(account.Uid, Row{DataKey: storage.RoutinesKey, Data: json.RawMessage(`[{"id":"r1","name":"Remote"}]`)})
		remote.Put(account.Uid, Row{DataKey: storage.SettingsKey, Data: json.RawMessage(`{"theme":"light"}`)})
		remote.Put(account.Uid, Row{DataKey: "day:2025-03-01", Data: json.RawMessage(`{}`)})
		require.True(t, store.SetRaw(ctx, storage.SettingsKey, json.RawMessage(`{"theme":"dark"}`)))

		var replaced []event_bus.KeysReplaced
		event_bus.SubscribeTyped[event_bus.KeysReplaced](bus, event_bus.StorageKeysReplaced,
			func(e event_bus.EventT[event_bus.KeysReplaced]) error {
				replaced = append(replaced, e.Data)
				return nil
			})

		// when
		err := engine.Init(ctx)

		// then
		require.NoError(t, err)
		routines, found := store.GetRaw(ctx, storage.RoutinesKey)
		require.True(t, found)
		assert.JSONEq(t, `[{"id":"r1","name":"Remote"}]`, string(routines))
		settings, _ := store.GetRaw(ctx, storage.SettingsKey)
		assert.JSONEq(t, `{"theme":"dark"}`, string(settings))
		_, found = store.GetRaw(ctx, "day:2025-03-01")
		assert.False(t, found, "empty remote values are not adopted")

		require.Len(t, replaced, 1)
		assert.Equal(t, []string{storage.RoutinesKey}, replaced[0].Keys)
		assert.Equal(t, event_bus.SourceRemote, replaced[0].Source)

		status := engine.Status()
		assert.True(t, status.Pulled)
		assert.Equal(t, account.Uid, status.User.Uid)
		assert.Empty(t, status.Pending, "seeding is not echoed back to the remote")
	})

	t.Run("should seed an empty routine list and keep later local edits", func(t *testing.T) {
		// given
		setup(t)
		require.True(t, store.SetRaw(ctx, storage.RoutinesKey, json.RawMessage(`[]`)))
		remote.Put(account.Uid, Row{DataKey: storage.RoutinesKey, Data: json.RawMessage(`[{"id":"r1","name":"R"}]`)})

		// when
		require.NoError(t, engine.Init(ctx))
		seeded, _ := store.GetRaw(ctx, storage.RoutinesKey)
		require.True(t, store.SetRaw(ctx, storage.RoutinesKey, json.RawMessage(`[{"id":"r1","name":"R2"}]`)))
		engine.PullOnce(user.WithUser(ctx, account))
		restarted := NewEngine(store, remote, bus, clock, time.Hour, nil)
		require.NoError(t, restarted.Init(ctx))
		t.Cleanup(func() { restarted.Shutdown(ctx) })

		// then
		assert.JSONEq(t, `[{"id":"r1","name":"R"}]`, string(seeded))
		local, found := store.GetRaw(ctx, storage.RoutinesKey)
		require.True(t, found)
		assert.JSONEq(t, `[{"id":"r1","name":"R2"}]`, string(local))
		assert.True(t, restarted.Status().Pulled)
	})

	t.Run("should pull only once", func(t *testing.T) {
		// given
		setup(t)
		require.NoError(t, engine.Init(ctx))
		remote.Put(account.Uid, Row{DataKey: storage.RoutinesKey, Data: json.RawMessage(`[{"id":"r2"}]`)})

		// when
		require.NoError(t, engine.Init(ctx))
		engine.PullOnce(user.WithUser(ctx, account))

		// then
		_, found := store.GetRaw(ctx, storage.RoutinesKey)
		assert.False(t, found)
	})

	t.Run("should skip the pull when nobody is signed in", func(t *testing.T) {
		// given
		setup(t)
		remote.SignOut()
		remote.Put(account.Uid, Row{DataKey: storage.RoutinesKey, Data: json.RawMessage(`[{"id":"r1"}]`)})

		// when
		err := engine.Init(ctx)

		// then
		require.NoError(t, err)
		status := engine.Status()
		assert.True(t, status.Initialized)
		assert.False(t, status.Pulled)
		assert.Nil(t, status.User)
	})

	t.Run("should stay local without a remote", func(t *testing.T) {
		// given
		setup(t)
		local := NewEngine(store, nil, bus, clock, time.Hour, nil)

		// when
		err := local.Init(ctx)
		store.SetRaw(ctx, "day:2025-03-01", json.RawMessage(`{"notes":"x"}`))

		// then
		require.NoError(t, err)
		status := local.Status()
		assert.False(t, status.Enabled)
		assert.Empty(t, status.Pending)
	})
}

func TestEngine_Push(t *testing.T) {
	t.Run("should push a burst of writes once with the latest value", func(t *testing.T) {
		// given
		setup(t)
		require.NoError(t, engine.Init(ctx))
		key := storage.ExecutionKey("r1", "2025-03-01")

		// when
		for i := 1; i <= 10; i++ {
			require.True(t, store.SetRaw(ctx, key, json.RawMessage(fmt.Sprintf(`{"checked":{"i%d":true}}`, i))))
		}
		assert.Equal(t, []string{key}, engine.Status().Pending)
		engine.FlushPending()

		// then
		assert.Equal(t, 1, remote.Upserts())
		row, found := remote.Row(account.Uid, key)
		require.True(t, found)
		assert.JSONEq(t, `{"checked":{"i10":true}}`, string(row.Data))
		assert.Equal(t, clock.Now(), row.UpdatedAt)
		status := engine.Status()
		assert.Empty(t, status.Pending)
		require.NotNil(t, status.LastPushAt)
	})

	t.Run("should not push shadows or reminder state", func(t *testing.T) {
		// given
		setup(t)
		require.NoError(t, engine.Init(ctx))

		// when
		store.SetRaw(ctx, storage.ReminderStateKey("2025-03-01"), json.RawMessage(`{"a":{"dismissed":true}}`))
		store.SetRaw(ctx, storage.SettingsKey, json.RawMessage(`{"theme":"dark"}`))
		store.SetRaw(ctx, storage.SettingsKey, json.RawMessage(`{"theme":"light"}`))
		engine.FlushPending()

		// then
		assert.Equal(t, 1, remote.Upserts())
		_, found := remote.Row(account.Uid, storage.ShadowKey(storage.SettingsKey))
		assert.False(t, found)
		_, found = remote.Row(account.Uid, storage.ReminderStateKey("2025-03-01"))
		assert.False(t, found)
	})

	t.Run("should not push while sync is disabled", func(t *testing.T) {
		// given
		setup(t)
		require.NoError(t, engine.Init(ctx))
		enabled.Store(false)

		// when
		store.SetRaw(ctx, storage.DayKey("2025-03-01"), json.RawMessage(`{"notes":"quiet"}`))
		engine.FlushPending()

		// then
		assert.Zero(t, remote.Upserts())
		assert.Empty(t, engine.Status().Queued)
	})

	t.Run("should queue a push that fails without an account", func(t *testing.T) {
		// given
		setup(t)
		require.NoError(t, engine.Init(ctx))
		remote.SignOut()
		key := storage.DayKey("2025-03-01")

		// when
		store.SetRaw(ctx, key, json.RawMessage(`{"notes":"offline"}`))
		engine.FlushPending()

		// then
		status := engine.Status()
		assert.Equal(t, []string{key}, status.Queued)
		assert.Equal(t, ErrUnauthenticated.Error(), status.LastError)
	})
}

func TestEngine_RetryQueue(t *testing.T) {
	t.Run("should retry queued rows when the network comes back", func(t *testing.T) {
		// given
		setup(t)
		require.NoError(t, engine.Init(ctx))
		monitor := NewNetworkMonitor(remote, bus, time.Minute)
		remote.SetOffline(true)
		assert.False(t, monitor.Check(ctx))

		store.SetRaw(ctx, storage.DayKey("2025-03-01"), json.RawMessage(`{"notes":"first"}`))
		store.SetRaw(ctx, storage.ActionsKey("2025-03-01"), json.RawMessage(`{"actions":[]}`))
		engine.FlushPending()
		require.Len(t, engine.Status().Queued, 2)

		// when
		remote.SetOffline(false)
		online := monitor.Check(ctx)

		// then
		assert.True(t, online)
		assert.Empty(t, engine.Status().Queued)
		assert.Empty(t, engine.Status().LastError)
		row, found := remote.Row(account.Uid, storage.DayKey("2025-03-01"))
		require.True(t, found)
		assert.JSONEq(t, `{"notes":"first"}`, string(row.Data))
		assert.Equal(t, 2, remote.Upserts())
	})

	t.Run("should keep rows queued while the remote is still down", func(t *testing.T) {
		// given
		setup(t)
		require.NoError(t, engine.Init(ctx))
		remote.SetOffline(true)
		store.SetRaw(ctx, storage.DayKey("2025-03-01"), json.RawMessage(`{"notes":"first"}`))
		engine.FlushPending()

		// when
		engine.FlushQueue(ctx)

		// then
		assert.Equal(t, []string{storage.DayKey("2025-03-01")}, engine.Status().Queued)
		assert.Zero(t, remote.Upserts())
	})

	t.Run("should drop a queued row once a newer value was pushed", func(t *testing.T) {
		// given
		setup(t)
		require.NoError(t, engine.Init(ctx))
		key := storage.DayKey("2025-03-01")
		remote.SetOffline(true)
		store.SetRaw(ctx, key, json.RawMessage(`{"notes":"old"}`))
		engine.FlushPending()
		remote.SetOffline(false)

		// when
		store.SetRaw(ctx, key, json.RawMessage(`{"notes":"new"}`))
		engine.FlushPending()
		engine.FlushQueue(ctx)

		// then
		assert.Empty(t, engine.Status().Queued)
		row, _ := remote.Row(account.Uid, key)
		assert.JSONEq(t, `{"notes":"new"}`, string(row.Data))
		assert.Equal(t, 1, remote.Upserts())
	})

	t.Run("should retry with the value the key holds now", func(t *testing.T) {
		// given
		setup(t)
		require.NoError(t, engine.Init(ctx))
		key := storage.DayKey("2025-03-01")
		remote.SetOffline(true)
		store.SetRaw(ctx, key, json.RawMessage(`{"notes":"old"}`))
		engine.FlushPending()
		remote.SetOffline(false)
		store.SetRaw(ctx, key, json.RawMessage(`{"notes":"new"}`))

		// when
		engine.FlushQueue(ctx)

		// then
		assert.Empty(t, engine.Status().Queued)
		row, _ := remote.Row(account.Uid, key)
		assert.JSONEq(t, `{"notes":"new"}`, string(row.Data))
	})

	t.Run("should not overwrite a value pushed while the queue is flushing", func(t *testing.T) {
		// given
		setup(t)
		require.NoError(t, engine.Init(ctx))
		first := storage.DayKey("2025-03-01")
		second := storage.DayKey("2025-03-02")
		remote.SetOffline(true)
		store.SetRaw(ctx, first, json.RawMessage(`{"notes":"first"}`))
		engine.FlushPending()
		store.SetRaw(ctx, second, json.RawMessage(`{"notes":"old"}`))
		engine.FlushPending()
		require.Len(t, engine.Status().Queued, 2)
		remote.SetOffline(false)

		var once sync.Once
		pushed := make(chan struct{})
		remote.OnUpsert(func(row Row) {
			if row.DataKey != first {
				return
			}
			once.Do(func() {
				go func() {
					defer close(pushed)
					store.SetRaw(ctx, second, json.RawMessage(`{"notes":"new"}`))
					engine.FlushPending()
				}()
			})
		})

		// when
		engine.FlushQueue(ctx)
		<-pushed

		// then
		local, _ := store.GetRaw(ctx, second)
		assert.JSONEq(t, `{"notes":"new"}`, string(local))
		row, found := remote.Row(account.Uid, second)
		require.True(t, found)
		assert.JSONEq(t, `{"notes":"new"}`, string(row.Data))
		assert.Empty(t, engine.Status().Queued)
	})
}

func TestNetworkMonitor_Check(t *testing.T) {
	t.Run("should announce only the offline to online transition", func(t *testing.T) {
		// given
		setup(t)
		monitor := NewNetworkMonitor(remote, bus, time.Minute)
		var announced int
		event_bus.SubscribeTyped[event_bus.Online](bus, event_bus.NetworkOnline, func(e event_bus.EventT[event_bus.Online]) error {
			announced++
			assert.Equal(t, ProbeRemotePing, e.Data.Probe)
			return nil
		})

		// when
		monitor.Check(ctx)
		remote.SetOffline(true)
		monitor.Check(ctx)
		monitor.Check(ctx)
		remote.SetOffline(false)
		monitor.Check(ctx)
		monitor.Check(ctx)

		// then
		assert.Equal(t, 1, announced)
		assert.True(t, monitor.Online())
	})
}

package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/ritual/internal/config"
	"github.com/klokku/ritual/internal/event_bus"
	"github.com/klokku/ritual/internal/utils"
	"github.com/klokku/ritual/pkg/routine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func setup(t *testing.T) (*Dependencies, *utils.MockClock, *httptest.Server) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.Backend = config.BackendMemory
	clock := &utils.MockClock{FixedNow: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}

	deps, err := BuildDependencies(ctx, cfg, clock)
	require.NoError(t, err)
	r := mux.NewRouter()
	SetupMiddleware(r)
	RegisterRoutes(r, deps)
	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		deps.Close(ctx)
	})
	return deps, clock, server
}

func call(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(text)
}

func TestRoutes(t *testing.T) {
	t.Run("should check a routine item and show it in the note of today", func(t *testing.T) {
		// given
		deps, _, server := setup(t)
		status, body := call(t, "POST", server.URL+"/api/routines", `{"name":"Morning","text":"## Wake\n- Water\n- Stretch 10min"}`)
		require.Equal(t, http.StatusCreated, status, body)
		var created routine.RoutineDTO
		require.NoError(t, json.Unmarshal([]byte(body), &created))
		require.Len(t, created.Phases, 1)
		itemId := created.Phases[0].Items[0].Id

		// when
		status, body = call(t, "POST", server.URL+"/api/executions/"+created.Id+"/today/items/"+itemId+"/toggle", "")

		// then
		require.Equal(t, http.StatusOK, status, body)
		assert.Contains(t, body, `"2025-03-01"`)
		deps.ExecutionService.Flush()
		status, note := call(t, "GET", server.URL+"/api/days/today/note", "")
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, note, "## Morning / Wake")
		assert.Contains(t, note, "- [x] Water")
		assert.Contains(t, note, "- [ ] Stretch")
	})

	t.Run("should expose settings and sync status", func(t *testing.T) {
		// given
		_, _, server := setup(t)

		// when
		status, body := call(t, "PATCH", server.URL+"/api/settings", `{"theme":"dark"}`)
		require.Equal(t, http.StatusOK, status, body)
		status, syncBody := call(t, "GET", server.URL+"/api/sync", "")

		// then
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, `"theme":"dark"`)
		assert.Contains(t, syncBody, `"enabled":false`)
	})

	t.Run("should answer unknown routines with not found", func(t *testing.T) {
		// given
		_, _, server := setup(t)

		// when
		status, _ := call(t, "GET", server.URL+"/api/routines/missing", "")

		// then
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestDayWatcher_Check(t *testing.T) {
	t.Run("should announce the date change once", func(t *testing.T) {
		// given
		deps, clock, _ := setup(t)
		watcher := NewDayWatcher(clock, deps.SettingsService, deps.EventBus)
		var changes []event_bus.DateChanged
		event_bus.SubscribeTyped[event_bus.DateChanged](deps.EventBus, event_bus.DateRolledOver,
			func(e event_bus.EventT[event_bus.DateChanged]) error {
				changes = append(changes, e.Data)
				return nil
			})

		// when
		first := watcher.Check(ctx)
		clock.Advance(10 * time.Hour)
		watcher.Check(ctx)
		clock.Advance(5 * time.Hour)
		second := watcher.Check(ctx)

		// then
		assert.Equal(t, "2025-03-01", first)
		assert.Equal(t, "2025-03-02", second)
		assert.Equal(t, []event_bus.DateChanged{{Previous: "2025-03-01", Current: "2025-03-02"}}, changes)
	})

	t.Run("should keep early hours on the previous day", func(t *testing.T) {
		// given
		deps, clock, _ := setup(t)
		_, err := deps.SettingsService.Update(ctx, map[string]json.RawMessage{"dayStartHour": json.RawMessage(`4`)})
		require.NoError(t, err)
		watcher := NewDayWatcher(clock, deps.SettingsService, deps.EventBus)
		clock.SetNow(time.Date(2025, 3, 2, 3, 0, 0, 0, time.UTC))

		// when
		date := watcher.Check(ctx)

		// then
		assert.Equal(t, "2025-03-01", date)
	})
}

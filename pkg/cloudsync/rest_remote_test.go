package cloudsync

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klokku/ritual/internal/config"
	"github.com/klokku/ritual/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRestRemote(t *testing.T, handler http.HandlerFunc) *RestRemote {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewRestRemote(ctx, config.Rest{Url: server.URL + "/", ApiKey: "anon-key", AccessToken: "token-1"})
}

func TestRestRemote_CurrentUser(t *testing.T) {
	t.Run("should resolve the signed-in account", func(t *testing.T) {
		// given
		remote := newRestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/auth/v1/user", r.URL.Path)
			assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
			assert.Equal(t, "anon-key", r.Header.Get("apikey"))
			w.Write([]byte(`{"id":"user-1","email":"jane@example.com","user_metadata":{"full_name":"Jane"}}`))
		})

		// when
		u, err := remote.CurrentUser(ctx)

		// then
		require.NoError(t, err)
		assert.Equal(t, user.User{Uid: "user-1", Email: "jane@example.com", DisplayName: "Jane"}, u)
	})

	t.Run("should report a rejected token as unauthenticated", func(t *testing.T) {
		// given
		remote := newRestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		// when
		_, err := remote.CurrentUser(ctx)

		// then
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestRestRemote_SelectAll(t *testing.T) {
	t.Run("should select the rows of the user in context", func(t *testing.T) {
		// given
		remote := newRestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/rest/v1/user_data", r.URL.Path)
			assert.Equal(t, "eq.user-1", r.URL.Query().Get("user_id"))
			assert.Equal(t, "data_key,data,updated_at", r.URL.Query().Get("select"))
			w.Write([]byte(`[{"data_key":"routines","data":[{"id":"r1"}],"updated_at":"2025-03-01T09:00:00Z"}]`))
		})

		// when
		rows, err := remote.SelectAll(user.WithUser(ctx, account))

		// then
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "routines", rows[0].DataKey)
		assert.JSONEq(t, `[{"id":"r1"}]`, string(rows[0].Data))
		assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), rows[0].UpdatedAt.UTC())
	})

	t.Run("should require a user in context", func(t *testing.T) {
		// given
		remote := newRestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})

		// when
		_, err := remote.SelectAll(ctx)

		// then
		assert.ErrorIs(t, err, user.ErrNoUser)
	})
}

func TestRestRemote_Upsert(t *testing.T) {
	t.Run("should merge rows on the user and key conflict", func(t *testing.T) {
		// given
		var received []map[string]json.RawMessage
		remote := newRestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "user_id,data_key", r.URL.Query().Get("on_conflict"))
			assert.Equal(t, "resolution=merge-duplicates,return=minimal", r.Header.Get("Prefer"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, &received))
			w.WriteHeader(http.StatusCreated)
		})
		row := Row{DataKey: "settings", Data: json.RawMessage(`{"theme":"dark"}`), UpdatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}

		// when
		err := remote.Upsert(user.WithUser(ctx, account), row)

		// then
		require.NoError(t, err)
		require.Len(t, received, 1)
		assert.JSONEq(t, `"user-1"`, string(received[0]["user_id"]))
		assert.JSONEq(t, `"settings"`, string(received[0]["data_key"]))
		assert.JSONEq(t, `{"theme":"dark"}`, string(received[0]["data"]))
	})

	t.Run("should surface server failures", func(t *testing.T) {
		// given
		remote := newRestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})

		// when
		err := remote.Upsert(user.WithUser(ctx, account), Row{DataKey: "settings", Data: json.RawMessage(`{}`)})

		// then
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.Status)
		assert.Equal(t, "boom", statusErr.Body)
	})
}

func TestRestRemote_Ping(t *testing.T) {
	t.Run("should treat any answer as reachable", func(t *testing.T) {
		// given
		remote := newRestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		// when
		err := remote.Ping(ctx)

		// then
		assert.NoError(t, err)
	})

	t.Run("should fail when nothing listens", func(t *testing.T) {
		// given
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()
		remote := NewRestRemote(ctx, config.Rest{Url: server.URL})

		// when
		err := remote.Ping(ctx)

		// then
		assert.Error(t, err)
	})
}

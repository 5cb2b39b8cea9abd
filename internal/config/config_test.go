package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("should use defaults when file is missing", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

		require.NoError(t, err)
		assert.Equal(t, BackendSqlite, cfg.Storage.Backend)
		assert.Equal(t, 5*time.Second, cfg.Sync.Debounce)
		assert.False(t, cfg.Sync.Configured())
	})

	t.Run("should layer file and environment over defaults", func(t *testing.T) {
		// given
		path := filepath.Join(t.TempDir(), "application.yaml")
		content := "storage:\n  backend: redis\nsync:\n  enabled: true\n  kind: rest\n  debounce: 2s\n  rest:\n    url: http://localhost:54321\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		t.Setenv("RITUAL_SYNC_USERUID", "user-1")

		// when
		cfg, err := Load(path)

		// then
		require.NoError(t, err)
		assert.Equal(t, BackendRedis, cfg.Storage.Backend)
		assert.Equal(t, 2*time.Second, cfg.Sync.Debounce)
		assert.Equal(t, "user-1", cfg.Sync.UserUid)
		assert.Equal(t, "ritual:", cfg.Storage.RedisPrefix)
		assert.True(t, cfg.Sync.Configured())
	})
}

package cli

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/taskboard/internal/config"
)

func TestSetupLogging_WritesToLogFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := config.Defaults()
	cfg.Server.LogLevel = "debug"
	cfg.Server.LogFile = filepath.Join(t.TempDir(), "taskboard.log")

	setupLogging(cfg)
	slog.Debug("log file check", "task_id", 7)

	data, err := os.ReadFile(cfg.Server.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"log file check"`)
	assert.Contains(t, string(data), `"task_id":7`)
}

func TestSigningKey_PrefersConfiguredSecret(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Auth.KeyDir = t.TempDir()

	key, err := signingKey(cfg)
	require.NoError(t, err)
	assert.Equal(t, []byte(cfg.Auth.JWTSecret), key)

	entries, err := os.ReadDir(cfg.Auth.KeyDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSigningKey_GeneratesStableKey(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Auth.KeyDir = t.TempDir()

	first, err := signingKey(cfg)
	require.NoError(t, err)
	second, err := signingKey(cfg)
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

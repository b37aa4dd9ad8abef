package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("INAPPKIT_APP_ID", "com.example.app")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "com.example.app", cfg.AppID)
	assert.Equal(t, "inappkit-cache.db", cfg.CachePath)
	assert.Equal(t, "inappkit-history.db", cfg.HistoryPath)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_MissingAppID(t *testing.T) {
	os.Unsetenv("INAPPKIT_APP_ID")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app_id")
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"app_id: com.example.app\ncache_path: /tmp/cache.db\nlog_level: debug\n",
	), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cache.db", cfg.CachePath)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"app_id: com.example.app\nlog_level: warn\n",
	), 0o644))
	t.Setenv("INAPPKIT_LOG_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("INAPPKIT_APP_ID", "com.example.app")
	t.Setenv("INAPPKIT_LOG_LEVEL", "loud")

	_, err := Load("")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

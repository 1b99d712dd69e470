package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const sampleConfig = `
app:
  timezone: UTC
log:
  level: debug
storage:
  driver: memory
scheduler:
  poll_interval: 10s
actions:
  endpoint: https://script.google.com/macros/s/abc/exec
  timeout: 5s
nats:
  enabled: true
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestManager_Load(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleConfig)

	cfg, err := NewManager(path, zaptest.NewLogger(t)).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, "https://script.google.com/macros/s/abc/exec", cfg.Actions.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.Actions.Timeout)
	assert.True(t, cfg.NATS.Enabled)

	// defaults fill what the file leaves out
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 64, cfg.Scheduler.QueueSize)
	assert.Equal(t, 100, cfg.Scheduler.LogCapacity)
	assert.Equal(t, "https://script.google.com/", cfg.Actions.AllowedURLPrefix)
	assert.Equal(t, 60*time.Second, cfg.Stats.RefreshInterval)
	assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestManager_MissingFileUsesDefaults(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing.yaml"), zaptest.NewLogger(t))
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Storage.Driver)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Same(t, cfg, m.Get())
}

func TestManager_EnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleConfig)
	t.Setenv("AUTOCONTROL_SERVER_ADDR", ":9999")
	t.Setenv("AUTOCONTROL_STORAGE_DRIVER", "sqlite")
	t.Setenv("AUTOCONTROL_SCHEDULER_POLL_INTERVAL", "45s")

	cfg, err := NewManager(path, zaptest.NewLogger(t)).Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 45*time.Second, cfg.Scheduler.PollInterval)
}

func TestManager_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown driver", content: "storage:\n  driver: postgres\n"},
		{name: "poll interval too short", content: "scheduler:\n  poll_interval: 100ms\n"},
		{name: "bad timezone", content: "app:\n  timezone: Mars/Olympus\n"},
		{name: "malformed yaml", content: "log: [level\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := NewManager(path, zaptest.NewLogger(t)).Load()
			assert.Error(t, err)
		})
	}
}

func TestManager_Watch(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)

	// the watcher outlives the test, so it must not log through t
	m := NewManager(path, zap.NewNop())
	_, err := m.Load()
	require.NoError(t, err)

	var level atomic.Value
	m.OnChange(func(cfg *Config) {
		level.Store(cfg.Log.Level)
	})
	m.Watch()

	writeConfig(t, dir, "log:\n  level: warn\nstorage:\n  driver: memory\n")

	require.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "warn"
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "warn", m.Get().Log.Level)
}

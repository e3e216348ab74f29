package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the resolvd config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "resolvd")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadWithFile_Defaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Engine.RecurrenceWindow.Duration())
	assert.Equal(t, 2, cfg.Engine.PreventiveAt)
	assert.Equal(t, 3, cfg.Engine.SelfHealAt)
	assert.InDelta(t, 0.7, cfg.Engine.AdaptationThreshold, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Advisor.Timeout.Duration())
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, ProviderStatic, cfg.Advisor.Provider)
	assert.Equal(t, "resolvd.outcomes", cfg.NATS.OutcomeSubject)
	assert.Equal(t, LoadStatic, cfg.Load.Source)
	assert.Equal(t, 2*time.Second, cfg.Load.Timeout.Duration())
}

func TestLoadWithFile_LoadHold(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		setupTestHome(t)
		cfg, err := LoadWithFile("")
		require.NoError(t, err)
		assert.InDelta(t, 0.9, cfg.Engine.LoadHold(), 1e-9)
	})

	t.Run("disabled", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "engine:\n  disable_load_hold: true\n", 0600)
		cfg, err := LoadWithFile(path)
		require.NoError(t, err)
		assert.Zero(t, cfg.Engine.LoadHold())
	})

	t.Run("explicit threshold", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "engine:\n  load_hold_threshold: 0.75\n", 0600)
		cfg, err := LoadWithFile(path)
		require.NoError(t, err)
		assert.InDelta(t, 0.75, cfg.Engine.LoadHold(), 1e-9)
	})
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `server:
  http_port: 8088
engine:
  recurrence_window: 12h
  preventive_at: 3
  self_heal_at: 5
store:
  backend: redis
redis:
  addr: localhost:6379
  password: hunter2
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 12*time.Hour, cfg.Engine.RecurrenceWindow.Duration())
	assert.Equal(t, 3, cfg.Engine.PreventiveAt)
	assert.Equal(t, 5, cfg.Engine.SelfHealAt)
	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, "hunter2", cfg.Redis.Password.Value())
	assert.Equal(t, "[REDACTED]", cfg.Redis.Password.String())
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 8088\n", 0600)

	t.Setenv("RESOLVD_SERVER_HTTP_PORT", "7070")
	t.Setenv("RESOLVD_ENGINE_OUTCOME_WAIT", "90s")
	t.Setenv("RESOLVD_ENGINE_ADAPTATION_THRESHOLD", "0.8")
	t.Setenv("RESOLVD_SECRETS_ALLOWLIST_PATH", "/etc/resolvd/allow.toml")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Engine.OutcomeWait.Duration())
	assert.InDelta(t, 0.8, cfg.Engine.AdaptationThreshold, 1e-9)
	assert.Equal(t, "/etc/resolvd/allow.toml", cfg.Secrets.AllowListPath)
}

func TestLoadWithFile_Rejects(t *testing.T) {
	t.Run("path outside allowed dirs", func(t *testing.T) {
		setupTestHome(t)
		_, err := LoadWithFile(filepath.Join(t.TempDir(), "config.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config path validation failed")
	})

	t.Run("world readable file", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("permission model differs on windows")
		}
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "server:\n  http_port: 8088\n", 0644)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})

	t.Run("inverted ladder", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "engine:\n  preventive_at: 4\n  self_heal_at: 3\n", 0600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "self_heal_at")
	})

	t.Run("remote provider without key", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "advisor:\n  provider: anthropic\n", 0600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "advisor.api_key")
	})

	t.Run("prometheus load without url", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "load:\n  source: prometheus\n", 0600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load.prometheus_url")
	})

	t.Run("knowledge watch without path", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, "knowledge:\n  watch: true\n", 0600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "knowledge.path")
	})
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"RESOLVD_SERVER_HTTP_PORT", "server.http_port"},
		{"RESOLVD_ADVISOR_API_KEY", "advisor.api_key"},
		{"RESOLVD_NATS_URL", "nats.url"},
		{"RESOLVD_DEBUG", "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}

func TestSecret(t *testing.T) {
	s := Secret("sk-live-123")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "Secret([REDACTED])", s.GoString())
	assert.True(t, s.IsSet())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(b))

	assert.Equal(t, "", Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("15m")))
	assert.Equal(t, 15*time.Minute, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

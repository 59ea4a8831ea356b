package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, 3051, cfg.Port)
	assert.Equal(t, Range{Min: 3050, Max: 3100}, cfg.PortRange)
	assert.Equal(t, int64(30000), cfg.HeartbeatIntervalMs)
	assert.Equal(t, int64(60000), cfg.ConnectionTimeoutMs)
	assert.NoError(t, cfg.Validate())
}

func TestDurationAccessors(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 60*time.Second, cfg.ConnectionTimeout())
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.LoggingLevel = tt.level
		assert.Equal(t, tt.want, cfg.SlogLevel())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Server)
		wantErr bool
	}{
		{"defaults", func(*Server) {}, false},
		{"ephemeral port", func(c *Server) { c.Port = 0 }, false},
		{"no range", func(c *Server) { c.PortRange = Range{} }, false},
		{"negative port", func(c *Server) { c.Port = -1 }, true},
		{"port too large", func(c *Server) { c.Port = 70000 }, true},
		{"inverted range", func(c *Server) { c.PortRange = Range{Min: 3100, Max: 3050} }, true},
		{"zero heartbeat", func(c *Server) { c.HeartbeatIntervalMs = 0 }, true},
		{"zero timeout", func(c *Server) { c.ConnectionTimeoutMs = 0 }, true},
		{"bad level", func(c *Server) { c.LoggingLevel = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyMergesOnlySetFields(t *testing.T) {
	cfg := Default()

	enabled := true
	hb := int64(5000)
	merged := cfg.Apply(Patch{Enabled: &enabled, HeartbeatIntervalMs: &hb})

	assert.True(t, merged.Enabled)
	assert.Equal(t, int64(5000), merged.HeartbeatIntervalMs)
	// Untouched fields keep their values.
	assert.Equal(t, cfg.Port, merged.Port)
	assert.Equal(t, cfg.PortRange, merged.PortRange)
	assert.Equal(t, cfg.ConnectionTimeoutMs, merged.ConnectionTimeoutMs)

	// The receiver is not mutated.
	assert.False(t, cfg.Enabled)
	assert.Equal(t, int64(30000), cfg.HeartbeatIntervalMs)
}

func TestApplyEmptyPatchIsNoop(t *testing.T) {
	cfg := Default()
	assert.Equal(t, cfg, cfg.Apply(Patch{}))
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
enabled: true
port: 4000
portRange:
  min: 4000
  max: 4010
heartbeatInterval: 10000
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, Range{Min: 4000, Max: 4010}, cfg.PortRange)
	assert.Equal(t, int64(10000), cfg.HeartbeatIntervalMs)
	// Unspecified fields keep defaults.
	assert.Equal(t, int64(60000), cfg.ConnectionTimeoutMs)
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"enabled":true,"port":4051,"connectionTimeout":15000}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 4051, cfg.Port)
	assert.Equal(t, int64(15000), cfg.ConnectionTimeoutMs)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": -5}`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.False(t, cfg.App.Monitor)
	assert.Equal(t, "unix:///tmp/tracekit-agent/core-agent.sock", cfg.Agent.SocketPath)
	assert.True(t, cfg.Agent.Launch)
	assert.True(t, cfg.Agent.Download)

	assert.Equal(t, 0, cfg.Transport.PoolMin)
	assert.Equal(t, 4, cfg.Transport.PoolMax)
	assert.Equal(t, 5*time.Second, cfg.Transport.SendTimeout)
	assert.Equal(t, 3, cfg.Transport.BackoffThreshold)

	assert.Equal(t, 500*time.Millisecond, cfg.Trace.SlowThreshold)
	assert.Equal(t, ScopeContext, cfg.Trace.ScopeMode)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"TRACEKIT_NAME":           "billing",
		"TRACEKIT_KEY":            "abc123",
		"TRACEKIT_MONITOR":        "true",
		"TRACEKIT_AGENT_SOCKET":   "tcp://127.0.0.1:6590",
		"TRACEKIT_AGENT_LAUNCH":   "false",
		"TRACEKIT_POOL_MAX":       "8",
		"TRACEKIT_SEND_TIMEOUT":   "1500ms",
		"TRACEKIT_SLOW_THRESHOLD": "2s",
		"TRACEKIT_SCOPE_MODE":     "sync",
		"TRACEKIT_STACK_IGNORE":   "**/vendor/**,**/gen/**",
		"TRACEKIT_LOG_LEVEL":      "debug",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "billing", cfg.App.Name)
	assert.Equal(t, "abc123", cfg.App.Key)
	assert.True(t, cfg.App.Monitor)
	assert.Equal(t, "tcp://127.0.0.1:6590", cfg.Agent.SocketPath)
	assert.False(t, cfg.Agent.Launch)
	assert.Equal(t, 8, cfg.Transport.PoolMax)
	assert.Equal(t, 1500*time.Millisecond, cfg.Transport.SendTimeout)
	assert.Equal(t, 2*time.Second, cfg.Trace.SlowThreshold)
	assert.Equal(t, ScopeSync, cfg.Trace.ScopeMode)
	assert.Equal(t, []string{"**/vendor/**", "**/gen/**"}, cfg.Trace.StackIgnore)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// untouched values keep their defaults
	assert.True(t, cfg.Agent.Download)
	assert.Equal(t, 3, cfg.Transport.BackoffThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("TRACEKIT_SEND_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, 5*time.Second, cfg.Transport.SendTimeout)
}

func TestMergeYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracekit.yml")
	content := `
app:
  name: checkout
  key: k-1
  monitor: true
agent:
  launch: false
  socket_path: /var/run/agent.sock
transport:
  pool_max: 2
  backoff_delay: 50ms
trace:
  slow_threshold: 750ms
  stack_ignore:
    - "**/internal/gen/**"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := Default()
	require.NoError(t, cfg.MergeFile(path))

	assert.Equal(t, "checkout", cfg.App.Name)
	assert.Equal(t, "k-1", cfg.App.Key)
	assert.True(t, cfg.App.Monitor)
	assert.False(t, cfg.Agent.Launch)
	assert.Equal(t, "/var/run/agent.sock", cfg.Agent.SocketPath)
	assert.Equal(t, 2, cfg.Transport.PoolMax)
	assert.Equal(t, 50*time.Millisecond, cfg.Transport.BackoffDelay)
	assert.Equal(t, 750*time.Millisecond, cfg.Trace.SlowThreshold)
	assert.Equal(t, []string{"**/internal/gen/**"}, cfg.Trace.StackIgnore)

	// absent keys keep defaults
	assert.True(t, cfg.Agent.Download)
	assert.Equal(t, 5*time.Second, cfg.Transport.SendTimeout)
}

func TestMergeTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracekit.toml")
	content := `
[app]
name = "worker"
monitor = false

[transport]
pool_min = 1
pool_max = 3
send_timeout = "2s"

[logging]
level = "warn"
development = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := Default()
	require.NoError(t, cfg.MergeFile(path))

	assert.Equal(t, "worker", cfg.App.Name)
	assert.Equal(t, 1, cfg.Transport.PoolMin)
	assert.Equal(t, 3, cfg.Transport.PoolMax)
	assert.Equal(t, 2*time.Second, cfg.Transport.SendTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracekit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  name: from-file\n  key: file-key\n"), 0o600))

	t.Setenv("TRACEKIT_CONFIG_FILE", path)
	t.Setenv("TRACEKIT_NAME", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.App.Name)
	assert.Equal(t, "file-key", cfg.App.Key)
}

func TestMergeFileErrors(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	assert.Error(t, cfg.MergeFile(filepath.Join(dir, "missing.yaml")))

	ini := filepath.Join(dir, "tracekit.ini")
	require.NoError(t, os.WriteFile(ini, []byte("name=x"), 0o600))
	assert.Error(t, cfg.MergeFile(ini))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("trace:\n  slow_threshold: forever\n"), 0o600))
	assert.Error(t, cfg.MergeFile(bad))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "monitor without key",
			mutate:  func(c *Config) { c.App.Monitor = true },
			wantErr: ErrMissingKey,
		},
		{name: "pool max zero", mutate: func(c *Config) { c.Transport.PoolMax = 0 }},
		{name: "pool min above max", mutate: func(c *Config) { c.Transport.PoolMin = 9 }},
		{name: "unknown scope", mutate: func(c *Config) { c.Trace.ScopeMode = "fiber" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			switch {
			case tt.name == "defaults are valid":
				assert.NoError(t, err)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.Error(t, err)
			}
		})
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces the long-form environment keys.
const EnvPrefix = "tracekit"

// ErrMissingKey is returned when monitoring is on but no agent key is configured.
var ErrMissingKey = errors.New("config: monitoring enabled without an application key")

// Scope modes for current request/span tracking.
const (
	ScopeContext = "context"
	ScopeSync    = "sync"
)

// Config holds all client configuration.
type Config struct {
	App       AppConfig
	Agent     AgentConfig
	Transport TransportConfig
	Trace     TraceConfig
	Logging   LogConfig
}

// AppConfig identifies the monitored application to the agent.
type AppConfig struct {
	Name             string `envconfig:"TRACEKIT_NAME"`
	Key              string `envconfig:"TRACEKIT_KEY"`
	Monitor          bool   `envconfig:"TRACEKIT_MONITOR"`
	Hostname         string `envconfig:"TRACEKIT_HOSTNAME"`
	Framework        string `envconfig:"TRACEKIT_FRAMEWORK"`
	FrameworkVersion string `envconfig:"TRACEKIT_FRAMEWORK_VERSION"`
	AppRoot          string `envconfig:"TRACEKIT_APP_ROOT"`
	RevisionSHA      string `envconfig:"TRACEKIT_REVISION_SHA"`
}

// AgentConfig describes where the agent lives and whether we may start it.
type AgentConfig struct {
	SocketPath     string        `envconfig:"TRACEKIT_AGENT_SOCKET"`
	Launch         bool          `envconfig:"TRACEKIT_AGENT_LAUNCH"`
	Download       bool          `envconfig:"TRACEKIT_AGENT_DOWNLOAD"`
	BinaryPath     string        `envconfig:"TRACEKIT_AGENT_BINARY"`
	Version        string        `envconfig:"TRACEKIT_AGENT_VERSION"`
	DownloadURL    string        `envconfig:"TRACEKIT_AGENT_DOWNLOAD_URL"`
	DownloadDir    string        `envconfig:"TRACEKIT_AGENT_DIR"`
	Triple         string        `envconfig:"TRACEKIT_AGENT_TRIPLE"`
	SHA256         string        `envconfig:"TRACEKIT_AGENT_SHA256"`
	LogLevel       string        `envconfig:"TRACEKIT_AGENT_LOG_LEVEL"`
	ShutdownOnExit bool          `envconfig:"TRACEKIT_AGENT_SHUTDOWN_ON_EXIT"`
	StartTimeout   time.Duration `envconfig:"TRACEKIT_AGENT_START_TIMEOUT"`
}

// TransportConfig controls the connection pool.
type TransportConfig struct {
	PoolMin          int           `envconfig:"TRACEKIT_POOL_MIN"`
	PoolMax          int           `envconfig:"TRACEKIT_POOL_MAX"`
	SendTimeout      time.Duration `envconfig:"TRACEKIT_SEND_TIMEOUT"`
	ConnectTimeout   time.Duration `envconfig:"TRACEKIT_CONNECT_TIMEOUT"`
	BackoffThreshold int           `envconfig:"TRACEKIT_BACKOFF_THRESHOLD"`
	BackoffDelay     time.Duration `envconfig:"TRACEKIT_BACKOFF_DELAY"`
}

// TraceConfig controls span behaviour.
type TraceConfig struct {
	SlowThreshold time.Duration `envconfig:"TRACEKIT_SLOW_THRESHOLD"`
	ScopeMode     string        `envconfig:"TRACEKIT_SCOPE_MODE"`
	StackIgnore   []string      `envconfig:"TRACEKIT_STACK_IGNORE"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"TRACEKIT_LOG_LEVEL"`
	Development bool   `envconfig:"TRACEKIT_LOG_DEV"`
}

// Load builds configuration from defaults, then the optional file named by
// TRACEKIT_CONFIG_FILE, then environment variables. Later layers win.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("TRACEKIT_CONFIG_FILE"); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Monitor: false,
		},
		Agent: AgentConfig{
			SocketPath:     "unix:///tmp/tracekit-agent/core-agent.sock",
			Launch:         true,
			Download:       true,
			Version:        "v1.4.0",
			DownloadURL:    "https://s3-us-west-1.amazonaws.com/scout-public-downloads/apm_core_agent/release",
			DownloadDir:    "/tmp/tracekit-agent",
			LogLevel:       "info",
			ShutdownOnExit: false,
			StartTimeout:   5 * time.Second,
		},
		Transport: TransportConfig{
			PoolMin:          0,
			PoolMax:          4,
			SendTimeout:      5 * time.Second,
			ConnectTimeout:   2 * time.Second,
			BackoffThreshold: 3,
			BackoffDelay:     500 * time.Millisecond,
		},
		Trace: TraceConfig{
			SlowThreshold: 500 * time.Millisecond,
			ScopeMode:     ScopeContext,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.App.Monitor && c.App.Key == "" {
		return ErrMissingKey
	}
	if c.Transport.PoolMax < 1 {
		return fmt.Errorf("config: pool max must be at least 1, got %d", c.Transport.PoolMax)
	}
	if c.Transport.PoolMin < 0 || c.Transport.PoolMin > c.Transport.PoolMax {
		return fmt.Errorf("config: pool min %d outside [0, %d]", c.Transport.PoolMin, c.Transport.PoolMax)
	}
	switch c.Trace.ScopeMode {
	case ScopeContext, ScopeSync:
	default:
		return fmt.Errorf("config: unknown scope mode %q", c.Trace.ScopeMode)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config for on-disk files. Pointer fields distinguish
// "absent" from a zero value so a file only overrides what it names.
// Durations are written as Go duration strings ("250ms", "5s").
type fileConfig struct {
	App struct {
		Name             *string `yaml:"name" toml:"name"`
		Key              *string `yaml:"key" toml:"key"`
		Monitor          *bool   `yaml:"monitor" toml:"monitor"`
		Hostname         *string `yaml:"hostname" toml:"hostname"`
		Framework        *string `yaml:"framework" toml:"framework"`
		FrameworkVersion *string `yaml:"framework_version" toml:"framework_version"`
		AppRoot          *string `yaml:"app_root" toml:"app_root"`
		RevisionSHA      *string `yaml:"revision_sha" toml:"revision_sha"`
	} `yaml:"app" toml:"app"`
	Agent struct {
		SocketPath     *string `yaml:"socket_path" toml:"socket_path"`
		Launch         *bool   `yaml:"launch" toml:"launch"`
		Download       *bool   `yaml:"download" toml:"download"`
		BinaryPath     *string `yaml:"binary_path" toml:"binary_path"`
		Version        *string `yaml:"version" toml:"version"`
		DownloadURL    *string `yaml:"download_url" toml:"download_url"`
		DownloadDir    *string `yaml:"download_dir" toml:"download_dir"`
		Triple         *string `yaml:"triple" toml:"triple"`
		SHA256         *string `yaml:"sha256" toml:"sha256"`
		LogLevel       *string `yaml:"log_level" toml:"log_level"`
		ShutdownOnExit *bool   `yaml:"shutdown_on_exit" toml:"shutdown_on_exit"`
		StartTimeout   *string `yaml:"start_timeout" toml:"start_timeout"`
	} `yaml:"agent" toml:"agent"`
	Transport struct {
		PoolMin          *int    `yaml:"pool_min" toml:"pool_min"`
		PoolMax          *int    `yaml:"pool_max" toml:"pool_max"`
		SendTimeout      *string `yaml:"send_timeout" toml:"send_timeout"`
		ConnectTimeout   *string `yaml:"connect_timeout" toml:"connect_timeout"`
		BackoffThreshold *int    `yaml:"backoff_threshold" toml:"backoff_threshold"`
		BackoffDelay     *string `yaml:"backoff_delay" toml:"backoff_delay"`
	} `yaml:"transport" toml:"transport"`
	Trace struct {
		SlowThreshold *string  `yaml:"slow_threshold" toml:"slow_threshold"`
		ScopeMode     *string  `yaml:"scope_mode" toml:"scope_mode"`
		StackIgnore   []string `yaml:"stack_ignore" toml:"stack_ignore"`
	} `yaml:"trace" toml:"trace"`
	Logging struct {
		Level       *string `yaml:"level" toml:"level"`
		Development *bool   `yaml:"development" toml:"development"`
	} `yaml:"logging" toml:"logging"`
}

// MergeFile overlays the YAML or TOML file at path onto c.
// The format is chosen by extension.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return c.apply(&fc)
}

func (c *Config) apply(fc *fileConfig) error {
	setString(&c.App.Name, fc.App.Name)
	setString(&c.App.Key, fc.App.Key)
	setBool(&c.App.Monitor, fc.App.Monitor)
	setString(&c.App.Hostname, fc.App.Hostname)
	setString(&c.App.Framework, fc.App.Framework)
	setString(&c.App.FrameworkVersion, fc.App.FrameworkVersion)
	setString(&c.App.AppRoot, fc.App.AppRoot)
	setString(&c.App.RevisionSHA, fc.App.RevisionSHA)

	setString(&c.Agent.SocketPath, fc.Agent.SocketPath)
	setBool(&c.Agent.Launch, fc.Agent.Launch)
	setBool(&c.Agent.Download, fc.Agent.Download)
	setString(&c.Agent.BinaryPath, fc.Agent.BinaryPath)
	setString(&c.Agent.Version, fc.Agent.Version)
	setString(&c.Agent.DownloadURL, fc.Agent.DownloadURL)
	setString(&c.Agent.DownloadDir, fc.Agent.DownloadDir)
	setString(&c.Agent.Triple, fc.Agent.Triple)
	setString(&c.Agent.SHA256, fc.Agent.SHA256)
	setString(&c.Agent.LogLevel, fc.Agent.LogLevel)
	setBool(&c.Agent.ShutdownOnExit, fc.Agent.ShutdownOnExit)

	setInt(&c.Transport.PoolMin, fc.Transport.PoolMin)
	setInt(&c.Transport.PoolMax, fc.Transport.PoolMax)
	setInt(&c.Transport.BackoffThreshold, fc.Transport.BackoffThreshold)

	setString(&c.Trace.ScopeMode, fc.Trace.ScopeMode)
	if fc.Trace.StackIgnore != nil {
		c.Trace.StackIgnore = fc.Trace.StackIgnore
	}

	setString(&c.Logging.Level, fc.Logging.Level)
	setBool(&c.Logging.Development, fc.Logging.Development)

	durations := []struct {
		name string
		dst  *time.Duration
		src  *string
	}{
		{"agent.start_timeout", &c.Agent.StartTimeout, fc.Agent.StartTimeout},
		{"transport.send_timeout", &c.Transport.SendTimeout, fc.Transport.SendTimeout},
		{"transport.connect_timeout", &c.Transport.ConnectTimeout, fc.Transport.ConnectTimeout},
		{"transport.backoff_delay", &c.Transport.BackoffDelay, fc.Transport.BackoffDelay},
		{"trace.slow_threshold", &c.Trace.SlowThreshold, fc.Trace.SlowThreshold},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

// Package config holds the on-disk configuration for the airlimb tools.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the TOML tool configuration. Timing fields are plain integers
// in the unit their name carries; limb.Options turns them into durations.
type Config struct {
	// Hostname of the bridge the limb hangs off.
	Hostname string `toml:"hostname"`

	// Transport picks how to reach the bridge: "mqtt" or "ws".
	Transport string `toml:"transport"`

	MQTT MQTTConfig `toml:"mqtt"`
	WS   WSConfig   `toml:"ws"`

	// CycleTimeoutUS bounds each worker poll/actuate cycle, in microseconds.
	CycleTimeoutUS int `toml:"cycle_timeout_us"`

	// LoosePeriodMS is the default full de-actuation duration for
	// loose-all and reset, in milliseconds.
	LoosePeriodMS int `toml:"loose_period_ms"`

	LogLevel string `toml:"log_level"`

	// ProfilePath optionally points at a YAML muscle calibration profile.
	ProfilePath string `toml:"profile_path"`
}

type MQTTConfig struct {
	Broker   string `toml:"broker"`
	Port     int    `toml:"port"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
}

type WSConfig struct {
	URL string `toml:"url,omitempty"`
}

// Default returns the configuration used when no file exists: the nominal
// 4.5ms cycle budget against the default bridge host.
func Default() *Config {
	return &Config{
		Hostname:       "clonepiext",
		Transport:      "mqtt",
		MQTT:           MQTTConfig{Broker: "localhost", Port: 1883},
		CycleTimeoutUS: 4500,
		LoosePeriodMS:  500,
		LogLevel:       "error",
	}
}

// Load reads a TOML config, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as TOML.
func (c *Config) Save(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	switch c.Transport {
	case "mqtt", "ws":
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	if c.Hostname == "" {
		return fmt.Errorf("config: hostname must be set")
	}
	if c.CycleTimeoutUS <= 0 {
		return fmt.Errorf("config: cycle_timeout_us must be positive, got %d", c.CycleTimeoutUS)
	}
	if c.LoosePeriodMS <= 0 {
		return fmt.Errorf("config: loose_period_ms must be positive, got %d", c.LoosePeriodMS)
	}
	return nil
}

// CycleTimeout returns the per-cycle worker budget as a duration.
func (c *Config) CycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutUS) * time.Microsecond
}

// LoosePeriod returns the default de-actuation duration.
func (c *Config) LoosePeriod() time.Duration {
	return time.Duration(c.LoosePeriodMS) * time.Millisecond
}

// SlogLevel maps the config log level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Lumen Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Daemon    DaemonConfig    `yaml:"daemon"`
	Database  DatabaseConfig  `yaml:"database"`
	Transport TransportConfig `yaml:"transport"`
	Render    RenderConfig    `yaml:"render"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DaemonConfig contains settings for the daemon itself.
type DaemonConfig struct {
	// NodeRoot is the directory where per-device nodes are created.
	NodeRoot string `yaml:"node_root"`

	// HotplugIntervalMs is how often the USB transport is re-enumerated
	// to detect attached or removed devices, in milliseconds.
	HotplugIntervalMs int `yaml:"hotplug_interval_ms"`

	// ShutdownTimeoutMs bounds how long shutdown waits for in-flight
	// hardware writes before releasing device resources, in milliseconds.
	ShutdownTimeoutMs int `yaml:"shutdown_timeout_ms"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// TransportConfig contains tuning for hardware round-trips. The defaults
// are conservative values validated against real hardware.
type TransportConfig struct {
	// CommandTimeoutMs bounds a single command round-trip, in milliseconds.
	CommandTimeoutMs int `yaml:"command_timeout_ms"`

	// IdentifyTimeoutMs bounds the identification handshake, in milliseconds.
	IdentifyTimeoutMs int `yaml:"identify_timeout_ms"`

	// PollTimeoutMs is the interrupt-read timeout for the input worker,
	// in milliseconds. Short enough that shutdown is prompt.
	PollTimeoutMs int `yaml:"poll_timeout_ms"`

	// RetryAttempts is how many times a transient transport fault is
	// retried before escalating to device removal.
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryBackoffMs is the initial backoff between retries, in
	// milliseconds. Doubles on each attempt.
	RetryBackoffMs int `yaml:"retry_backoff_ms"`

	// DecodeFaultThreshold is the number of malformed frames within
	// DecodeFaultWindowMs that escalates to a transport fault.
	DecodeFaultThreshold int `yaml:"decode_fault_threshold"`

	// DecodeFaultWindowMs is the sliding window for the threshold above.
	DecodeFaultWindowMs int `yaml:"decode_fault_window_ms"`
}

// RenderConfig contains settings for the external animation renderer.
type RenderConfig struct {
	// Binary is the path to the renderer executable. Empty disables
	// animation modes; static lighting still works.
	Binary string `yaml:"binary"`

	// RestartOnFailure enables automatic restart if the renderer crashes.
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelaySeconds is the time to wait before restarting (in seconds).
	RestartDelaySeconds int `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`
}

// MQTTConfig contains settings for the optional remote event bridge.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// TelemetryConfig contains InfluxDB connection settings for optional
// device telemetry (input rates, command latency, device counts).
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LUMEN_SECTION_KEY
// For example: LUMEN_DATABASE_PATH, LUMEN_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
// Used when no config file is present; the daemon runs with defaults.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			NodeRoot:          "/var/run/lumen",
			HotplugIntervalMs: 1000,
			ShutdownTimeoutMs: 3000,
		},
		Database: DatabaseConfig{
			Path:        "./data/lumen.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Transport: TransportConfig{
			CommandTimeoutMs:     2000,
			IdentifyTimeoutMs:    5000,
			PollTimeoutMs:        100,
			RetryAttempts:        3,
			RetryBackoffMs:       100,
			DecodeFaultThreshold: 10,
			DecodeFaultWindowMs:  10000,
		},
		Render: RenderConfig{
			RestartOnFailure:    true,
			RestartDelaySeconds: 2,
			MaxRestartAttempts:  5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lumen-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LUMEN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Daemon
	if v := os.Getenv("LUMEN_NODE_ROOT"); v != "" {
		cfg.Daemon.NodeRoot = v
	}

	// Database
	if v := os.Getenv("LUMEN_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LUMEN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LUMEN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LUMEN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Telemetry
	if v := os.Getenv("LUMEN_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Daemon.NodeRoot == "" {
		errs = append(errs, "daemon.node_root is required")
	}
	if c.Daemon.HotplugIntervalMs <= 0 {
		errs = append(errs, "daemon.hotplug_interval_ms must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Transport.CommandTimeoutMs <= 0 {
		errs = append(errs, "transport.command_timeout_ms must be positive")
	}
	if c.Transport.IdentifyTimeoutMs <= 0 {
		errs = append(errs, "transport.identify_timeout_ms must be positive")
	}
	if c.Transport.RetryAttempts < 0 {
		errs = append(errs, "transport.retry_attempts must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			errs = append(errs, "telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.Token == "" {
			errs = append(errs, "telemetry.token is required when telemetry is enabled (set LUMEN_TELEMETRY_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CommandTimeout returns the command round-trip timeout as a Duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Transport.CommandTimeoutMs) * time.Millisecond
}

// IdentifyTimeout returns the identification handshake timeout as a Duration.
func (c *Config) IdentifyTimeout() time.Duration {
	return time.Duration(c.Transport.IdentifyTimeoutMs) * time.Millisecond
}

// PollTimeout returns the input interrupt-read timeout as a Duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Transport.PollTimeoutMs) * time.Millisecond
}

// RetryBackoff returns the initial retry backoff as a Duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Transport.RetryBackoffMs) * time.Millisecond
}

// HotplugInterval returns the enumeration poll interval as a Duration.
func (c *Config) HotplugInterval() time.Duration {
	return time.Duration(c.Daemon.HotplugIntervalMs) * time.Millisecond
}

// ShutdownTimeout returns the shutdown drain timeout as a Duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Daemon.ShutdownTimeoutMs) * time.Millisecond
}

// DecodeFaultWindow returns the decode fault sliding window as a Duration.
func (c *Config) DecodeFaultWindow() time.Duration {
	return time.Duration(c.Transport.DecodeFaultWindowMs) * time.Millisecond
}

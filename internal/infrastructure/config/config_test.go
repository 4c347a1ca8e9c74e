package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeTempConfig(t, "daemon:\n  node_root: /tmp/lumen-test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Daemon.NodeRoot != "/tmp/lumen-test" {
		t.Errorf("NodeRoot = %q, want /tmp/lumen-test", cfg.Daemon.NodeRoot)
	}
	if cfg.Transport.CommandTimeoutMs != 2000 {
		t.Errorf("CommandTimeoutMs = %d, want default 2000", cfg.Transport.CommandTimeoutMs)
	}
	if cfg.Transport.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want default 3", cfg.Transport.RetryAttempts)
	}
	if !cfg.Database.WALMode {
		t.Error("WALMode should default to true")
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT should be disabled by default")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
daemon:
  node_root: /run/lumen
  hotplug_interval_ms: 250
transport:
  command_timeout_ms: 500
  retry_attempts: 1
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Daemon.HotplugIntervalMs != 250 {
		t.Errorf("HotplugIntervalMs = %d, want 250", cfg.Daemon.HotplugIntervalMs)
	}
	if got := cfg.CommandTimeout(); got != 500*time.Millisecond {
		t.Errorf("CommandTimeout() = %v, want 500ms", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() should fail for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LUMEN_NODE_ROOT", "/custom/lumen")
	t.Setenv("LUMEN_DATABASE_PATH", "/custom/lumen.db")
	t.Setenv("LUMEN_MQTT_HOST", "broker.example.com")

	path := writeTempConfig(t, "daemon:\n  node_root: /from/file\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Daemon.NodeRoot != "/custom/lumen" {
		t.Errorf("NodeRoot = %q, env override should win", cfg.Daemon.NodeRoot)
	}
	if cfg.Database.Path != "/custom/lumen.db" {
		t.Errorf("Database.Path = %q, env override should win", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("MQTT host = %q, env override should win", cfg.MQTT.Broker.Host)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty node root",
			mutate:  func(c *Config) { c.Daemon.NodeRoot = "" },
			wantErr: "node_root",
		},
		{
			name:    "zero command timeout",
			mutate:  func(c *Config) { c.Transport.CommandTimeoutMs = 0 },
			wantErr: "command_timeout_ms",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Transport.RetryAttempts = -1 },
			wantErr: "retry_attempts",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "qos",
		},
		{
			name: "telemetry enabled without token",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.URL = "http://localhost:8086"
				c.Telemetry.Token = ""
			},
			wantErr: "telemetry.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := defaultConfig()

	if cfg.IdentifyTimeout() != 5*time.Second {
		t.Errorf("IdentifyTimeout() = %v, want 5s", cfg.IdentifyTimeout())
	}
	if cfg.RetryBackoff() != 100*time.Millisecond {
		t.Errorf("RetryBackoff() = %v, want 100ms", cfg.RetryBackoff())
	}
	if cfg.HotplugInterval() != time.Second {
		t.Errorf("HotplugInterval() = %v, want 1s", cfg.HotplugInterval())
	}
	if cfg.DecodeFaultWindow() != 10*time.Second {
		t.Errorf("DecodeFaultWindow() = %v, want 10s", cfg.DecodeFaultWindow())
	}
}

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{
			name: "json to stdout",
			cfg:  config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name: "text to stderr",
			cfg:  config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"},
		},
		{
			name: "empty config falls back to defaults",
			cfg:  config.LoggingConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if New(tt.cfg, "0.1.0") == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run("level "+tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWith(t *testing.T) {
	log := Default()

	child := log.With("component", "dispatch")
	if child == nil {
		t.Fatal("expected non-nil child logger")
	}
	if child == log {
		t.Error("With must return a distinct logger, not the receiver")
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("expected non-nil default logger")
	}
}

func TestRecordCarriesDefaultFields(t *testing.T) {
	var buf bytes.Buffer

	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}).
		WithAttrs([]slog.Attr{
			slog.String("service", "lumend"),
			slog.String("version", "0.1.0-test"),
		})
	log := &Logger{Logger: slog.New(handler)}

	log.Info("device attached", "node", 0, "serial", "SN100")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if record["service"] != "lumend" {
		t.Errorf("service = %v, want lumend", record["service"])
	}
	if record["version"] != "0.1.0-test" {
		t.Errorf("version = %v, want 0.1.0-test", record["version"])
	}
	if record["msg"] != "device attached" {
		t.Errorf("msg = %v, want %q", record["msg"], "device attached")
	}
	if record["serial"] != "SN100" {
		t.Errorf("serial = %v, want SN100", record["serial"])
	}
}

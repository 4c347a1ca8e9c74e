package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
)

func TestConnectDisabled(t *testing.T) {
	cfg := config.TelemetryConfig{Enabled: false}

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}

	err := client.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestWritesNoOpWhenDisconnected(t *testing.T) {
	// A disconnected client must swallow writes without panicking;
	// telemetry is best-effort by contract.
	client := &Client{}

	client.WriteInputEvent("lumen0", "key")
	client.WriteCommandLatency("lumen0", "rgb", 5*time.Millisecond)
	client.WriteDeviceCount(2)
	client.WriteBatteryLevel("lumen1", 80, false)
	client.WritePoint("custom", nil, map[string]interface{}{"v": 1})
	client.Flush()
}

func TestIsConnectedDefault(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("zero client should not report connected")
	}
}

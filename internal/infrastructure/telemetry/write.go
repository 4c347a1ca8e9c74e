package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteInputEvent records a decoded input event for a device node.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - node: Device node name (e.g., "lumen0")
//   - eventType: Decoded event type ("key", "wheel", "battery", ...)
func (c *Client) WriteInputEvent(node string, eventType string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"input_events",
		map[string]string{
			"node": node,
			"type": eventType,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCommandLatency records the round-trip latency of a device command.
//
// Parameters:
//   - node: Device node name
//   - command: Command verb (e.g., "rgb", "dpi", "profile")
//   - latency: Measured round-trip duration
func (c *Client) WriteCommandLatency(node string, command string, latency time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"command_latency",
		map[string]string{
			"node":    node,
			"command": command,
		},
		map[string]interface{}{
			"latency_ms": float64(latency.Microseconds()) / 1000.0,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceCount records the number of active device nodes.
//
// Published on every attach and detach so the series reflects
// topology changes promptly.
func (c *Client) WriteDeviceCount(count int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"devices_connected",
		nil,
		map[string]interface{}{
			"count": count,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBatteryLevel records a wireless device's reported battery level.
//
// Parameters:
//   - node: Device node name
//   - percent: Battery charge percentage (0-100)
//   - charging: Whether the device reports it is charging
func (c *Client) WriteBatteryLevel(node string, percent int, charging bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"battery",
		map[string]string{
			"node": node,
		},
		map[string]interface{}{
			"percent":  percent,
			"charging": charging,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

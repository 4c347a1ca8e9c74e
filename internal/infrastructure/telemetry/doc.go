// Package telemetry provides InfluxDB metric writing for Lumen Core.
//
// This package records operational metrics for connected devices:
//   - Input event counts per node and event type
//   - Command round-trip latency
//   - Connected device counts
//   - Battery levels for wireless devices
//
// Telemetry is strictly best-effort. Writes are non-blocking and
// batched; a slow or unreachable InfluxDB never delays a device
// operation. When telemetry is disabled in configuration the daemon
// simply skips the Connect call.
//
// Usage:
//
//	tele, err := telemetry.Connect(cfg.Telemetry)
//	if errors.Is(err, telemetry.ErrDisabled) {
//	    tele = nil // metrics off, daemon continues
//	}
//	if tele != nil {
//	    tele.WriteDeviceCount(3)
//	}
package telemetry

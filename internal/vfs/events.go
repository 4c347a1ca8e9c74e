package vfs

import (
	"fmt"

	"github.com/nerrad567/lumen-core/internal/device"
)

// formatEventOK renders a device event as a notify FIFO line. The
// second return is false for lifecycle events the manager handles
// structurally rather than textually.
func formatEventOK(ev device.Event) (string, bool) {
	switch ev.Type {
	case device.EventKey:
		edge := "up"
		if ev.Pressed {
			edge = "down"
		}
		return fmt.Sprintf("key %02x %s", ev.Code, edge), true
	case device.EventWheel:
		return fmt.Sprintf("wheel %d", ev.Delta), true
	case device.EventDPI:
		return fmt.Sprintf("dpi %d", ev.Slot), true
	case device.EventMode:
		return fmt.Sprintf("mode %d", ev.Slot), true
	case device.EventBattery:
		if ev.Charging {
			return fmt.Sprintf("battery %d charging", ev.Level), true
		}
		return fmt.Sprintf("battery %d", ev.Level), true
	case device.EventProfile:
		return fmt.Sprintf("profile %d", ev.Slot), true
	case device.EventMacro:
		return fmt.Sprintf("macro %02x", ev.Code), true
	case device.EventFirmware:
		return "firmware", true
	}
	return "", false
}

// formatEvent is formatEventOK without the validity flag, for call
// sites that already know the event renders.
func formatEvent(ev device.Event) string {
	line, _ := formatEventOK(ev)
	return line
}

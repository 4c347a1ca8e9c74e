package legacy

import "fmt"

// EventType identifies the kind of input event in an interrupt report.
type EventType byte

// Input event types found at byte 0 of interrupt reports.
const (
	// EventKey is a key press or release.
	EventKey EventType = 0x01

	// EventWheel is a scroll wheel movement.
	EventWheel EventType = 0x02

	// EventDPIStage is a hardware DPI stage button change.
	EventDPIStage EventType = 0x03

	// EventBattery is a wireless battery level report.
	EventBattery EventType = 0x04

	// EventMode is a hardware mode switch button press.
	EventMode EventType = 0x05
)

// Event is a decoded input report.
//
// Fields are populated per Type:
//   - EventKey: Code (scan code), Pressed
//   - EventWheel: Delta (signed)
//   - EventDPIStage: Code (stage index)
//   - EventBattery: Level (percent), Pressed doubles as charging flag
//   - EventMode: Code (mode slot index)
type Event struct {
	Type    EventType
	Code    byte
	Pressed bool
	Delta   int8
	Level   byte
}

// ParseEvent decodes an interrupt input report.
//
// Report layout: [type, code, value, ...] with value semantics
// depending on type. Reports shorter than 3 bytes are malformed.
//
// Returns:
//   - Event: The decoded event
//   - error: ErrFrameTooShort or ErrUnknownEvent
func ParseEvent(report []byte) (Event, error) {
	if len(report) < 3 {
		return Event{}, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(report))
	}

	typ := EventType(report[0])
	switch typ {
	case EventKey:
		return Event{Type: typ, Code: report[1], Pressed: report[2] != 0}, nil
	case EventWheel:
		return Event{Type: typ, Delta: int8(report[2])}, nil
	case EventDPIStage:
		return Event{Type: typ, Code: report[1]}, nil
	case EventBattery:
		return Event{Type: typ, Level: report[1], Pressed: report[2] != 0}, nil
	case EventMode:
		return Event{Type: typ, Code: report[1]}, nil
	default:
		return Event{}, fmt.Errorf("%w: 0x%02X", ErrUnknownEvent, report[0])
	}
}

// String returns a human-readable event type name.
func (t EventType) String() string {
	switch t {
	case EventKey:
		return "key"
	case EventWheel:
		return "wheel"
	case EventDPIStage:
		return "dpi_stage"
	case EventBattery:
		return "battery"
	case EventMode:
		return "mode"
	default:
		return fmt.Sprintf("unknown(0x%02X)", byte(t))
	}
}

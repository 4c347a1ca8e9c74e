package legacy

import "errors"

// Domain-specific errors for legacy report coding.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrFrameTooShort is returned when a report is shorter than its header.
	ErrFrameTooShort = errors.New("legacy: frame too short")

	// ErrEmptyPayload is returned when a stream payload has no bytes.
	ErrEmptyPayload = errors.New("legacy: empty payload")

	// ErrPayloadTooLarge is returned when a payload exceeds report capacity.
	ErrPayloadTooLarge = errors.New("legacy: payload too large")

	// ErrOpcodeMismatch is returned when a reply echoes the wrong opcode.
	ErrOpcodeMismatch = errors.New("legacy: reply opcode mismatch")

	// ErrDeviceRejected is returned when the device NAKs a command.
	ErrDeviceRejected = errors.New("legacy: device rejected command")

	// ErrUnknownEvent is returned when an input report has an unknown type.
	ErrUnknownEvent = errors.New("legacy: unknown event type")
)

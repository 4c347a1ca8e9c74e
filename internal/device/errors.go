package device

import "errors"

// Domain-specific errors for device operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound is returned when a device ID or node is unknown.
	ErrNotFound = errors.New("device: not found")

	// ErrUnsupported is returned when a device lacks the requested capability.
	ErrUnsupported = errors.New("device: operation not supported")

	// ErrInvalidTransition is returned for illegal lifecycle moves.
	ErrInvalidTransition = errors.New("device: invalid status transition")

	// ErrNotActive is returned when a command targets a device that is
	// not in the active state.
	ErrNotActive = errors.New("device: not active")

	// ErrIdentifyFailed is returned when the identification handshake fails.
	ErrIdentifyFailed = errors.New("device: identification failed")

	// ErrUnknownModel is returned for product IDs missing from the model table.
	ErrUnknownModel = errors.New("device: unknown model")

	// ErrInvalidPayload is returned for malformed command payloads.
	ErrInvalidPayload = errors.New("device: invalid payload")

	// ErrTimeout is returned when a command round-trip exceeds its deadline
	// after all retries.
	ErrTimeout = errors.New("device: command timeout")

	// ErrGone is returned when the transport reports the device removed.
	ErrGone = errors.New("device: gone")

	// ErrChildSlotTaken is returned when a dongle reports a child on an
	// occupied slot.
	ErrChildSlotTaken = errors.New("device: child slot taken")
)

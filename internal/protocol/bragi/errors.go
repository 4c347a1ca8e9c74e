package bragi

import "errors"

// Domain-specific errors for Bragi frame coding.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrFrameTooShort is returned when a frame is shorter than its header.
	ErrFrameTooShort = errors.New("bragi: frame too short")

	// ErrBadPrefix is returned when a frame lacks the Bragi prefix byte.
	ErrBadPrefix = errors.New("bragi: bad frame prefix")

	// ErrEmptyPayload is returned when a bulk payload has no bytes.
	ErrEmptyPayload = errors.New("bragi: empty payload")

	// ErrPayloadTooLarge is returned when a payload exceeds frame capacity.
	ErrPayloadTooLarge = errors.New("bragi: payload too large")

	// ErrUnknownOperation is returned for an unrecognised operation byte.
	ErrUnknownOperation = errors.New("bragi: unknown operation")

	// ErrDeviceError is returned when the device replies with OpError.
	ErrDeviceError = errors.New("bragi: device error")

	// ErrBadChildID is returned for a child slot outside 1-7.
	ErrBadChildID = errors.New("bragi: bad child id")

	// ErrSeqMismatch is returned when a reply echoes an unexpected sequence.
	ErrSeqMismatch = errors.New("bragi: sequence mismatch")
)

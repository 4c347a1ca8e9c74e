package transport

import "errors"

// Domain-specific errors for transport operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInitFailed is returned when the hidapi library fails to initialise.
	ErrInitFailed = errors.New("transport: hid init failed")

	// ErrEnumerateFailed is returned when device enumeration fails.
	ErrEnumerateFailed = errors.New("transport: enumerate failed")

	// ErrOpenFailed is returned when a device path cannot be opened.
	ErrOpenFailed = errors.New("transport: open failed")

	// ErrWriteFailed is returned when a report write fails.
	ErrWriteFailed = errors.New("transport: write failed")

	// ErrReadFailed is returned when a report read fails.
	ErrReadFailed = errors.New("transport: read failed")

	// ErrClosed is returned for operations on a closed connection.
	ErrClosed = errors.New("transport: connection closed")
)

package profile

import "errors"

var (
	// ErrNotFound indicates the device, profile, or mode is not known
	// to the store.
	ErrNotFound = errors.New("profile: not found")

	// ErrInvalidMode indicates a mode failed validation.
	ErrInvalidMode = errors.New("profile: invalid mode")

	// ErrInvalidSlot indicates a profile index outside the valid range.
	ErrInvalidSlot = errors.New("profile: invalid slot")

	// ErrNotBound indicates the device was never bound to the store.
	ErrNotBound = errors.New("profile: device not bound")
)

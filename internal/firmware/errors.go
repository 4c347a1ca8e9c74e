package firmware

import "errors"

var (
	// ErrChecksumMismatch is returned when the image does not match
	// its declared SHA-256. Nothing is sent to the device.
	ErrChecksumMismatch = errors.New("firmware: checksum mismatch")

	// ErrBadImage is returned for empty or implausibly large images.
	ErrBadImage = errors.New("firmware: bad image")
)

// Package firmware flashes device firmware images.
//
// An update is three steps: verify the image's SHA-256 against the
// declared checksum, hold the device in the Updating state while the
// capability table's Flash operation streams the image, then record
// the new version. Verification failures refuse the update before a
// single frame reaches hardware.
package firmware

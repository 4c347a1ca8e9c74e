package bragi

import "fmt"

// Child routing.
//
// A wireless dongle relays frames between the host and its paired
// child devices. A child-bound frame wraps the inner frame in an
// envelope [Prefix, childID, inner...]; the dongle strips the
// envelope and forwards the inner frame over the air. Inbound frames
// from a child arrive wrapped the same way, so decoding is a double
// parse: unwrap the envelope, then parse the inner frame.

// maxChildren is the largest child slot a dongle can report.
const maxChildren = 7

// WrapChild wraps an inner frame in a child routing envelope.
//
// The wrapped frame is two bytes longer than ReportSize would allow,
// so the inner frame is truncated of its trailing padding: the
// envelope holds [Prefix, childID] followed by ReportSize-2 inner
// bytes. Inner frames are zero-padded, so dropping the last two pad
// bytes is lossless.
//
// Parameters:
//   - childID: Child slot (1-based; 0 addresses the dongle itself)
//   - inner: A ReportSize-byte frame built by this package
//
// Returns:
//   - []byte: A ReportSize-byte envelope frame
//   - error: ErrBadChildID or ErrFrameTooShort
func WrapChild(childID byte, inner []byte) ([]byte, error) {
	if childID == 0 || childID > maxChildren {
		return nil, fmt.Errorf("%w: %d", ErrBadChildID, childID)
	}
	if len(inner) < headerSize {
		return nil, fmt.Errorf("%w: inner frame %d bytes", ErrFrameTooShort, len(inner))
	}

	frame := make([]byte, ReportSize)
	frame[0] = Prefix
	frame[1] = childID
	n := copy(frame[2:], inner)
	if n < len(inner) {
		// Verify truncated bytes were padding
		for _, b := range inner[n:] {
			if b != 0 {
				return nil, fmt.Errorf("%w: inner frame overflows envelope", ErrPayloadTooLarge)
			}
		}
	}
	return frame, nil
}

// UnwrapChild strips a child routing envelope from an inbound frame.
//
// Returns:
//   - byte: Child slot the frame originated from
//   - []byte: Inner frame, ready for ParseReply
//   - error: ErrFrameTooShort, ErrBadPrefix, or ErrBadChildID
func UnwrapChild(frame []byte) (byte, []byte, error) {
	if len(frame) < 2+headerSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	if frame[0] != Prefix {
		return 0, nil, fmt.Errorf("%w: 0x%02X", ErrBadPrefix, frame[0])
	}

	childID := frame[1]
	if childID == 0 || childID > maxChildren {
		return 0, nil, fmt.Errorf("%w: %d", ErrBadChildID, childID)
	}
	return childID, frame[2:], nil
}

// IsChildFrame reports whether an inbound frame carries a child
// routing envelope rather than a direct dongle frame.
//
// Direct frames have an operation byte at offset 2; envelopes have a
// child slot at offset 1 followed by the inner frame's own Prefix.
func IsChildFrame(frame []byte) bool {
	return len(frame) >= 3 &&
		frame[0] == Prefix &&
		frame[1] >= 1 && frame[1] <= maxChildren &&
		frame[2] == Prefix
}

package bragi

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Report framing constants.
//
// Bragi devices exchange fixed 64-byte reports built around typed
// properties. Every host-initiated frame carries a sequence byte the
// device echoes in its reply, which lets one connection correlate
// overlapping exchanges.
const (
	// ReportSize is the fixed size of every Bragi report.
	ReportSize = 64

	// Prefix is the first byte of every Bragi frame.
	Prefix = 0x08

	// headerSize is prefix + sequence + operation + property.
	headerSize = 4
)

// Operations.
const (
	// OpSetProperty writes a property value.
	OpSetProperty = 0x01

	// OpGetProperty reads a property value.
	OpGetProperty = 0x02

	// OpReply is a device reply to a get or set.
	OpReply = 0x03

	// OpError is a device error reply.
	OpError = 0x04

	// OpNotify is an unsolicited device notification.
	OpNotify = 0x05

	// OpOpenEndpoint opens a bulk data endpoint (LED buffers, firmware).
	OpOpenEndpoint = 0x0D

	// OpWriteData carries bulk data to an open endpoint.
	OpWriteData = 0x06

	// OpCloseEndpoint closes the bulk data endpoint.
	OpCloseEndpoint = 0x0E

	// OpChildFrame wraps a frame destined for a dongle child device.
	OpChildFrame = 0x10
)

// Properties.
const (
	// PropPollRate is the device polling rate.
	PropPollRate = 0x01

	// PropMode is the active hardware mode slot.
	PropMode = 0x03

	// PropBattery is the battery charge level (wireless devices).
	PropBattery = 0x0F

	// PropBatteryStatus is the charging state.
	PropBatteryStatus = 0x10

	// PropFirmware is the firmware version.
	PropFirmware = 0x13

	// PropSerial is the device serial number.
	PropSerial = 0x16

	// PropDPI is the active DPI value (pointing devices).
	PropDPI = 0x21

	// PropDPIStage is the active DPI stage index.
	PropDPIStage = 0x22

	// PropChildCount is the number of paired children (dongles).
	PropChildCount = 0x36

	// PropChildActive is the connected state of a paired child.
	PropChildActive = 0x37

	// PropLightingMode selects hardware or software lighting control.
	PropLightingMode = 0x5F

	// PropInputKey carries key press notifications.
	PropInputKey = 0x40

	// PropInputWheel carries scroll wheel notifications.
	PropInputWheel = 0x41
)

// Endpoint identifiers for OpOpenEndpoint.
const (
	// EndpointLighting receives LED colour buffers.
	EndpointLighting = 0x01

	// EndpointBindings receives key binding tables.
	EndpointBindings = 0x02

	// EndpointFirmware receives firmware images.
	EndpointFirmware = 0x03
)

// Device error codes carried in OpError replies at byte 4.
const (
	// ErrCodeUnsupported means the device lacks the property.
	ErrCodeUnsupported = 0x01

	// ErrCodeInvalidValue means the value was out of range.
	ErrCodeInvalidValue = 0x02

	// ErrCodeBusy means the device cannot service the request now.
	ErrCodeBusy = 0x03
)

// SequenceGenerator produces the per-frame sequence byte.
//
// Sequences are monotonic modulo 256 and never zero; zero is reserved
// for unsolicited device notifications so correlation can tell replies
// from notifications without inspecting operation bytes.
//
// Thread Safety:
//   - Next is safe for concurrent use.
type SequenceGenerator struct {
	mu   sync.Mutex
	next byte
}

// Next returns the next sequence value, skipping zero on wrap.
func (g *SequenceGenerator) Next() byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.next++
	if g.next == 0 {
		g.next = 1
	}
	return g.next
}

// EncodeSet builds a property write frame.
//
// Layout: [Prefix, seq, OpSetProperty, property, value...] padded to
// ReportSize. Values wider than one byte are little-endian.
func EncodeSet(seq byte, property byte, value []byte) ([]byte, error) {
	if len(value) > ReportSize-headerSize {
		return nil, fmt.Errorf("%w: %d value bytes", ErrPayloadTooLarge, len(value))
	}

	frame := make([]byte, ReportSize)
	frame[0] = Prefix
	frame[1] = seq
	frame[2] = OpSetProperty
	frame[3] = property
	copy(frame[headerSize:], value)
	return frame, nil
}

// EncodeGet builds a property read frame.
func EncodeGet(seq byte, property byte) []byte {
	frame := make([]byte, ReportSize)
	frame[0] = Prefix
	frame[1] = seq
	frame[2] = OpGetProperty
	frame[3] = property
	return frame
}

// EncodeSetUint16 builds a property write frame with a 16-bit value.
func EncodeSetUint16(seq byte, property byte, value uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], value)
	frame, _ := EncodeSet(seq, property, buf[:]) // 2 bytes always fits
	return frame
}

// EncodeOpenEndpoint builds a frame opening a bulk data endpoint.
func EncodeOpenEndpoint(seq byte, endpoint byte) []byte {
	frame := make([]byte, ReportSize)
	frame[0] = Prefix
	frame[1] = seq
	frame[2] = OpOpenEndpoint
	frame[3] = endpoint
	return frame
}

// EncodeWriteData builds bulk data frames for an open endpoint.
//
// Each frame carries up to ReportSize-headerSize payload bytes after
// the header [Prefix, seq, OpWriteData, remaining-chunk-count]. The
// caller supplies a fresh sequence per frame via the generator.
func EncodeWriteData(gen *SequenceGenerator, payload []byte) ([][]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	const chunkSize = ReportSize - headerSize
	nChunks := (len(payload) + chunkSize - 1) / chunkSize
	if nChunks > 0xFF {
		return nil, fmt.Errorf("%w: payload needs %d chunks", ErrPayloadTooLarge, nChunks)
	}

	frames := make([][]byte, 0, nChunks)
	for i := 0; i < nChunks; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}

		frame := make([]byte, ReportSize)
		frame[0] = Prefix
		frame[1] = gen.Next()
		frame[2] = OpWriteData
		frame[3] = byte(nChunks - i - 1) // Chunks remaining after this one
		copy(frame[headerSize:], payload[start:end])
		frames = append(frames, frame)
	}

	return frames, nil
}

// EncodeCloseEndpoint builds a frame closing the bulk data endpoint.
func EncodeCloseEndpoint(seq byte) []byte {
	frame := make([]byte, ReportSize)
	frame[0] = Prefix
	frame[1] = seq
	frame[2] = OpCloseEndpoint
	return frame
}

// Reply is a decoded device reply frame.
type Reply struct {
	// Seq is the echoed sequence byte. Zero for notifications.
	Seq byte

	// Property is the property the reply concerns.
	Property byte

	// Value is the property value payload.
	Value []byte

	// Notification marks unsolicited frames (OpNotify with seq 0).
	Notification bool
}

// ParseReply decodes a reply, error, or notification frame.
//
// Returns:
//   - Reply: The decoded frame
//   - error: ErrFrameTooShort, ErrBadPrefix, ErrDeviceError wrapping
//     the device error code, or ErrUnknownOperation
func ParseReply(frame []byte) (Reply, error) {
	if len(frame) < headerSize {
		return Reply{}, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	if frame[0] != Prefix {
		return Reply{}, fmt.Errorf("%w: 0x%02X", ErrBadPrefix, frame[0])
	}

	switch frame[2] {
	case OpReply:
		return Reply{
			Seq:      frame[1],
			Property: frame[3],
			Value:    frame[headerSize:],
		}, nil
	case OpNotify:
		return Reply{
			Seq:          frame[1],
			Property:     frame[3],
			Value:        frame[headerSize:],
			Notification: true,
		}, nil
	case OpError:
		var code byte
		if len(frame) > headerSize {
			code = frame[headerSize]
		}
		return Reply{}, fmt.Errorf("%w: code 0x%02X property 0x%02X",
			ErrDeviceError, code, frame[3])
	default:
		return Reply{}, fmt.Errorf("%w: 0x%02X", ErrUnknownOperation, frame[2])
	}
}

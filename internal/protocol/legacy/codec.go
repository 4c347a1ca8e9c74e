package legacy

import (
	"fmt"
)

// Report framing constants.
//
// Legacy devices exchange fixed 64-byte reports. Outbound command
// reports start with a command prefix byte followed by an opcode and
// opcode-specific arguments. Oversized payloads (LED buffers) are
// split across stream reports carrying a sequence header.
const (
	// ReportSize is the fixed size of every legacy report.
	ReportSize = 64

	// PrefixWrite starts a write command report.
	PrefixWrite = 0x07

	// PrefixRead starts a read request report.
	PrefixRead = 0x0E

	// PrefixStream starts a payload stream chunk report.
	PrefixStream = 0x7F

	// ChunkPayloadSize is the usable payload per stream chunk.
	// 64 bytes minus the 4-byte chunk header.
	ChunkPayloadSize = 60

	// chunkHeaderSize is prefix + sequence + length + reserved.
	chunkHeaderSize = 4
)

// Command opcodes.
const (
	// OpFirmware requests the firmware version string.
	OpFirmware = 0x01

	// OpSerial requests the device serial number.
	OpSerial = 0x02

	// OpMode selects the active hardware mode slot.
	OpMode = 0x14

	// OpDPI sets the DPI stage table (pointing devices only).
	OpDPI = 0x21

	// OpBinding writes a single key binding entry.
	OpBinding = 0x40

	// OpLightingCommit applies a previously streamed LED buffer.
	OpLightingCommit = 0x27

	// OpProfileSave persists current state to a hardware slot.
	OpProfileSave = 0x50

	// OpFlashBegin starts a firmware flash session.
	OpFlashBegin = 0xE0

	// OpFlashChunk carries one firmware image chunk.
	OpFlashChunk = 0xE1

	// OpFlashCommit finalises a firmware flash session.
	OpFlashCommit = 0xE2
)

// Acknowledgement values found in the first byte of a reply report.
const (
	// AckOK indicates the command was accepted.
	AckOK = 0x00

	// AckError indicates the device rejected the command.
	AckError = 0xFE
)

// EncodeCommand builds a single write command report.
//
// The report layout is [PrefixWrite, opcode, args...] zero-padded to
// ReportSize. Arguments must fit in the remaining space.
//
// Parameters:
//   - opcode: Command opcode (OpMode, OpDPI, ...)
//   - args: Opcode-specific argument bytes
//
// Returns:
//   - []byte: A ReportSize-byte report ready for the transport
//   - error: If args exceed the report capacity
func EncodeCommand(opcode byte, args ...byte) ([]byte, error) {
	if len(args) > ReportSize-2 {
		return nil, fmt.Errorf("%w: %d args, max %d", ErrPayloadTooLarge, len(args), ReportSize-2)
	}

	report := make([]byte, ReportSize)
	report[0] = PrefixWrite
	report[1] = opcode
	copy(report[2:], args)
	return report, nil
}

// EncodeRead builds a read request report for the given opcode.
func EncodeRead(opcode byte, args ...byte) ([]byte, error) {
	if len(args) > ReportSize-2 {
		return nil, fmt.Errorf("%w: %d args, max %d", ErrPayloadTooLarge, len(args), ReportSize-2)
	}

	report := make([]byte, ReportSize)
	report[0] = PrefixRead
	report[1] = opcode
	copy(report[2:], args)
	return report, nil
}

// EncodeStream splits a payload into sequenced stream chunk reports.
//
// Each chunk report is [PrefixStream, seq, length, 0x00, payload...]
// where seq starts at 1 and increments per chunk. The device
// reassembles chunks in sequence order; the caller follows up with a
// commit command (e.g. OpLightingCommit) to apply the buffer.
//
// Parameters:
//   - payload: Raw payload bytes, typically an LED colour buffer
//
// Returns:
//   - [][]byte: Ordered chunk reports, each ReportSize bytes
//   - error: If the payload is empty or needs more than 255 chunks
func EncodeStream(payload []byte) ([][]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	nChunks := (len(payload) + ChunkPayloadSize - 1) / ChunkPayloadSize
	if nChunks > 0xFF {
		return nil, fmt.Errorf("%w: payload needs %d chunks", ErrPayloadTooLarge, nChunks)
	}

	chunks := make([][]byte, 0, nChunks)
	for i := 0; i < nChunks; i++ {
		start := i * ChunkPayloadSize
		end := start + ChunkPayloadSize
		if end > len(payload) {
			end = len(payload)
		}
		part := payload[start:end]

		report := make([]byte, ReportSize)
		report[0] = PrefixStream
		report[1] = byte(i + 1) // Sequence starts at 1
		report[2] = byte(len(part))
		report[3] = 0x00
		copy(report[chunkHeaderSize:], part)
		chunks = append(chunks, report)
	}

	return chunks, nil
}

// ParseReply validates a command reply report.
//
// Legacy replies echo the opcode at byte 1 with an acknowledgement
// status at byte 0. Payload bytes (for read replies) follow at byte 2.
//
// Parameters:
//   - report: Raw report read from the transport
//   - opcode: The opcode the reply must echo
//
// Returns:
//   - []byte: Reply payload (bytes 2 onward), valid until next read
//   - error: ErrFrameTooShort, ErrOpcodeMismatch, or ErrDeviceRejected
func ParseReply(report []byte, opcode byte) ([]byte, error) {
	if len(report) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(report))
	}
	if report[0] == AckError {
		return nil, fmt.Errorf("%w: opcode 0x%02X", ErrDeviceRejected, opcode)
	}
	if report[1] != opcode {
		return nil, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrOpcodeMismatch, report[1], opcode)
	}
	return report[2:], nil
}

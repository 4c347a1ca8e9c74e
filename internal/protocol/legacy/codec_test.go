package legacy

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeCommand(t *testing.T) {
	report, err := EncodeCommand(OpMode, 0x02)
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}

	if len(report) != ReportSize {
		t.Fatalf("report size = %d, want %d", len(report), ReportSize)
	}
	if report[0] != PrefixWrite {
		t.Errorf("prefix = 0x%02X, want 0x%02X", report[0], PrefixWrite)
	}
	if report[1] != OpMode {
		t.Errorf("opcode = 0x%02X, want 0x%02X", report[1], OpMode)
	}
	if report[2] != 0x02 {
		t.Errorf("arg = 0x%02X, want 0x02", report[2])
	}
	// Rest must be zero padding
	for i := 3; i < ReportSize; i++ {
		if report[i] != 0 {
			t.Fatalf("byte %d = 0x%02X, want zero padding", i, report[i])
		}
	}
}

func TestEncodeCommandTooLarge(t *testing.T) {
	args := make([]byte, ReportSize-1)
	_, err := EncodeCommand(OpMode, args...)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("EncodeCommand() error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestEncodeRead(t *testing.T) {
	report, err := EncodeRead(OpFirmware)
	if err != nil {
		t.Fatalf("EncodeRead() error = %v", err)
	}
	if report[0] != PrefixRead {
		t.Errorf("prefix = 0x%02X, want 0x%02X", report[0], PrefixRead)
	}
}

func TestEncodeStreamSingleChunk(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 30)

	chunks, err := EncodeStream(payload)
	if err != nil {
		t.Fatalf("EncodeStream() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}

	c := chunks[0]
	if c[0] != PrefixStream {
		t.Errorf("prefix = 0x%02X, want 0x%02X", c[0], PrefixStream)
	}
	if c[1] != 1 {
		t.Errorf("seq = %d, want 1", c[1])
	}
	if c[2] != 30 {
		t.Errorf("length = %d, want 30", c[2])
	}
	if !bytes.Equal(c[4:34], payload) {
		t.Error("chunk payload mismatch")
	}
}

func TestEncodeStreamChunkingAndSequence(t *testing.T) {
	// 105 LEDs at 3 bytes each: 315 bytes over 60-byte chunks is 6 chunks.
	payload := make([]byte, 315)
	for i := range payload {
		payload[i] = byte(i)
	}

	chunks, err := EncodeStream(payload)
	if err != nil {
		t.Fatalf("EncodeStream() error = %v", err)
	}
	if len(chunks) != 6 {
		t.Fatalf("chunks = %d, want 6", len(chunks))
	}

	// Sequence numbers increment from 1, full chunks carry 60 bytes,
	// final chunk carries the 15-byte remainder.
	var reassembled []byte
	for i, c := range chunks {
		if len(c) != ReportSize {
			t.Fatalf("chunk %d size = %d, want %d", i, len(c), ReportSize)
		}
		if c[1] != byte(i+1) {
			t.Errorf("chunk %d seq = %d, want %d", i, c[1], i+1)
		}
		wantLen := ChunkPayloadSize
		if i == len(chunks)-1 {
			wantLen = 15
		}
		if int(c[2]) != wantLen {
			t.Errorf("chunk %d length = %d, want %d", i, c[2], wantLen)
		}
		reassembled = append(reassembled, c[4:4+c[2]]...)
	}

	if !bytes.Equal(reassembled, payload) {
		t.Error("reassembled payload does not match original")
	}
}

func TestEncodeStreamEmpty(t *testing.T) {
	_, err := EncodeStream(nil)
	if !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("EncodeStream() error = %v, want ErrEmptyPayload", err)
	}
}

func TestParseReply(t *testing.T) {
	report := make([]byte, ReportSize)
	report[0] = AckOK
	report[1] = OpFirmware
	copy(report[2:], []byte("2.1.9"))

	payload, err := ParseReply(report, OpFirmware)
	if err != nil {
		t.Fatalf("ParseReply() error = %v", err)
	}
	if string(payload[:5]) != "2.1.9" {
		t.Errorf("payload = %q, want 2.1.9 prefix", payload[:5])
	}
}

func TestParseReplyRejected(t *testing.T) {
	report := make([]byte, ReportSize)
	report[0] = AckError
	report[1] = OpDPI

	_, err := ParseReply(report, OpDPI)
	if !errors.Is(err, ErrDeviceRejected) {
		t.Errorf("ParseReply() error = %v, want ErrDeviceRejected", err)
	}
}

func TestParseReplyOpcodeMismatch(t *testing.T) {
	report := make([]byte, ReportSize)
	report[1] = OpMode

	_, err := ParseReply(report, OpDPI)
	if !errors.Is(err, ErrOpcodeMismatch) {
		t.Errorf("ParseReply() error = %v, want ErrOpcodeMismatch", err)
	}
}

func TestParseReplyTooShort(t *testing.T) {
	_, err := ParseReply([]byte{0x00}, OpMode)
	if !errors.Is(err, ErrFrameTooShort) {
		t.Errorf("ParseReply() error = %v, want ErrFrameTooShort", err)
	}
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name   string
		report []byte
		want   Event
	}{
		{
			name:   "key press",
			report: []byte{0x01, 0x29, 0x01},
			want:   Event{Type: EventKey, Code: 0x29, Pressed: true},
		},
		{
			name:   "key release",
			report: []byte{0x01, 0x29, 0x00},
			want:   Event{Type: EventKey, Code: 0x29, Pressed: false},
		},
		{
			name:   "wheel down",
			report: []byte{0x02, 0x00, 0xFF},
			want:   Event{Type: EventWheel, Delta: -1},
		},
		{
			name:   "dpi stage",
			report: []byte{0x03, 0x02, 0x00},
			want:   Event{Type: EventDPIStage, Code: 2},
		},
		{
			name:   "battery charging",
			report: []byte{0x04, 0x50, 0x01},
			want:   Event{Type: EventBattery, Level: 0x50, Pressed: true},
		},
		{
			name:   "mode switch",
			report: []byte{0x05, 0x01, 0x00},
			want:   Event{Type: EventMode, Code: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent(tt.report)
			if err != nil {
				t.Fatalf("ParseEvent() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseEvent() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseEventUnknown(t *testing.T) {
	_, err := ParseEvent([]byte{0x7E, 0x00, 0x00})
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("ParseEvent() error = %v, want ErrUnknownEvent", err)
	}
}

func TestParseEventTooShort(t *testing.T) {
	_, err := ParseEvent([]byte{0x01})
	if !errors.Is(err, ErrFrameTooShort) {
		t.Errorf("ParseEvent() error = %v, want ErrFrameTooShort", err)
	}
}

func TestEventTypeString(t *testing.T) {
	if EventKey.String() != "key" {
		t.Errorf("EventKey.String() = %q", EventKey.String())
	}
	if EventType(0x7E).String() != "unknown(0x7E)" {
		t.Errorf("unknown String() = %q", EventType(0x7E).String())
	}
}

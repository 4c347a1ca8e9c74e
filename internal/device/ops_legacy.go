package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/lumen-core/internal/protocol/legacy"
)

// Legacy operation implementations.
//
// Legacy devices are always directly attached, so the slot argument
// is ignored throughout. Callers hold the device command lock; the
// protocol allows one outstanding command per connection.

func legacyIdentify(ctx context.Context, s *Session, _ byte) (Identity, error) {
	fwReq, err := legacy.EncodeRead(legacy.OpFirmware)
	if err != nil {
		return Identity{}, err
	}
	fwReply, err := s.LegacyRoundTrip(ctx, fwReq, legacy.OpFirmware)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: firmware: %w", ErrIdentifyFailed, err)
	}

	serReq, err := legacy.EncodeRead(legacy.OpSerial)
	if err != nil {
		return Identity{}, err
	}
	serReply, err := s.LegacyRoundTrip(ctx, serReq, legacy.OpSerial)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: serial: %w", ErrIdentifyFailed, err)
	}

	return Identity{
		Serial:   cString(serReply),
		Firmware: cString(fwReply),
	}, nil
}

// cString interprets a zero-padded reply payload as a string.
func cString(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func legacyApplyLighting(ctx context.Context, s *Session, _ byte, buffer []byte) error {
	chunks, err := legacy.EncodeStream(buffer)
	if err != nil {
		return err
	}

	// Stream chunks carry no reply; the commit round-trip confirms
	// the whole buffer.
	for _, chunk := range chunks {
		if err := s.Write(chunk); err != nil {
			return fmt.Errorf("%w: %w", ErrGone, err)
		}
	}

	commit, err := legacy.EncodeCommand(legacy.OpLightingCommit, byte(len(chunks)))
	if err != nil {
		return err
	}
	if _, err := s.LegacyRoundTrip(ctx, commit, legacy.OpLightingCommit); err != nil {
		return fmt.Errorf("lighting commit: %w", err)
	}
	return nil
}

func legacyApplyBindings(ctx context.Context, s *Session, _ byte, bindings Bindings) error {
	// One round-trip per entry; legacy devices have no bulk binding
	// endpoint. Actions map to fixed codes.
	for key, action := range bindings {
		code, err := actionCode(action)
		if err != nil {
			return err
		}
		report, err := legacy.EncodeCommand(legacy.OpBinding, key, code)
		if err != nil {
			return err
		}
		if _, err := s.LegacyRoundTrip(ctx, report, legacy.OpBinding); err != nil {
			return fmt.Errorf("binding key 0x%02X: %w", key, err)
		}
	}
	return nil
}

func legacySetDPI(ctx context.Context, s *Session, _ byte, stages DPIStages) error {
	if err := stages.Validate(); err != nil {
		return err
	}

	// Args: stage count then little-endian 16-bit values.
	args := make([]byte, 1, 1+len(stages)*2)
	args[0] = byte(len(stages))
	for _, v := range stages {
		args = append(args, byte(v), byte(v>>8))
	}

	report, err := legacy.EncodeCommand(legacy.OpDPI, args...)
	if err != nil {
		return err
	}
	if _, err := s.LegacyRoundTrip(ctx, report, legacy.OpDPI); err != nil {
		return fmt.Errorf("dpi: %w", err)
	}
	return nil
}

func legacySetMode(ctx context.Context, s *Session, _ byte, mode int) error {
	report, err := legacy.EncodeCommand(legacy.OpMode, byte(mode))
	if err != nil {
		return err
	}
	if _, err := s.LegacyRoundTrip(ctx, report, legacy.OpMode); err != nil {
		return fmt.Errorf("mode %d: %w", mode, err)
	}
	return nil
}

func legacyFlash(ctx context.Context, s *Session, _ byte, image []byte) error {
	if len(image) == 0 {
		return fmt.Errorf("%w: empty firmware image", ErrInvalidPayload)
	}

	size := len(image)
	begin, err := legacy.EncodeCommand(legacy.OpFlashBegin,
		byte(size), byte(size>>8), byte(size>>16), byte(size>>24))
	if err != nil {
		return err
	}
	if _, err := s.LegacyRoundTrip(ctx, begin, legacy.OpFlashBegin); err != nil {
		return fmt.Errorf("flash begin: %w", err)
	}

	// Unlike lighting streams, every flash chunk is acknowledged. A
	// dropped chunk surfaces immediately instead of corrupting the
	// image.
	for off, idx := 0, 0; off < size; off, idx = off+legacy.ChunkPayloadSize, idx+1 {
		end := off + legacy.ChunkPayloadSize
		if end > size {
			end = size
		}
		args := make([]byte, 0, 1+end-off)
		args = append(args, byte(idx))
		args = append(args, image[off:end]...)

		chunk, err := legacy.EncodeCommand(legacy.OpFlashChunk, args...)
		if err != nil {
			return err
		}
		if _, err := s.LegacyRoundTrip(ctx, chunk, legacy.OpFlashChunk); err != nil {
			return fmt.Errorf("flash chunk %d: %w", idx, err)
		}
	}

	commit, err := legacy.EncodeCommand(legacy.OpFlashCommit)
	if err != nil {
		return err
	}
	if _, err := s.LegacyRoundTrip(ctx, commit, legacy.OpFlashCommit); err != nil {
		return fmt.Errorf("flash commit: %w", err)
	}
	return nil
}

func legacySaveProfile(ctx context.Context, s *Session, _ byte, hwSlot int) error {
	report, err := legacy.EncodeCommand(legacy.OpProfileSave, byte(hwSlot))
	if err != nil {
		return err
	}
	if _, err := s.LegacyRoundTrip(ctx, report, legacy.OpProfileSave); err != nil {
		return fmt.Errorf("profile save slot %d: %w", hwSlot, err)
	}
	return nil
}

func legacyDecodeEvent(raw RawEvent) (Event, error) {
	ev, err := legacy.ParseEvent(raw.Report)
	if err != nil {
		return Event{}, err
	}

	switch ev.Type {
	case legacy.EventKey:
		return Event{Type: EventKey, Code: int(ev.Code), Pressed: ev.Pressed}, nil
	case legacy.EventWheel:
		return Event{Type: EventWheel, Delta: int(ev.Delta)}, nil
	case legacy.EventDPIStage:
		return Event{Type: EventDPI, Slot: int(ev.Code)}, nil
	case legacy.EventBattery:
		return Event{Type: EventBattery, Level: int(ev.Level), Charging: ev.Pressed}, nil
	case legacy.EventMode:
		return Event{Type: EventMode, Slot: int(ev.Code)}, nil
	default:
		return Event{}, fmt.Errorf("%w: %s", ErrInvalidPayload, ev.Type)
	}
}

// actionCodes maps binding action names to legacy wire codes.
var actionCodes = map[string]byte{
	"default":    0x00,
	"copy":       0x01,
	"paste":      0x02,
	"play_pause": 0x03,
	"next":       0x04,
	"prev":       0x05,
	"volume_up":  0x06,
	"volume_dn":  0x07,
	"dpi_cycle":  0x08,
	"mode_cycle": 0x09,
	"macro":      0x0A,
}

// actionCode resolves an action name to its wire code.
func actionCode(action string) (byte, error) {
	code, ok := actionCodes[action]
	if !ok {
		return 0, fmt.Errorf("%w: unknown action %q", ErrInvalidPayload, action)
	}
	return code, nil
}

// ActionNames returns the valid binding action names, for validation
// at the command surface.
func ActionNames() []string {
	names := make([]string, 0, len(actionCodes))
	for name := range actionCodes {
		names = append(names, name)
	}
	return names
}

// ValidAction reports whether action is a known binding action.
func ValidAction(action string) bool {
	_, ok := actionCodes[action]
	return ok
}

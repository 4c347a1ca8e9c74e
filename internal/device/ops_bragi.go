package device

import (
	"context"
	"fmt"

	"github.com/nerrad567/lumen-core/internal/protocol/bragi"
)

// Bragi operation implementations.
//
// The same functions serve directly attached devices (slot 0) and
// dongle children (slot 1-7); the session wraps child traffic in
// routing envelopes.

func bragiIdentify(ctx context.Context, s *Session, slot byte) (Identity, error) {
	fw, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
		return bragi.EncodeGet(seq, bragi.PropFirmware)
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: firmware: %w", ErrIdentifyFailed, err)
	}

	ser, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
		return bragi.EncodeGet(seq, bragi.PropSerial)
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: serial: %w", ErrIdentifyFailed, err)
	}

	return Identity{
		Serial:   cString(ser.Value),
		Firmware: cString(fw.Value),
	}, nil
}

func bragiApplyLighting(ctx context.Context, s *Session, slot byte, buffer []byte) error {
	// Endpoint handshake: open, stream, close. The close reply
	// confirms the device accepted the whole buffer.
	if _, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
		return bragi.EncodeOpenEndpoint(seq, bragi.EndpointLighting)
	}); err != nil {
		return fmt.Errorf("open lighting endpoint: %w", err)
	}

	frames, err := bragi.EncodeWriteData(s.Seq, buffer)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		out := frame
		if slot != 0 {
			if out, err = bragi.WrapChild(slot, frame); err != nil {
				return err
			}
		}
		if err := s.Write(out); err != nil {
			return fmt.Errorf("%w: %w", ErrGone, err)
		}
	}

	if _, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
		return bragi.EncodeCloseEndpoint(seq)
	}); err != nil {
		return fmt.Errorf("close lighting endpoint: %w", err)
	}
	return nil
}

func bragiApplyBindings(ctx context.Context, s *Session, slot byte, bindings Bindings) error {
	if _, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
		return bragi.EncodeOpenEndpoint(seq, bragi.EndpointBindings)
	}); err != nil {
		return fmt.Errorf("open bindings endpoint: %w", err)
	}

	// Binding table wire format: pairs of [key, action code].
	payload := make([]byte, 0, len(bindings)*2)
	for key, action := range bindings {
		code, err := actionCode(action)
		if err != nil {
			return err
		}
		payload = append(payload, key, code)
	}
	if len(payload) == 0 {
		payload = []byte{0x00, 0x00} // Explicit empty table resets all keys
	}

	frames, err := bragi.EncodeWriteData(s.Seq, payload)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		out := frame
		if slot != 0 {
			if out, err = bragi.WrapChild(slot, frame); err != nil {
				return err
			}
		}
		if err := s.Write(out); err != nil {
			return fmt.Errorf("%w: %w", ErrGone, err)
		}
	}

	if _, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
		return bragi.EncodeCloseEndpoint(seq)
	}); err != nil {
		return fmt.Errorf("close bindings endpoint: %w", err)
	}
	return nil
}

func bragiSetDPI(ctx context.Context, s *Session, slot byte, stages DPIStages) error {
	if err := stages.Validate(); err != nil {
		return err
	}

	// Each stage is written individually: stage index property select
	// then the 16-bit value.
	for i, v := range stages {
		idx := byte(i)
		if _, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
			frame, _ := bragi.EncodeSet(seq, bragi.PropDPIStage, []byte{idx})
			return frame
		}); err != nil {
			return fmt.Errorf("dpi stage %d select: %w", i, err)
		}

		val := v
		if _, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
			return bragi.EncodeSetUint16(seq, bragi.PropDPI, val)
		}); err != nil {
			return fmt.Errorf("dpi stage %d value: %w", i, err)
		}
	}
	return nil
}

func bragiSetMode(ctx context.Context, s *Session, slot byte, mode int) error {
	if _, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
		frame, _ := bragi.EncodeSet(seq, bragi.PropMode, []byte{byte(mode)})
		return frame
	}); err != nil {
		return fmt.Errorf("mode %d: %w", mode, err)
	}
	return nil
}

func bragiSaveProfile(ctx context.Context, s *Session, slot byte, hwSlot int) error {
	// Mode property with the high bit set persists the slot.
	if _, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
		frame, _ := bragi.EncodeSet(seq, bragi.PropMode, []byte{byte(hwSlot) | 0x80})
		return frame
	}); err != nil {
		return fmt.Errorf("profile save slot %d: %w", hwSlot, err)
	}
	return nil
}

func bragiFlash(ctx context.Context, s *Session, slot byte, image []byte) error {
	if len(image) == 0 {
		return fmt.Errorf("%w: empty firmware image", ErrInvalidPayload)
	}

	if _, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
		return bragi.EncodeOpenEndpoint(seq, bragi.EndpointFirmware)
	}); err != nil {
		return fmt.Errorf("open firmware endpoint: %w", err)
	}

	frames, err := bragi.EncodeWriteData(s.Seq, image)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		out := frame
		if slot != 0 {
			if out, err = bragi.WrapChild(slot, frame); err != nil {
				return err
			}
		}
		if err := s.Write(out); err != nil {
			return fmt.Errorf("%w: %w", ErrGone, err)
		}
	}

	// The close reply is the device's acceptance of the image.
	if _, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
		return bragi.EncodeCloseEndpoint(seq)
	}); err != nil {
		return fmt.Errorf("close firmware endpoint: %w", err)
	}
	return nil
}

func bragiReadBattery(ctx context.Context, s *Session, slot byte) (int, bool, error) {
	level, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
		return bragi.EncodeGet(seq, bragi.PropBattery)
	})
	if err != nil {
		return 0, false, fmt.Errorf("battery level: %w", err)
	}

	status, err := s.BragiRoundTrip(ctx, slot, func(seq byte) []byte {
		return bragi.EncodeGet(seq, bragi.PropBatteryStatus)
	})
	if err != nil {
		return 0, false, fmt.Errorf("battery status: %w", err)
	}

	if len(level.Value) == 0 || len(status.Value) == 0 {
		return 0, false, fmt.Errorf("%w: empty battery reply", ErrInvalidPayload)
	}
	return int(level.Value[0]), status.Value[0] != 0, nil
}

func bragiChildCount(ctx context.Context, s *Session) (int, error) {
	reply, err := s.BragiRoundTrip(ctx, 0, func(seq byte) []byte {
		return bragi.EncodeGet(seq, bragi.PropChildCount)
	})
	if err != nil {
		return 0, fmt.Errorf("child count: %w", err)
	}
	if len(reply.Value) == 0 {
		return 0, fmt.Errorf("%w: empty child count reply", ErrInvalidPayload)
	}
	return int(reply.Value[0]), nil
}

func bragiChildModel(ctx context.Context, s *Session, slot byte) (byte, error) {
	reply, err := s.BragiRoundTrip(ctx, 0, func(seq byte) []byte {
		frame, _ := bragi.EncodeSet(seq, bragi.PropChildActive, []byte{slot})
		return frame
	})
	if err != nil {
		return 0, fmt.Errorf("child %d model: %w", slot, err)
	}
	if len(reply.Value) == 0 {
		return 0, fmt.Errorf("%w: empty child model reply", ErrInvalidPayload)
	}
	return reply.Value[0], nil
}

func bragiDecodeEvent(raw RawEvent) (Event, error) {
	reply, err := bragi.ParseReply(raw.Report)
	if err != nil {
		return Event{}, err
	}
	if !reply.Notification {
		return Event{}, fmt.Errorf("%w: non-notification frame", ErrInvalidPayload)
	}
	if len(reply.Value) == 0 {
		return Event{}, fmt.Errorf("%w: empty notification value", ErrInvalidPayload)
	}

	switch reply.Property {
	case bragi.PropBattery:
		charging := false
		if len(reply.Value) > 1 {
			charging = reply.Value[1] != 0
		}
		return Event{Type: EventBattery, Level: int(reply.Value[0]), Charging: charging}, nil
	case bragi.PropDPIStage:
		return Event{Type: EventDPI, Slot: int(reply.Value[0])}, nil
	case bragi.PropMode:
		return Event{Type: EventMode, Slot: int(reply.Value[0])}, nil
	case bragi.PropInputKey:
		if len(reply.Value) < 2 {
			return Event{}, fmt.Errorf("%w: short key notification", ErrInvalidPayload)
		}
		return Event{Type: EventKey, Code: int(reply.Value[0]), Pressed: reply.Value[1] != 0}, nil
	case bragi.PropInputWheel:
		if len(reply.Value) < 2 {
			return Event{}, fmt.Errorf("%w: short wheel notification", ErrInvalidPayload)
		}
		return Event{Type: EventWheel, Delta: int(int8(reply.Value[1]))}, nil
	default:
		return Event{}, fmt.Errorf("%w: notification property 0x%02X", ErrInvalidPayload, reply.Property)
	}
}

package device

import (
	"context"
	"fmt"
)

// Identity is the result of the identification handshake.
type Identity struct {
	Serial   string
	Firmware string
}

// OpSet is the capability table entry for one family/class pair.
//
// A nil function means the device does not support the operation;
// callers surface that as ErrUnsupported rather than probing the
// hardware. Every op takes the session plus the child slot (zero for
// directly attached devices) so the same implementations serve both
// direct and dongle-relayed devices.
type OpSet struct {
	Identify      func(ctx context.Context, s *Session, slot byte) (Identity, error)
	ApplyLighting func(ctx context.Context, s *Session, slot byte, buffer []byte) error
	ApplyBindings func(ctx context.Context, s *Session, slot byte, bindings Bindings) error
	SetDPI        func(ctx context.Context, s *Session, slot byte, stages DPIStages) error
	SetMode       func(ctx context.Context, s *Session, slot byte, mode int) error
	SaveProfile   func(ctx context.Context, s *Session, slot byte, hwSlot int) error
	ReadBattery   func(ctx context.Context, s *Session, slot byte) (level int, charging bool, err error)
	Flash         func(ctx context.Context, s *Session, slot byte, image []byte) error
	DecodeEvent   func(raw RawEvent) (Event, error)

	// ChildCount reads the number of paired children. Dongles only.
	ChildCount func(ctx context.Context, s *Session) (int, error)

	// ChildModel reads the model code of a paired child. Dongles only.
	ChildModel func(ctx context.Context, s *Session, slot byte) (byte, error)
}

// Lookup returns the operation set for a family and class.
//
// The returned OpSet is shared; callers must not mutate it.
func Lookup(family Family, class Class) (*OpSet, error) {
	key := capKey{family, class}
	ops, ok := capabilities[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupported, family, class)
	}
	return ops, nil
}

type capKey struct {
	family Family
	class  Class
}

// capabilities is the static dispatch table.
//
// Per-class pruning happens here, not in the op implementations:
// keyboards never get DPI ops, headsets never get bindings, and
// mousepads are lighting-only. Dongles carry no input ops of their
// own; their children appear as separate devices with their own
// entries.
var capabilities = map[capKey]*OpSet{
	{FamilyLegacy, ClassKeyboard}: {
		Identify:      legacyIdentify,
		ApplyLighting: legacyApplyLighting,
		ApplyBindings: legacyApplyBindings,
		SetMode:       legacySetMode,
		SaveProfile:   legacySaveProfile,
		Flash:         legacyFlash,
		DecodeEvent:   legacyDecodeEvent,
	},
	{FamilyLegacy, ClassMouse}: {
		Identify:      legacyIdentify,
		ApplyLighting: legacyApplyLighting,
		ApplyBindings: legacyApplyBindings,
		SetDPI:        legacySetDPI,
		SetMode:       legacySetMode,
		SaveProfile:   legacySaveProfile,
		Flash:         legacyFlash,
		DecodeEvent:   legacyDecodeEvent,
	},
	{FamilyLegacy, ClassMousepad}: {
		Identify:      legacyIdentify,
		ApplyLighting: legacyApplyLighting,
		DecodeEvent:   legacyDecodeEvent,
	},
	{FamilyBragi, ClassKeyboard}: {
		Identify:      bragiIdentify,
		ApplyLighting: bragiApplyLighting,
		ApplyBindings: bragiApplyBindings,
		SetMode:       bragiSetMode,
		SaveProfile:   bragiSaveProfile,
		ReadBattery:   bragiReadBattery,
		Flash:         bragiFlash,
		DecodeEvent:   bragiDecodeEvent,
	},
	{FamilyBragi, ClassMouse}: {
		Identify:      bragiIdentify,
		ApplyLighting: bragiApplyLighting,
		ApplyBindings: bragiApplyBindings,
		SetDPI:        bragiSetDPI,
		SetMode:       bragiSetMode,
		SaveProfile:   bragiSaveProfile,
		ReadBattery:   bragiReadBattery,
		Flash:         bragiFlash,
		DecodeEvent:   bragiDecodeEvent,
	},
	{FamilyBragi, ClassHeadset}: {
		Identify:      bragiIdentify,
		ApplyLighting: bragiApplyLighting,
		ReadBattery:   bragiReadBattery,
		Flash:         bragiFlash,
		DecodeEvent:   bragiDecodeEvent,
	},
	{FamilyBragi, ClassDongle}: {
		Identify:    bragiIdentify,
		DecodeEvent: bragiDecodeEvent,
		ChildCount:  bragiChildCount,
		ChildModel:  bragiChildModel,
	},
}

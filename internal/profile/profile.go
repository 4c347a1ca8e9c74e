package profile

import (
	"fmt"

	"github.com/nerrad567/lumen-core/internal/device"
)

// HardwareSlots is the number of onboard profile slots the supported
// hardware exposes. Profiles at indices beyond this are software-only
// and persist in the database instead of on the device.
const HardwareSlots = 3

// Mode is one complete lighting, binding, and DPI configuration
// within a profile.
type Mode struct {
	Index    int              `json:"index"`
	Lighting device.Lighting  `json:"lighting"`
	Bindings device.Bindings  `json:"bindings,omitempty"`
	DPI      device.DPIStages `json:"dpi,omitempty"`
}

// Validate checks the mode against the device's LED count.
//
// Binding uniqueness is structural (the map type cannot hold duplicate
// keys); what needs checking is buffer sizing and DPI ranges.
func (m *Mode) Validate(ledCount int) error {
	if len(m.Lighting.Buffer) > 0 && len(m.Lighting.Buffer) != ledCount*3 {
		return fmt.Errorf("%w: lighting buffer %d bytes, want %d for %d LEDs",
			ErrInvalidMode, len(m.Lighting.Buffer), ledCount*3, ledCount)
	}
	for key, action := range m.Bindings {
		if !device.ValidAction(action) {
			return fmt.Errorf("%w: key 0x%02X bound to unknown action %q",
				ErrInvalidMode, key, action)
		}
	}
	if len(m.DPI) > 0 {
		if err := m.DPI.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMode, err)
		}
	}
	return nil
}

// DeepCopy returns an independent copy of the mode.
func (m *Mode) DeepCopy() Mode {
	cp := Mode{Index: m.Index, Lighting: m.Lighting}
	if m.Lighting.Buffer != nil {
		cp.Lighting.Buffer = make([]byte, len(m.Lighting.Buffer))
		copy(cp.Lighting.Buffer, m.Lighting.Buffer)
	}
	if m.Bindings != nil {
		cp.Bindings = make(device.Bindings, len(m.Bindings))
		for k, v := range m.Bindings {
			cp.Bindings[k] = v
		}
	}
	if m.DPI != nil {
		cp.DPI = make(device.DPIStages, len(m.DPI))
		copy(cp.DPI, m.DPI)
	}
	return cp
}

// Profile is one configuration slot: a name plus an ordered set of
// modes, exactly one of which is active.
type Profile struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	ActiveMode int    `json:"active_mode"`
	Modes      []Mode `json:"modes"`

	// Degraded marks a profile whose last hardware write did not
	// fully apply. The mirror still holds the last confirmed state.
	Degraded bool `json:"degraded,omitempty"`
}

// Hardware reports whether this profile occupies an onboard slot.
func (p *Profile) Hardware() bool {
	return p.Index < HardwareSlots
}

// Mode returns the mode at index, or an error.
func (p *Profile) Mode(index int) (*Mode, error) {
	for i := range p.Modes {
		if p.Modes[i].Index == index {
			return &p.Modes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: mode %d in profile %d", ErrNotFound, index, p.Index)
}

// DeepCopy returns an independent copy of the profile.
func (p *Profile) DeepCopy() *Profile {
	cp := *p
	cp.Modes = make([]Mode, len(p.Modes))
	for i := range p.Modes {
		cp.Modes[i] = p.Modes[i].DeepCopy()
	}
	return &cp
}

// defaultProfile builds the profile a device starts with before any
// configuration is applied: one mode, no lighting, no bindings.
func defaultProfile(index int) *Profile {
	return &Profile{
		Index: index,
		Name:  fmt.Sprintf("profile%d", index),
		Modes: []Mode{{Index: 0}},
	}
}

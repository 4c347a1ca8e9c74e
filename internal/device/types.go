package device

import (
	"fmt"
	"time"
)

// Family identifies which report protocol a device speaks.
type Family string

// Device families.
const (
	// FamilyLegacy covers first-generation devices using opcode reports.
	FamilyLegacy Family = "legacy"

	// FamilyBragi covers current devices using property frames.
	FamilyBragi Family = "bragi"
)

// AllFamilies returns every valid family value.
func AllFamilies() []Family {
	return []Family{FamilyLegacy, FamilyBragi}
}

// Class identifies the physical kind of a device.
type Class string

// Device classes.
const (
	ClassKeyboard Class = "keyboard"
	ClassMouse    Class = "mouse"
	ClassHeadset  Class = "headset"
	ClassMousepad Class = "mousepad"

	// ClassDongle is a wireless receiver relaying for child devices.
	ClassDongle Class = "dongle"
)

// AllClasses returns every valid class value.
func AllClasses() []Class {
	return []Class{ClassKeyboard, ClassMouse, ClassHeadset, ClassMousepad, ClassDongle}
}

// Status is a device's lifecycle state.
type Status string

// Lifecycle states.
//
// The normal path is Discovering -> Identifying -> Active. Firmware
// updates move Active -> Updating and back. Disconnected is terminal
// for a given attachment; a replug starts a fresh lifecycle.
const (
	// StatusDiscovering means the device was enumerated but not yet opened.
	StatusDiscovering Status = "discovering"

	// StatusIdentifying means the identification handshake is in progress.
	StatusIdentifying Status = "identifying"

	// StatusActive means the device is serving commands and input.
	StatusActive Status = "active"

	// StatusUpdating means a firmware flash is in progress.
	StatusUpdating Status = "updating"

	// StatusDisconnected means the device has been removed.
	StatusDisconnected Status = "disconnected"
)

// AllStatuses returns every valid status value.
func AllStatuses() []Status {
	return []Status{StatusDiscovering, StatusIdentifying, StatusActive, StatusUpdating, StatusDisconnected}
}

// validTransitions maps each status to its permitted successors.
var validTransitions = map[Status][]Status{
	StatusDiscovering:  {StatusIdentifying, StatusDisconnected},
	StatusIdentifying:  {StatusActive, StatusDisconnected},
	StatusActive:       {StatusUpdating, StatusDisconnected},
	StatusUpdating:     {StatusActive, StatusDisconnected},
	StatusDisconnected: {},
}

// CanTransition reports whether a lifecycle move from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, valid := range validTransitions[s] {
		if valid == next {
			return true
		}
	}
	return false
}

// RGB is a single LED colour.
type RGB struct {
	R, G, B byte
}

// Lighting is a device lighting payload.
//
// Buffer holds 3 bytes per LED in device order. Animation, when
// non-empty, names a renderer animation driving the buffer instead
// of a static frame.
type Lighting struct {
	Buffer    []byte
	Animation string
}

// Bindings maps hardware key codes to action names.
//
// An empty action string is not a valid binding; unbinding removes
// the key from the map entirely.
type Bindings map[byte]string

// DPIStages is the ordered table of DPI stage values.
type DPIStages []uint16

// DPI stage table limits.
const (
	maxDPIStages = 5
	minDPIValue  = 100
	maxDPIValue  = 26000
)

// Validate checks the stage table against hardware limits.
func (s DPIStages) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty DPI stage table", ErrInvalidPayload)
	}
	if len(s) > maxDPIStages {
		return fmt.Errorf("%w: %d DPI stages, max %d", ErrInvalidPayload, len(s), maxDPIStages)
	}
	for i, v := range s {
		if v < minDPIValue || v > maxDPIValue {
			return fmt.Errorf("%w: stage %d value %d out of range %d-%d",
				ErrInvalidPayload, i, v, minDPIValue, maxDPIValue)
		}
	}
	return nil
}

// Device is a connected (or recently disconnected) peripheral.
//
// Devices reached through a dongle have ParentID set and an empty
// Path; their traffic is relayed via the parent's connection.
type Device struct {
	// ID is the registry identifier, unique per attachment.
	ID string

	// Serial is the hardware serial number. Stable across replugs;
	// node indices are keyed on it.
	Serial string

	// Model is the marketing model name.
	Model string

	Family Family
	Class  Class
	Status Status

	// Node is the assigned node index (lumen0, lumen1, ...).
	// -1 until assignment.
	Node int

	// Path is the transport path. Empty for dongle children.
	Path string

	// Firmware is the reported firmware version.
	Firmware string

	// Battery and Charging are the last reported power state.
	// Battery is -1 for wired devices.
	Battery  int
	Charging bool

	// Wireless marks devices that report battery state.
	Wireless bool

	// LEDCount is the number of addressable LEDs.
	LEDCount int

	// ParentID is the dongle this device is reached through, if any.
	ParentID string

	// ChildSlot is this device's slot on its parent dongle (1-based).
	ChildSlot byte

	// Children lists IDs of devices relayed through this dongle.
	Children []string

	// ActiveMode is the currently selected mode slot index.
	ActiveMode int

	ConnectedAt time.Time
	UpdatedAt   time.Time
}

// NodeName returns the filesystem node name for this device.
func (d *Device) NodeName() string {
	return fmt.Sprintf("lumen%d", d.Node)
}

// IsChild reports whether the device is reached through a dongle.
func (d *Device) IsChild() bool {
	return d.ParentID != ""
}

// DeepCopy returns a completely independent copy of the device.
//
// The registry returns copies so callers can never mutate registry
// state through a returned pointer.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cp := *d
	if d.Children != nil {
		cp.Children = make([]string, len(d.Children))
		copy(cp.Children, d.Children)
	}
	return &cp
}

package transport

import (
	"time"
)

// Lumen USB vendor ID and product family ranges.
const (
	// VendorID is the USB vendor ID for all Lumen peripherals.
	VendorID = 0x1B7C

	// vendorUsagePage marks the vendor-defined HID interface carrying
	// the control protocol. Standard input interfaces (boot keyboard,
	// boot mouse) are left to the OS.
	vendorUsagePage = 0xFF00
)

// DeviceInfo describes an enumerated HID interface.
type DeviceInfo struct {
	// Path is the platform-specific device path used to open the interface.
	Path string

	// VendorID and ProductID identify the USB device.
	VendorID  uint16
	ProductID uint16

	// Serial is the device serial number string.
	Serial string

	// Product is the product name string.
	Product string

	// UsagePage and Usage describe the HID application collection.
	UsagePage uint16
	Usage     uint16

	// Interface is the USB interface number.
	Interface int
}

// IsControlInterface reports whether this interface carries the
// vendor control protocol rather than standard input.
func (i DeviceInfo) IsControlInterface() bool {
	return i.UsagePage >= vendorUsagePage
}

// Transport enumerates and opens HID devices.
//
// Implementations must be safe for concurrent use. The production
// implementation wraps hidapi; tests use Mock.
type Transport interface {
	// Enumerate lists all Lumen vendor control interfaces currently
	// attached. Non-control interfaces are filtered out.
	Enumerate() ([]DeviceInfo, error)

	// Open opens the interface at the given path.
	Open(path string) (Conn, error)
}

// Conn is an open connection to a device's control interface.
//
// Reads and writes are whole-report operations. Implementations must
// be safe for concurrent use; callers serialise command round-trips
// through the device's command lock, but the input worker reads
// concurrently with command traffic on devices that multiplex both
// on one interface.
type Conn interface {
	// Write sends an output report.
	Write(report []byte) error

	// Read reads the next input report, blocking up to timeout.
	// Returns n == 0 with nil error on timeout.
	Read(buf []byte, timeout time.Duration) (int, error)

	// SendFeature sends a feature report.
	SendFeature(report []byte) error

	// GetFeature reads a feature report into buf.
	GetFeature(buf []byte) (int, error)

	// Close releases the interface.
	Close() error
}

package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/sstallion/go-hid"
)

// HID is the production Transport backed by hidapi.
type HID struct {
	initOnce sync.Once
	initErr  error
}

// NewHID returns a Transport backed by the system hidapi library.
func NewHID() *HID {
	return &HID{}
}

func (h *HID) ensureInit() error {
	h.initOnce.Do(func() {
		h.initErr = hid.Init()
	})
	return h.initErr
}

// Enumerate lists attached Lumen vendor control interfaces.
//
// Only interfaces on the vendor usage page are returned; boot
// keyboard and mouse interfaces stay with the OS input stack.
func (h *HID) Enumerate() ([]DeviceInfo, error) {
	if err := h.ensureInit(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitFailed, err)
	}

	var infos []DeviceInfo
	err := hid.Enumerate(VendorID, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
		di := DeviceInfo{
			Path:      info.Path,
			VendorID:  info.VendorID,
			ProductID: info.ProductID,
			Serial:    info.SerialNbr,
			Product:   info.ProductStr,
			UsagePage: info.UsagePage,
			Usage:     info.Usage,
			Interface: info.InterfaceNbr,
		}
		if di.IsControlInterface() {
			infos = append(infos, di)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnumerateFailed, err)
	}

	return infos, nil
}

// Open opens the control interface at path.
func (h *HID) Open(path string) (Conn, error) {
	if err := h.ensureInit(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitFailed, err)
	}

	dev, err := hid.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, path, err)
	}

	return &hidConn{dev: dev}, nil
}

// Close releases the hidapi library. Call once at shutdown, after
// all connections are closed.
func (h *HID) Close() error {
	return hid.Exit()
}

// hidConn wraps an open hidapi device handle.
type hidConn struct {
	dev *hid.Device

	// closeOnce guards double-close; hidapi handles are not
	// safe to close twice.
	closeOnce sync.Once
	closeErr  error
}

func (c *hidConn) Write(report []byte) error {
	if _, err := c.dev.Write(report); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

func (c *hidConn) Read(buf []byte, timeout time.Duration) (int, error) {
	n, err := c.dev.ReadWithTimeout(buf, timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	return n, nil
}

func (c *hidConn) SendFeature(report []byte) error {
	if _, err := c.dev.SendFeatureReport(report); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

func (c *hidConn) GetFeature(buf []byte) (int, error) {
	n, err := c.dev.GetFeatureReport(buf)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}
	return n, nil
}

func (c *hidConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.dev.Close()
	})
	return c.closeErr
}

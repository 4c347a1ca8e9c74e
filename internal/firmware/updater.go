package firmware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/nerrad567/lumen-core/internal/device"
)

// Logger is the interface for firmware update logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// maxImageSize bounds the firmware image read. No supported device
// carries more than a few hundred kilobytes of flash.
const maxImageSize = 8 << 20

// Updater flashes verified firmware images onto devices.
//
// The checksum is verified before the first flash frame goes out; a
// mismatch refuses the update with the device untouched. During the
// flash the device is held in the Updating state, which blocks
// concurrent detach-triggering status changes.
type Updater struct {
	registry *device.Registry
	logger   Logger
}

// New creates a firmware updater backed by the device registry.
func New(registry *device.Registry) *Updater {
	return &Updater{registry: registry, logger: noopLogger{}}
}

// SetLogger sets the logger for update progress.
func (u *Updater) SetLogger(l Logger) {
	if l != nil {
		u.logger = l
	}
}

// Update reads the image at path, verifies it against the declared
// SHA-256, and flashes it to the device. On success the registry
// records the new firmware version.
func (u *Updater) Update(ctx context.Context, deviceID, path, declaredSHA, version string) error {
	dev, err := u.registry.Get(deviceID)
	if err != nil {
		return err
	}
	rt, err := u.registry.Runtime(deviceID)
	if err != nil {
		return err
	}
	ops := rt.Ops()
	if ops.Flash == nil {
		return fmt.Errorf("%w: firmware update on %s", device.ErrUnsupported, dev.Class)
	}

	image, err := readImage(path)
	if err != nil {
		return err
	}

	sum := sha256.Sum256(image)
	actual := hex.EncodeToString(sum[:])
	if !strings.EqualFold(actual, declaredSHA) {
		return fmt.Errorf("%w: image %s, declared %s", ErrChecksumMismatch, actual, declaredSHA)
	}

	if err := u.registry.SetStatus(deviceID, device.StatusUpdating); err != nil {
		return err
	}

	u.logger.Info("flashing firmware",
		"device", deviceID, "version", version, "bytes", len(image))

	flashErr := rt.WithCommandLock(ctx, func(ctx context.Context, s *device.Session, slot byte) error {
		return ops.Flash(ctx, s, slot, image)
	})

	if statusErr := u.registry.SetStatus(deviceID, device.StatusActive); statusErr != nil {
		// The device may have dropped off the bus mid-flash.
		u.logger.Warn("post-flash status restore failed",
			"device", deviceID, "error", statusErr)
	}

	if flashErr != nil {
		return fmt.Errorf("flashing %s: %w", deviceID, flashErr)
	}

	if err := u.registry.SetFirmware(deviceID, version); err != nil {
		u.logger.Warn("firmware version record failed", "device", deviceID, "error", err)
	}
	u.logger.Info("firmware updated", "device", deviceID, "version", version)
	return nil
}

func readImage(path string) ([]byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("firmware image: %w", err)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrBadImage, path)
	}
	if fi.Size() > maxImageSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrBadImage, path, fi.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("firmware image: %w", err)
	}
	return data, nil
}

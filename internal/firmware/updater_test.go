package firmware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/lumen-core/internal/device"
	"github.com/nerrad567/lumen-core/internal/protocol/bragi"
	"github.com/nerrad567/lumen-core/internal/protocol/legacy"
	"github.com/nerrad567/lumen-core/internal/transport"
)

func attachDevice(t *testing.T, productID uint16, responder func([]byte) []byte) (*device.Registry, *transport.MockConn, string) {
	t.Helper()

	mock := transport.NewMock()
	conn := mock.AddDevice(transport.DeviceInfo{Path: "mock/0", ProductID: productID})
	conn.Responder = responder

	reg := device.NewRegistry(mock, device.NewMemoryNodeStore(), device.NewHub(), device.Options{
		Session: device.SessionOptions{
			CommandTimeout: 200 * time.Millisecond,
			RetryAttempts:  1,
			RetryBackoff:   5 * time.Millisecond,
			PollTimeout:    10 * time.Millisecond,
		},
		HotplugInterval: time.Second,
	})
	t.Cleanup(reg.Shutdown)

	id, err := reg.Attach(context.Background(), mock.Devices[0])
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	return reg, conn, id
}

func ackBragi(props map[byte][]byte) func([]byte) []byte {
	return func(report []byte) []byte {
		if len(report) < 4 || report[0] != bragi.Prefix {
			return nil
		}
		reply := make([]byte, bragi.ReportSize)
		reply[0] = bragi.Prefix
		reply[1] = report[1]
		reply[2] = bragi.OpReply
		reply[3] = report[3]
		switch report[2] {
		case bragi.OpGetProperty:
			copy(reply[4:], props[report[3]])
		case bragi.OpSetProperty, bragi.OpOpenEndpoint, bragi.OpCloseEndpoint:
		default:
			return nil
		}
		return reply
	}
}

func ackLegacy(payloads map[byte][]byte) func([]byte) []byte {
	return func(report []byte) []byte {
		if len(report) < 2 || report[0] == legacy.PrefixStream {
			return nil
		}
		opcode := report[1]
		reply := make([]byte, legacy.ReportSize)
		reply[0] = legacy.AckOK
		reply[1] = opcode
		copy(reply[2:], payloads[opcode])
		return reply
	}
}

func writeImage(t *testing.T, data []byte) (path, sum string) {
	t.Helper()
	path = filepath.Join(t.TempDir(), "fw.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	digest := sha256.Sum256(data)
	return path, hex.EncodeToString(digest[:])
}

func TestUpdateFlashesBragiDevice(t *testing.T) {
	reg, conn, id := attachDevice(t, 0x2000, ackBragi(map[byte][]byte{
		bragi.PropFirmware: []byte("1.0.0"),
		bragi.PropSerial:   []byte("K100T"),
	}))

	image := make([]byte, 300)
	for i := range image {
		image[i] = byte(i)
	}
	path, sum := writeImage(t, image)

	before := conn.WriteCount()
	u := New(reg)
	if err := u.Update(context.Background(), id, path, sum, "1.1.0"); err != nil {
		t.Fatalf("update: %v", err)
	}

	if conn.WriteCount() <= before {
		t.Error("no flash frames reached the device")
	}

	dev, err := reg.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if dev.Firmware != "1.1.0" {
		t.Errorf("firmware = %q, want 1.1.0", dev.Firmware)
	}
	if dev.Status != device.StatusActive {
		t.Errorf("status = %q, want active", dev.Status)
	}
}

func TestUpdateFlashesLegacyDevice(t *testing.T) {
	reg, conn, id := attachDevice(t, 0x1000, ackLegacy(map[byte][]byte{
		legacy.OpFirmware: []byte("0.9.0"),
		legacy.OpSerial:   []byte("LK1"),
	}))

	image := []byte("legacy firmware image payload")
	path, sum := writeImage(t, image)

	before := conn.WriteCount()
	if err := New(reg).Update(context.Background(), id, path, sum, "0.9.1"); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Begin, at least one chunk, and commit.
	if conn.WriteCount() < before+3 {
		t.Errorf("writes = %d, want at least %d", conn.WriteCount(), before+3)
	}
}

func TestUpdateRefusesChecksumMismatch(t *testing.T) {
	reg, conn, id := attachDevice(t, 0x2000, ackBragi(map[byte][]byte{
		bragi.PropFirmware: []byte("1.0.0"),
		bragi.PropSerial:   []byte("K100T"),
	}))

	path, _ := writeImage(t, []byte("real image"))
	wrong := sha256.Sum256([]byte("other image"))

	before := conn.WriteCount()
	err := New(reg).Update(context.Background(), id, path, hex.EncodeToString(wrong[:]), "2.0.0")
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("error = %v, want ErrChecksumMismatch", err)
	}

	if conn.WriteCount() != before {
		t.Error("frames sent despite checksum mismatch")
	}
	dev, _ := reg.Get(id)
	if dev.Firmware != "1.0.0" {
		t.Errorf("firmware = %q, device should be untouched", dev.Firmware)
	}
}

func TestUpdateUnsupportedClass(t *testing.T) {
	reg, _, id := attachDevice(t, 0x2100, ackBragi(map[byte][]byte{
		bragi.PropFirmware:   []byte("3.0"),
		bragi.PropSerial:     []byte("DNGT"),
		bragi.PropChildCount: {0},
	}))

	path, sum := writeImage(t, []byte("image"))
	err := New(reg).Update(context.Background(), id, path, sum, "3.1")
	if !errors.Is(err, device.ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
}

func TestUpdateMissingImage(t *testing.T) {
	reg, _, id := attachDevice(t, 0x2000, ackBragi(map[byte][]byte{
		bragi.PropFirmware: []byte("1.0.0"),
		bragi.PropSerial:   []byte("K100T"),
	}))

	err := New(reg).Update(context.Background(), id,
		filepath.Join(t.TempDir(), "missing.bin"), "00", "1.1")
	if err == nil {
		t.Fatal("update succeeded with missing image")
	}
}

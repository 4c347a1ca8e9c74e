package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func testInfo(path string) DeviceInfo {
	return DeviceInfo{
		Path:      path,
		VendorID:  VendorID,
		ProductID: 0x1001,
		Serial:    "LMN-" + path,
		Product:   "Test Device",
		UsagePage: 0xFF42,
	}
}

func TestMockEnumerate(t *testing.T) {
	mock := NewMock()
	mock.AddDevice(testInfo("p1"))
	mock.AddDevice(testInfo("p2"))

	infos, err := mock.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("Enumerate() = %d devices, want 2", len(infos))
	}
}

func TestMockRemoveDevice(t *testing.T) {
	mock := NewMock()
	conn := mock.AddDevice(testInfo("p1"))

	mock.RemoveDevice("p1")

	infos, _ := mock.Enumerate()
	if len(infos) != 0 {
		t.Errorf("Enumerate() = %d devices after removal, want 0", len(infos))
	}

	// The open connection now fails, as a real unplug would.
	if err := conn.Write([]byte{0x01}); !errors.Is(err, ErrReadFailed) {
		t.Errorf("Write() after removal error = %v, want failure", err)
	}
}

func TestMockConnResponder(t *testing.T) {
	mock := NewMock()
	conn := mock.AddDevice(testInfo("p1"))

	// Echo the written report back with the first byte flipped.
	conn.Responder = func(report []byte) []byte {
		reply := make([]byte, len(report))
		copy(reply, report)
		reply[0] = 0x00
		return reply
	}

	opened, err := mock.Open("p1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := opened.Write([]byte{0x07, 0x14, 0x02}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	buf := make([]byte, 64)
	n, err := opened.Read(buf, time.Second)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(buf[:n], []byte{0x00, 0x14, 0x02}) {
		t.Errorf("Read() = % X", buf[:n])
	}
}

func TestMockConnReadTimeout(t *testing.T) {
	conn := NewMockConn()

	start := time.Now()
	n, err := conn.Read(make([]byte, 64), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Read() = %d bytes on timeout, want 0", n)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Read() returned after %v, should wait for timeout", elapsed)
	}
}

func TestMockConnQueueInputWakesReader(t *testing.T) {
	conn := NewMockConn()

	done := make(chan int, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := conn.Read(buf, time.Second)
		done <- n
	}()

	time.Sleep(10 * time.Millisecond)
	conn.QueueInput([]byte{0x01, 0x29, 0x01})

	select {
	case n := <-done:
		if n != 3 {
			t.Errorf("Read() = %d bytes, want 3", n)
		}
	case <-time.After(time.Second):
		t.Fatal("Read() did not wake on queued input")
	}
}

func TestMockOpenUnknownPath(t *testing.T) {
	mock := NewMock()
	if _, err := mock.Open("nope"); !errors.Is(err, ErrOpenFailed) {
		t.Errorf("Open() error = %v, want ErrOpenFailed", err)
	}
}

func TestIsControlInterface(t *testing.T) {
	ctrl := DeviceInfo{UsagePage: 0xFF42}
	if !ctrl.IsControlInterface() {
		t.Error("vendor usage page should be a control interface")
	}

	boot := DeviceInfo{UsagePage: 0x01, Usage: 0x06}
	if boot.IsControlInterface() {
		t.Error("boot keyboard should not be a control interface")
	}
}

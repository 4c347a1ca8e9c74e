package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lumen-core/internal/device"
	"github.com/nerrad567/lumen-core/internal/profile"
	"github.com/nerrad567/lumen-core/internal/protocol/bragi"
	"github.com/nerrad567/lumen-core/internal/transport"
)

// testRig wires a registry, profile store, and engine around one
// scripted mock device.
type testRig struct {
	engine   *Engine
	registry *device.Registry
	profiles *profile.Store
	hub      *device.Hub
	conn     *transport.MockConn
	deviceID string
}

func newTestRig(t *testing.T, productID uint16, props map[byte][]byte) *testRig {
	t.Helper()

	mock := transport.NewMock()
	conn := mock.AddDevice(transport.DeviceInfo{Path: "mock/0", ProductID: productID})
	conn.Responder = answerBragi(props)

	hub := device.NewHub()
	reg := device.NewRegistry(mock, device.NewMemoryNodeStore(), hub, device.Options{
		Session: device.SessionOptions{
			CommandTimeout: 200 * time.Millisecond,
			RetryAttempts:  1,
			RetryBackoff:   5 * time.Millisecond,
			PollTimeout:    10 * time.Millisecond,
		},
		HotplugInterval: time.Second,
	})

	id, err := reg.Attach(context.Background(), mock.Devices[0])
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	t.Cleanup(func() { reg.Shutdown() })

	dev, _ := reg.Get(id)
	store := profile.NewStore(nil)
	if err := store.Bind(context.Background(), id, dev.Serial, dev.LEDCount); err != nil {
		t.Fatalf("bind profiles: %v", err)
	}

	return &testRig{
		engine:   New(reg, store, hub),
		registry: reg,
		profiles: store,
		hub:      hub,
		conn:     conn,
		deviceID: id,
	}
}

// answerBragi acks sets, endpoint opens/closes, and data writes, and
// serves gets from the property table.
func answerBragi(props map[byte][]byte) func([]byte) []byte {
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

func mouseProps() map[byte][]byte {
	return map[byte][]byte{
		bragi.PropFirmware: []byte("2.0.0"),
		bragi.PropSerial:   []byte("M75T"),
	}
}

func TestDispatchRGBUpdatesMirror(t *testing.T) {
	rig := newTestRig(t, 0x2010, mouseProps())

	dev, _ := rig.registry.Get(rig.deviceID)
	buf := make([]byte, dev.LEDCount*3)
	for i := range buf {
		buf[i] = 0x7F
	}
	line := "mode 1 rgb " + hexString(buf)

	if err := rig.engine.Dispatch(context.Background(), rig.deviceID, line); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	mode, err := rig.profiles.ActiveMode(rig.deviceID)
	if err != nil {
		t.Fatalf("active mode: %v", err)
	}
	if mode.Index != 1 || mode.Lighting.Buffer[0] != 0x7F {
		t.Errorf("mirror mode = %+v", mode)
	}

	// The device saw endpoint traffic, not just the identify round
	// trips.
	if rig.conn.WriteCount() <= 2 {
		t.Error("no lighting frames reached the device")
	}
}

func TestDispatchUnsupportedIsSpecific(t *testing.T) {
	// Headsets carry no binding table.
	rig := newTestRig(t, 0x2020, map[byte][]byte{
		bragi.PropFirmware: []byte("3.0"),
		bragi.PropSerial:   []byte("H70T"),
	})

	err := rig.engine.Dispatch(context.Background(), rig.deviceID, "mode 0 bind 1e copy")
	if !errors.Is(err, device.ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}

	err = rig.engine.Dispatch(context.Background(), rig.deviceID, "dpi 800")
	if !errors.Is(err, device.ErrUnsupported) {
		t.Errorf("dpi error = %v, want ErrUnsupported", err)
	}
}

func TestDispatchFailedWriteKeepsMirror(t *testing.T) {
	rig := newTestRig(t, 0x2010, mouseProps())

	dev, _ := rig.registry.Get(rig.deviceID)
	buf := make([]byte, dev.LEDCount*3)
	if err := rig.engine.Dispatch(context.Background(), rig.deviceID,
		"mode 0 rgb "+hexString(buf)); err != nil {
		t.Fatalf("seed dispatch: %v", err)
	}

	rig.conn.FailAll(transport.ErrWriteFailed)

	buf[0] = 0xFF
	err := rig.engine.Dispatch(context.Background(), rig.deviceID,
		"mode 1 rgb "+hexString(buf))
	if err == nil {
		t.Fatal("dispatch succeeded with dead transport")
	}

	mode, merr := rig.profiles.ActiveMode(rig.deviceID)
	if merr != nil {
		t.Fatalf("active mode: %v", merr)
	}
	if mode.Index != 0 || mode.Lighting.Buffer[0] != 0x00 {
		t.Errorf("mirror moved on failed write: %+v", mode)
	}
}

func TestDispatchBindThenUnbind(t *testing.T) {
	rig := newTestRig(t, 0x2010, mouseProps())
	ctx := context.Background()

	if err := rig.engine.Dispatch(ctx, rig.deviceID, "mode 0 bind 1e copy"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	mode, _ := rig.profiles.ActiveMode(rig.deviceID)
	if mode.Bindings[0x1E] != "copy" {
		t.Fatalf("bindings = %v", mode.Bindings)
	}

	if err := rig.engine.Dispatch(ctx, rig.deviceID, "mode 0 unbind 1e"); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	mode, _ = rig.profiles.ActiveMode(rig.deviceID)
	if _, bound := mode.Bindings[0x1E]; bound {
		t.Error("key still bound after unbind")
	}
}

func TestDispatchProfileSwitchThenRead(t *testing.T) {
	rig := newTestRig(t, 0x2010, mouseProps())
	ctx := context.Background()

	events, cancel := rig.hub.Subscribe(16)
	defer cancel()

	if err := rig.engine.Dispatch(ctx, rig.deviceID, "profile switch 1"); err != nil {
		t.Fatalf("switch: %v", err)
	}

	p, err := rig.profiles.ActiveProfile(rig.deviceID)
	if err != nil {
		t.Fatalf("active profile: %v", err)
	}
	if p.Index != 1 {
		t.Errorf("active profile = %d, want 1", p.Index)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == device.EventProfile {
				if ev.Slot != 1 {
					t.Errorf("profile event slot = %d", ev.Slot)
				}
				return
			}
		case <-deadline:
			t.Fatal("no profile event published")
		}
	}
}

func TestDispatchPerKeyRGBRange(t *testing.T) {
	rig := newTestRig(t, 0x2010, mouseProps())

	// LED index far past the mouse's LED count.
	err := rig.engine.Dispatch(context.Background(), rig.deviceID, "mode 0 rgb f0:ff0000")
	if !errors.Is(err, ErrRange) {
		t.Errorf("error = %v, want ErrRange", err)
	}
}

func TestMacroArmAndFire(t *testing.T) {
	rig := newTestRig(t, 0x2010, mouseProps())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start returns with the engine's subscription live, so the key
	// press below cannot slip past it.
	rig.engine.Start(ctx)

	events, unsub := rig.hub.Subscribe(64)
	defer unsub()

	if err := rig.engine.Dispatch(ctx, rig.deviceID, "macro 3a +1e,10,-1e"); err != nil {
		t.Fatalf("arm: %v", err)
	}

	// Physical press of the trigger key arrives on the wire.
	rig.conn.QueueInput([]byte{bragi.Prefix, 0x00, bragi.OpNotify, bragi.PropInputKey, 0x3A, 0x01})

	var got []device.Event
	deadline := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case ev := <-events:
			if ev.Type == device.EventMacro || (ev.Type == device.EventKey && ev.Code == 0x1E) {
				got = append(got, ev)
			}
		case <-deadline:
			t.Fatalf("macro events = %d, want 3 (fired + down + up)", len(got))
		}
	}

	if got[0].Type != device.EventMacro || got[0].Code != 0x3A {
		t.Errorf("first event = %+v, want macro fired", got[0])
	}
	if !got[1].Pressed || got[2].Pressed {
		t.Errorf("replay edges = %+v %+v", got[1], got[2])
	}
}

func TestDispatchRejectsNonActiveDevice(t *testing.T) {
	rig := newTestRig(t, 0x2010, mouseProps())
	ctx := context.Background()

	// Firmware flash in progress: commands must be refused until the
	// device is active again.
	if err := rig.registry.SetStatus(rig.deviceID, device.StatusUpdating); err != nil {
		t.Fatalf("set status: %v", err)
	}

	err := rig.engine.Dispatch(ctx, rig.deviceID, "profile switch 1")
	if !errors.Is(err, device.ErrNotActive) {
		t.Fatalf("error = %v, want ErrNotActive", err)
	}

	if err := rig.registry.SetStatus(rig.deviceID, device.StatusActive); err != nil {
		t.Fatalf("restore status: %v", err)
	}
	if err := rig.engine.Dispatch(ctx, rig.deviceID, "profile switch 1"); err != nil {
		t.Errorf("dispatch after reactivation: %v", err)
	}
}

func TestDispatchBindsBeforeLifecycleBinder(t *testing.T) {
	rig := newTestRig(t, 0x2010, mouseProps())
	ctx := context.Background()

	// Simulate a command racing ahead of the attach event: the store
	// has no mirror for the device yet.
	rig.profiles.Release(rig.deviceID)

	if err := rig.engine.Dispatch(ctx, rig.deviceID, "profile switch 1"); err != nil {
		t.Fatalf("dispatch on unbound device: %v", err)
	}
	if !rig.profiles.Bound(rig.deviceID) {
		t.Error("store not bound after dispatch")
	}
	p, err := rig.profiles.ActiveProfile(rig.deviceID)
	if err != nil {
		t.Fatalf("active profile: %v", err)
	}
	if p.Index != 1 {
		t.Errorf("active profile = %d, want 1", p.Index)
	}
}

func TestDispatchIndependentAcrossDevices(t *testing.T) {
	mock := transport.NewMock()
	connA := mock.AddDevice(transport.DeviceInfo{Path: "mock/0", ProductID: 0x2010})
	connA.Responder = answerBragi(mouseProps())
	connB := mock.AddDevice(transport.DeviceInfo{Path: "mock/1", ProductID: 0x2010})
	connB.Responder = answerBragi(map[byte][]byte{
		bragi.PropFirmware: []byte("2.0.0"),
		bragi.PropSerial:   []byte("M75U"),
	})

	hub := device.NewHub()
	reg := device.NewRegistry(mock, device.NewMemoryNodeStore(), hub, device.Options{
		Session: device.SessionOptions{
			CommandTimeout: 200 * time.Millisecond,
			RetryAttempts:  1,
			RetryBackoff:   5 * time.Millisecond,
			PollTimeout:    10 * time.Millisecond,
		},
		HotplugInterval: time.Second,
	})
	t.Cleanup(reg.Shutdown)

	ctx := context.Background()
	idA, err := reg.Attach(ctx, mock.Devices[0])
	if err != nil {
		t.Fatalf("attach A: %v", err)
	}
	idB, err := reg.Attach(ctx, mock.Devices[1])
	if err != nil {
		t.Fatalf("attach B: %v", err)
	}

	store := profile.NewStore(nil)
	for _, id := range []string{idA, idB} {
		dev, _ := reg.Get(id)
		if err := store.Bind(ctx, id, dev.Serial, dev.LEDCount); err != nil {
			t.Fatalf("bind %s: %v", id, err)
		}
	}
	engine := New(reg, store, hub)

	// Device A goes silent: its command will grind through timeouts.
	connA.Responder = func([]byte) []byte { return nil }

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Dispatch(ctx, idA, "profile switch 1"); err == nil {
			t.Error("dispatch to silent device succeeded")
		}
	}()

	// Give A's command a moment to take its own lock.
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	if err := engine.Dispatch(ctx, idB, "profile switch 1"); err != nil {
		t.Fatalf("dispatch B: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("device B waited %s behind device A's stalled command", elapsed)
	}
	wg.Wait()
}

// stateRecorder captures renderer state lines for inspection.
type stateRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *stateRecorder) Start(string, int, string) error { return nil }
func (r *stateRecorder) Stop(string)                     {}

func (r *stateRecorder) WriteState(deviceID, line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestEngineForwardsInputToRenderer(t *testing.T) {
	rig := newTestRig(t, 0x2010, mouseProps())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &stateRecorder{}
	rig.engine.SetAnimationController(rec)
	rig.engine.Start(ctx)

	rig.conn.QueueInput([]byte{bragi.Prefix, 0x00, bragi.OpNotify, bragi.PropInputKey, 0x1E, 0x01})
	rig.conn.QueueInput([]byte{bragi.Prefix, 0x00, bragi.OpNotify, bragi.PropInputKey, 0x1E, 0x00})

	deadline := time.Now().Add(2 * time.Second)
	for {
		lines := rec.snapshot()
		if len(lines) >= 2 {
			if lines[0] != "key 1e down" || lines[1] != "key 1e up" {
				t.Errorf("state lines = %q", lines)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("renderer saw %q, want key edges", lines)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := rig.engine.Dispatch(ctx, rig.deviceID, "profile switch 1"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for {
		lines := rec.snapshot()
		if len(lines) >= 3 && lines[len(lines)-1] == "profile 1" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("renderer saw %q, want profile line", lines)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDispatchUnknownNode(t *testing.T) {
	rig := newTestRig(t, 0x2010, mouseProps())

	err := rig.engine.DispatchNode(context.Background(), 42, "active")
	if !errors.Is(err, device.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func hexString(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, v := range b {
		out = append(out, digits[v>>4], digits[v&0x0F])
	}
	return string(out)
}

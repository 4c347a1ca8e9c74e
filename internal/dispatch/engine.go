package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/lumen-core/internal/device"
	"github.com/nerrad567/lumen-core/internal/profile"
)

// Logger defines the logging interface used by the Engine.
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

// AnimationController starts and stops external renderer processes
// for animation modes and feeds them state lines so reactive
// animations can respond to input.
type AnimationController interface {
	Start(deviceID string, ledCount int, animation string) error
	Stop(deviceID string)
	WriteState(deviceID, line string)
}

// Flasher performs firmware updates.
type Flasher interface {
	Update(ctx context.Context, deviceID, path, sha256, version string) error
}

// Observer receives command timing for telemetry. Optional.
type Observer interface {
	CommandLatency(node string, kind string, latency time.Duration)
}

// Engine executes parsed commands against devices.
//
// Commands for one device run strictly in arrival order: the caller
// feeds lines sequentially per device and every hardware operation
// runs under that device's fair command lock. Commands to different
// devices proceed in parallel.
type Engine struct {
	registry *device.Registry
	profiles *profile.Store
	hub      *device.Hub
	logger   Logger

	anim     AnimationController
	flasher  Flasher
	observer Observer

	mu        sync.Mutex
	macros    map[string]map[byte][]MacroStep
	idle      map[string]bool
	replaying map[string]bool
}

// New creates a command engine. anim and flasher may be nil; the
// corresponding commands then report unsupported.
func New(registry *device.Registry, profiles *profile.Store, hub *device.Hub) *Engine {
	return &Engine{
		registry:  registry,
		profiles:  profiles,
		hub:       hub,
		logger:    noopLogger{},
		macros:    make(map[string]map[byte][]MacroStep),
		idle:      make(map[string]bool),
		replaying: make(map[string]bool),
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetAnimationController wires the renderer subprocess controller.
func (e *Engine) SetAnimationController(anim AnimationController) {
	e.anim = anim
}

// SetFlasher wires the firmware updater.
func (e *Engine) SetFlasher(flasher Flasher) {
	e.flasher = flasher
}

// SetObserver wires command latency telemetry.
func (e *Engine) SetObserver(observer Observer) {
	e.observer = observer
}

// Dispatch parses and executes one command line for a device.
//
// Returns:
//   - error: parse errors (ErrUnknownCommand, ErrBadArgument,
//     ErrRange), device.ErrNotActive while the device is updating or
//     still identifying, device.ErrUnsupported for operations the
//     device class lacks, or the hardware error
func (e *Engine) Dispatch(ctx context.Context, deviceID, line string) error {
	cmd, err := Parse(line)
	if err != nil {
		return err
	}

	dev, err := e.registry.Get(deviceID)
	if err != nil {
		return err
	}
	if dev.Status != device.StatusActive {
		return fmt.Errorf("%w: %s is %s", device.ErrNotActive, dev.NodeName(), dev.Status)
	}
	rt, err := e.registry.Runtime(deviceID)
	if err != nil {
		return err
	}

	// A command can arrive before the attach event has reached the
	// lifecycle binder. Bind here rather than failing the command.
	if !e.profiles.Bound(dev.ID) {
		if err := e.profiles.Bind(ctx, dev.ID, dev.Serial, dev.LEDCount); err != nil {
			return err
		}
	}

	start := time.Now()
	err = e.execute(ctx, dev, rt, cmd)
	if e.observer != nil {
		e.observer.CommandLatency(dev.NodeName(), string(cmd.Kind), time.Since(start))
	}
	if err != nil {
		e.logger.Warn("command failed",
			"node", dev.NodeName(), "kind", cmd.Kind, "error", err)
		return err
	}

	e.logger.Debug("command applied", "node", dev.NodeName(), "kind", cmd.Kind)
	return nil
}

// DispatchNode resolves a node index and dispatches.
func (e *Engine) DispatchNode(ctx context.Context, node int, line string) error {
	dev, err := e.registry.GetByNode(node)
	if err != nil {
		return err
	}
	return e.Dispatch(ctx, dev.ID, line)
}

func (e *Engine) execute(ctx context.Context, dev *device.Device, rt *device.Runtime, cmd Command) error {
	switch cmd.Kind {
	case KindModeRGB:
		return e.applyRGB(ctx, dev, rt, cmd)
	case KindModeBind:
		return e.applyBinding(ctx, dev, rt, cmd.Mode, cmd.Key, cmd.Action)
	case KindModeUnbind:
		return e.applyBinding(ctx, dev, rt, cmd.Mode, cmd.Key, "")
	case KindModeAnimation:
		return e.applyAnimation(ctx, dev, rt, cmd)
	case KindDPI:
		return e.applyDPI(ctx, dev, rt, cmd)
	case KindProfileSwitch:
		return e.switchProfile(ctx, dev, rt, cmd.Profile)
	case KindProfileName:
		return e.profiles.RenameProfile(ctx, dev.ID, cmd.Profile, cmd.Name)
	case KindMacro:
		return e.armMacro(dev.ID, cmd.MacroKey, cmd.Macro)
	case KindFWUpdate:
		if e.flasher == nil {
			return fmt.Errorf("%w: firmware update", device.ErrUnsupported)
		}
		return e.flasher.Update(ctx, dev.ID, cmd.Path, cmd.SHA256, cmd.Version)
	case KindActive:
		return e.setActive(ctx, dev, rt)
	case KindIdle:
		return e.setIdle(dev.ID)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Kind)
	}
}

// targetMode loads the mode being edited from the active profile,
// creating an empty one if the profile has no mode at that index.
func (e *Engine) targetMode(deviceID string, index int) (int, profile.Mode, error) {
	p, err := e.profiles.ActiveProfile(deviceID)
	if err != nil {
		return 0, profile.Mode{}, err
	}
	if m, err := p.Mode(index); err == nil {
		return p.Index, m.DeepCopy(), nil
	}
	return p.Index, profile.Mode{Index: index}, nil
}

func (e *Engine) applyRGB(ctx context.Context, dev *device.Device, rt *device.Runtime, cmd Command) error {
	ops := rt.Ops()
	if ops.ApplyLighting == nil {
		return fmt.Errorf("%w: lighting on %s", device.ErrUnsupported, dev.Class)
	}

	profileIndex, mode, err := e.targetMode(dev.ID, cmd.Mode)
	if err != nil {
		return err
	}

	switch {
	case cmd.Buffer != nil:
		mode.Lighting.Buffer = cmd.Buffer
	default:
		if len(mode.Lighting.Buffer) != dev.LEDCount*3 {
			mode.Lighting.Buffer = make([]byte, dev.LEDCount*3)
		}
		for key, col := range cmd.KeyColors {
			if int(key) >= dev.LEDCount {
				return fmt.Errorf("%w: LED index %d, device has %d", ErrRange, key, dev.LEDCount)
			}
			off := int(key) * 3
			mode.Lighting.Buffer[off] = col.R
			mode.Lighting.Buffer[off+1] = col.G
			mode.Lighting.Buffer[off+2] = col.B
		}
	}
	// Static colours replace any running animation.
	mode.Lighting.Animation = ""
	if e.anim != nil {
		e.anim.Stop(dev.ID)
	}

	return e.profiles.CommitMode(ctx, dev.ID, profileIndex, mode,
		func(ctx context.Context, m profile.Mode) error {
			return rt.WithCommandLock(ctx, func(ctx context.Context, s *device.Session, slot byte) error {
				if err := ops.ApplyLighting(ctx, s, slot, m.Lighting.Buffer); err != nil {
					return err
				}
				return e.saveHardwareSlot(ctx, ops, s, slot, profileIndex)
			})
		})
}

func (e *Engine) applyBinding(ctx context.Context, dev *device.Device, rt *device.Runtime, modeIndex int, key byte, action string) error {
	ops := rt.Ops()
	if ops.ApplyBindings == nil {
		return fmt.Errorf("%w: bindings on %s", device.ErrUnsupported, dev.Class)
	}

	profileIndex, mode, err := e.targetMode(dev.ID, modeIndex)
	if err != nil {
		return err
	}

	if mode.Bindings == nil {
		mode.Bindings = make(device.Bindings)
	}
	if action == "" {
		delete(mode.Bindings, key)
	} else {
		mode.Bindings[key] = action
	}

	return e.profiles.CommitMode(ctx, dev.ID, profileIndex, mode,
		func(ctx context.Context, m profile.Mode) error {
			return rt.WithCommandLock(ctx, func(ctx context.Context, s *device.Session, slot byte) error {
				if err := ops.ApplyBindings(ctx, s, slot, m.Bindings); err != nil {
					return err
				}
				return e.saveHardwareSlot(ctx, ops, s, slot, profileIndex)
			})
		})
}

func (e *Engine) applyAnimation(ctx context.Context, dev *device.Device, rt *device.Runtime, cmd Command) error {
	ops := rt.Ops()
	if ops.ApplyLighting == nil {
		return fmt.Errorf("%w: lighting on %s", device.ErrUnsupported, dev.Class)
	}
	if e.anim == nil {
		return fmt.Errorf("%w: no renderer configured", device.ErrUnsupported)
	}

	profileIndex, mode, err := e.targetMode(dev.ID, cmd.Mode)
	if err != nil {
		return err
	}
	mode.Lighting.Animation = cmd.Animation
	mode.Lighting.Buffer = nil

	return e.profiles.CommitMode(ctx, dev.ID, profileIndex, mode,
		func(ctx context.Context, m profile.Mode) error {
			return e.anim.Start(dev.ID, dev.LEDCount, m.Lighting.Animation)
		})
}

func (e *Engine) applyDPI(ctx context.Context, dev *device.Device, rt *device.Runtime, cmd Command) error {
	ops := rt.Ops()
	if ops.SetDPI == nil {
		return fmt.Errorf("%w: DPI on %s", device.ErrUnsupported, dev.Class)
	}

	p, err := e.profiles.ActiveProfile(dev.ID)
	if err != nil {
		return err
	}
	_, mode, err := e.targetMode(dev.ID, p.ActiveMode)
	if err != nil {
		return err
	}
	mode.DPI = cmd.DPI

	return e.profiles.CommitMode(ctx, dev.ID, p.Index, mode,
		func(ctx context.Context, m profile.Mode) error {
			return rt.WithCommandLock(ctx, func(ctx context.Context, s *device.Session, slot byte) error {
				return ops.SetDPI(ctx, s, slot, m.DPI)
			})
		})
}

func (e *Engine) switchProfile(ctx context.Context, dev *device.Device, rt *device.Runtime, index int) error {
	ops := rt.Ops()

	err := e.profiles.SwitchProfile(ctx, dev.ID, index, func(ctx context.Context) error {
		target, err := e.profiles.LoadProfile(dev.ID, index)
		if err != nil {
			return err
		}

		return rt.WithCommandLock(ctx, func(ctx context.Context, s *device.Session, slot byte) error {
			if target.Hardware() && ops.SetMode != nil {
				return ops.SetMode(ctx, s, slot, index)
			}
			// Software profile: push its active mode to the device.
			m, err := target.Mode(target.ActiveMode)
			if err != nil {
				return err
			}
			if ops.ApplyLighting != nil && len(m.Lighting.Buffer) > 0 {
				if err := ops.ApplyLighting(ctx, s, slot, m.Lighting.Buffer); err != nil {
					return err
				}
			}
			if ops.ApplyBindings != nil && len(m.Bindings) > 0 {
				if err := ops.ApplyBindings(ctx, s, slot, m.Bindings); err != nil {
					return err
				}
			}
			if ops.SetDPI != nil && len(m.DPI) > 0 {
				if err := ops.SetDPI(ctx, s, slot, m.DPI); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	if err := e.registry.SetActiveMode(dev.ID, index); err != nil {
		e.logger.Debug("active mode record", "node", dev.NodeName(), "error", err)
	}
	e.hub.Publish(device.Event{
		DeviceID: dev.ID,
		Node:     dev.NodeName(),
		Type:     device.EventProfile,
		Slot:     index,
	})
	return nil
}

// saveHardwareSlot persists current device state to an onboard slot
// after edits to a hardware-resident profile.
func (e *Engine) saveHardwareSlot(ctx context.Context, ops *device.OpSet, s *device.Session, slot byte, profileIndex int) error {
	if profileIndex >= profile.HardwareSlots || ops.SaveProfile == nil {
		return nil
	}
	return ops.SaveProfile(ctx, s, slot, profileIndex)
}

// setActive resumes software control: the active mode's lighting is
// reapplied to the device.
func (e *Engine) setActive(ctx context.Context, dev *device.Device, rt *device.Runtime) error {
	e.mu.Lock()
	e.idle[dev.ID] = false
	e.mu.Unlock()

	mode, err := e.profiles.ActiveMode(dev.ID)
	if err != nil {
		return err
	}

	ops := rt.Ops()
	if mode.Lighting.Animation != "" && e.anim != nil {
		return e.anim.Start(dev.ID, dev.LEDCount, mode.Lighting.Animation)
	}
	if len(mode.Lighting.Buffer) == 0 || ops.ApplyLighting == nil {
		return nil
	}
	return rt.WithCommandLock(ctx, func(ctx context.Context, s *device.Session, slot byte) error {
		return ops.ApplyLighting(ctx, s, slot, mode.Lighting.Buffer)
	})
}

// setIdle suspends software control, leaving the device under its
// own hardware state.
func (e *Engine) setIdle(deviceID string) error {
	e.mu.Lock()
	e.idle[deviceID] = true
	e.mu.Unlock()

	if e.anim != nil {
		e.anim.Stop(deviceID)
	}
	return nil
}

// Idle reports whether a device is under hardware control.
func (e *Engine) Idle(deviceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idle[deviceID]
}

// Forget drops engine state for a detached device.
func (e *Engine) Forget(deviceID string) {
	e.mu.Lock()
	delete(e.macros, deviceID)
	delete(e.idle, deviceID)
	delete(e.replaying, deviceID)
	e.mu.Unlock()

	if e.anim != nil {
		e.anim.Stop(deviceID)
	}
}

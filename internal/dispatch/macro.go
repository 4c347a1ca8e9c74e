package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/lumen-core/internal/device"
)

// Macro replay publishes synthetic key events on the device's
// notification stream, paced by monotonic delays. The device's macro
// lock serialises a replay against any other replay on the same
// device, and the registry drops physical key edges for the device
// while the lock is held, so a replayed sequence is never interleaved
// with another macro's steps or with real input.

const maxMacroSteps = 128

// armMacro validates and stores a macro for a trigger key.
func (e *Engine) armMacro(deviceID string, trigger byte, steps []MacroStep) error {
	if len(steps) > maxMacroSteps {
		return fmt.Errorf("%w: %d macro steps, max %d", ErrRange, len(steps), maxMacroSteps)
	}
	for _, step := range steps {
		if step.IsDelay && step.Delay > 10*time.Second {
			return fmt.Errorf("%w: macro delay %s", ErrRange, step.Delay)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.macros[deviceID] == nil {
		e.macros[deviceID] = make(map[byte][]MacroStep)
	}
	e.macros[deviceID][trigger] = steps
	return nil
}

// Run consumes hub events until ctx ends, firing armed macros on
// trigger key presses and dropping engine state for detached devices.
func (e *Engine) Run(ctx context.Context) error {
	events, cancel := e.hub.Subscribe(128)
	return e.consume(ctx, events, cancel)
}

// Start subscribes to the hub and launches the event loop in the
// background. The subscription is live when Start returns, so events
// published immediately after are not missed.
func (e *Engine) Start(ctx context.Context) {
	events, cancel := e.hub.Subscribe(128)
	go func() {
		if err := e.consume(ctx, events, cancel); err != nil && ctx.Err() == nil {
			e.logger.Error("event loop stopped", "error", err)
		}
	}()
}

func (e *Engine) consume(ctx context.Context, events <-chan device.Event, cancel func()) error {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.handleEvent(ctx, ev)
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev device.Event) {
	switch ev.Type {
	case device.EventDetach:
		e.Forget(ev.DeviceID)
	case device.EventKey:
		e.forwardState(ev)
		if ev.Pressed {
			e.maybeFireMacro(ctx, ev)
		}
	case device.EventProfile:
		e.forwardState(ev)
	}
}

// forwardState feeds key and profile events to the device's renderer,
// if one is running, so reactive animations track input.
func (e *Engine) forwardState(ev device.Event) {
	if e.anim == nil {
		return
	}
	switch ev.Type {
	case device.EventKey:
		edge := "up"
		if ev.Pressed {
			edge = "down"
		}
		e.anim.WriteState(ev.DeviceID, fmt.Sprintf("key %02x %s", ev.Code, edge))
	case device.EventProfile:
		e.anim.WriteState(ev.DeviceID, fmt.Sprintf("profile %d", ev.Slot))
	}
}

// maybeFireMacro launches a replay if the pressed key has a macro
// armed and the device is not already replaying. Suppressing triggers
// during a replay keeps a macro that emits its own trigger key from
// looping.
func (e *Engine) maybeFireMacro(ctx context.Context, ev device.Event) {
	e.mu.Lock()
	steps, armed := e.macros[ev.DeviceID][byte(ev.Code)]
	if !armed || e.replaying[ev.DeviceID] {
		e.mu.Unlock()
		return
	}
	e.replaying[ev.DeviceID] = true
	e.mu.Unlock()

	go e.replay(ctx, ev.DeviceID, ev.Node, byte(ev.Code), steps)
}

func (e *Engine) replay(ctx context.Context, deviceID, node string, trigger byte, steps []MacroStep) {
	defer func() {
		e.mu.Lock()
		delete(e.replaying, deviceID)
		e.mu.Unlock()
	}()

	rt, err := e.registry.Runtime(deviceID)
	if err != nil {
		return // Detached between trigger and replay
	}

	err = rt.WithMacroLock(ctx, func(ctx context.Context) error {
		e.hub.Publish(device.Event{
			DeviceID: deviceID,
			Node:     node,
			Type:     device.EventMacro,
			Code:     int(trigger),
		})

		for _, step := range steps {
			if step.IsDelay {
				select {
				case <-time.After(step.Delay):
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
			e.hub.Publish(device.Event{
				DeviceID: deviceID,
				Node:     node,
				Type:     device.EventKey,
				Code:     int(step.Key),
				Pressed:  step.Down,
			})
		}
		return nil
	})
	if err != nil {
		e.logger.Debug("macro replay aborted", "node", node, "error", err)
	}
}

// Macros returns the armed trigger keys for a device. Diagnostic.
func (e *Engine) Macros(deviceID string) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := make([]byte, 0, len(e.macros[deviceID]))
	for k := range e.macros[deviceID] {
		keys = append(keys, k)
	}
	return keys
}

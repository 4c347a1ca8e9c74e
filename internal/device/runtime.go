package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/lumen-core/internal/fairlock"
)

// Runtime is the live half of a registered device: the open session,
// the capability set, and the locks that order access to it.
//
// Dongle children share their parent's session; each child still gets
// its own Runtime with its own locks so commands to different children
// queue independently.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Runtime struct {
	deviceID string
	node     string
	session  *Session
	ops      *OpSet
	slot     byte

	// owner marks the Runtime that opened the session and is
	// responsible for closing it. Children are never owners.
	owner bool

	// onGone is called when a command timeout is confirmed to be a
	// dead device rather than a slow one. Set by the registry.
	onGone func(error)

	cmd   fairlock.FairLock
	macro fairlock.FairLock
}

// Ops returns the device's capability set.
//
// Unsupported operations are nil entries; callers surface those as
// ErrUnsupported without touching the hardware.
func (rt *Runtime) Ops() *OpSet {
	return rt.ops
}

// Node returns the device's node name.
func (rt *Runtime) Node() string {
	return rt.node
}

// WithCommandLock runs fn holding the device's command lock.
//
// Waiters are served in arrival order, so two callers issuing
// commands to the same device see them applied in the order the
// calls were made. fn receives the session and the child slot to
// pass through to capability functions.
//
// Returns:
//   - error: ctx.Err() if the context ended while queued, otherwise
//     whatever fn returns
func (rt *Runtime) WithCommandLock(ctx context.Context, fn func(ctx context.Context, s *Session, slot byte) error) error {
	if err := rt.cmd.LockContext(ctx); err != nil {
		return fmt.Errorf("command lock: %w", err)
	}
	defer rt.cmd.Unlock()
	err := fn(ctx, rt.session, rt.slot)
	if errors.Is(err, ErrTimeout) {
		// A timeout may mean the device is gone or just busy. Check
		// before handing the lock on so a dead device is detached
		// instead of timing out every queued caller in turn.
		rt.confirmAlive()
	}
	return err
}

// confirmAlive re-identifies the device after a command timeout. A
// reply means the device is alive and the timeout stands on its own;
// a second silence escalates to the registry's fault path.
//
// Runs with the command lock held so no other command slips in
// between the timeout and the check.
func (rt *Runtime) confirmAlive() {
	if rt.ops == nil || rt.ops.Identify == nil || rt.onGone == nil {
		return
	}
	timeout := rt.session.opts.CommandTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := rt.ops.Identify(ctx, rt.session, rt.slot); err != nil {
		rt.onGone(fmt.Errorf("%w: unresponsive after command timeout: %w", ErrGone, err))
	}
}

// WithMacroLock runs fn holding the device's macro lock.
//
// Macro playback takes this lock for its whole run so two macros on
// the same device never interleave. The command lock is still taken
// per step inside fn, keeping single commands from other callers
// fairly interleaved with macro steps.
func (rt *Runtime) WithMacroLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := rt.macro.LockContext(ctx); err != nil {
		return fmt.Errorf("macro lock: %w", err)
	}
	defer rt.macro.Unlock()
	return fn(ctx)
}

// AdmitInput reports whether physical key edges may be published
// right now. While macro playback holds the macro lock the answer is
// false, so a replayed key sequence is never interleaved with real
// edges for the same device.
func (rt *Runtime) AdmitInput() bool {
	if !rt.macro.TryLock() {
		return false
	}
	rt.macro.Unlock()
	return true
}

// CommandWaiters reports how many callers are queued on the command
// lock. Diagnostic only.
func (rt *Runtime) CommandWaiters() int {
	return rt.cmd.Waiters()
}

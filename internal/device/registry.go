package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/lumen-core/internal/transport"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NodeStore persists the serial to node index mapping so a device
// keeps its node name across replugs and daemon restarts.
type NodeStore interface {
	// EnsureNodeIndex returns the node index for a serial, assigning
	// the lowest free index on first sight and reusing the stored one
	// afterwards.
	EnsureNodeIndex(ctx context.Context, serial, model string) (int, error)

	// TouchLastSeen records that the serial is currently attached.
	TouchLastSeen(ctx context.Context, serial string) error
}

// Options configures a Registry.
type Options struct {
	// Session is applied to every session the registry opens.
	Session SessionOptions

	// IdentifyTimeout bounds the whole identify handshake. Zero
	// means no bound beyond the per-command timeout.
	IdentifyTimeout time.Duration

	// HotplugInterval is the enumeration poll period for Run.
	HotplugInterval time.Duration
}

// Registry owns the set of attached devices and their lifecycles.
//
// It discovers devices through the transport, runs the identify
// handshake, assigns stable node indices through the NodeStore, and
// fans decoded input events out through the Hub. Dongle children are
// registered as devices in their own right, sharing the dongle's
// session.
//
// All public methods are thread-safe.
type Registry struct {
	transport transport.Transport
	store     NodeStore
	hub       *Hub
	opts      Options
	logger    Logger

	mu       sync.RWMutex
	devices  map[string]*Device
	byPath   map[string]string
	byNode   map[int]string
	runtimes map[string]*Runtime
}

// NewRegistry creates a device registry.
func NewRegistry(tr transport.Transport, store NodeStore, hub *Hub, opts Options) *Registry {
	return &Registry{
		transport: tr,
		store:     store,
		hub:       hub,
		opts:      opts,
		logger:    noopLogger{},
		devices:   make(map[string]*Device),
		byPath:    make(map[string]string),
		byNode:    make(map[int]string),
		runtimes:  make(map[string]*Runtime),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Get retrieves a device by ID.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return dev.DeepCopy(), nil
}

// GetByNode retrieves a device by node index.
func (r *Registry) GetByNode(node int) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byNode[node]
	if !ok {
		return nil, fmt.Errorf("%w: node %d", ErrNotFound, node)
	}
	return r.devices[id].DeepCopy(), nil
}

// List returns deep copies of all registered devices, ordered by
// node index.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, dev := range r.devices {
		out = append(out, *dev.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Runtime returns the live runtime for a device.
//
// The runtime stays valid until the device is detached; callers that
// held one across a detach get errors from the dead session rather
// than crashes.
func (r *Registry) Runtime(id string) (*Runtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.runtimes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rt, nil
}

// Attach opens, identifies, and registers the device at info.Path.
//
// Dongle children discovered during attach are registered as separate
// devices before Attach returns. An attach event is published for the
// device and each child.
//
// Returns:
//   - string: The new device's ID
//   - error: ErrUnknownModel for unrecognised product IDs,
//     ErrIdentifyFailed if the handshake fails, transport errors
//     from opening the path
func (r *Registry) Attach(ctx context.Context, info transport.DeviceInfo) (string, error) {
	model, err := LookupModel(info.ProductID)
	if err != nil {
		return "", err
	}

	ops, err := Lookup(model.Family, model.Class)
	if err != nil {
		return "", err
	}

	conn, err := r.transport.Open(info.Path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", info.Path, err)
	}

	id := uuid.NewString()

	sessOpts := r.opts.Session
	sessOpts.OnFault = func(err error) {
		// Reader goroutine context; detach must not run inline.
		go r.handleFault(id, err)
	}

	session := NewSession(conn, model.Family, sessOpts)
	session.Start()

	dev := &Device{
		ID:          id,
		Model:       model.Model,
		Family:      model.Family,
		Class:       model.Class,
		Status:      StatusDiscovering,
		Path:        info.Path,
		Wireless:    model.Wireless,
		LEDCount:    model.LEDCount,
		ConnectedAt: time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := r.identify(ctx, dev, session, ops, 0, info.Serial); err != nil {
		session.Close()
		return "", err
	}

	rt := &Runtime{
		deviceID: id,
		node:     dev.NodeName(),
		session:  session,
		ops:      ops,
		slot:     0,
		owner:    true,
	}
	rt.onGone = func(err error) { go r.handleFault(id, err) }

	r.register(dev, rt)
	go r.inputWorker(id, rt)

	r.logger.Info("device attached",
		"node", dev.NodeName(), "model", dev.Model, "serial", dev.Serial)
	r.publish(dev, EventAttach)

	if model.Class == ClassDongle {
		if err := r.attachChildren(ctx, dev, session); err != nil {
			r.logger.Warn("child discovery incomplete",
				"node", dev.NodeName(), "error", err)
		}
	}

	return id, nil
}

// identify runs the handshake and moves the device to active.
//
// fallbackSerial covers devices whose identify op is serial-less; the
// USB descriptor serial is used instead so the node index stays
// stable.
func (r *Registry) identify(ctx context.Context, dev *Device, session *Session, ops *OpSet, slot byte, fallbackSerial string) error {
	if !dev.Status.CanTransition(StatusIdentifying) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, dev.Status, StatusIdentifying)
	}
	dev.Status = StatusIdentifying

	if ops.Identify == nil {
		return fmt.Errorf("%w: identify", ErrUnsupported)
	}
	if r.opts.IdentifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.IdentifyTimeout)
		defer cancel()
	}
	identity, err := ops.Identify(ctx, session, slot)
	if err != nil {
		return err
	}

	dev.Serial = identity.Serial
	if dev.Serial == "" {
		dev.Serial = fallbackSerial
	}
	if dev.Serial == "" {
		return fmt.Errorf("%w: no serial", ErrIdentifyFailed)
	}
	dev.Firmware = identity.Firmware

	node, err := r.store.EnsureNodeIndex(ctx, dev.Serial, dev.Model)
	if err != nil {
		return fmt.Errorf("node index for %s: %w", dev.Serial, err)
	}
	dev.Node = node

	dev.Status = StatusActive
	dev.UpdatedAt = time.Now()
	return nil
}

// attachChildren enumerates and registers a dongle's paired children.
func (r *Registry) attachChildren(ctx context.Context, parent *Device, session *Session) error {
	ops, err := Lookup(parent.Family, parent.Class)
	if err != nil {
		return err
	}
	if ops.ChildCount == nil || ops.ChildModel == nil {
		return fmt.Errorf("%w: child discovery", ErrUnsupported)
	}

	count, err := ops.ChildCount(ctx, session)
	if err != nil {
		return fmt.Errorf("child count: %w", err)
	}

	var firstErr error
	for slot := byte(1); int(slot) <= count; slot++ {
		if err := r.attachChild(ctx, parent, session, ops, slot); err != nil {
			r.logger.Warn("child attach failed",
				"node", parent.NodeName(), "slot", slot, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Registry) attachChild(ctx context.Context, parent *Device, session *Session, dongleOps *OpSet, slot byte) error {
	code, err := dongleOps.ChildModel(ctx, session, slot)
	if err != nil {
		return err
	}
	model, err := LookupChildModel(code)
	if err != nil {
		return err
	}

	ops, err := Lookup(model.Family, model.Class)
	if err != nil {
		return err
	}

	r.mu.RLock()
	for _, sibling := range parent.Children {
		if child, ok := r.devices[sibling]; ok && child.ChildSlot == slot {
			r.mu.RUnlock()
			return fmt.Errorf("%w: slot %d", ErrChildSlotTaken, slot)
		}
	}
	r.mu.RUnlock()

	child := &Device{
		ID:          uuid.NewString(),
		Model:       model.Model,
		Family:      model.Family,
		Class:       model.Class,
		Status:      StatusDiscovering,
		Wireless:    true,
		LEDCount:    model.LEDCount,
		ParentID:    parent.ID,
		ChildSlot:   slot,
		ConnectedAt: time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := r.identify(ctx, child, session, ops, slot, ""); err != nil {
		return err
	}

	rt := &Runtime{
		deviceID: child.ID,
		node:     child.NodeName(),
		session:  session,
		ops:      ops,
		slot:     slot,
		owner:    false,
	}
	childID := child.ID
	rt.onGone = func(err error) { go r.handleFault(childID, err) }

	r.mu.Lock()
	parent.Children = append(parent.Children, child.ID)
	r.mu.Unlock()

	r.register(child, rt)

	r.logger.Info("child attached",
		"node", child.NodeName(), "model", child.Model,
		"parent", parent.NodeName(), "slot", slot)
	r.publish(child, EventAttach)
	return nil
}

func (r *Registry) register(dev *Device, rt *Runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices[dev.ID] = dev
	r.byNode[dev.Node] = dev.ID
	if dev.Path != "" {
		r.byPath[dev.Path] = dev.ID
	}
	r.runtimes[dev.ID] = rt
}

// Detach removes a device from the registry.
//
// Detaching a dongle cascades to its children first. The session is
// closed only by the device that owns it. A detach event is published
// for every removed device.
func (r *Registry) Detach(id string) error {
	r.mu.Lock()
	dev, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	children := append([]string(nil), dev.Children...)
	r.mu.Unlock()

	for _, childID := range children {
		if err := r.Detach(childID); err != nil && !errors.Is(err, ErrNotFound) {
			r.logger.Warn("child detach", "id", childID, "error", err)
		}
	}

	r.mu.Lock()
	dev, ok = r.devices[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rt := r.runtimes[id]

	dev.Status = StatusDisconnected
	dev.UpdatedAt = time.Now()
	snapshot := dev.DeepCopy()

	delete(r.devices, id)
	delete(r.byNode, dev.Node)
	if dev.Path != "" {
		delete(r.byPath, dev.Path)
	}
	delete(r.runtimes, id)

	if parent, ok := r.devices[dev.ParentID]; ok {
		parent.Children = removeString(parent.Children, id)
	}
	r.mu.Unlock()

	if rt != nil && rt.owner {
		rt.session.Close()
	}

	r.logger.Info("device detached", "node", snapshot.NodeName(), "model", snapshot.Model)
	r.publish(snapshot, EventDetach)
	return nil
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// handleFault detaches a device whose session failed.
func (r *Registry) handleFault(id string, err error) {
	r.logger.Warn("session fault", "id", id, "error", err)
	if derr := r.Detach(id); derr != nil {
		r.logger.Debug("fault detach", "id", id, "error", derr)
	}
}

// Reconcile diffs current enumeration against the registry, attaching
// new paths and detaching vanished ones.
func (r *Registry) Reconcile(ctx context.Context) error {
	infos, err := r.transport.Enumerate()
	if err != nil {
		return fmt.Errorf("enumerate: %w", err)
	}

	seen := make(map[string]bool, len(infos))
	for _, info := range infos {
		seen[info.Path] = true

		r.mu.RLock()
		_, known := r.byPath[info.Path]
		r.mu.RUnlock()
		if known {
			continue
		}

		if _, err := r.Attach(ctx, info); err != nil {
			r.logger.Warn("attach failed", "path", info.Path, "error", err)
		}
	}

	r.mu.RLock()
	var gone []string
	for path, id := range r.byPath {
		if !seen[path] {
			gone = append(gone, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range gone {
		if err := r.Detach(id); err != nil {
			r.logger.Warn("detach failed", "id", id, "error", err)
		}
	}

	for _, dev := range r.List() {
		if !dev.IsChild() {
			if err := r.store.TouchLastSeen(ctx, dev.Serial); err != nil {
				r.logger.Debug("touch last seen", "serial", dev.Serial, "error", err)
			}
		}
	}
	return nil
}

// Run polls for hotplug changes until ctx ends, then detaches all
// devices.
func (r *Registry) Run(ctx context.Context) error {
	if err := r.Reconcile(ctx); err != nil {
		r.logger.Error("initial reconcile", "error", err)
	}

	ticker := time.NewTicker(r.opts.HotplugInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Shutdown()
			return ctx.Err()
		case <-ticker.C:
			if err := r.Reconcile(ctx); err != nil {
				r.logger.Error("reconcile", "error", err)
			}
		}
	}
}

// Shutdown detaches every registered device.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	var parents []string
	for id, dev := range r.devices {
		if !dev.IsChild() {
			parents = append(parents, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range parents {
		if err := r.Detach(id); err != nil {
			r.logger.Warn("shutdown detach", "id", id, "error", err)
		}
	}
}

// SetStatus moves a device through its lifecycle.
// Returns ErrInvalidTransition for illegal moves.
func (r *Registry) SetStatus(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !dev.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, dev.Status, status)
	}
	dev.Status = status
	dev.UpdatedAt = time.Now()
	return nil
}

// SetActiveMode records the device's current mode slot.
func (r *Registry) SetActiveMode(id string, mode int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	dev.ActiveMode = mode
	dev.UpdatedAt = time.Now()
	return nil
}

// SetFirmware records the device's firmware version after an update
// and publishes EventFirmware.
func (r *Registry) SetFirmware(id string, version string) error {
	r.mu.Lock()
	dev, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	dev.Firmware = version
	dev.UpdatedAt = time.Now()
	snapshot := dev.DeepCopy()
	r.mu.Unlock()

	r.publish(snapshot, EventFirmware)
	return nil
}

// inputWorker drains the session's event stream, decodes reports with
// the owning device's event decoder, and publishes the result.
//
// One worker runs per session. Child events arrive on the parent's
// session tagged with the child slot and are routed to the child's
// decoder and identity.
func (r *Registry) inputWorker(parentID string, rt *Runtime) {
	for raw := range rt.session.Events() {
		target := rt
		targetID := parentID

		if raw.ChildSlot != 0 {
			id, childRT := r.childForSlot(parentID, raw.ChildSlot)
			if childRT == nil {
				r.logger.Debug("event for unknown child",
					"node", rt.node, "slot", raw.ChildSlot)
				continue
			}
			target = childRT
			targetID = id
		}

		if target.ops.DecodeEvent == nil {
			continue
		}
		ev, err := target.ops.DecodeEvent(raw)
		if err != nil {
			r.logger.Debug("event decode", "node", target.node, "error", err)
			continue
		}

		ev.DeviceID = targetID
		ev.Node = target.node

		if ev.Type == EventKey && !target.AdmitInput() {
			// Macro playback owns the key stream for this device.
			// Dropping the physical edge keeps a replayed hold from
			// being cut short by a real release of the same key.
			r.logger.Debug("key edge dropped during macro playback",
				"node", target.node, "code", ev.Code)
			continue
		}

		if ev.Type == EventBattery {
			r.setBattery(targetID, ev.Level, ev.Charging)
		}
		if ev.Type == EventMode {
			if err := r.SetActiveMode(targetID, ev.Slot); err != nil {
				r.logger.Debug("mode update", "node", target.node, "error", err)
			}
		}

		r.hub.Publish(ev)
	}
}

func (r *Registry) childForSlot(parentID string, slot byte) (string, *Runtime) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parent, ok := r.devices[parentID]
	if !ok {
		return "", nil
	}
	for _, childID := range parent.Children {
		if child, ok := r.devices[childID]; ok && child.ChildSlot == slot {
			return childID, r.runtimes[childID]
		}
	}
	return "", nil
}

func (r *Registry) setBattery(id string, level int, charging bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dev, ok := r.devices[id]; ok {
		dev.Battery = level
		dev.Charging = charging
		dev.UpdatedAt = time.Now()
	}
}

func (r *Registry) publish(dev *Device, typ EventType) {
	if r.hub == nil {
		return
	}
	r.hub.Publish(Event{
		DeviceID: dev.ID,
		Node:     dev.NodeName(),
		Type:     typ,
		Level:    dev.Battery,
		Charging: dev.Charging,
	})
}

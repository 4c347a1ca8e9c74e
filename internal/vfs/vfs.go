package vfs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/lumen-core/internal/device"
	"github.com/nerrad567/lumen-core/internal/dispatch"
)

// Logger is the interface for vfs logging.
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

// Dispatcher executes one textual command line for a device.
type Dispatcher interface {
	Dispatch(ctx context.Context, deviceID, line string) error
}

// Directory resolves device records for attribute files.
type Directory interface {
	Get(id string) (*device.Device, error)
	List() []device.Device
}

const (
	cmdName    = "cmd"
	notifyName = "notify"

	cmdPerm    = 0o622
	notifyPerm = 0o644
	attrPerm   = 0o644
)

// Manager maintains the per-device node hierarchy under a root
// directory. Each attached device gets a directory named after its
// node index containing a command FIFO, a notification FIFO, and
// plain-file attributes.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
type Manager struct {
	root       string
	dir        Directory
	hub        *device.Hub
	dispatcher Dispatcher
	logger     Logger

	mu    sync.Mutex
	nodes map[string]*node
	wg    sync.WaitGroup
}

// node is one device's slice of the hierarchy. The manager holds both
// FIFOs open read-write for the node's lifetime so client opens never
// block and client disconnects never deliver EOF to the command loop.
type node struct {
	deviceID string
	name     string
	dir      string

	cmd    *os.File
	notify *os.File

	notifyMu sync.Mutex
}

// New creates a node hierarchy manager rooted at root.
func New(root string, dir Directory, hub *device.Hub, dispatcher Dispatcher) *Manager {
	return &Manager{
		root:       root,
		dir:        dir,
		hub:        hub,
		dispatcher: dispatcher,
		logger:     noopLogger{},
		nodes:      make(map[string]*node),
	}
}

// SetLogger sets the logger for vfs operations.
func (m *Manager) SetLogger(l Logger) {
	if l != nil {
		m.logger = l
	}
}

// Run creates nodes for devices already attached, then follows the
// event stream: attachments create nodes, detachments remove them,
// and every other event is written to the owning node's notification
// FIFO. Blocks until ctx is cancelled, then tears the hierarchy down.
func (m *Manager) Run(ctx context.Context) error {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return fmt.Errorf("vfs: creating node root: %w", err)
	}

	events, cancel := m.hub.Subscribe(128)
	defer cancel()

	for _, dev := range m.dir.List() {
		if err := m.addNode(ctx, &dev); err != nil {
			m.logger.Error("node creation failed", "node", dev.NodeName(), "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			m.teardown()
			return nil
		case ev, ok := <-events:
			if !ok {
				m.teardown()
				return nil
			}
			m.handleEvent(ctx, ev)
		}
	}
}

// NodePath returns the directory backing a device's node.
func (m *Manager) NodePath(deviceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[deviceID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNodeNotFound, deviceID)
	}
	return n.dir, nil
}

func (m *Manager) handleEvent(ctx context.Context, ev device.Event) {
	switch ev.Type {
	case device.EventAttach:
		dev, err := m.dir.Get(ev.DeviceID)
		if err != nil {
			m.logger.Warn("attach event for unknown device", "id", ev.DeviceID)
			return
		}
		if err := m.addNode(ctx, dev); err != nil && !errors.Is(err, ErrNodeExists) {
			m.logger.Error("node creation failed", "node", dev.NodeName(), "error", err)
		}
	case device.EventDetach:
		m.removeNode(ev.DeviceID)
	case device.EventFirmware:
		m.refreshAttributes(ev.DeviceID)
		m.notifyDevice(ev.DeviceID, formatEvent(ev))
	default:
		if line, ok := formatEventOK(ev); ok {
			m.notifyDevice(ev.DeviceID, line)
		}
	}
}

func (m *Manager) addNode(ctx context.Context, dev *device.Device) error {
	m.mu.Lock()
	if _, ok := m.nodes[dev.ID]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeExists, dev.NodeName())
	}
	m.mu.Unlock()

	dir := filepath.Join(m.root, dev.NodeName())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vfs: creating node dir: %w", err)
	}

	cmdPath := filepath.Join(dir, cmdName)
	notifyPath := filepath.Join(dir, notifyName)

	// Stale pipes from an unclean shutdown are replaced.
	os.Remove(cmdPath)
	os.Remove(notifyPath)

	if err := unix.Mkfifo(cmdPath, cmdPerm); err != nil {
		return fmt.Errorf("vfs: creating command fifo: %w", err)
	}
	if err := unix.Mkfifo(notifyPath, notifyPerm); err != nil {
		os.Remove(cmdPath)
		return fmt.Errorf("vfs: creating notify fifo: %w", err)
	}

	n := &node{deviceID: dev.ID, name: dev.NodeName(), dir: dir}

	if err := writeAttributes(dir, dev); err != nil {
		n.cleanup()
		return err
	}

	// Read-write keeps at least one writer on the pipe, so the
	// command loop blocks for input instead of spinning on EOF when
	// clients come and go.
	cmd, err := os.OpenFile(cmdPath, os.O_RDWR, 0)
	if err != nil {
		n.cleanup()
		return fmt.Errorf("vfs: opening command fifo: %w", err)
	}
	n.cmd = cmd

	// Non-blocking so a notify write with no reader and a full pipe
	// drops the event rather than stalling the device path.
	notify, err := os.OpenFile(notifyPath, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		n.cleanup()
		return fmt.Errorf("vfs: opening notify fifo: %w", err)
	}
	n.notify = notify

	m.mu.Lock()
	m.nodes[dev.ID] = n
	m.mu.Unlock()

	m.wg.Add(1)
	go m.commandLoop(ctx, n)

	m.writeNotify(n, "plug")
	m.logger.Info("node created", "node", n.name, "dir", dir)
	return nil
}

func (m *Manager) removeNode(deviceID string) {
	m.mu.Lock()
	n, ok := m.nodes[deviceID]
	if ok {
		delete(m.nodes, deviceID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.writeNotify(n, "unplug")
	n.cleanup()
	m.logger.Info("node removed", "node", n.name)
}

// commandLoop reads newline commands from the node's FIFO and
// dispatches them in arrival order. Command failures are reported on
// the notify FIFO; they never end the loop.
func (m *Manager) commandLoop(ctx context.Context, n *node) {
	defer m.wg.Done()

	sc := bufio.NewScanner(n.cmd)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := m.dispatcher.Dispatch(ctx, n.deviceID, line); err != nil {
			m.logger.Debug("command rejected", "node", n.name, "line", line, "error", err)
			m.writeNotify(n, errLine(err))
		}
	}
	// Scan fails when cleanup closes the FIFO underneath us.
	m.logger.Debug("command loop ended", "node", n.name)
}

func (m *Manager) notifyDevice(deviceID, line string) {
	if line == "" {
		return
	}
	m.mu.Lock()
	n, ok := m.nodes[deviceID]
	m.mu.Unlock()
	if ok {
		m.writeNotify(n, line)
	}
}

func (m *Manager) writeNotify(n *node, line string) {
	n.notifyMu.Lock()
	defer n.notifyMu.Unlock()

	_, err := n.notify.WriteString(line + "\n")
	if err == nil {
		return
	}
	if errors.Is(err, syscall.EAGAIN) {
		// No reader draining the pipe. Events are best-effort.
		m.logger.Debug("notify dropped", "node", n.name, "line", line)
		return
	}
	if !errors.Is(err, os.ErrClosed) {
		m.logger.Warn("notify write failed", "node", n.name, "error", err)
	}
}

func (m *Manager) refreshAttributes(deviceID string) {
	m.mu.Lock()
	n, ok := m.nodes[deviceID]
	m.mu.Unlock()
	if !ok {
		return
	}
	dev, err := m.dir.Get(deviceID)
	if err != nil {
		return
	}
	if err := writeAttributes(n.dir, dev); err != nil {
		m.logger.Warn("attribute refresh failed", "node", n.name, "error", err)
	}
}

func (m *Manager) teardown() {
	m.mu.Lock()
	nodes := make([]*node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.nodes = make(map[string]*node)
	m.mu.Unlock()

	for _, n := range nodes {
		n.cleanup()
	}
	m.wg.Wait()
	m.logger.Info("node hierarchy closed", "root", m.root)
}

func writeAttributes(dir string, dev *device.Device) error {
	attrs := map[string]string{
		"model":     dev.Model,
		"serial":    dev.Serial,
		"fwversion": dev.Firmware,
	}
	for name, value := range attrs {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(value+"\n"), attrPerm); err != nil {
			return fmt.Errorf("vfs: writing %s attribute: %w", name, err)
		}
	}
	return nil
}

func (n *node) cleanup() {
	if n.cmd != nil {
		n.cmd.Close()
	}
	if n.notify != nil {
		n.notify.Close()
	}
	os.RemoveAll(n.dir)
}

// errLine maps a dispatch failure to the textual error identifier
// clients see on the notify FIFO.
func errLine(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrRange):
		return "ERR range " + err.Error()
	case errors.Is(err, device.ErrUnsupported):
		return "ERR unsupported " + err.Error()
	case errors.Is(err, dispatch.ErrUnknownCommand),
		errors.Is(err, dispatch.ErrBadArgument),
		errors.Is(err, dispatch.ErrEmptyCommand):
		return "ERR invalid-command " + err.Error()
	case errors.Is(err, device.ErrNotFound):
		return "ERR not-found " + err.Error()
	default:
		return "ERR internal " + err.Error()
	}
}

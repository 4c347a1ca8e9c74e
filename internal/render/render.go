package render

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
	"github.com/nerrad567/lumen-core/internal/process"
)

// Logger is the interface for render logging.
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

// FrameSink applies one rendered frame to a device. Frames are
// 3 bytes per LED in keymap order. The sink is called from the
// renderer's pump goroutine; it is expected to serialize hardware
// access itself.
type FrameSink func(ctx context.Context, deviceID string, frame []byte) error

// Controller runs one renderer subprocess per animated device and
// pumps the frames it produces into a FrameSink.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
type Controller struct {
	cfg    config.RenderConfig
	sink   FrameSink
	logger Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one device's renderer subprocess.
type session struct {
	deviceID  string
	frameSize int
	manager   *process.Manager
	cancel    context.CancelFunc

	mu        sync.Mutex
	stdin     io.WriteCloser
	lastFrame []byte
}

// New creates a renderer controller. The sink receives every frame
// the renderer emits.
func New(cfg config.RenderConfig, sink FrameSink) *Controller {
	return &Controller{
		cfg:      cfg,
		sink:     sink,
		logger:   noopLogger{},
		sessions: make(map[string]*session),
	}
}

// SetLogger sets the logger for renderer lifecycle events.
func (c *Controller) SetLogger(l Logger) {
	if l != nil {
		c.logger = l
	}
}

// Start launches a renderer for the device, replacing any renderer
// already animating it. The subprocess is invoked as
//
//	<binary> <animation> <led-count>
//
// and is expected to write frames of 3*ledCount bytes to stdout.
func (c *Controller) Start(deviceID string, ledCount int, animation string) error {
	if c.cfg.Binary == "" {
		return ErrNoRenderer
	}
	if ledCount <= 0 {
		return fmt.Errorf("render: device has no addressable LEDs")
	}

	c.Stop(deviceID)

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		deviceID:  deviceID,
		frameSize: ledCount * 3,
		cancel:    cancel,
	}

	mgr := process.NewManager(process.Config{
		Name:               "render-" + animation,
		Binary:             c.cfg.Binary,
		Args:               []string{animation, strconv.Itoa(ledCount)},
		RestartOnFailure:   c.cfg.RestartOnFailure,
		RestartDelay:       time.Duration(c.cfg.RestartDelaySeconds) * time.Second,
		MaxRestartAttempts: c.cfg.MaxRestartAttempts,
		GracefulTimeout:    2 * time.Second,
		AttachIO: func(stdin io.WriteCloser, stdout io.ReadCloser) {
			s.mu.Lock()
			s.stdin = stdin
			s.mu.Unlock()
			go c.pump(ctx, s, stdout)
		},
		OnStop: func(err error) {
			if err != nil {
				c.holdLastFrame(ctx, s)
			}
		},
	})
	s.manager = mgr

	mgr.SetLogger(c.logger)

	if err := mgr.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("render: starting %s: %w", animation, err)
	}

	c.mu.Lock()
	c.sessions[deviceID] = s
	c.mu.Unlock()

	c.logger.Info("renderer started", "device", deviceID, "animation", animation)
	return nil
}

// Stop ends the device's renderer, if any. The device keeps whatever
// frame was last applied.
func (c *Controller) Stop(deviceID string) {
	c.mu.Lock()
	s, ok := c.sessions[deviceID]
	if ok {
		delete(c.sessions, deviceID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	s.cancel()
	if err := s.manager.Stop(); err != nil {
		c.logger.Warn("renderer stop failed", "device", deviceID, "error", err)
	}
	c.logger.Info("renderer stopped", "device", deviceID)
}

// WriteState forwards a state line to the device's renderer stdin.
// Renderers use these to react to input, for example ripple effects
// keyed on key-down events. Devices without a renderer are a no-op.
func (c *Controller) WriteState(deviceID, line string) {
	c.mu.Lock()
	s, ok := c.sessions[deviceID]
	c.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil {
		return
	}
	if _, err := io.WriteString(stdin, line+"\n"); err != nil {
		c.logger.Debug("renderer state write failed", "device", deviceID, "error", err)
	}
}

// Shutdown stops every renderer.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Stop(id)
	}
}

// pump reads fixed-size frames from the renderer's stdout and applies
// each through the sink. Returns when the stream ends, which happens
// on renderer exit; a restarted renderer gets a fresh pump via
// AttachIO.
func (c *Controller) pump(ctx context.Context, s *session, stdout io.ReadCloser) {
	defer stdout.Close()

	br := bufio.NewReaderSize(stdout, s.frameSize*4)
	for {
		frame := make([]byte, s.frameSize)
		if _, err := io.ReadFull(br, frame); err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("renderer frame stream ended",
					"device", s.deviceID, "error", err)
			}
			return
		}

		s.mu.Lock()
		s.lastFrame = frame
		s.mu.Unlock()

		if err := c.sink(ctx, s.deviceID, frame); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("frame apply failed", "device", s.deviceID, "error", err)
		}
	}
}

// holdLastFrame re-applies the last completed frame after a renderer
// crash so the device is not left mid-transition while the process
// manager restarts it. The pump drains frames concurrently with exit
// detection, so wait a moment for any final frame to land.
func (c *Controller) holdLastFrame(ctx context.Context, s *session) {
	var frame []byte
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		s.mu.Lock()
		frame = s.lastFrame
		s.mu.Unlock()
		if frame != nil || ctx.Err() != nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if frame == nil || ctx.Err() != nil {
		return
	}
	if err := c.sink(ctx, s.deviceID, frame); err != nil {
		c.logger.Debug("holding last frame failed", "device", s.deviceID, "error", err)
	}
}

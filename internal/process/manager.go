package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the lifecycle state of a managed subprocess.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// logChunkSize is the read size used when draining subprocess output
// into the log.
const logChunkSize = 4096

// Config describes a subprocess and how to supervise it.
type Config struct {
	// Name identifies the process in log records.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are passed to the binary verbatim.
	Args []string

	// Env holds extra environment entries in key=value form. The child
	// always inherits the daemon's environment; these are appended.
	Env []string

	// WorkDir is the child's working directory. Empty means inherit.
	WorkDir string

	// RestartOnFailure restarts the child when it exits without Stop
	// having been called.
	RestartOnFailure bool

	// RestartDelay is the wait before the first restart. Each further
	// attempt doubles it.
	RestartDelay time.Duration

	// MaxRestartDelay caps the doubling.
	MaxRestartDelay time.Duration

	// StableThreshold is the uptime after which the restart counter
	// resets, so a child that crashes once a day never runs out of
	// MaxRestartAttempts.
	StableThreshold time.Duration

	// MaxRestartAttempts bounds consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is the SIGTERM grace period before SIGKILL.
	GracefulTimeout time.Duration

	// AttachIO hands the child's stdin and stdout pipes to the caller
	// after every successful start, restarts included. With AttachIO
	// set, stdout is the caller's data stream and is not drained into
	// the log; stderr still is.
	AttachIO func(stdin io.WriteCloser, stdout io.ReadCloser)

	// HealthCheckFunc probes the child periodically. Nil means a
	// running child counts as healthy.
	HealthCheckFunc func(ctx context.Context) error

	// HealthCheckInterval is the probe period.
	HealthCheckInterval time.Duration

	// OnStart fires after each successful start.
	OnStart func()

	// OnStop fires when the child stops, with nil for a requested stop.
	OnStop func(err error)

	// OnRestart fires before each restart attempt.
	OnRestart func(attempt int)
}

// DefaultConfig returns a Config with supervision defaults filled in.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:                name,
		Binary:              binary,
		Args:                args,
		RestartOnFailure:    true,
		RestartDelay:        5 * time.Second,
		MaxRestartDelay:     5 * time.Minute,
		StableThreshold:     2 * time.Minute,
		MaxRestartAttempts:  10,
		GracefulTimeout:     10 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Logger is the logging surface the manager needs.
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

// Manager supervises one subprocess: start, output capture, health
// watchdog, restart with backoff, and graceful stop.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool

	done chan struct{}
}

// NewManager builds a Manager, filling zero-valued supervision settings
// from the defaults.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = 5 * time.Minute
	}
	if cfg.StableThreshold == 0 {
		cfg.StableThreshold = 2 * time.Minute
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger replaces the no-op logger.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the child and begins supervising it. Fails if the child
// is already running or cannot be spawned; later exits are handled by the
// supervisor according to the restart policy.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("process %s is already running", m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.spawn(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		m.mu.Unlock()
		return err
	}

	go m.supervise(ctx)
	return nil
}

// spawn starts one instance of the child and wires its pipes.
func (m *Manager) spawn(ctx context.Context) error {
	m.logger.Info("starting process",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // Binary path comes from validated config

	// Own process group, so Stop can signal the child and anything it forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}
	if m.config.WorkDir != "" {
		cmd.Dir = m.config.WorkDir
	}

	stdin, stdout, outW, err := m.wirePipes(cmd)
	if err != nil {
		return err
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		if outW != nil {
			outW.Close()
			stdout.Close()
		}
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if outW != nil {
			outW.Close()
			stdout.Close()
		}
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}
	if outW != nil {
		// The child holds its own copy of the write end.
		outW.Close()
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	if m.config.AttachIO != nil {
		m.config.AttachIO(stdin, stdout)
	} else {
		go m.logStream("stdout", stdout)
	}
	go m.logStream("stderr", stderr)

	m.logger.Info("process started",
		"name", m.config.Name,
		"pid", cmd.Process.Pid,
	)

	if m.config.OnStart != nil {
		m.config.OnStart()
	}
	return nil
}

// wirePipes sets up the child's stdin/stdout. In AttachIO mode stdout is a
// hand-made os.Pipe rather than StdoutPipe: Wait closes the pipes it
// manages when the child exits, which can drop buffered frames the
// attached reader has not drained yet. The returned write end must be
// closed in the parent once the child is started.
func (m *Manager) wirePipes(cmd *exec.Cmd) (stdin io.WriteCloser, stdout io.ReadCloser, outW *os.File, err error) {
	if m.config.AttachIO == nil {
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
		}
		return nil, stdout, nil, nil
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	cmd.Stdout = pw

	stdin, err = cmd.StdinPipe()
	if err != nil {
		pr.Close()
		pw.Close()
		return nil, nil, nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	return stdin, pr, pw, nil
}

// logStream drains a child output stream into the debug log until EOF.
func (m *Manager) logStream(stream string, r io.Reader) {
	buf := make([]byte, logChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			m.logger.Debug("process output",
				"name", m.config.Name,
				"stream", stream,
				"output", string(buf[:n]),
			)
		}
		if err != nil {
			if err != io.EOF {
				m.logger.Debug("output stream closed",
					"name", m.config.Name,
					"stream", stream,
				)
			}
			return
		}
	}
}

// awaitExit blocks until the child exits, the context is cancelled, or
// the health watchdog gives up on it. Three consecutive probe failures
// mean the child is hung; it gets killed and the failure is returned.
func (m *Manager) awaitExit(ctx context.Context, cmd *exec.Cmd) error {
	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	if m.config.HealthCheckFunc == nil {
		return <-exitCh
	}

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	const probeLimit = 3
	failures := 0

	for {
		select {
		case err := <-exitCh:
			return err

		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := m.config.HealthCheckFunc(probeCtx)
			cancel()

			if err == nil {
				if failures > 0 {
					m.logger.Info("health check recovered",
						"name", m.config.Name,
						"previous_failures", failures,
					)
				}
				failures = 0
				continue
			}

			failures++
			m.logger.Warn("health check failed",
				"name", m.config.Name,
				"error", err,
				"consecutive_failures", failures,
			)
			if failures < probeLimit {
				continue
			}

			m.logger.Error("health check failed repeatedly, killing process",
				"name", m.config.Name,
				"failures", failures,
			)
			if cmd.Process != nil {
				cmd.Process.Kill()
			}

			select {
			case exitErr := <-exitCh:
				if exitErr != nil {
					return fmt.Errorf("killed due to health check failure: %w", exitErr)
				}
				return fmt.Errorf("killed due to health check failure after %d consecutive failures", failures)
			case <-time.After(5 * time.Second):
				return fmt.Errorf("process did not exit after kill (health check failure)")
			}
		}
	}
}

// supervise runs the exit-and-restart loop until the child stops for good.
func (m *Manager) supervise(ctx context.Context) {
	defer close(m.done)

	for {
		m.mu.RLock()
		cmd := m.cmd
		m.mu.RUnlock()
		if cmd == nil {
			return
		}

		err := m.awaitExit(ctx, cmd)

		m.mu.Lock()
		stopRequested := m.stopRequested
		m.mu.Unlock()

		if stopRequested {
			m.logger.Info("process stopped as requested", "name", m.config.Name)
			m.mu.Lock()
			m.status = StatusStopped
			m.mu.Unlock()
			if m.config.OnStop != nil {
				m.config.OnStop(nil)
			}
			return
		}

		m.logger.Warn("process exited unexpectedly",
			"name", m.config.Name,
			"error", err,
		)

		m.mu.Lock()
		m.lastError = err
		m.status = StatusFailed
		// A run that stayed up past the stable threshold earns a fresh
		// restart budget.
		if time.Since(m.startTime) >= m.config.StableThreshold {
			m.restartCount = 0
		}
		m.mu.Unlock()

		if m.config.OnStop != nil {
			m.config.OnStop(err)
		}

		if !m.config.RestartOnFailure {
			m.logger.Info("restart disabled, not restarting", "name", m.config.Name)
			return
		}
		if !IsRecoverable(err) {
			m.logger.Error("process failed with non-recoverable error, not restarting",
				"name", m.config.Name,
				"error", err,
			)
			return
		}

		m.mu.Lock()
		m.restartCount++
		attempt := m.restartCount
		m.mu.Unlock()

		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.logger.Error("max restart attempts reached",
				"name", m.config.Name,
				"attempts", attempt,
			)
			return
		}

		delay := m.calculateBackoffDelay(attempt)
		m.logger.Info("restarting process",
			"name", m.config.Name,
			"attempt", attempt,
			"delay", delay,
		)
		if m.config.OnRestart != nil {
			m.config.OnRestart(attempt)
		}

		select {
		case <-ctx.Done():
			m.logger.Info("context cancelled, not restarting", "name", m.config.Name)
			return
		case <-time.After(delay):
		}

		m.mu.RLock()
		stopRequested = m.stopRequested
		m.mu.RUnlock()
		if stopRequested {
			return
		}

		if err := m.spawn(ctx); err != nil {
			m.logger.Error("failed to restart process",
				"name", m.config.Name,
				"error", err,
			)
			// Loop again; the next attempt gets a longer delay.
		}
	}
}

// calculateBackoffDelay returns RestartDelay doubled once per prior
// attempt, capped at MaxRestartDelay.
func (m *Manager) calculateBackoffDelay(attempt int) time.Duration {
	delay := m.config.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.MaxRestartDelay {
			return m.config.MaxRestartDelay
		}
	}
	if delay > m.config.MaxRestartDelay {
		return m.config.MaxRestartDelay
	}
	return delay
}

// RecoverableError lets a process exit error declare whether a restart
// can help. Errors that do not implement it count as recoverable.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether a restart may recover from err.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return true
}

// Stop terminates the child: SIGTERM to the process group, then SIGKILL
// after the grace period. Returns nil when nothing is running.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.status != StatusRunning && m.status != StatusStarting {
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	cmd := m.cmd
	done := m.done
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil || done == nil {
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)

	// Negative PID signals the whole group set up via Setpgid.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
		}
	}

	select {
	case <-done:
		m.logger.Info("process stopped gracefully", "name", m.config.Name)
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
		}
	}

	<-done
	m.logger.Info("process killed", "name", m.config.Name)
	return nil
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning reports whether the child is currently up.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the error from the most recent unexpected exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns the consecutive restart count.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// Uptime returns how long the child has been up, or 0 when stopped.
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning {
		return 0
	}
	return time.Since(m.startTime)
}

// PID returns the child's process ID, or 0 when stopped.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats is a point-in-time snapshot of the supervised process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns the current snapshot.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Name:         m.config.Name,
		Status:       m.status,
		RestartCount: m.restartCount,
	}
	if m.cmd != nil && m.cmd.Process != nil {
		s.PID = m.cmd.Process.Pid
	}
	if m.status == StatusRunning {
		s.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		s.LastError = m.lastError.Error()
	}
	return s
}

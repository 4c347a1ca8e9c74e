package process

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(Config{
		Name:   "render-wave",
		Binary: "/usr/lib/lumen/renderer",
		Args:   []string{"wave", "104"},
	})

	if m.config.Name != "render-wave" {
		t.Errorf("Name = %q, want %q", m.config.Name, "render-wave")
	}
	if m.config.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, 5*time.Second)
	}
	if m.config.MaxRestartDelay != 5*time.Minute {
		t.Errorf("MaxRestartDelay = %v, want %v", m.config.MaxRestartDelay, 5*time.Minute)
	}
	if m.config.StableThreshold != 2*time.Minute {
		t.Errorf("StableThreshold = %v, want %v", m.config.StableThreshold, 2*time.Minute)
	}
	if m.config.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, 10*time.Second)
	}
	if m.config.HealthCheckInterval != 30*time.Second {
		t.Errorf("HealthCheckInterval = %v, want %v", m.config.HealthCheckInterval, 30*time.Second)
	}
}

func TestNewManagerCustomConfig(t *testing.T) {
	m := NewManager(Config{
		Name:                "render-ripple",
		Binary:              "/opt/lumen/renderer",
		Args:                []string{"ripple", "15"},
		RestartDelay:        10 * time.Second,
		MaxRestartDelay:     10 * time.Minute,
		StableThreshold:     5 * time.Minute,
		GracefulTimeout:     30 * time.Second,
		HealthCheckInterval: 60 * time.Second,
		MaxRestartAttempts:  20,
	})

	if m.config.RestartDelay != 10*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, 10*time.Second)
	}
	if m.config.MaxRestartDelay != 10*time.Minute {
		t.Errorf("MaxRestartDelay = %v, want %v", m.config.MaxRestartDelay, 10*time.Minute)
	}
	if m.config.MaxRestartAttempts != 20 {
		t.Errorf("MaxRestartAttempts = %d, want 20", m.config.MaxRestartAttempts)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("renderer", "/usr/lib/lumen/renderer", []string{"spiral", "5"})

	if cfg.Name != "renderer" {
		t.Errorf("Name = %q, want %q", cfg.Name, "renderer")
	}
	if cfg.Binary != "/usr/lib/lumen/renderer" {
		t.Errorf("Binary = %q, want %q", cfg.Binary, "/usr/lib/lumen/renderer")
	}
	if len(cfg.Args) != 2 || cfg.Args[0] != "spiral" {
		t.Errorf("Args = %v, want [spiral 5]", cfg.Args)
	}
	if !cfg.RestartOnFailure {
		t.Error("RestartOnFailure = false, want true")
	}
	if cfg.MaxRestartAttempts != 10 {
		t.Errorf("MaxRestartAttempts = %d, want 10", cfg.MaxRestartAttempts)
	}
}

func TestManagerInitialState(t *testing.T) {
	m := NewManager(Config{Name: "renderer", Binary: "/bin/true"})

	if m.Status() != StatusStopped {
		t.Errorf("initial Status() = %q, want %q", m.Status(), StatusStopped)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true, want false")
	}
	if m.PID() != 0 {
		t.Errorf("PID() = %d, want 0", m.PID())
	}
	if m.RestartCount() != 0 {
		t.Errorf("RestartCount() = %d, want 0", m.RestartCount())
	}
	if m.Uptime() != 0 {
		t.Errorf("Uptime() = %v, want 0", m.Uptime())
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", m.LastError())
	}
}

func TestManagerStats(t *testing.T) {
	m := NewManager(Config{Name: "render-wave", Binary: "/bin/echo"})

	stats := m.Stats()
	if stats.Name != "render-wave" {
		t.Errorf("Stats.Name = %q, want %q", stats.Name, "render-wave")
	}
	if stats.Status != StatusStopped {
		t.Errorf("Stats.Status = %q, want %q", stats.Status, StatusStopped)
	}
	if stats.PID != 0 {
		t.Errorf("Stats.PID = %d, want 0", stats.PID)
	}
	if stats.RestartCount != 0 {
		t.Errorf("Stats.RestartCount = %d, want 0", stats.RestartCount)
	}
	if stats.LastError != "" {
		t.Errorf("Stats.LastError = %q, want empty", stats.LastError)
	}
}

func TestManagerStopWhenNotRunning(t *testing.T) {
	m := NewManager(Config{Name: "renderer", Binary: "/bin/true"})

	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on stopped process error = %v, want nil", err)
	}
}

func TestManagerStartAlreadyRunning(t *testing.T) {
	m := NewManager(Config{
		Name:   "renderer",
		Binary: "/bin/sleep",
		Args:   []string{"10"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	defer m.Stop()

	if err := m.Start(ctx); err == nil {
		t.Error("second Start() expected error, got nil")
	}
}

func TestManagerStartAndStop(t *testing.T) {
	m := NewManager(Config{
		Name:            "renderer",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if !m.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}
	if m.PID() == 0 {
		t.Error("PID() = 0 after Start()")
	}
	if m.Status() != StatusRunning {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusRunning)
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	// The monitor goroutine updates state after Wait returns.
	time.Sleep(100 * time.Millisecond)

	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
}

func TestManagerStartWithInvalidBinary(t *testing.T) {
	m := NewManager(Config{
		Name:   "renderer",
		Binary: "/nonexistent/renderer",
	})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() with invalid binary expected error, got nil")
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
}

func TestManagerAttachIO(t *testing.T) {
	type attached struct {
		stdin  io.WriteCloser
		stdout io.ReadCloser
	}
	got := make(chan attached, 1)

	m := NewManager(Config{
		Name:   "render-echo",
		Binary: "/bin/cat",
		AttachIO: func(stdin io.WriteCloser, stdout io.ReadCloser) {
			got <- attached{stdin: stdin, stdout: stdout}
		},
		GracefulTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop()

	var pipes attached
	select {
	case pipes = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("AttachIO was not invoked")
	}

	// cat echoes stdin back on stdout.
	if _, err := pipes.stdin.Write([]byte("frame\n")); err != nil {
		t.Fatalf("writing stdin: %v", err)
	}
	buf := make([]byte, 6)
	if _, err := io.ReadFull(pipes.stdout, buf); err != nil {
		t.Fatalf("reading stdout: %v", err)
	}
	if string(buf) != "frame\n" {
		t.Errorf("stdout = %q, want %q", buf, "frame\n")
	}
}

func TestManagerSetLogger(t *testing.T) {
	m := NewManager(Config{Name: "renderer", Binary: "/bin/true"})
	m.SetLogger(noopLogger{})
}

func TestCalculateBackoffDelay(t *testing.T) {
	m := NewManager(Config{
		Name:            "renderer",
		Binary:          "/bin/true",
		RestartDelay:    1 * time.Second,
		MaxRestartDelay: 30 * time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{7, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := m.calculateBackoffDelay(tt.attempt); got != tt.want {
			t.Errorf("calculateBackoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestIsRecoverable(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		if !IsRecoverable(nil) {
			t.Error("IsRecoverable(nil) = false, want true")
		}
	})

	t.Run("plain error defaults to recoverable", func(t *testing.T) {
		if !IsRecoverable(context.DeadlineExceeded) {
			t.Error("plain error should be recoverable by default")
		}
	})

	t.Run("recoverable interface true", func(t *testing.T) {
		if !IsRecoverable(&fatalErr{recoverable: true}) {
			t.Error("recoverable error should return true")
		}
	})

	t.Run("recoverable interface false", func(t *testing.T) {
		if IsRecoverable(&fatalErr{recoverable: false}) {
			t.Error("non-recoverable error should return false")
		}
	})
}

type fatalErr struct {
	recoverable bool
}

func (e *fatalErr) Error() string       { return "renderer failed" }
func (e *fatalErr) IsRecoverable() bool { return e.recoverable }

func TestManagerOnStartCallback(t *testing.T) {
	started := make(chan struct{}, 1)
	m := NewManager(Config{
		Name:   "renderer",
		Binary: "/bin/sleep",
		Args:   []string{"60"},
		OnStart: func() {
			started <- struct{}{}
		},
		GracefulTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Error("OnStart callback was not called")
	}
}

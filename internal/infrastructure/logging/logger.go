package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
)

// Logger is the daemon's structured logger. It embeds slog.Logger, so the
// usual Debug/Info/Warn/Error methods with key-value pairs are available
// directly. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the daemon config.
// Every record carries the service name and the build version so log
// aggregation can tell daemon instances apart.
//
// Parameters:
//   - cfg: logging section of the loaded configuration
//   - version: build version stamped into each record
//
// Returns:
//   - *Logger: ready-to-use logger
func New(cfg config.LoggingConfig, version string) *Logger {
	handler := newHandler(cfg).WithAttrs([]slog.Attr{
		slog.String("service", "lumend"),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// newHandler picks the output stream, format and level from the config.
// Unrecognised values fall back to stdout, JSON and info.
func newHandler(cfg config.LoggingConfig) slog.Handler {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}

// parseLevel maps a config level string to a slog.Level. Case insensitive;
// anything unrecognised means info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger that attaches the given key-value pairs to
// every record. Used to tag per-component loggers:
//
//	vfsLog := log.With("component", "vfs")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a stdout JSON logger at info level for use during early
// startup, before the configuration file has been read.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

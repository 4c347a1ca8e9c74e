// Package logging provides the daemon's structured logger, a thin wrapper
// around log/slog.
//
// Output is JSON by default so journald and log shippers can parse records
// without a format string; text output exists for interactive debugging.
// Every record carries the service name and build version, and components
// derive tagged child loggers via With:
//
//	log := logging.New(cfg.Logging, version)
//	vfsLog := log.With("component", "vfs")
//	vfsLog.Info("node created", "node", 0, "path", "/var/run/lumen/lumen0")
//
// The logging section of config.yaml selects level, format and output:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Default returns a stdout JSON logger for the window between process start
// and config load, so config errors themselves are logged structurally.
package logging

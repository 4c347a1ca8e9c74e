// Package config loads and validates the daemon configuration.
//
// Configuration comes from a YAML file, with LUMEN_ environment variables
// layered on top for values that differ per host or should stay out of the
// file, such as the MQTT password. Load reads and validates once at startup;
// nothing re-reads the file at runtime.
//
// When no config file exists, Default returns the built-in settings with the
// same environment overrides applied, so the daemon runs usefully with zero
// setup.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Daemon.NodeRoot)
package config

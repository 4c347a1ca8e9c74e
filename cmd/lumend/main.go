// Lumen Core - RGB Peripheral Driver Daemon
//
// This is the main entry point for the Lumen daemon. Lumen drives
// USB RGB input peripherals (keyboards, mice, headsets, wireless
// dongles) entirely from userspace:
//   - HID discovery with hotplug polling and wireless child topology
//   - Dual-protocol wire codecs with per-device capability dispatch
//   - Profile and mode persistence mirrored to device hardware
//   - Per-device filesystem nodes (command and notification pipes)
//   - Animation rendering via a supervised external process
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/lumen-core/migrations"

	"github.com/nerrad567/lumen-core/internal/bridge"
	"github.com/nerrad567/lumen-core/internal/device"
	"github.com/nerrad567/lumen-core/internal/dispatch"
	"github.com/nerrad567/lumen-core/internal/firmware"
	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
	"github.com/nerrad567/lumen-core/internal/infrastructure/database"
	"github.com/nerrad567/lumen-core/internal/infrastructure/logging"
	"github.com/nerrad567/lumen-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lumen-core/internal/infrastructure/telemetry"
	"github.com/nerrad567/lumen-core/internal/profile"
	"github.com/nerrad567/lumen-core/internal/render"
	"github.com/nerrad567/lumen-core/internal/transport"
	"github.com/nerrad567/lumen-core/internal/vfs"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Lumen Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	cfg, err := loadConfig(log)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Core components: transport, event hub, node persistence, registry
	hid := transport.NewHID()
	hub := device.NewHub()
	nodeStore := device.NewSQLiteNodeStore(db.DB)

	registry := device.NewRegistry(hid, nodeStore, hub, device.Options{
		Session: device.SessionOptions{
			CommandTimeout: cfg.CommandTimeout(),
			RetryAttempts:  cfg.Transport.RetryAttempts,
			RetryBackoff:   cfg.RetryBackoff(),
			PollTimeout:    cfg.PollTimeout(),
			FaultThreshold: cfg.Transport.DecodeFaultThreshold,
			FaultWindow:    cfg.DecodeFaultWindow(),
		},
		IdentifyTimeout: cfg.IdentifyTimeout(),
		HotplugInterval: cfg.HotplugInterval(),
	})
	registry.SetLogger(log)

	// Profile store with hardware write-through
	profiles := profile.NewStore(db.DB)
	profiles.SetLogger(log)

	// Command dispatcher
	engine := dispatch.New(registry, profiles, hub)
	engine.SetLogger(log)

	// Animation renderer: frames from the renderer subprocess are
	// applied through the same command lock as textual commands.
	renderer := render.New(cfg.Render, func(ctx context.Context, deviceID string, frame []byte) error {
		rt, rtErr := registry.Runtime(deviceID)
		if rtErr != nil {
			return rtErr
		}
		return rt.WithCommandLock(ctx, func(ctx context.Context, s *device.Session, slot byte) error {
			apply := rt.Ops().ApplyLighting
			if apply == nil {
				return device.ErrUnsupported
			}
			return apply(ctx, s, slot, frame)
		})
	})
	renderer.SetLogger(log)
	engine.SetAnimationController(renderer)
	defer renderer.Shutdown()

	// Firmware updater
	flasher := firmware.New(registry)
	flasher.SetLogger(log)
	engine.SetFlasher(flasher)

	// Optional MQTT bridge
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Optional InfluxDB telemetry
	var telemetryClient *telemetry.Client
	if cfg.Telemetry.Enabled {
		telemetryClient, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting to telemetry: %w", err)
		}
		defer func() {
			log.Info("closing telemetry connection")
			if closeErr := telemetryClient.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		telemetryClient.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		engine.SetObserver(&latencyObserver{client: telemetryClient})
		log.Info("telemetry connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)
	} else {
		log.Info("telemetry disabled")
	}

	// Subscriptions must exist before the registry attaches the first
	// device, or subscribers miss its attach event. Both the binder
	// and the engine subscribe synchronously here and only then hand
	// off to their goroutines.
	binderEvents, binderCancel := hub.Subscribe(128)
	go runLifecycleBinder(ctx, binderEvents, binderCancel, registry, profiles, telemetryClient, log)

	engine.Start(ctx)

	nodes := vfs.New(cfg.Daemon.NodeRoot, registry, hub, engine)
	nodes.SetLogger(log)
	go func() {
		if runErr := nodes.Run(ctx); runErr != nil && ctx.Err() == nil {
			log.Error("node manager stopped", "error", runErr)
		}
	}()
	log.Info("filesystem nodes starting", "root", cfg.Daemon.NodeRoot)

	if mqttClient != nil {
		mqttBridge := bridge.New(mqttClient, engine, registry, hub, byte(cfg.MQTT.QoS))
		mqttBridge.SetLogger(log)
		go func() {
			if runErr := mqttBridge.Run(ctx); runErr != nil && ctx.Err() == nil {
				log.Error("MQTT bridge stopped", "error", runErr)
			}
		}()
	}

	// Registry last: its initial reconcile publishes attach events
	// for devices already plugged in.
	registryDone := make(chan struct{})
	go func() {
		defer close(registryDone)
		if runErr := registry.Run(ctx); runErr != nil && ctx.Err() == nil {
			log.Error("device registry stopped", "error", runErr)
		}
	}()
	log.Info("device discovery started", "interval", cfg.HotplugInterval())

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, telemetryClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Registry.Run detaches all devices when ctx ends. Wait for the
	// detach sweep so in-flight writes finish, but not forever.
	select {
	case <-registryDone:
	case <-time.After(cfg.ShutdownTimeout()):
		log.Warn("device shutdown exceeded timeout, continuing")
	}

	// The deferred Close() calls then run in reverse order:
	// 1. Telemetry (if enabled)
	// 2. MQTT (if enabled)
	// 3. Renderers
	// 4. Database

	log.Info("Lumen Core stopped")
	return nil
}

// loadConfig reads the configuration file, falling back to built-in
// defaults when no file exists at the default path. An explicitly
// configured path that cannot be read is an error.
func loadConfig(log *logging.Logger) (*config.Config, error) {
	path := os.Getenv("LUMEN_CONFIG")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			log.Info("no config file found, using defaults", "path", path)
			return config.Default(), nil
		}
		return nil, err
	}

	log.Info("configuration loaded", "path", path)
	return cfg, nil
}

// runLifecycleBinder keeps the profile store bound to attached
// devices and forwards lifecycle data to telemetry when enabled.
//
// Binding on attach (rather than inside the registry) keeps the
// registry free of profile semantics: it publishes events, and the
// store reacts to them like any other subscriber. The caller
// subscribes and passes the channel in so the subscription is live
// before this goroutine is scheduled.
func runLifecycleBinder(ctx context.Context, events <-chan device.Event, cancel func(), registry *device.Registry, profiles *profile.Store, tele *telemetry.Client, log *logging.Logger) {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case device.EventAttach:
				dev, err := registry.Get(ev.DeviceID)
				if err != nil {
					log.Warn("attach event for unknown device", "id", ev.DeviceID, "error", err)
					continue
				}
				// The dispatcher binds on demand when a command beats
				// the attach event here; rebinding would clobber any
				// mirror edits that command already made.
				if !profiles.Bound(dev.ID) {
					if err := profiles.Bind(ctx, dev.ID, dev.Serial, dev.LEDCount); err != nil {
						log.Error("binding profile store", "id", dev.ID, "serial", dev.Serial, "error", err)
					}
				}
				if tele != nil {
					tele.WriteDeviceCount(registry.Count())
				}
			case device.EventDetach:
				profiles.Release(ev.DeviceID)
				if tele != nil {
					tele.WriteDeviceCount(registry.Count())
				}
			case device.EventKey, device.EventWheel:
				if tele != nil {
					tele.WriteInputEvent(ev.Node, string(ev.Type))
				}
			case device.EventBattery:
				if tele != nil {
					tele.WriteBatteryLevel(ev.Node, ev.Level, ev.Charging)
				}
			}
		}
	}
}

// latencyObserver adapts the telemetry client to the dispatcher's
// Observer interface.
type latencyObserver struct {
	client *telemetry.Client
}

// CommandLatency implements dispatch.Observer.
func (o *latencyObserver) CommandLatency(node string, kind string, latency time.Duration) {
	o.client.WriteCommandLatency(node, kind, latency)
}

// healthCheck verifies infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - telemetryClient: Telemetry client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, telemetryClient *telemetry.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if telemetryClient != nil {
		if err := telemetryClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	return nil
}

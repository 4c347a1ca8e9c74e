// Package device provides the device registry for Lumen Core.
//
// The registry is the central catalogue of attached peripherals. It
// discovers devices through the HID transport, runs the protocol
// identification handshake, assigns stable node indices, and routes
// decoded input events to subscribers.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                         Device Registry                          │
//	│                                                                  │
//	│  ┌───────────────┐   ┌────────────────┐   ┌──────────────────┐  │
//	│  │   Registry    │   │    Session     │   │  Capability Table │  │
//	│  │ (registry.go) │──▶│  (session.go)  │◀──│ (capability.go)   │  │
//	│  │               │   │                │   │                   │  │
//	│  │ • lifecycle   │   │ • single reader│   │ • per family/class│  │
//	│  │ • hotplug     │   │ • demultiplex  │   │ • nil = unsupported│ │
//	│  │ • node index  │   │ • retries      │   │ • shared op impls │  │
//	│  └───────────────┘   └────────────────┘   └──────────────────┘  │
//	│          │                    │                                  │
//	└──────────│────────────────────│──────────────────────────────────┘
//	           │                    │
//	           ▼                    ▼
//	┌──────────────────┐   ┌──────────────────┐
//	│ SQLite node_paths│   │   HID transport  │
//	│ (repository.go)  │   │ (64-byte reports)│
//	└──────────────────┘   └──────────────────┘
//
// # Key Types
//
//   - Device: a registered peripheral, direct or dongle-relayed
//   - Session: one open connection with its reader goroutine
//   - OpSet: the capability table entry for a family and class
//   - Runtime: the live session plus the fair locks ordering access
//   - Hub: fan-out of decoded input events to subscribers
//
// # Lifecycle
//
// Devices move discovering -> identifying -> active, with active <->
// updating during firmware flashes and any state -> disconnected on
// removal. Illegal moves return ErrInvalidTransition.
//
// # Usage
//
//	store := device.NewSQLiteNodeStore(db.DB)
//	hub := device.NewHub()
//	reg := device.NewRegistry(hidTransport, store, hub, device.Options{
//	    Session:         sessOpts,
//	    HotplugInterval: time.Second,
//	})
//	reg.SetLogger(log)
//	go reg.Run(ctx)
//
//	events, cancel := hub.Subscribe(64)
//	defer cancel()
//	for ev := range events {
//	    // ev.Node, ev.Type, ...
//	}
//
// # Concurrency
//
// One reader goroutine per session demultiplexes replies and input.
// Commands queue on per-device fair locks served in arrival order;
// commands to different devices run in parallel.
package device

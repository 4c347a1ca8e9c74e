// Package vfs exposes each attached device as a small directory of
// named pipes and attribute files, the external command and
// notification surface of the daemon.
//
// # Architecture
//
//	/var/run/lumen/
//	├── lumen0/
//	│   ├── cmd        write-only FIFO, newline commands
//	│   ├── notify     read-only FIFO, textual events
//	│   ├── model      attribute file
//	│   ├── serial     attribute file
//	│   └── fwversion  attribute file
//	└── lumen1/
//	    └── ...
//
// Shell clients drive devices with nothing but redirection:
//
//	echo "mode 0 rgb ff0000" > /var/run/lumen/lumen0/cmd
//	cat /var/run/lumen/lumen0/notify
//
// # Key Types
//
//   - Manager: owns the hierarchy, one command loop per node
//   - Dispatcher: consumes command lines (the dispatch engine)
//   - Directory: resolves device records for attribute content
//
// # Notification lines
//
//	plug / unplug
//	key <hex> down|up
//	wheel <delta>
//	dpi <stage>
//	mode <index>
//	battery <level> [charging]
//	profile <index>
//	macro <hex>
//	firmware
//	ERR <identifier> <detail>
//
// Rejected commands produce an ERR line on the notify FIFO; the
// command loop itself never stops on a bad command.
//
// # Concurrency
//
// The manager holds both FIFOs of every node open read-write for the
// node's lifetime. Client opens therefore never block, and a client
// closing its end never delivers EOF to the command loop: device state
// survives channel disconnects. Notify writes are non-blocking; with
// no reader and a full pipe the event is dropped, never queued against
// the device path.
package vfs

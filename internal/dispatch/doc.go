// Package dispatch provides the textual command engine for Lumen Core.
//
// Commands arrive one per line on a device's command channel (FIFO
// node or MQTT) and are tokenized by a small fixed grammar:
//
//	mode <N> rgb <RRGGBB...|key:RRGGBB ...>
//	mode <N> bind <key> <action>
//	mode <N> unbind <key>
//	mode <N> animation <name>
//	dpi <stage,stage,...>
//	profile switch <N>
//	profile name <N> <name>
//	macro <key> <seq>
//	fwupdate <path> <sha256> <version>
//	active
//	idle
//
// Keys are hex or decimal codes; macro sequences are comma-separated
// +<key>/-<key> edges and millisecond delays.
//
// # Validation
//
// Every command is validated against the target device's capability
// table before any hardware traffic. Unsupported operations return
// device.ErrUnsupported with the class named; malformed input returns
// ErrBadArgument or ErrRange. There are no silent no-ops.
//
// # Ordering
//
// Commands on one device execute strictly in arrival order: callers
// feed lines sequentially and hardware work runs under the device's
// fair command lock. Devices never block each other.
//
// Mode edits go through the profile store's commit path, so the
// mirror only reflects writes the hardware confirmed.
package dispatch

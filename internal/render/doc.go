// Package render hosts the external animation renderer.
//
// Animation frames are never computed in the daemon. Each animated
// device gets its own renderer subprocess which emits raw frame
// buffers, 3 bytes per LED in keymap order, on stdout. The controller
// pumps those frames into a FrameSink that applies them to hardware,
// and forwards device state lines to the renderer's stdin.
//
//	┌────────────┐  frames (stdout)  ┌────────────┐  FrameSink  ┌──────────┐
//	│  renderer  │ ────────────────> │ Controller │ ──────────> │  device  │
//	│ subprocess │ <──────────────── │            │             └──────────┘
//	└────────────┘  state (stdin)    └────────────┘
//
// Renderer crashes are isolated: the process manager restarts the
// subprocess per the configured policy, and between the crash and the
// restart the device holds the last completed frame.
package render

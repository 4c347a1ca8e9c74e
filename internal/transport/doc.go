// Package transport provides HID device access for Lumen Core.
//
// The Transport interface covers the two operations the device layer
// needs: enumerating attached Lumen control interfaces and opening a
// report-level connection to one. The production implementation wraps
// hidapi via github.com/sstallion/go-hid; Mock provides a scripted
// in-memory implementation for tests.
//
// Enumeration filters to the vendor usage page. Lumen devices expose
// their control protocol on a vendor-defined HID interface alongside
// the standard boot keyboard/mouse interfaces, and only the vendor
// interface belongs to this daemon; the OS input stack keeps the rest.
package transport

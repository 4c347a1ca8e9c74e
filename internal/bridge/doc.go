// Package bridge mirrors the device node hierarchy onto MQTT for
// remote clients.
//
//	lumen/command/{node}   textual commands in, FIFO grammar
//	lumen/ack/{node}       per-command acknowledgement JSON
//	lumen/event/{node}     device event JSON out
//	lumen/state/{node}     retained device summary
//
// The bridge is optional and strictly one layer above the dispatch
// engine: commands go through the same parser and validation as the
// command FIFO, and a broker outage never affects local device
// handling.
package bridge

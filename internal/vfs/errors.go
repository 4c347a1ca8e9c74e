package vfs

import "errors"

var (
	// ErrNodeExists is returned when a node directory is created twice
	// for the same device.
	ErrNodeExists = errors.New("vfs: node already exists")

	// ErrNodeNotFound is returned when an operation references a device
	// with no node.
	ErrNodeNotFound = errors.New("vfs: node not found")
)

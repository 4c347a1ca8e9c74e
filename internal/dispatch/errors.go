package dispatch

import "errors"

var (
	// ErrUnknownCommand indicates the command verb is not in the
	// grammar.
	ErrUnknownCommand = errors.New("dispatch: unknown command")

	// ErrBadArgument indicates a malformed argument.
	ErrBadArgument = errors.New("dispatch: bad argument")

	// ErrRange indicates an argument outside its valid range.
	ErrRange = errors.New("dispatch: argument out of range")

	// ErrEmptyCommand indicates a blank command line.
	ErrEmptyCommand = errors.New("dispatch: empty command")
)

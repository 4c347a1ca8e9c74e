package render

import "errors"

// ErrNoRenderer is returned when an animation mode is requested but
// no renderer binary is configured.
var ErrNoRenderer = errors.New("render: no renderer binary configured")

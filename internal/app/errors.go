package app

import "errors"

// ErrUnknownMode is returned by Run for an unsupported mode name.
var ErrUnknownMode = errors.New("unknown mode")

package config

import "errors"

var errInvalidValue = errors.New("invalid config value")

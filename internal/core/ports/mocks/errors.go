package mocks

import "errors"

var (
	// ErrInjected is a generic failure tests can return from xxxFn hooks.
	ErrInjected = errors.New("injected failure")

	// ErrClusterNotFound is returned when a member references an unknown cluster.
	ErrClusterNotFound = errors.New("cluster not found")
)

package core

import "errors"

// Reactor limits
const (
	// MaxFD bounds the connection arena; descriptors at or above it are
	// refused.
	MaxFD = 65535
	// MaxEventNumber is the number of readiness notifications drained per
	// wait.
	MaxEventNumber = 10000
	// DefaultMaxRequests is the worker queue capacity when none is given.
	DefaultMaxRequests = 10000
)

// Error definitions
var (
	ErrEngineClosed   = errors.New("engine closed")
	ErrAlreadyRunning = errors.New("engine already running")
)

package transport

import "errors"

// Transport errors.
var (
	ErrNilQueue           = errors.New("waiting queue is required")
	ErrHostRequired       = errors.New("hub name and suffix, or a gateway host name, are required")
	ErrDestroyed          = errors.New("transport destroyed")
	ErrAlreadyRegistered  = errors.New("a device is already registered")
	ErrNotRegistered      = errors.New("no device registered")
	ErrCredentialMismatch = errors.New("device does not match the transport credential")
	ErrX509Only           = errors.New("option requires an X.509 credential")
	ErrInvalidOption      = errors.New("invalid option value")
	ErrEventQueued        = errors.New("event is already queued")
	ErrAuthTimeout        = errors.New("cbs authentication timed out")
	ErrClock              = errors.New("clock unavailable")
)

package vehicle

import "errors"

var (
	// ErrInvalidConfig is returned by New for a missing vehicle id or dialer.
	ErrInvalidConfig = errors.New("vehicle: invalid session configuration")

	// ErrClosed is returned by Start after Shutdown.
	ErrClosed = errors.New("vehicle: session is shut down")

	// ErrNoStore is returned by Snapshot when no store was supplied.
	ErrNoStore = errors.New("vehicle: no snapshot store configured")
)

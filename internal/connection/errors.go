package connection

import "errors"

// Connection errors. Use errors.Is() to check for these.
var (
	// ErrTransport wraps broker and network failures. They are retried.
	ErrTransport = errors.New("connection: transport error")

	// ErrAuth wraps credential or identity refusals. They are never retried.
	ErrAuth = errors.New("connection: authentication rejected")

	// ErrNotConnected is returned by Publish outside the connected state.
	ErrNotConnected = errors.New("connection: not connected")

	// ErrRetriesExhausted is passed to OnFatal after MaxAttempts consecutive
	// reconnect failures.
	ErrRetriesExhausted = errors.New("connection: reconnect attempts exhausted")

	// ErrShuttingDown is returned for requests made during or after Shutdown.
	ErrShuttingDown = errors.New("connection: shutting down")
)

package command

import "errors"

// Command errors. They are carried in Result.Err; SendCommand never returns
// an error directly.
var (
	// ErrTimeout is set when no reply arrived within the command timeout.
	ErrTimeout = errors.New("command: timeout")

	// ErrExpired is set when a pending command was failed by the stale sweep
	// or by shutdown.
	ErrExpired = errors.New("command: expired")

	// ErrRateLimited is set when the rate limiter denied the call.
	ErrRateLimited = errors.New("command: rate limit exceeded")

	// ErrNotConnected is set when the transport is not connected.
	ErrNotConnected = errors.New("command: not connected")

	// ErrPublishFailed is set when the command could not be published.
	ErrPublishFailed = errors.New("command: publish failed")

	// ErrClosed is set for calls made after Shutdown.
	ErrClosed = errors.New("command: correlator closed")

	// ErrEmptyCommand is set when the command text is blank.
	ErrEmptyCommand = errors.New("command: empty command")
)

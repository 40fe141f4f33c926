package store

import "errors"

var (
	// ErrObjectIDRequired is returned when an object id is empty.
	ErrObjectIDRequired = errors.New("store: object id is required")

	// ErrInvalidRetention is returned for a non-positive retention window.
	ErrInvalidRetention = errors.New("store: retention must be positive")
)

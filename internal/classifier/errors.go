package classifier

import "errors"

// Domain-specific errors for topic parsing.
var (
	// ErrForeignTopic indicates the topic does not belong to this vehicle.
	ErrForeignTopic = errors.New("classifier: topic not for this vehicle")

	// ErrSkippedTopic indicates a vehicle topic that never produces objects
	// (command traffic, events).
	ErrSkippedTopic = errors.New("classifier: topic skipped")
)

package dispatcher

import "errors"

// ErrPanic indicates a dispatch that panicked and was recovered.
var ErrPanic = errors.New("dispatcher: panic while dispatching")

package auth

import "errors"

// Sentinel errors for token operations.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrNoSecret     = errors.New("auth: signing secret is not configured")
	ErrForbidden    = errors.New("auth: insufficient scope")
)

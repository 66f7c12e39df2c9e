package withdrawal

import "errors"

// Sentinel errors for invalid lifecycle transitions.
var (
	ErrNotFound           = errors.New("withdrawal: not found")
	ErrInvalidTransition  = errors.New("withdrawal: invalid lifecycle transition")
)

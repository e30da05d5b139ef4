package request

import "errors"

var (
	// ErrNotFound indicates no request exists under the given id.
	ErrNotFound = errors.New("request not found")
	// ErrInvalidTransition indicates a status change that violates the
	// request state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

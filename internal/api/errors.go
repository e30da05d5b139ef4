package api

import "errors"

var (
	// ErrValidation marks a submission rejected before any state was created.
	ErrValidation = errors.New("invalid submission")

	// ErrUnresolved is returned when natural language text matches no known
	// operation.
	ErrUnresolved = errors.New("no operations recognized")

	// ErrNotReady is returned when a download is requested before the chain
	// has produced an artifact.
	ErrNotReady = errors.New("result not ready")
)

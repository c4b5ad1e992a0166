package errors

import "errors"

var (
	ErrNotFound = errors.New("trip not found")

	ErrInvalidID = errors.New("invalid trip ID format")

	// ErrInvalidTransition means the trip is not in a status from which the
	// requested lifecycle change is allowed.
	ErrInvalidTransition = errors.New("invalid trip status transition")
)

package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrOrderNotFound = errors.New("no booking for order code")

	// ErrHoldExpired means the hold window has already lapsed, so the
	// requested operation can no longer apply.
	ErrHoldExpired = errors.New("hold has expired")

	// ErrInvalidExtension means the requested extension is malformed or
	// would push the hold past the maximum allowed window.
	ErrInvalidExtension = errors.New("invalid hold extension")

	// ErrInvalidState means the booking is not in a status that permits the
	// requested lifecycle change.
	ErrInvalidState = errors.New("booking status does not permit operation")
)

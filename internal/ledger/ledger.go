// Package ledger is the single authority over trip seat status. All seat
// transitions go through it; trips and bookings never flip seat state
// directly.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTripNotFound = errors.New("trip not found in seat ledger")

	// ErrHoldNotFound means the seats are not currently held (or booked)
	// by the given booking, typically because the hold expired and the
	// seats were reclaimed.
	ErrHoldNotFound = errors.New("seats not held by booking")

	// ErrConcurrentConflict is returned after bounded retries when
	// contending writers keep invalidating the operation.
	ErrConcurrentConflict = errors.New("concurrent seat update conflict")
)

// SeatUnavailableError lists exactly which requested seats were not
// available, so the caller can offer alternatives.
type SeatUnavailableError struct {
	Seats []string
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seats unavailable: %s", strings.Join(e.Seats, ", "))
}

// Ledger exposes the atomic seat operations. Every multi-seat operation is
// all-or-nothing: either every requested seat transitions, or none do.
type Ledger interface {
	// Reserve flips every requested seat AVAILABLE -> HELD under the given
	// booking, with a deadline of now + holdFor, and returns the deadline.
	Reserve(ctx context.Context, tripID string, seats []string, bookingID string, holdFor time.Duration) (time.Time, error)

	// Confirm flips HELD -> BOOKED for seats currently held by the booking.
	Confirm(ctx context.Context, tripID string, seats []string, bookingID string) error

	// Release flips HELD -> AVAILABLE for seats currently held by the
	// booking. Releasing seats that are no longer held is a no-op success.
	Release(ctx context.Context, tripID string, seats []string, bookingID string) error

	// Unbook flips BOOKED -> AVAILABLE for seats booked by the booking,
	// used on post-payment cancellation. Idempotent like Release.
	Unbook(ctx context.Context, tripID string, seats []string, bookingID string) error

	// Extend refreshes the hold deadline for seats currently held by the
	// booking.
	Extend(ctx context.Context, tripID string, seats []string, bookingID string, until time.Time) error
}

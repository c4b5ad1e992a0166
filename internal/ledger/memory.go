package ledger

import (
	"context"
	"sync"
	"time"

	"busway/pkg/model"

	"github.com/jonboulle/clockwork"
)

// memoryLedger keeps the seat map of each trip behind a per-trip mutex, a
// short-held exclusive section scoped so bookings on different trips never
// block each other. It backs deployments without MongoDB and the test
// suite.
type memoryLedger struct {
	clock clockwork.Clock

	mu    sync.RWMutex
	trips map[string]*tripSeats
}

type tripSeats struct {
	mu    sync.Mutex
	seats map[string]*seatState
}

type seatState struct {
	status        model.SeatStatus
	bookingID     string
	holdExpiresAt time.Time
}

type MemoryLedger struct {
	*memoryLedger
}

func NewMemoryLedger(clock clockwork.Clock) *MemoryLedger {
	return &MemoryLedger{&memoryLedger{
		clock: clock,
		trips: make(map[string]*tripSeats),
	}}
}

// RegisterTrip makes a trip's seats known to the ledger, all AVAILABLE.
// Registering the same trip twice is a no-op.
func (l *MemoryLedger) RegisterTrip(tripID string, seatNumbers []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.trips[tripID]; exists {
		return
	}

	seats := make(map[string]*seatState, len(seatNumbers))
	for _, number := range seatNumbers {
		seats[number] = &seatState{status: model.SeatAvailable}
	}
	l.trips[tripID] = &tripSeats{seats: seats}
}

func (l *memoryLedger) trip(tripID string) (*tripSeats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ts, exists := l.trips[tripID]
	if !exists {
		return nil, ErrTripNotFound
	}
	return ts, nil
}

func (l *memoryLedger) Reserve(ctx context.Context, tripID string, seats []string, bookingID string, holdFor time.Duration) (time.Time, error) {
	ts, err := l.trip(tripID)
	if err != nil {
		return time.Time{}, err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	var unavailable []string
	for _, number := range seats {
		seat, exists := ts.seats[number]
		if !exists || seat.status != model.SeatAvailable {
			unavailable = append(unavailable, number)
		}
	}
	if len(unavailable) > 0 {
		return time.Time{}, &SeatUnavailableError{Seats: unavailable}
	}

	deadline := l.clock.Now().UTC().Truncate(time.Millisecond).Add(holdFor)
	for _, number := range seats {
		seat := ts.seats[number]
		seat.status = model.SeatHeld
		seat.bookingID = bookingID
		seat.holdExpiresAt = deadline
	}
	return deadline, nil
}

func (l *memoryLedger) Confirm(ctx context.Context, tripID string, seats []string, bookingID string) error {
	ts, err := l.trip(tripID)
	if err != nil {
		return err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	for _, number := range seats {
		seat, exists := ts.seats[number]
		if !exists || seat.status != model.SeatHeld || seat.bookingID != bookingID {
			return ErrHoldNotFound
		}
	}
	for _, number := range seats {
		seat := ts.seats[number]
		seat.status = model.SeatBooked
		seat.holdExpiresAt = time.Time{}
	}
	return nil
}

func (l *memoryLedger) Release(ctx context.Context, tripID string, seats []string, bookingID string) error {
	return l.free(ctx, tripID, seats, bookingID, model.SeatHeld)
}

func (l *memoryLedger) Unbook(ctx context.Context, tripID string, seats []string, bookingID string) error {
	return l.free(ctx, tripID, seats, bookingID, model.SeatBooked)
}

func (l *memoryLedger) free(_ context.Context, tripID string, seats []string, bookingID string, from model.SeatStatus) error {
	ts, err := l.trip(tripID)
	if err != nil {
		return err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	for _, number := range seats {
		seat, exists := ts.seats[number]
		if !exists {
			continue
		}
		if seat.status == from && seat.bookingID == bookingID {
			seat.status = model.SeatAvailable
			seat.bookingID = ""
			seat.holdExpiresAt = time.Time{}
		}
	}
	return nil
}

func (l *memoryLedger) Extend(ctx context.Context, tripID string, seats []string, bookingID string, until time.Time) error {
	ts, err := l.trip(tripID)
	if err != nil {
		return err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	for _, number := range seats {
		seat, exists := ts.seats[number]
		if !exists || seat.status != model.SeatHeld || seat.bookingID != bookingID {
			return ErrHoldNotFound
		}
	}
	deadline := until.UTC().Truncate(time.Millisecond)
	for _, number := range seats {
		ts.seats[number].holdExpiresAt = deadline
	}
	return nil
}

// SeatStatus reports a seat's current status and owner, for tests and
// diagnostics.
func (l *MemoryLedger) SeatStatus(tripID, seatNumber string) (model.SeatStatus, string, bool) {
	ts, err := l.trip(tripID)
	if err != nil {
		return "", "", false
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	seat, exists := ts.seats[seatNumber]
	if !exists {
		return "", "", false
	}
	return seat.status, seat.bookingID, true
}

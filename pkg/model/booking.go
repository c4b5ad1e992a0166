package model

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingHeld      BookingStatus = "HELD"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingExpired   BookingStatus = "EXPIRED"
	BookingCompleted BookingStatus = "COMPLETED"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type Passenger struct {
	Name       string `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Phone      string `json:"phone,omitempty" bson:"phone,omitempty"`
	SeatNumber string `json:"seat_number" bson:"seat_number" validate:"required,max=6"`
	Price      int64  `json:"price" bson:"price"`
}

// Booking is a claim on a non-empty set of seats belonging to one trip.
// Pricing totals are computed with the commission rate effective at claim
// time and frozen here; later rate changes never alter an existing booking.
type Booking struct {
	ID           string        `json:"id,omitempty" bson:"_id,omitempty"`
	TripID       string        `json:"trip_id" bson:"trip_id"`
	UserID       string        `json:"user_id,omitempty" bson:"user_id,omitempty"`
	ContactPhone string        `json:"contact_phone" bson:"contact_phone"`
	Passengers   []Passenger   `json:"passengers" bson:"passengers"`
	TotalAmount  int64         `json:"total_amount" bson:"total_amount"`
	Commission   int64         `json:"commission" bson:"commission"`
	NetRevenue   int64         `json:"net_revenue" bson:"net_revenue"`
	Status       BookingStatus `json:"status" bson:"status"`

	// HeldAt is the start of the hold window, HeldUntil its current
	// deadline. Both are set iff the booking has been through HELD.
	HeldAt    *time.Time `json:"held_at,omitempty" bson:"held_at,omitempty"`
	HeldUntil *time.Time `json:"held_until,omitempty" bson:"held_until,omitempty"`

	PaymentStatus  PaymentStatus `json:"payment_status" bson:"payment_status"`
	RefundRequired bool          `json:"refund_required,omitempty" bson:"refund_required,omitempty"`
	GatewayTxnID   string        `json:"gateway_txn_id,omitempty" bson:"gateway_txn_id,omitempty"`
	OrderCode      string        `json:"order_code" bson:"order_code"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// SeatNumbers returns the seats this booking claims, in passenger order.
func (b *Booking) SeatNumbers() []string {
	seats := make([]string, 0, len(b.Passengers))
	for _, p := range b.Passengers {
		seats = append(seats, p.SeatNumber)
	}
	return seats
}

// Lapsed reports whether a HELD booking's deadline has passed at the given
// instant.
func (b *Booking) Lapsed(now time.Time) bool {
	return b.Status == BookingHeld && b.HeldUntil != nil && !b.HeldUntil.After(now)
}

// ClaimRequest is the inbound payload for the atomic multi-seat claim.
type ClaimRequest struct {
	TripID       string           `json:"trip_id" validate:"required,mongodb"`
	UserID       string           `json:"user_id,omitempty" validate:"omitempty,mongodb"`
	ContactPhone string           `json:"contact_phone" validate:"required,contact_phone"`
	Passengers   []PassengerInput `json:"passengers" validate:"required,min=1,max=60,dive"`
}

type PassengerInput struct {
	Name       string `json:"name" validate:"required,min=2,max=100"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,contact_phone"`
	SeatNumber string `json:"seat_number" validate:"required,max=6"`
}

// SeatNumbers returns the requested seats in passenger order.
func (r *ClaimRequest) SeatNumbers() []string {
	seats := make([]string, 0, len(r.Passengers))
	for _, p := range r.Passengers {
		seats = append(seats, p.SeatNumber)
	}
	return seats
}

type ExtendHoldRequest struct {
	AdditionalMinutes int `json:"additional_minutes" validate:"omitempty,min=1,max=120"`
}

// Package pricing computes booking totals and the platform commission in
// minor currency units.
package pricing

import (
	"errors"
	"fmt"
	"math"
)

const DefaultCommissionRate = 0.15

var ErrInvalidPricingInput = errors.New("invalid pricing input")

type Quote struct {
	TotalAmount int64 `json:"total_amount"`
	Commission  int64 `json:"commission"`
	NetRevenue  int64 `json:"net_revenue"`
}

// Calculate prices a set of seats on a trip. Commission is rounded half-up
// to the currency's smallest unit; netRevenue is what remains for the
// operator. Callers pass the commission rate effective at claim time and
// persist the result, so later rate changes never reprice a booking.
func Calculate(seatPrice int64, seatCount int, rate float64) (Quote, error) {
	if seatPrice < 0 {
		return Quote{}, fmt.Errorf("%w: seat price must not be negative, got %d", ErrInvalidPricingInput, seatPrice)
	}
	if seatCount < 0 {
		return Quote{}, fmt.Errorf("%w: seat count must not be negative, got %d", ErrInvalidPricingInput, seatCount)
	}
	if rate < 0 {
		return Quote{}, fmt.Errorf("%w: commission rate must not be negative, got %g", ErrInvalidPricingInput, rate)
	}

	total := seatPrice * int64(seatCount)
	commission := int64(math.Floor(float64(total)*rate + 0.5))

	return Quote{
		TotalAmount: total,
		Commission:  commission,
		NetRevenue:  total - commission,
	}, nil
}

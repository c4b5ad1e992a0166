package model

import "time"

type TripStatus string

const (
	TripScheduled TripStatus = "SCHEDULED"
	TripDeparted  TripStatus = "DEPARTED"
	TripArrived   TripStatus = "ARRIVED"
	TripCancelled TripStatus = "CANCELLED"
)

type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatHeld      SeatStatus = "HELD"
	SeatBooked    SeatStatus = "BOOKED"
)

// TripSeat is one physical seat slot on one trip. A seat with status
// AVAILABLE carries no booking reference; HELD and BOOKED seats reference
// exactly one booking.
type TripSeat struct {
	Number        string     `json:"number" bson:"number"`
	Status        SeatStatus `json:"status" bson:"status"`
	BookingID     string     `json:"booking_id,omitempty" bson:"booking_id,omitempty"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty" bson:"hold_expires_at,omitempty"`
}

// SeatMapLayout is the immutable seat grid copied onto a trip at creation
// time. Nil cells are aisles. Later vehicle edits never change an existing
// trip's geometry.
type SeatMapLayout struct {
	Rows       int         `json:"rows" bson:"rows"`
	Columns    int         `json:"columns" bson:"columns"`
	TotalSeats int         `json:"total_seats" bson:"total_seats"`
	Grid       [][]*string `json:"grid" bson:"grid"`
}

type Trip struct {
	ID            string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	VehicleID     string        `json:"vehicle_id" bson:"vehicle_id" validate:"required"`
	Route         string        `json:"route" bson:"route" validate:"required,min=2,max=200"`
	DepartureTime time.Time     `json:"departure_time" bson:"departure_time" validate:"required"`
	ArrivalTime   time.Time     `json:"arrival_time" bson:"arrival_time" validate:"required,gtfield=DepartureTime"`
	SeatPrice     int64         `json:"seat_price" bson:"seat_price" validate:"min=0"`
	Status        TripStatus    `json:"status" bson:"status"`
	Seats         []TripSeat    `json:"seats" bson:"seats"`
	SeatMap       SeatMapLayout `json:"seat_map" bson:"seat_map"`
	CreatedAt     time.Time     `json:"created_at" bson:"created_at"`
}

// TripCreate is the request payload for creating a trip from a vehicle's
// physical layout description.
type TripCreate struct {
	VehicleID     string    `json:"vehicle_id" validate:"required"`
	Route         string    `json:"route" validate:"required,min=2,max=200"`
	DepartureTime time.Time `json:"departure_time" validate:"required"`
	ArrivalTime   time.Time `json:"arrival_time" validate:"required,gtfield=DepartureTime"`
	SeatPrice     int64     `json:"seat_price" validate:"min=0"`
	Rows          int       `json:"rows" validate:"required,min=1,max=30"`
	Columns       int       `json:"columns" validate:"required,min=1,max=10"`
	Aisles        []int     `json:"aisles" validate:"omitempty,dive,min=1"`
	SeatPrefix    string    `json:"seat_prefix" validate:"omitempty,max=4"`
}

// Seat returns the seat record with the given number, or nil.
func (t *Trip) Seat(number string) *TripSeat {
	for i := range t.Seats {
		if t.Seats[i].Number == number {
			return &t.Seats[i]
		}
	}
	return nil
}

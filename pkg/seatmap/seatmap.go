// Package seatmap generates the immutable seat grid a trip is created with.
package seatmap

import (
	"errors"
	"fmt"

	"busway/pkg/model"
)

var ErrInvalidLayoutConfig = errors.New("invalid seat map layout config")

// Generate builds a rows x columns grid of seat numbers from a vehicle's
// physical layout. Columns listed in aisles (1-based) become nil cells and
// do not consume a seat number. The counter is zero-padded to two digits
// and increments only on real seats.
func Generate(rows, columns int, aisles []int, prefix string) (*model.SeatMapLayout, error) {
	if rows < 1 {
		return nil, fmt.Errorf("%w: rows must be at least 1, got %d", ErrInvalidLayoutConfig, rows)
	}
	if columns < 1 {
		return nil, fmt.Errorf("%w: columns must be at least 1, got %d", ErrInvalidLayoutConfig, columns)
	}
	for _, a := range aisles {
		if a < 1 || a > columns {
			return nil, fmt.Errorf("%w: aisle column %d outside 1..%d", ErrInvalidLayoutConfig, a, columns)
		}
	}

	aisleSet := make(map[int]struct{}, len(aisles))
	for _, a := range aisles {
		aisleSet[a] = struct{}{}
	}

	layout := &model.SeatMapLayout{
		Rows:    rows,
		Columns: columns,
		Grid:    make([][]*string, rows),
	}

	counter := 0
	for r := 0; r < rows; r++ {
		row := make([]*string, columns)
		for c := 1; c <= columns; c++ {
			if _, isAisle := aisleSet[c]; isAisle {
				continue
			}
			counter++
			number := fmt.Sprintf("%s%02d", prefix, counter)
			row[c-1] = &number
		}
		layout.Grid[r] = row
	}

	if counter == 0 {
		return nil, fmt.Errorf("%w: layout produces no seats", ErrInvalidLayoutConfig)
	}

	layout.TotalSeats = counter
	return layout, nil
}

// SeatNumbers flattens the grid into the ordered list of real seats,
// top-to-bottom and left-to-right.
func SeatNumbers(layout *model.SeatMapLayout) []string {
	seats := make([]string, 0, layout.TotalSeats)
	for _, row := range layout.Grid {
		for _, cell := range row {
			if cell != nil {
				seats = append(seats, *cell)
			}
		}
	}
	return seats
}

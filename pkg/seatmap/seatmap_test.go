package seatmap

import (
	"errors"
	"testing"
)

func TestGenerate_GridWithAisle(t *testing.T) {
	layout, err := Generate(3, 4, []int{3}, "A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if layout.TotalSeats != 9 {
		t.Errorf("expected 9 seats, got %d", layout.TotalSeats)
	}

	expected := [][]string{
		{"A01", "A02", "", "A03"},
		{"A04", "A05", "", "A06"},
		{"A07", "A08", "", "A09"},
	}

	if len(layout.Grid) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(layout.Grid))
	}

	for r, row := range layout.Grid {
		if len(row) != 4 {
			t.Fatalf("row %d: expected 4 columns, got %d", r, len(row))
		}
		for c, cell := range row {
			want := expected[r][c]
			if want == "" {
				if cell != nil {
					t.Errorf("row %d col %d: expected aisle, got %q", r, c, *cell)
				}
				continue
			}
			if cell == nil {
				t.Errorf("row %d col %d: expected %q, got aisle", r, c, want)
				continue
			}
			if *cell != want {
				t.Errorf("row %d col %d: expected %q, got %q", r, c, want, *cell)
			}
		}
	}
}

func TestGenerate_NoAisles(t *testing.T) {
	layout, err := Generate(2, 2, nil, "S")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if layout.TotalSeats != 4 {
		t.Errorf("expected 4 seats, got %d", layout.TotalSeats)
	}

	seats := SeatNumbers(layout)
	want := []string{"S01", "S02", "S03", "S04"}
	if len(seats) != len(want) {
		t.Fatalf("expected %d seats, got %d", len(want), len(seats))
	}
	for i := range want {
		if seats[i] != want[i] {
			t.Errorf("seat %d: expected %q, got %q", i, want[i], seats[i])
		}
	}
}

func TestGenerate_InvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		rows    int
		columns int
		aisles  []int
	}{
		{"zero rows", 0, 4, nil},
		{"negative rows", -1, 4, nil},
		{"zero columns", 3, 0, nil},
		{"aisle below range", 3, 4, []int{0}},
		{"aisle above range", 3, 4, []int{5}},
		{"every column an aisle", 3, 2, []int{1, 2}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Generate(tc.rows, tc.columns, tc.aisles, "A")
			if !errors.Is(err, ErrInvalidLayoutConfig) {
				t.Errorf("expected ErrInvalidLayoutConfig, got %v", err)
			}
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	first, err := Generate(5, 5, []int{3}, "B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Generate(5, 5, []int{3}, "B")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, b := SeatNumbers(first), SeatNumbers(second)
	if len(a) != len(b) {
		t.Fatalf("seat counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("seat %d differs: %q vs %q", i, a[i], b[i])
		}
	}
}

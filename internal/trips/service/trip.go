package service

import (
	"context"
	"errors"
	"sync"

	tripserrors "busway/internal/trips/errors"
	"busway/internal/trips/repository"
	"busway/internal/trips/validator"
	"busway/pkg/config"
	apperrors "busway/pkg/errors"
	"busway/pkg/model"
	"busway/pkg/sanitizer"
	"busway/pkg/seatmap"
)

// BookingCloser finalizes bookings when their trip reaches a terminal
// status. Implemented by the bookings service; the interface keeps the
// dependency one-way.
type BookingCloser interface {
	CompleteForTrip(ctx context.Context, tripID string) (int64, error)
	CancelHeldForTrip(ctx context.Context, tripID string) (int64, error)
}

type TripService interface {
	Create(ctx context.Context, req *model.TripCreate) (*model.Trip, error)
	GetByID(ctx context.Context, id string) (*model.Trip, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Trip, int64, error)
	Depart(ctx context.Context, id string) (*model.Trip, error)
	Arrive(ctx context.Context, id string) (*model.Trip, error)
	Cancel(ctx context.Context, id string) (*model.Trip, error)
}

type tripService struct {
	repo      repository.TripRepository
	validator *validator.TripValidator
	closer    BookingCloser
	cfg       *config.Config
}

func NewTripService(
	repo repository.TripRepository,
	validator *validator.TripValidator,
	closer BookingCloser,
	cfg *config.Config,
) TripService {
	return &tripService{
		repo:      repo,
		validator: validator,
		closer:    closer,
		cfg:       cfg,
	}
}

func (s *tripService) Create(ctx context.Context, req *model.TripCreate) (*model.Trip, error) {
	req.Route = sanitizer.TrimAndNormalize(req.Route)
	req.SeatPrefix = sanitizer.NormalizeSeatNumber(req.SeatPrefix)

	if err := s.validator.ValidateCreate(req); err != nil {
		s.cfg.Log.Warn("Trip validation failed", "error", err)
		return nil, apperrors.Validation("Trip validation failed", map[string]any{"error": err.Error()})
	}

	prefix := req.SeatPrefix
	if prefix == "" {
		prefix = "A"
	}

	layout, err := seatmap.Generate(req.Rows, req.Columns, req.Aisles, prefix)
	if err != nil {
		if errors.Is(err, seatmap.ErrInvalidLayoutConfig) {
			return nil, apperrors.InvalidInput(err.Error())
		}
		return nil, apperrors.Internal("Failed to generate seat map", err)
	}

	numbers := seatmap.SeatNumbers(layout)
	seats := make([]model.TripSeat, 0, len(numbers))
	for _, number := range numbers {
		seats = append(seats, model.TripSeat{
			Number: number,
			Status: model.SeatAvailable,
		})
	}

	trip := &model.Trip{
		VehicleID:     req.VehicleID,
		Route:         req.Route,
		DepartureTime: req.DepartureTime,
		ArrivalTime:   req.ArrivalTime,
		SeatPrice:     req.SeatPrice,
		Status:        model.TripScheduled,
		Seats:         seats,
		SeatMap:       *layout,
	}

	if err := s.repo.Create(ctx, trip); err != nil {
		s.cfg.Log.Error("Failed to create trip", "error", err)
		return nil, apperrors.Internal("Failed to create trip", err)
	}

	s.cfg.Log.Info("Trip created",
		"id", trip.ID,
		"vehicle_id", trip.VehicleID,
		"route", trip.Route,
		"total_seats", layout.TotalSeats,
	)
	return trip, nil
}

func (s *tripService) GetByID(ctx context.Context, id string) (*model.Trip, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Trip ID cannot be empty")
	}

	trip, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapTripError(err, id)
	}

	return trip, nil
}

func (s *tripService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Trip, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var trips []*model.Trip
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count trips", "error", errCount)
			errCount = apperrors.Internal("Failed to count trips", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		trips, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list trips", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve trips", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return trips, count, nil
}

func (s *tripService) Depart(ctx context.Context, id string) (*model.Trip, error) {
	return s.transition(ctx, id, model.TripScheduled, model.TripDeparted, nil)
}

func (s *tripService) Arrive(ctx context.Context, id string) (*model.Trip, error) {
	return s.transition(ctx, id, model.TripDeparted, model.TripArrived, func(ctx context.Context) {
		completed, err := s.closer.CompleteForTrip(ctx, id)
		if err != nil {
			s.cfg.Log.Error("Failed to complete bookings for arrived trip", "trip_id", id, "error", err)
			return
		}
		if completed > 0 {
			s.cfg.Log.Info("Bookings completed for arrived trip", "trip_id", id, "count", completed)
		}
	})
}

func (s *tripService) Cancel(ctx context.Context, id string) (*model.Trip, error) {
	// The trip leaves SCHEDULED first, so the ledger rejects new claims
	// before the existing holds are torn down.
	return s.transition(ctx, id, model.TripScheduled, model.TripCancelled, func(ctx context.Context) {
		cancelled, err := s.closer.CancelHeldForTrip(ctx, id)
		if err != nil {
			s.cfg.Log.Error("Failed to cancel held bookings for cancelled trip", "trip_id", id, "error", err)
			return
		}
		if cancelled > 0 {
			s.cfg.Log.Info("Held bookings cancelled with trip", "trip_id", id, "count", cancelled)
		}
	})
}

func (s *tripService) transition(ctx context.Context, id string, from, to model.TripStatus, after func(context.Context)) (*model.Trip, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Trip ID cannot be empty")
	}

	moved, err := s.repo.TransitionStatus(ctx, id, from, to)
	if err != nil {
		return nil, mapTripError(err, id)
	}
	if !moved {
		trip, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, mapTripError(err, id)
		}
		return nil, apperrors.Conflict(
			"Trip is " + string(trip.Status) + ", cannot transition to " + string(to))
	}

	if after != nil {
		after(ctx)
	}

	s.cfg.Log.Info("Trip status changed", "id", id, "from", from, "to", to)
	return s.repo.FindByID(ctx, id)
}

func mapTripError(err error, id string) error {
	switch {
	case errors.Is(err, tripserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Trip", id)
	case errors.Is(err, tripserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid trip ID format")
	default:
		return apperrors.Internal("Trip operation failed", err)
	}
}

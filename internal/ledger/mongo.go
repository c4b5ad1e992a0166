package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"busway/pkg/config"
	"busway/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Trips"

// mongoLedger implements the ledger on the embedded seats array of the
// Trip document. A single conditional UpdateOne is the atomicity boundary:
// the filter proves every requested seat is in the expected state and the
// arrayFilters update flips them together, so a losing concurrent writer
// matches nothing and changes nothing.
type mongoLedger struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoLedger(cfg *config.Config) Ledger {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLedger{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (l *mongoLedger) Reserve(ctx context.Context, tripID string, seats []string, bookingID string, holdFor time.Duration) (time.Time, error) {
	objectID, err := primitive.ObjectIDFromHex(tripID)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrTripNotFound, tripID)
	}

	deadline := l.cfg.Clock.Now().UTC().Truncate(time.Millisecond).Add(holdFor)

	filter := bson.M{
		"_id":    objectID,
		"status": model.TripScheduled,
		"seats":  allSeatsMatch(seats, model.SeatAvailable, ""),
	}
	update := bson.M{
		"$set": bson.M{
			"seats.$[s].status":          model.SeatHeld,
			"seats.$[s].booking_id":      bookingID,
			"seats.$[s].hold_expires_at": deadline,
		},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []any{bson.M{
			"s.number": bson.M{"$in": seats},
			"s.status": model.SeatAvailable,
		}},
	})

	for attempt := 0; attempt < l.cfg.LedgerMaxRetries; attempt++ {
		result, err := l.collection.UpdateOne(ctx, filter, update, opts)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to reserve seats: %w", err)
		}
		if result.MatchedCount > 0 {
			return deadline, nil
		}

		unavailable, err := l.unavailableSeats(ctx, objectID, seats)
		if err != nil {
			return time.Time{}, err
		}
		if len(unavailable) > 0 {
			return time.Time{}, &SeatUnavailableError{Seats: unavailable}
		}
		// Every seat looked available on re-read: a contending reserve
		// won and released between our update and the diagnosis. Retry.
	}

	return time.Time{}, ErrConcurrentConflict
}

func (l *mongoLedger) Confirm(ctx context.Context, tripID string, seats []string, bookingID string) error {
	objectID, err := primitive.ObjectIDFromHex(tripID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTripNotFound, tripID)
	}

	filter := bson.M{
		"_id":   objectID,
		"seats": allSeatsMatch(seats, model.SeatHeld, bookingID),
	}
	update := bson.M{
		"$set":   bson.M{"seats.$[s].status": model.SeatBooked},
		"$unset": bson.M{"seats.$[s].hold_expires_at": ""},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []any{bson.M{
			"s.number":     bson.M{"$in": seats},
			"s.status":     model.SeatHeld,
			"s.booking_id": bookingID,
		}},
	})

	result, err := l.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to confirm seats: %w", err)
	}
	if result.MatchedCount == 0 {
		if exists, err := l.tripExists(ctx, objectID); err != nil {
			return err
		} else if !exists {
			return fmt.Errorf("%w: %s", ErrTripNotFound, tripID)
		}
		return ErrHoldNotFound
	}
	return nil
}

func (l *mongoLedger) Release(ctx context.Context, tripID string, seats []string, bookingID string) error {
	return l.free(ctx, tripID, seats, bookingID, model.SeatHeld)
}

func (l *mongoLedger) Unbook(ctx context.Context, tripID string, seats []string, bookingID string) error {
	return l.free(ctx, tripID, seats, bookingID, model.SeatBooked)
}

// free returns seats in the given state back to AVAILABLE, touching only
// seats owned by the booking. Seats already freed are skipped, which makes
// the operation idempotent.
func (l *mongoLedger) free(ctx context.Context, tripID string, seats []string, bookingID string, from model.SeatStatus) error {
	objectID, err := primitive.ObjectIDFromHex(tripID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTripNotFound, tripID)
	}

	filter := bson.M{"_id": objectID}
	update := bson.M{
		"$set": bson.M{"seats.$[s].status": model.SeatAvailable},
		"$unset": bson.M{
			"seats.$[s].booking_id":      "",
			"seats.$[s].hold_expires_at": "",
		},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []any{bson.M{
			"s.number":     bson.M{"$in": seats},
			"s.status":     from,
			"s.booking_id": bookingID,
		}},
	})

	result, err := l.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrTripNotFound, tripID)
	}
	return nil
}

func (l *mongoLedger) Extend(ctx context.Context, tripID string, seats []string, bookingID string, until time.Time) error {
	objectID, err := primitive.ObjectIDFromHex(tripID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTripNotFound, tripID)
	}

	filter := bson.M{
		"_id":   objectID,
		"seats": allSeatsMatch(seats, model.SeatHeld, bookingID),
	}
	update := bson.M{
		"$set": bson.M{"seats.$[s].hold_expires_at": until.UTC().Truncate(time.Millisecond)},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []any{bson.M{
			"s.number":     bson.M{"$in": seats},
			"s.status":     model.SeatHeld,
			"s.booking_id": bookingID,
		}},
	})

	result, err := l.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to extend hold: %w", err)
	}
	if result.MatchedCount == 0 {
		if exists, err := l.tripExists(ctx, objectID); err != nil {
			return err
		} else if !exists {
			return fmt.Errorf("%w: %s", ErrTripNotFound, tripID)
		}
		return ErrHoldNotFound
	}
	return nil
}

// allSeatsMatch builds a $all filter requiring every requested seat to be
// present in the expected status (and owner, when ownedBy is non-empty).
func allSeatsMatch(seats []string, status model.SeatStatus, ownedBy string) bson.M {
	elems := make([]any, 0, len(seats))
	for _, seat := range seats {
		match := bson.M{
			"number": seat,
			"status": status,
		}
		if ownedBy != "" {
			match["booking_id"] = ownedBy
		}
		elems = append(elems, bson.M{"$elemMatch": match})
	}
	return bson.M{"$all": elems}
}

// unavailableSeats re-reads the trip and reports which of the requested
// seats are missing or not AVAILABLE.
func (l *mongoLedger) unavailableSeats(ctx context.Context, tripID primitive.ObjectID, seats []string) ([]string, error) {
	var trip model.Trip
	err := l.collection.FindOne(ctx, bson.M{"_id": tripID}).Decode(&trip)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrTripNotFound, tripID.Hex())
		}
		return nil, fmt.Errorf("failed to inspect trip seats: %w", err)
	}

	if trip.Status != model.TripScheduled {
		// A trip no longer open for booking makes every seat unavailable.
		return seats, nil
	}

	var unavailable []string
	for _, number := range seats {
		seat := trip.Seat(number)
		if seat == nil || seat.Status != model.SeatAvailable {
			unavailable = append(unavailable, number)
		}
	}
	return unavailable, nil
}

func (l *mongoLedger) tripExists(ctx context.Context, tripID primitive.ObjectID) (bool, error) {
	count, err := l.collection.CountDocuments(ctx, bson.M{"_id": tripID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check trip existence: %w", err)
	}
	return count > 0, nil
}

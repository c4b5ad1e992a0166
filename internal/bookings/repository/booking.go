package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingerrors "busway/internal/bookings/errors"
	"busway/pkg/config"
	"busway/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Bookings"

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindByOrderCode(ctx context.Context, orderCode string) (*model.Booking, error)
	FindByTrip(ctx context.Context, tripID string) ([]*model.Booking, error)

	// FindLapsedHeld returns HELD bookings whose deadline is at or before
	// the cutoff, oldest deadline first, capped at limit.
	FindLapsedHeld(ctx context.Context, cutoff time.Time, limit int) ([]*model.Booking, error)

	// SetHoldDeadline moves the hold deadline of a booking that is still
	// HELD, reporting whether the update applied.
	SetHoldDeadline(ctx context.Context, id string, until time.Time) (bool, error)

	// MarkConfirmed flips HELD -> CONFIRMED with payment PAID, reporting
	// whether the booking was still HELD.
	MarkConfirmed(ctx context.Context, id string, transactionID string) (bool, error)

	// MarkCancelled flips the booking to CANCELLED when its current status
	// is one of the given ones.
	MarkCancelled(ctx context.Context, id string, from []model.BookingStatus, payment model.PaymentStatus, refundRequired bool) (bool, error)

	// MarkExpired flips HELD -> EXPIRED with payment FAILED.
	MarkExpired(ctx context.Context, id string) (bool, error)

	// MarkCompletedForTrip flips every CONFIRMED booking of the trip to
	// COMPLETED and returns how many were moved.
	MarkCompletedForTrip(ctx context.Context, tripID string) (int64, error)

	// RecordPaymentForLostHold handles payment arriving after the hold was
	// lost: the booking lands in CANCELLED with the payment captured and
	// flagged for refund.
	RecordPaymentForLostHold(ctx context.Context, id string, transactionID string) error
}

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

// Booking IDs are generated by the service before seats are reserved, so
// the _id is stored as the hex string rather than a native ObjectID.
func validateID(id string) error {
	if !primitive.IsValidObjectID(id) {
		return fmt.Errorf("%w: %s", bookingerrors.ErrInvalidID, id)
	}
	return nil
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	booking.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if err := validateID(id); err != nil {
		return nil, err
	}

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) FindByOrderCode(ctx context.Context, orderCode string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"order_code": orderCode}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingerrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find booking by order code: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) FindByTrip(ctx context.Context, tripID string) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"trip_id": tripID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings for trip: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) FindLapsedHeld(ctx context.Context, cutoff time.Time, limit int) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"status":     model.BookingHeld,
		"held_until": bson.M{"$lte": cutoff},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "held_until", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find lapsed holds: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode lapsed holds: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) SetHoldDeadline(ctx context.Context, id string, until time.Time) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := validateID(id); err != nil {
		return false, err
	}

	filter := bson.M{"_id": id, "status": model.BookingHeld}
	update := bson.M{"$set": bson.M{"held_until": until}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to set hold deadline: %w", err)
	}

	return result.MatchedCount > 0, nil
}

func (r *mongoBookingRepository) MarkConfirmed(ctx context.Context, id string, transactionID string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := validateID(id); err != nil {
		return false, err
	}

	filter := bson.M{"_id": id, "status": model.BookingHeld}
	update := bson.M{"$set": bson.M{
		"status":         model.BookingConfirmed,
		"payment_status": model.PaymentPaid,
		"gateway_txn_id": transactionID,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to confirm booking: %w", err)
	}

	return result.MatchedCount > 0, nil
}

func (r *mongoBookingRepository) MarkCancelled(ctx context.Context, id string, from []model.BookingStatus, payment model.PaymentStatus, refundRequired bool) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := validateID(id); err != nil {
		return false, err
	}

	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	set := bson.M{
		"status":         model.BookingCancelled,
		"payment_status": payment,
	}
	if refundRequired {
		set["refund_required"] = true
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to cancel booking: %w", err)
	}

	return result.MatchedCount > 0, nil
}

func (r *mongoBookingRepository) MarkExpired(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := validateID(id); err != nil {
		return false, err
	}

	filter := bson.M{"_id": id, "status": model.BookingHeld}
	update := bson.M{"$set": bson.M{
		"status":         model.BookingExpired,
		"payment_status": model.PaymentFailed,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to expire booking: %w", err)
	}

	return result.MatchedCount > 0, nil
}

func (r *mongoBookingRepository) MarkCompletedForTrip(ctx context.Context, tripID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"trip_id": tripID, "status": model.BookingConfirmed}
	update := bson.M{"$set": bson.M{"status": model.BookingCompleted}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to complete bookings for trip: %w", err)
	}

	return result.ModifiedCount, nil
}

func (r *mongoBookingRepository) RecordPaymentForLostHold(ctx context.Context, id string, transactionID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := validateID(id); err != nil {
		return err
	}

	// Two steps: the status flip is conditional so a booking that was
	// already CANCELLED keeps its status, and the payment capture is
	// conditional on the booking actually sitting in CANCELLED, so a
	// CONFIRMED or COMPLETED booking can never be flagged for refund here.
	statusFilter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": []model.BookingStatus{model.BookingHeld, model.BookingExpired}},
	}
	if _, err := r.collection.UpdateOne(ctx, statusFilter, bson.M{"$set": bson.M{"status": model.BookingCancelled}}); err != nil {
		return fmt.Errorf("failed to cancel booking for lost hold: %w", err)
	}

	paymentFilter := bson.M{"_id": id, "status": model.BookingCancelled}
	paymentUpdate := bson.M{"$set": bson.M{
		"payment_status":  model.PaymentPaid,
		"gateway_txn_id":  transactionID,
		"refund_required": true,
	}}
	result, err := r.collection.UpdateOne(ctx, paymentFilter, paymentUpdate)
	if err != nil {
		return fmt.Errorf("failed to record payment for lost hold: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: booking %s did not land in CANCELLED", bookingerrors.ErrInvalidState, id)
	}

	return nil
}

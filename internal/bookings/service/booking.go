package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingerrors "busway/internal/bookings/errors"
	"busway/internal/bookings/repository"
	"busway/internal/bookings/validator"
	"busway/internal/events"
	"busway/internal/ledger"
	tripserrors "busway/internal/trips/errors"
	triprepo "busway/internal/trips/repository"
	"busway/pkg/config"
	apperrors "busway/pkg/errors"
	"busway/pkg/model"
	"busway/pkg/pricing"
	"busway/pkg/sanitizer"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingService interface {
	// Claim atomically reserves the requested seats and creates a HELD
	// booking with a payment deadline.
	Claim(ctx context.Context, req *model.ClaimRequest) (*model.Booking, error)

	GetByID(ctx context.Context, id string) (*model.Booking, error)
	ListByTrip(ctx context.Context, tripID string) ([]*model.Booking, error)

	// ExtendHold pushes the payment deadline of a HELD booking forward,
	// bounded by the maximum cumulative hold window.
	ExtendHold(ctx context.Context, id string, req *model.ExtendHoldRequest) (*model.Booking, error)

	// Cancel releases a HELD booking's seats, or frees a CONFIRMED
	// booking's seats and flags it for refund.
	Cancel(ctx context.Context, id string) (*model.Booking, error)

	// ReportPayment applies a reconciled gateway outcome to the booking
	// identified by its order code.
	ReportPayment(ctx context.Context, outcome model.PaymentOutcome) (*model.Booking, error)

	// CompleteForTrip closes out CONFIRMED bookings when their trip
	// arrives.
	CompleteForTrip(ctx context.Context, tripID string) (int64, error)

	// CancelHeldForTrip releases the seats of every HELD booking on the
	// trip and cancels the bookings, used when the trip itself is
	// cancelled.
	CancelHeldForTrip(ctx context.Context, tripID string) (int64, error)

	// ExpireLapsed reaps HELD bookings whose deadline has passed,
	// returning how many were expired.
	ExpireLapsed(ctx context.Context) (int, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	trips     triprepo.TripRepository
	ledger    ledger.Ledger
	validator *validator.BookingValidator
	publisher events.Publisher
	cfg       *config.Config
}

func NewBookingService(
	repo repository.BookingRepository,
	trips triprepo.TripRepository,
	seatLedger ledger.Ledger,
	bookingValidator *validator.BookingValidator,
	publisher events.Publisher,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		trips:     trips,
		ledger:    seatLedger,
		validator: bookingValidator,
		publisher: publisher,
		cfg:       cfg,
	}
}

func (s *bookingService) Claim(ctx context.Context, req *model.ClaimRequest) (*model.Booking, error) {
	sanitizeClaim(req)

	if err := s.validator.ValidateClaim(req); err != nil {
		s.cfg.Log.Warn("Claim validation failed", "error", err)
		return nil, apperrors.Validation("Claim validation failed", map[string]any{"error": err.Error()})
	}

	trip, err := s.trips.FindByID(ctx, req.TripID)
	if err != nil {
		return nil, mapTripLookupError(err, req.TripID)
	}
	if trip.Status != model.TripScheduled {
		return nil, apperrors.Conflict(
			fmt.Sprintf("Trip is %s, seats can only be claimed on a scheduled trip", trip.Status))
	}

	quote, err := pricing.Calculate(trip.SeatPrice, len(req.Passengers), s.cfg.CommissionRate)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	// The booking ID is minted before the reservation so the ledger can
	// record the hold owner; the booking document is written second and
	// the hold compensated if that write fails.
	bookingID := primitive.NewObjectID().Hex()
	seats := req.SeatNumbers()

	deadline, err := s.ledger.Reserve(ctx, req.TripID, seats, bookingID, s.cfg.HoldDuration)
	if err != nil {
		return nil, mapLedgerError(err)
	}

	heldAt := s.cfg.Clock.Now().UTC().Truncate(time.Millisecond)
	heldUntil := deadline.UTC().Truncate(time.Millisecond)

	passengers := make([]model.Passenger, 0, len(req.Passengers))
	for _, p := range req.Passengers {
		passengers = append(passengers, model.Passenger{
			Name:       p.Name,
			Phone:      p.Phone,
			SeatNumber: p.SeatNumber,
			Price:      trip.SeatPrice,
		})
	}

	booking := &model.Booking{
		ID:            bookingID,
		TripID:        req.TripID,
		UserID:        req.UserID,
		ContactPhone:  req.ContactPhone,
		Passengers:    passengers,
		TotalAmount:   quote.TotalAmount,
		Commission:    quote.Commission,
		NetRevenue:    quote.NetRevenue,
		Status:        model.BookingHeld,
		HeldAt:        &heldAt,
		HeldUntil:     &heldUntil,
		PaymentStatus: model.PaymentPending,
		OrderCode:     uuid.NewString(),
	}

	if err := s.repo.Create(ctx, booking); err != nil {
		s.cfg.Log.Error("Failed to persist claim, releasing seats",
			"booking_id", bookingID, "trip_id", req.TripID, "error", err)
		if releaseErr := s.ledger.Release(ctx, req.TripID, seats, bookingID); releaseErr != nil {
			s.cfg.Log.Error("Failed to release seats after claim failure",
				"booking_id", bookingID, "trip_id", req.TripID, "error", releaseErr)
		}
		return nil, apperrors.Internal("Failed to create booking", err)
	}

	s.publish(ctx, events.TypeBookingHeld, booking)
	s.cfg.Log.Info("Seats claimed",
		"booking_id", booking.ID,
		"trip_id", booking.TripID,
		"seats", seats,
		"held_until", heldUntil,
	)
	return booking, nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapBookingError(err, id)
	}

	s.reapIfLapsed(ctx, booking)
	return booking, nil
}

func (s *bookingService) ListByTrip(ctx context.Context, tripID string) ([]*model.Booking, error) {
	if tripID == "" {
		return nil, apperrors.InvalidInput("Trip ID cannot be empty")
	}

	bookings, err := s.repo.FindByTrip(ctx, tripID)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve bookings", err)
	}

	for _, booking := range bookings {
		s.reapIfLapsed(ctx, booking)
	}
	return bookings, nil
}

func (s *bookingService) ExtendHold(ctx context.Context, id string, req *model.ExtendHoldRequest) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	if err := s.validator.ValidateExtendHold(req); err != nil {
		return nil, apperrors.Validation("Extension validation failed", map[string]any{"error": err.Error()})
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapBookingError(err, id)
	}

	if booking.Lapsed(s.cfg.Clock.Now()) {
		s.reapIfLapsed(ctx, booking)
		return nil, holdExpiredError(id)
	}
	if booking.Status != model.BookingHeld {
		if booking.Status == model.BookingExpired {
			return nil, holdExpiredError(id)
		}
		return nil, apperrors.Conflict(
			fmt.Sprintf("Booking is %s, only held bookings can be extended", booking.Status))
	}

	minutes := req.AdditionalMinutes
	if minutes == 0 {
		minutes = s.cfg.ExtendHoldMinutes
	}

	// Extensions anchor on the stored deadline, not on now. That keeps
	// the cumulative-window accounting exact; a client extending moments
	// before lapse gets deadline+minutes, not now+minutes.
	newUntil := booking.HeldUntil.Add(time.Duration(minutes) * time.Minute)
	if newUntil.Sub(*booking.HeldAt) > s.cfg.MaxHoldWindow {
		return nil, apperrors.InvalidInput(fmt.Sprintf(
			"Extension by %d minutes exceeds the maximum hold window of %s",
			minutes, s.cfg.MaxHoldWindow))
	}

	if err := s.ledger.Extend(ctx, booking.TripID, booking.SeatNumbers(), booking.ID, newUntil); err != nil {
		if errors.Is(err, ledger.ErrHoldNotFound) {
			return nil, holdExpiredError(id)
		}
		return nil, mapLedgerError(err)
	}

	moved, err := s.repo.SetHoldDeadline(ctx, id, newUntil)
	if err != nil {
		return nil, mapBookingError(err, id)
	}
	if !moved {
		return nil, holdExpiredError(id)
	}

	booking.HeldUntil = &newUntil
	s.publish(ctx, events.TypeHoldExtended, booking)
	s.cfg.Log.Info("Hold extended",
		"booking_id", id, "additional_minutes", minutes, "held_until", newUntil)
	return booking, nil
}

func (s *bookingService) Cancel(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapBookingError(err, id)
	}

	switch booking.Status {
	case model.BookingHeld:
		if booking.Lapsed(s.cfg.Clock.Now()) {
			s.reapIfLapsed(ctx, booking)
			return nil, holdExpiredError(id)
		}
		if err := s.ledger.Release(ctx, booking.TripID, booking.SeatNumbers(), booking.ID); err != nil {
			return nil, mapLedgerError(err)
		}
		if _, err := s.repo.MarkCancelled(ctx, id,
			[]model.BookingStatus{model.BookingHeld}, booking.PaymentStatus, false); err != nil {
			return nil, mapBookingError(err, id)
		}
		booking.Status = model.BookingCancelled

	case model.BookingConfirmed:
		if err := s.ledger.Unbook(ctx, booking.TripID, booking.SeatNumbers(), booking.ID); err != nil {
			return nil, mapLedgerError(err)
		}
		if _, err := s.repo.MarkCancelled(ctx, id,
			[]model.BookingStatus{model.BookingConfirmed}, booking.PaymentStatus, true); err != nil {
			return nil, mapBookingError(err, id)
		}
		booking.Status = model.BookingCancelled
		booking.RefundRequired = true

	default:
		return nil, apperrors.Conflict(
			fmt.Sprintf("Booking is %s, cannot be cancelled", booking.Status))
	}

	s.publish(ctx, events.TypeBookingCancelled, booking)
	s.cfg.Log.Info("Booking cancelled",
		"booking_id", id, "refund_required", booking.RefundRequired)
	return booking, nil
}

func (s *bookingService) ReportPayment(ctx context.Context, outcome model.PaymentOutcome) (*model.Booking, error) {
	if err := outcome.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	booking, err := s.repo.FindByOrderCode(ctx, outcome.OrderCode)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrOrderNotFound) {
			return nil, apperrors.NotFoundWithID("Booking for order", outcome.OrderCode)
		}
		return nil, apperrors.Internal("Failed to look up booking", err)
	}

	if outcome.Result == model.ResultFailed {
		return s.applyFailedPayment(ctx, booking, outcome)
	}
	return s.applyPaidPayment(ctx, booking, outcome)
}

func (s *bookingService) applyFailedPayment(ctx context.Context, booking *model.Booking, outcome model.PaymentOutcome) (*model.Booking, error) {
	if booking.Status != model.BookingHeld {
		// Payment failure for a booking no longer holding seats changes
		// nothing.
		s.cfg.Log.Info("Ignoring failed payment for non-held booking",
			"booking_id", booking.ID, "status", booking.Status)
		return booking, nil
	}

	if err := s.ledger.Release(ctx, booking.TripID, booking.SeatNumbers(), booking.ID); err != nil {
		return nil, mapLedgerError(err)
	}
	if _, err := s.repo.MarkCancelled(ctx, booking.ID,
		[]model.BookingStatus{model.BookingHeld}, model.PaymentFailed, false); err != nil {
		return nil, mapBookingError(err, booking.ID)
	}

	booking.Status = model.BookingCancelled
	booking.PaymentStatus = model.PaymentFailed
	s.publish(ctx, events.TypeBookingCancelled, booking)
	s.cfg.Log.Info("Payment failed, booking cancelled",
		"booking_id", booking.ID, "reason", outcome.Reason)
	return booking, nil
}

func (s *bookingService) applyPaidPayment(ctx context.Context, booking *model.Booking, outcome model.PaymentOutcome) (*model.Booking, error) {
	// Gateways redeliver webhooks and the consumer is at-least-once, so a
	// booking that already took this payment must absorb the duplicate
	// without touching seats or the refund flag.
	switch booking.Status {
	case model.BookingConfirmed, model.BookingCompleted:
		if booking.GatewayTxnID != outcome.TransactionID {
			s.cfg.Log.Warn("Duplicate paid outcome with a different transaction ID",
				"booking_id", booking.ID,
				"recorded_txn", booking.GatewayTxnID,
				"txn_id", outcome.TransactionID)
		}
		return booking, nil
	case model.BookingCancelled:
		if booking.PaymentStatus == model.PaymentPaid {
			return booking, nil
		}
	}

	seats := booking.SeatNumbers()

	err := s.ledger.Confirm(ctx, booking.TripID, seats, booking.ID)
	if errors.Is(err, ledger.ErrHoldNotFound) {
		// The hold lapsed before payment landed. The money is real and
		// the seats are gone: cancel the booking and flag the refund.
		return s.recordLostHoldPayment(ctx, booking, outcome)
	}
	if err != nil {
		return nil, mapLedgerError(err)
	}

	moved, err := s.repo.MarkConfirmed(ctx, booking.ID, outcome.TransactionID)
	if err != nil {
		return nil, mapBookingError(err, booking.ID)
	}
	if !moved {
		// The sweeper expired the booking between our ledger confirm and
		// the document update. Undo the seat confirmation and fall back
		// to the lost-hold path.
		if unbookErr := s.ledger.Unbook(ctx, booking.TripID, seats, booking.ID); unbookErr != nil {
			s.cfg.Log.Error("Failed to unbook seats after confirm race",
				"booking_id", booking.ID, "error", unbookErr)
		}
		return s.recordLostHoldPayment(ctx, booking, outcome)
	}

	booking.Status = model.BookingConfirmed
	booking.PaymentStatus = model.PaymentPaid
	booking.GatewayTxnID = outcome.TransactionID
	s.publish(ctx, events.TypeBookingConfirmed, booking)
	s.cfg.Log.Info("Booking confirmed",
		"booking_id", booking.ID, "txn_id", outcome.TransactionID)
	return booking, nil
}

func (s *bookingService) recordLostHoldPayment(ctx context.Context, booking *model.Booking, outcome model.PaymentOutcome) (*model.Booking, error) {
	if err := s.repo.RecordPaymentForLostHold(ctx, booking.ID, outcome.TransactionID); err != nil {
		return nil, mapBookingError(err, booking.ID)
	}

	booking.Status = model.BookingCancelled
	booking.PaymentStatus = model.PaymentPaid
	booking.GatewayTxnID = outcome.TransactionID
	booking.RefundRequired = true
	s.publish(ctx, events.TypePaymentAfterExpiry, booking)
	s.cfg.Log.Warn("Payment arrived after hold expired, refund required",
		"booking_id", booking.ID, "order_code", outcome.OrderCode, "txn_id", outcome.TransactionID)
	return booking, nil
}

func (s *bookingService) CompleteForTrip(ctx context.Context, tripID string) (int64, error) {
	completed, err := s.repo.MarkCompletedForTrip(ctx, tripID)
	if err != nil {
		return 0, apperrors.Internal("Failed to complete bookings", err)
	}
	return completed, nil
}

func (s *bookingService) CancelHeldForTrip(ctx context.Context, tripID string) (int64, error) {
	bookings, err := s.repo.FindByTrip(ctx, tripID)
	if err != nil {
		return 0, apperrors.Internal("Failed to retrieve bookings", err)
	}

	var cancelled int64
	for _, booking := range bookings {
		if booking.Status != model.BookingHeld {
			continue
		}
		if err := s.ledger.Release(ctx, booking.TripID, booking.SeatNumbers(), booking.ID); err != nil {
			s.cfg.Log.Error("Failed to release seats for cancelled trip",
				"booking_id", booking.ID, "trip_id", tripID, "error", err)
			continue
		}
		moved, err := s.repo.MarkCancelled(ctx, booking.ID,
			[]model.BookingStatus{model.BookingHeld}, booking.PaymentStatus, false)
		if err != nil {
			s.cfg.Log.Error("Failed to cancel booking for cancelled trip",
				"booking_id", booking.ID, "trip_id", tripID, "error", err)
			continue
		}
		if !moved {
			continue
		}

		booking.Status = model.BookingCancelled
		s.publish(ctx, events.TypeBookingCancelled, booking)
		cancelled++
	}

	if cancelled > 0 {
		s.cfg.Log.Info("Held bookings cancelled with trip", "trip_id", tripID, "count", cancelled)
	}
	return cancelled, nil
}

func (s *bookingService) ExpireLapsed(ctx context.Context) (int, error) {
	cutoff := s.cfg.Clock.Now()
	lapsed, err := s.repo.FindLapsedHeld(ctx, cutoff, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, apperrors.Internal("Failed to find lapsed holds", err)
	}

	expired := 0
	for _, booking := range lapsed {
		if s.expire(ctx, booking) {
			expired++
		}
	}

	if expired > 0 {
		s.cfg.Log.Info("Lapsed holds expired", "count", expired)
	}
	return expired, nil
}

// reapIfLapsed expires a lapsed HELD booking on read so callers never see a
// hold that is already dead, even between sweeper runs.
func (s *bookingService) reapIfLapsed(ctx context.Context, booking *model.Booking) {
	if !booking.Lapsed(s.cfg.Clock.Now()) {
		return
	}
	s.expire(ctx, booking)
}

func (s *bookingService) expire(ctx context.Context, booking *model.Booking) bool {
	// Seats are freed first; the document flip is conditional, so a
	// concurrent confirm or cancel wins and this becomes a no-op.
	if err := s.ledger.Release(ctx, booking.TripID, booking.SeatNumbers(), booking.ID); err != nil {
		s.cfg.Log.Error("Failed to release seats for lapsed hold",
			"booking_id", booking.ID, "trip_id", booking.TripID, "error", err)
		return false
	}

	moved, err := s.repo.MarkExpired(ctx, booking.ID)
	if err != nil {
		s.cfg.Log.Error("Failed to mark booking expired",
			"booking_id", booking.ID, "error", err)
		return false
	}
	if !moved {
		return false
	}

	booking.Status = model.BookingExpired
	booking.PaymentStatus = model.PaymentFailed
	s.publish(ctx, events.TypeBookingExpired, booking)
	s.cfg.Log.Info("Hold expired", "booking_id", booking.ID, "trip_id", booking.TripID)
	return true
}

func (s *bookingService) publish(ctx context.Context, eventType string, booking *model.Booking) {
	event := events.NewBookingEvent(eventType, booking, s.cfg.Clock.Now().UTC())
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.cfg.Log.Error("Failed to publish booking event",
			"type", eventType, "booking_id", booking.ID, "error", err)
	}
}

func sanitizeClaim(req *model.ClaimRequest) {
	req.ContactPhone = sanitizer.NormalizePhone(req.ContactPhone)
	for i := range req.Passengers {
		req.Passengers[i].Name = sanitizer.NormalizeName(req.Passengers[i].Name)
		if req.Passengers[i].Phone != "" {
			req.Passengers[i].Phone = sanitizer.NormalizePhone(req.Passengers[i].Phone)
		}
		req.Passengers[i].SeatNumber = sanitizer.NormalizeSeatNumber(req.Passengers[i].SeatNumber)
	}
}

func holdExpiredError(id string) error {
	return apperrors.Conflict(fmt.Sprintf("Hold on booking %s has expired", id))
}

func mapLedgerError(err error) error {
	var unavailable *ledger.SeatUnavailableError
	switch {
	case errors.As(err, &unavailable):
		return apperrors.Conflict("Requested seats are unavailable").
			WithDetails(map[string]any{"unavailable_seats": unavailable.Seats})
	case errors.Is(err, ledger.ErrConcurrentConflict):
		return apperrors.Conflict("Seat map is under heavy contention, please retry")
	case errors.Is(err, ledger.ErrTripNotFound):
		return apperrors.NotFound("Trip not found in seat ledger")
	case errors.Is(err, ledger.ErrHoldNotFound):
		return apperrors.Conflict("Seats are no longer held by this booking")
	default:
		return apperrors.Internal("Seat ledger operation failed", err)
	}
}

func mapBookingError(err error, id string) error {
	switch {
	case errors.Is(err, bookingerrors.ErrNotFound):
		return apperrors.NotFoundWithID("Booking", id)
	case errors.Is(err, bookingerrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid booking ID format")
	case errors.Is(err, bookingerrors.ErrInvalidState):
		return apperrors.Conflict("Booking status does not permit this operation")
	default:
		return apperrors.Internal("Booking operation failed", err)
	}
}

func mapTripLookupError(err error, id string) error {
	switch {
	case errors.Is(err, tripserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Trip", id)
	case errors.Is(err, tripserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid trip ID format")
	default:
		return apperrors.Internal("Trip lookup failed", err)
	}
}

package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	bookingerrors "busway/internal/bookings/errors"
	"busway/internal/bookings/validator"
	"busway/internal/events"
	"busway/internal/ledger"
	tripserrors "busway/internal/trips/errors"
	"busway/pkg/config"
	apperrors "busway/pkg/errors"
	"busway/pkg/logger"
	"busway/pkg/model"

	"github.com/jonboulle/clockwork"
)

const testTripID = "507f1f77bcf86cd799439011"

var testTripSeats = []string{"A01", "A02", "A03", "A04"}

// fakeBookingRepo is an in-memory stand-in for the Mongo repository with the
// same conditional-update semantics.
type fakeBookingRepo struct {
	mu        sync.Mutex
	bookings  map[string]*model.Booking
	createErr error
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: make(map[string]*model.Booking)}
}

func (r *fakeBookingRepo) Create(_ context.Context, booking *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	clone := *booking
	r.bookings[booking.ID] = &clone
	return nil
}

func (r *fakeBookingRepo) FindByID(_ context.Context, id string) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return nil, bookingerrors.ErrNotFound
	}
	clone := *booking
	return &clone, nil
}

func (r *fakeBookingRepo) FindByOrderCode(_ context.Context, orderCode string) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, booking := range r.bookings {
		if booking.OrderCode == orderCode {
			clone := *booking
			return &clone, nil
		}
	}
	return nil, bookingerrors.ErrOrderNotFound
}

func (r *fakeBookingRepo) FindByTrip(_ context.Context, tripID string) ([]*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Booking
	for _, booking := range r.bookings {
		if booking.TripID == tripID {
			clone := *booking
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeBookingRepo) FindLapsedHeld(_ context.Context, cutoff time.Time, limit int) ([]*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Booking
	for _, booking := range r.bookings {
		if booking.Status == model.BookingHeld && booking.HeldUntil != nil && !booking.HeldUntil.After(cutoff) {
			clone := *booking
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HeldUntil.Before(*out[j].HeldUntil) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeBookingRepo) SetHoldDeadline(_ context.Context, id string, until time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok || booking.Status != model.BookingHeld {
		return false, nil
	}
	booking.HeldUntil = &until
	return true, nil
}

func (r *fakeBookingRepo) MarkConfirmed(_ context.Context, id string, transactionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok || booking.Status != model.BookingHeld {
		return false, nil
	}
	booking.Status = model.BookingConfirmed
	booking.PaymentStatus = model.PaymentPaid
	booking.GatewayTxnID = transactionID
	return true, nil
}

func (r *fakeBookingRepo) MarkCancelled(_ context.Context, id string, from []model.BookingStatus, payment model.PaymentStatus, refundRequired bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, status := range from {
		if booking.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	booking.Status = model.BookingCancelled
	booking.PaymentStatus = payment
	if refundRequired {
		booking.RefundRequired = true
	}
	return true, nil
}

func (r *fakeBookingRepo) MarkExpired(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok || booking.Status != model.BookingHeld {
		return false, nil
	}
	booking.Status = model.BookingExpired
	booking.PaymentStatus = model.PaymentFailed
	return true, nil
}

func (r *fakeBookingRepo) MarkCompletedForTrip(_ context.Context, tripID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var moved int64
	for _, booking := range r.bookings {
		if booking.TripID == tripID && booking.Status == model.BookingConfirmed {
			booking.Status = model.BookingCompleted
			moved++
		}
	}
	return moved, nil
}

func (r *fakeBookingRepo) RecordPaymentForLostHold(_ context.Context, id string, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return bookingerrors.ErrNotFound
	}
	if booking.Status == model.BookingHeld || booking.Status == model.BookingExpired {
		booking.Status = model.BookingCancelled
	}
	if booking.Status != model.BookingCancelled {
		return bookingerrors.ErrInvalidState
	}
	booking.PaymentStatus = model.PaymentPaid
	booking.GatewayTxnID = transactionID
	booking.RefundRequired = true
	return nil
}

type mockTripRepo struct {
	FindByIDFunc func(ctx context.Context, id string) (*model.Trip, error)
}

func (m *mockTripRepo) Create(context.Context, *model.Trip) error { return nil }
func (m *mockTripRepo) FindByID(ctx context.Context, id string) (*model.Trip, error) {
	return m.FindByIDFunc(ctx, id)
}
func (m *mockTripRepo) FindAll(context.Context, int, int64) ([]*model.Trip, error) {
	return nil, nil
}
func (m *mockTripRepo) Count(context.Context) (int64, error) { return 0, nil }
func (m *mockTripRepo) TransitionStatus(context.Context, string, model.TripStatus, model.TripStatus) (bool, error) {
	return false, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.BookingEvent
}

func (p *capturePublisher) Publish(_ context.Context, event events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	service   BookingService
	repo      *fakeBookingRepo
	ledger    *ledger.MemoryLedger
	clock     *clockwork.FakeClock
	publisher *capturePublisher
	trip      *model.Trip
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	log := logger.New(logger.Config{Output: io.Discard})

	cfg := &config.Config{
		HoldDuration:      15 * time.Minute,
		ExtendHoldMinutes: 15,
		MaxHoldWindow:     60 * time.Minute,
		SweepBatchSize:    100,
		LedgerMaxRetries:  3,
		CommissionRate:    0.15,
		Log:               log,
		Clock:             clock,
	}

	memLedger := ledger.NewMemoryLedger(clock)
	memLedger.RegisterTrip(testTripID, testTripSeats)

	trip := &model.Trip{
		ID:        testTripID,
		VehicleID: "507f1f77bcf86cd799439099",
		Route:     "Bangkok - Chiang Mai",
		SeatPrice: 100000,
		Status:    model.TripScheduled,
	}

	trips := &mockTripRepo{
		FindByIDFunc: func(_ context.Context, id string) (*model.Trip, error) {
			if id != trip.ID {
				return nil, tripserrors.ErrNotFound
			}
			clone := *trip
			return &clone, nil
		},
	}

	bookingValidator, err := validator.NewBookingValidator(log)
	if err != nil {
		t.Fatalf("NewBookingValidator() error = %v", err)
	}

	repo := newFakeBookingRepo()
	publisher := &capturePublisher{}

	return &testEnv{
		service:   NewBookingService(repo, trips, memLedger, bookingValidator, publisher, cfg),
		repo:      repo,
		ledger:    memLedger,
		clock:     clock,
		publisher: publisher,
		trip:      trip,
	}
}

func claimRequest(seats ...string) *model.ClaimRequest {
	passengers := make([]model.PassengerInput, 0, len(seats))
	for _, seat := range seats {
		passengers = append(passengers, model.PassengerInput{Name: "Ada Lovelace", SeatNumber: seat})
	}
	return &model.ClaimRequest{
		TripID:       testTripID,
		ContactPhone: "+66812345678",
		Passengers:   passengers,
	}
}

func (e *testEnv) mustClaim(t *testing.T, seats ...string) *model.Booking {
	t.Helper()
	booking, err := e.service.Claim(context.Background(), claimRequest(seats...))
	if err != nil {
		t.Fatalf("Claim(%v) error = %v", seats, err)
	}
	return booking
}

func (e *testEnv) seatStatus(t *testing.T, seat string) (model.SeatStatus, string) {
	t.Helper()
	status, owner, ok := e.ledger.SeatStatus(testTripID, seat)
	if !ok {
		t.Fatalf("seat %s not found in ledger", seat)
	}
	return status, owner
}

func TestClaim_CreatesHeldBooking(t *testing.T) {
	env := newTestEnv(t)

	booking := env.mustClaim(t, "A01", "A02")

	if booking.Status != model.BookingHeld {
		t.Errorf("Status = %s, want %s", booking.Status, model.BookingHeld)
	}
	if booking.PaymentStatus != model.PaymentPending {
		t.Errorf("PaymentStatus = %s, want %s", booking.PaymentStatus, model.PaymentPending)
	}
	if booking.TotalAmount != 200000 || booking.Commission != 30000 || booking.NetRevenue != 170000 {
		t.Errorf("pricing = %d/%d/%d, want 200000/30000/170000",
			booking.TotalAmount, booking.Commission, booking.NetRevenue)
	}
	if booking.OrderCode == "" {
		t.Error("OrderCode is empty")
	}

	wantDeadline := env.clock.Now().UTC().Truncate(time.Millisecond).Add(15 * time.Minute)
	if !booking.HeldUntil.Equal(wantDeadline) {
		t.Errorf("HeldUntil = %v, want %v", booking.HeldUntil, wantDeadline)
	}

	for _, seat := range []string{"A01", "A02"} {
		status, owner := env.seatStatus(t, seat)
		if status != model.SeatHeld || owner != booking.ID {
			t.Errorf("seat %s = %s/%s, want HELD by %s", seat, status, owner, booking.ID)
		}
	}

	if got := env.publisher.types(); len(got) != 1 || got[0] != events.TypeBookingHeld {
		t.Errorf("events = %v, want [%s]", got, events.TypeBookingHeld)
	}
}

func TestClaim_SeatUnavailableListsExactSeats(t *testing.T) {
	env := newTestEnv(t)
	env.mustClaim(t, "A01", "A02")

	_, err := env.service.Claim(context.Background(), claimRequest("A02", "A03"))
	if err == nil {
		t.Fatal("Claim() error = nil, want seat unavailable conflict")
	}

	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeConflict {
		t.Errorf("Code = %s, want %s", appErr.Code, apperrors.CodeConflict)
	}
	seats, ok := appErr.Details["unavailable_seats"].([]string)
	if !ok || len(seats) != 1 || seats[0] != "A02" {
		t.Errorf("unavailable_seats = %v, want [A02]", appErr.Details["unavailable_seats"])
	}

	// The losing claim must not disturb the free seat it asked for.
	if status, _ := env.seatStatus(t, "A03"); status != model.SeatAvailable {
		t.Errorf("seat A03 = %s, want AVAILABLE", status)
	}
}

func TestClaim_RejectsNonScheduledTrip(t *testing.T) {
	env := newTestEnv(t)
	env.trip.Status = model.TripDeparted

	_, err := env.service.Claim(context.Background(), claimRequest("A01"))
	if err == nil {
		t.Fatal("Claim() error = nil, want conflict")
	}
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeConflict {
		t.Errorf("Code = %s, want %s", appErr.Code, apperrors.CodeConflict)
	}
}

func TestClaim_ValidationFailure(t *testing.T) {
	env := newTestEnv(t)

	req := claimRequest("A01")
	req.ContactPhone = "not a phone"

	_, err := env.service.Claim(context.Background(), req)
	if err == nil {
		t.Fatal("Claim() error = nil, want validation error")
	}
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeValidation {
		t.Errorf("Code = %s, want %s", appErr.Code, apperrors.CodeValidation)
	}
}

func TestClaim_ReleasesSeatsWhenPersistFails(t *testing.T) {
	env := newTestEnv(t)
	env.repo.createErr = errors.New("write failed")

	_, err := env.service.Claim(context.Background(), claimRequest("A01", "A02"))
	if err == nil {
		t.Fatal("Claim() error = nil, want internal error")
	}

	for _, seat := range []string{"A01", "A02"} {
		if status, _ := env.seatStatus(t, seat); status != model.SeatAvailable {
			t.Errorf("seat %s = %s, want AVAILABLE after compensation", seat, status)
		}
	}
}

func TestExtendHold_DefaultMinutes(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01")
	originalDeadline := *booking.HeldUntil

	extended, err := env.service.ExtendHold(context.Background(), booking.ID, &model.ExtendHoldRequest{})
	if err != nil {
		t.Fatalf("ExtendHold() error = %v", err)
	}

	want := originalDeadline.Add(15 * time.Minute)
	if !extended.HeldUntil.Equal(want) {
		t.Errorf("HeldUntil = %v, want %v", extended.HeldUntil, want)
	}

	stored, _ := env.repo.FindByID(context.Background(), booking.ID)
	if !stored.HeldUntil.Equal(want) {
		t.Errorf("stored HeldUntil = %v, want %v", stored.HeldUntil, want)
	}
}

func TestExtendHold_CapsAtMaxWindow(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01")

	// 15m initial + 45m keeps the hold at the 60m cap.
	if _, err := env.service.ExtendHold(context.Background(), booking.ID,
		&model.ExtendHoldRequest{AdditionalMinutes: 45}); err != nil {
		t.Fatalf("ExtendHold(45) error = %v", err)
	}

	// One more minute pushes past the cap.
	_, err := env.service.ExtendHold(context.Background(), booking.ID,
		&model.ExtendHoldRequest{AdditionalMinutes: 1})
	if err == nil {
		t.Fatal("ExtendHold() error = nil, want invalid extension")
	}
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeInvalidInput {
		t.Errorf("Code = %s, want %s", appErr.Code, apperrors.CodeInvalidInput)
	}
}

func TestExtendHold_ExpiredHold(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01")

	env.clock.Advance(16 * time.Minute)

	_, err := env.service.ExtendHold(context.Background(), booking.ID, &model.ExtendHoldRequest{})
	if err == nil {
		t.Fatal("ExtendHold() error = nil, want hold expired conflict")
	}
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeConflict {
		t.Errorf("Code = %s, want %s", appErr.Code, apperrors.CodeConflict)
	}

	// The lapsed hold is reaped on access.
	stored, _ := env.repo.FindByID(context.Background(), booking.ID)
	if stored.Status != model.BookingExpired {
		t.Errorf("Status = %s, want %s", stored.Status, model.BookingExpired)
	}
	if status, _ := env.seatStatus(t, "A01"); status != model.SeatAvailable {
		t.Errorf("seat A01 = %s, want AVAILABLE", status)
	}
}

func TestCancel_HeldReleasesSeats(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01", "A02")

	cancelled, err := env.service.Cancel(context.Background(), booking.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != model.BookingCancelled {
		t.Errorf("Status = %s, want %s", cancelled.Status, model.BookingCancelled)
	}
	if cancelled.RefundRequired {
		t.Error("RefundRequired = true, want false for pre-payment cancel")
	}

	for _, seat := range []string{"A01", "A02"} {
		if status, _ := env.seatStatus(t, seat); status != model.SeatAvailable {
			t.Errorf("seat %s = %s, want AVAILABLE", seat, status)
		}
	}
}

func TestCancel_ConfirmedRequiresRefund(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01")

	if _, err := env.service.ReportPayment(context.Background(),
		model.PaidOutcome(booking.OrderCode, "txn-1")); err != nil {
		t.Fatalf("ReportPayment() error = %v", err)
	}

	cancelled, err := env.service.Cancel(context.Background(), booking.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !cancelled.RefundRequired {
		t.Error("RefundRequired = false, want true for post-payment cancel")
	}
	if status, _ := env.seatStatus(t, "A01"); status != model.SeatAvailable {
		t.Errorf("seat A01 = %s, want AVAILABLE", status)
	}
}

func TestCancel_CompletedRejected(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01")

	if _, err := env.service.ReportPayment(context.Background(),
		model.PaidOutcome(booking.OrderCode, "txn-1")); err != nil {
		t.Fatalf("ReportPayment() error = %v", err)
	}
	if _, err := env.service.CompleteForTrip(context.Background(), testTripID); err != nil {
		t.Fatalf("CompleteForTrip() error = %v", err)
	}

	_, err := env.service.Cancel(context.Background(), booking.ID)
	if err == nil {
		t.Fatal("Cancel() error = nil, want conflict for completed booking")
	}
}

func TestReportPayment_PaidConfirmsBooking(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01", "A02")

	confirmed, err := env.service.ReportPayment(context.Background(),
		model.PaidOutcome(booking.OrderCode, "txn-42"))
	if err != nil {
		t.Fatalf("ReportPayment() error = %v", err)
	}

	if confirmed.Status != model.BookingConfirmed {
		t.Errorf("Status = %s, want %s", confirmed.Status, model.BookingConfirmed)
	}
	if confirmed.GatewayTxnID != "txn-42" {
		t.Errorf("GatewayTxnID = %s, want txn-42", confirmed.GatewayTxnID)
	}

	for _, seat := range []string{"A01", "A02"} {
		status, owner := env.seatStatus(t, seat)
		if status != model.SeatBooked || owner != booking.ID {
			t.Errorf("seat %s = %s/%s, want BOOKED by %s", seat, status, owner, booking.ID)
		}
	}
}

func TestReportPayment_FailedCancelsBooking(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01")

	cancelled, err := env.service.ReportPayment(context.Background(),
		model.FailedOutcome(booking.OrderCode, "card declined"))
	if err != nil {
		t.Fatalf("ReportPayment() error = %v", err)
	}

	if cancelled.Status != model.BookingCancelled {
		t.Errorf("Status = %s, want %s", cancelled.Status, model.BookingCancelled)
	}
	if cancelled.PaymentStatus != model.PaymentFailed {
		t.Errorf("PaymentStatus = %s, want %s", cancelled.PaymentStatus, model.PaymentFailed)
	}
	if status, _ := env.seatStatus(t, "A01"); status != model.SeatAvailable {
		t.Errorf("seat A01 = %s, want AVAILABLE", status)
	}
}

func TestReportPayment_RedeliveredPaidIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01", "A02")

	if _, err := env.service.ReportPayment(context.Background(),
		model.PaidOutcome(booking.OrderCode, "txn-42")); err != nil {
		t.Fatalf("ReportPayment() error = %v", err)
	}

	// The gateway redelivers the same webhook.
	again, err := env.service.ReportPayment(context.Background(),
		model.PaidOutcome(booking.OrderCode, "txn-42"))
	if err != nil {
		t.Fatalf("redelivered ReportPayment() error = %v", err)
	}

	if again.Status != model.BookingConfirmed {
		t.Errorf("Status = %s, want %s", again.Status, model.BookingConfirmed)
	}
	if again.RefundRequired {
		t.Error("RefundRequired = true, want false for a redelivered payment")
	}

	stored, _ := env.repo.FindByID(context.Background(), booking.ID)
	if stored.Status != model.BookingConfirmed {
		t.Errorf("stored Status = %s, want %s", stored.Status, model.BookingConfirmed)
	}
	if stored.RefundRequired {
		t.Error("stored RefundRequired = true, want false")
	}

	for _, seat := range []string{"A01", "A02"} {
		status, owner := env.seatStatus(t, seat)
		if status != model.SeatBooked || owner != booking.ID {
			t.Errorf("seat %s = %s/%s, want BOOKED by %s", seat, status, owner, booking.ID)
		}
	}
}

func TestReportPayment_RedeliveredLostHoldIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01")

	env.clock.Advance(16 * time.Minute)
	if _, err := env.service.ExpireLapsed(context.Background()); err != nil {
		t.Fatalf("ExpireLapsed() error = %v", err)
	}

	if _, err := env.service.ReportPayment(context.Background(),
		model.PaidOutcome(booking.OrderCode, "txn-late")); err != nil {
		t.Fatalf("ReportPayment() error = %v", err)
	}

	again, err := env.service.ReportPayment(context.Background(),
		model.PaidOutcome(booking.OrderCode, "txn-late"))
	if err != nil {
		t.Fatalf("redelivered ReportPayment() error = %v", err)
	}
	if again.Status != model.BookingCancelled || !again.RefundRequired {
		t.Errorf("got %s refund=%t, want CANCELLED refund=true", again.Status, again.RefundRequired)
	}
}

func TestReportPayment_PaidAfterUserCancelFlagsRefund(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01")

	if _, err := env.service.Cancel(context.Background(), booking.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	// The payment was already in flight when the user cancelled.
	result, err := env.service.ReportPayment(context.Background(),
		model.PaidOutcome(booking.OrderCode, "txn-race"))
	if err != nil {
		t.Fatalf("ReportPayment() error = %v", err)
	}

	if result.Status != model.BookingCancelled {
		t.Errorf("Status = %s, want %s", result.Status, model.BookingCancelled)
	}
	if result.PaymentStatus != model.PaymentPaid {
		t.Errorf("PaymentStatus = %s, want %s", result.PaymentStatus, model.PaymentPaid)
	}
	if !result.RefundRequired {
		t.Error("RefundRequired = false, want true")
	}
}

func TestReportPayment_UnknownOrderCode(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ReportPayment(context.Background(),
		model.PaidOutcome("no-such-order", "txn-1"))
	if err == nil {
		t.Fatal("ReportPayment() error = nil, want not found")
	}
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeNotFound {
		t.Errorf("Code = %s, want %s", appErr.Code, apperrors.CodeNotFound)
	}
}

func TestReportPayment_AfterExpiryFlagsRefund(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01", "A02")

	// The hold lapses and the sweeper reclaims the seats before the
	// gateway reports the successful payment.
	env.clock.Advance(16 * time.Minute)
	expired, err := env.service.ExpireLapsed(context.Background())
	if err != nil {
		t.Fatalf("ExpireLapsed() error = %v", err)
	}
	if expired != 1 {
		t.Fatalf("ExpireLapsed() = %d, want 1", expired)
	}

	// A rival books one of the freed seats in between.
	rival := env.mustClaim(t, "A01")

	result, err := env.service.ReportPayment(context.Background(),
		model.PaidOutcome(booking.OrderCode, "txn-late"))
	if err != nil {
		t.Fatalf("ReportPayment() error = %v", err)
	}

	if result.Status != model.BookingCancelled {
		t.Errorf("Status = %s, want %s", result.Status, model.BookingCancelled)
	}
	if result.PaymentStatus != model.PaymentPaid {
		t.Errorf("PaymentStatus = %s, want %s", result.PaymentStatus, model.PaymentPaid)
	}
	if !result.RefundRequired {
		t.Error("RefundRequired = false, want true")
	}

	// The rival's hold must be untouched.
	status, owner := env.seatStatus(t, "A01")
	if status != model.SeatHeld || owner != rival.ID {
		t.Errorf("seat A01 = %s/%s, want HELD by %s", status, owner, rival.ID)
	}

	found := false
	for _, eventType := range env.publisher.types() {
		if eventType == events.TypePaymentAfterExpiry {
			found = true
		}
	}
	if !found {
		t.Errorf("events = %v, want %s emitted", env.publisher.types(), events.TypePaymentAfterExpiry)
	}
}

func TestExpireLapsed_OnlyReapsLapsedHolds(t *testing.T) {
	env := newTestEnv(t)
	old := env.mustClaim(t, "A01")

	env.clock.Advance(10 * time.Minute)
	fresh := env.mustClaim(t, "A02")

	env.clock.Advance(6 * time.Minute)
	expired, err := env.service.ExpireLapsed(context.Background())
	if err != nil {
		t.Fatalf("ExpireLapsed() error = %v", err)
	}
	if expired != 1 {
		t.Errorf("ExpireLapsed() = %d, want 1", expired)
	}

	oldStored, _ := env.repo.FindByID(context.Background(), old.ID)
	if oldStored.Status != model.BookingExpired {
		t.Errorf("old booking = %s, want %s", oldStored.Status, model.BookingExpired)
	}
	freshStored, _ := env.repo.FindByID(context.Background(), fresh.ID)
	if freshStored.Status != model.BookingHeld {
		t.Errorf("fresh booking = %s, want %s", freshStored.Status, model.BookingHeld)
	}

	if status, _ := env.seatStatus(t, "A01"); status != model.SeatAvailable {
		t.Errorf("seat A01 = %s, want AVAILABLE", status)
	}
	if status, _ := env.seatStatus(t, "A02"); status != model.SeatHeld {
		t.Errorf("seat A02 = %s, want HELD", status)
	}
}

func TestGetByID_ReapsLapsedHold(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01")

	env.clock.Advance(20 * time.Minute)

	got, err := env.service.GetByID(context.Background(), booking.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != model.BookingExpired {
		t.Errorf("Status = %s, want %s", got.Status, model.BookingExpired)
	}
	if status, _ := env.seatStatus(t, "A01"); status != model.SeatAvailable {
		t.Errorf("seat A01 = %s, want AVAILABLE", status)
	}
}

func TestExtendHold_AnchorsOnStoredDeadline(t *testing.T) {
	env := newTestEnv(t)
	booking := env.mustClaim(t, "A01")
	originalDeadline := *booking.HeldUntil

	// Ten minutes into the hold; the extension adds to the stored
	// deadline, not to the current time.
	env.clock.Advance(10 * time.Minute)

	extended, err := env.service.ExtendHold(context.Background(), booking.ID,
		&model.ExtendHoldRequest{AdditionalMinutes: 15})
	if err != nil {
		t.Fatalf("ExtendHold() error = %v", err)
	}

	want := originalDeadline.Add(15 * time.Minute)
	if !extended.HeldUntil.Equal(want) {
		t.Errorf("HeldUntil = %v, want %v", extended.HeldUntil, want)
	}
	if fromNow := env.clock.Now().UTC().Add(15 * time.Minute); extended.HeldUntil.Equal(fromNow) {
		t.Errorf("HeldUntil = %v anchored on now, want deadline-anchored %v", extended.HeldUntil, want)
	}
}

func TestCancelHeldForTrip(t *testing.T) {
	env := newTestEnv(t)
	held := env.mustClaim(t, "A01")
	confirmed := env.mustClaim(t, "A02")

	if _, err := env.service.ReportPayment(context.Background(),
		model.PaidOutcome(confirmed.OrderCode, "txn-1")); err != nil {
		t.Fatalf("ReportPayment() error = %v", err)
	}

	cancelled, err := env.service.CancelHeldForTrip(context.Background(), testTripID)
	if err != nil {
		t.Fatalf("CancelHeldForTrip() error = %v", err)
	}
	if cancelled != 1 {
		t.Errorf("CancelHeldForTrip() = %d, want 1", cancelled)
	}

	heldStored, _ := env.repo.FindByID(context.Background(), held.ID)
	if heldStored.Status != model.BookingCancelled {
		t.Errorf("held booking = %s, want %s", heldStored.Status, model.BookingCancelled)
	}
	if status, _ := env.seatStatus(t, "A01"); status != model.SeatAvailable {
		t.Errorf("seat A01 = %s, want AVAILABLE", status)
	}

	// Confirmed bookings stay put; their refunds are a separate concern.
	confirmedStored, _ := env.repo.FindByID(context.Background(), confirmed.ID)
	if confirmedStored.Status != model.BookingConfirmed {
		t.Errorf("confirmed booking = %s, want %s", confirmedStored.Status, model.BookingConfirmed)
	}
	status, owner := env.seatStatus(t, "A02")
	if status != model.SeatBooked || owner != confirmed.ID {
		t.Errorf("seat A02 = %s/%s, want BOOKED by %s", status, owner, confirmed.ID)
	}
}

func TestCompleteForTrip(t *testing.T) {
	env := newTestEnv(t)
	first := env.mustClaim(t, "A01")
	env.mustClaim(t, "A02")

	if _, err := env.service.ReportPayment(context.Background(),
		model.PaidOutcome(first.OrderCode, "txn-1")); err != nil {
		t.Fatalf("ReportPayment() error = %v", err)
	}

	completed, err := env.service.CompleteForTrip(context.Background(), testTripID)
	if err != nil {
		t.Fatalf("CompleteForTrip() error = %v", err)
	}
	if completed != 1 {
		t.Errorf("CompleteForTrip() = %d, want 1", completed)
	}

	stored, _ := env.repo.FindByID(context.Background(), first.ID)
	if stored.Status != model.BookingCompleted {
		t.Errorf("Status = %s, want %s", stored.Status, model.BookingCompleted)
	}
}

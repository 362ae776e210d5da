package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/gateway"
	"spotbook-backend/internal/repository"
	"spotbook-backend/internal/service"
)

func book(t *testing.T, f *fixture, start time.Time, payment string) (*service.BookingResult, error) {
	t.Helper()
	return f.booking.CreateBooking(context.Background(), service.BookingRequest{
		SpotID:         f.spotID,
		RequesterID:    "user-" + uuid.NewString()[:8],
		WindowStart:    start,
		PaymentDetails: json.RawMessage(payment),
	})
}

func TestCreateBooking_OverlapRejected(t *testing.T) {
	f := newFixture(nil)

	first, err := book(t, f, at(14), cashJSON)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, first.Reservation.Status)
	assert.Equal(t, at(16), first.Reservation.EndTime)

	_, err = book(t, f, at(15), cashJSON)
	assert.Equal(t, domain.CodeResourceOccupied, domain.CodeOf(err))

	_, err = book(t, f, at(16), cashJSON)
	assert.NoError(t, err)
}

func TestCreateBooking_ConcurrentOverlapSingleWinner(t *testing.T) {
	f := newFixture(nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		occupied int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := at(14).Add(time.Duration(i%3) * 30 * time.Minute)
			_, err := book(t, f, start, cashJSON)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if domain.CodeOf(err) == domain.CodeResourceOccupied {
				occupied++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 24, occupied)
}

func TestCreateBooking_Validation(t *testing.T) {
	f := newFixture(nil)

	tests := []struct {
		name    string
		start   time.Time
		payment string
		want    domain.ErrorCode
	}{
		{"window in the past", fixtureNow.Add(-time.Minute), cashJSON, domain.CodeInvalidWindow},
		{"window exactly now", fixtureNow, cashJSON, domain.CodeInvalidWindow},
		{"invalid window wins over invalid payment", fixtureNow, `{"type":"crypto"}`, domain.CodeInvalidWindow},
		{"unknown payment type", at(14), `{"type":"crypto"}`, domain.CodeInvalidPaymentMethod},
		{"missing payment", at(14), ``, domain.CodeInvalidPaymentMethod},
		{"cash with extra fields", at(14), `{"type":"cash","number":"4242"}`, domain.CodeInvalidPaymentMethod},
		{"bad mobile number", at(14), `{"type":"mobile_money","phoneNumber":"12","provider":"mpesa"}`, domain.CodeInvalidPaymentMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := book(t, f, tt.start, tt.payment)
			assert.Equal(t, tt.want, domain.CodeOf(err))
		})
	}
	assert.Empty(t, f.sandbox.Charges())
}

func TestCreateBooking_UnknownSpot(t *testing.T) {
	f := newFixture(nil)

	for _, spotID := range []string{uuid.NewString(), "not-a-uuid"} {
		_, err := f.booking.CreateBooking(context.Background(), service.BookingRequest{
			SpotID:         spotID,
			RequesterID:    "user-1",
			WindowStart:    at(14),
			PaymentDetails: json.RawMessage(cashJSON),
		})
		assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	}
}

func TestCreateBooking_GatewayPaymentHoldsSlot(t *testing.T) {
	f := newFixture(nil)

	res, err := book(t, f, at(14), cardJSON)
	require.NoError(t, err)
	require.NotNil(t, res.Intent)
	assert.Equal(t, domain.ReservationStatusPending, res.Reservation.Status)
	require.NotNil(t, res.Reservation.HoldExpiresAt)
	assert.Equal(t, fixtureNow.Add(15*time.Minute), *res.Reservation.HoldExpiresAt)

	charges := f.sandbox.Charges()
	require.Len(t, charges, 1)
	assert.Equal(t, "5", charges[0].Amount.String())
	assert.Equal(t, f.ownerID, charges[0].Metadata.OwnerID)
	assert.Equal(t, res.Reservation.ID, charges[0].Metadata.ReservationID)

	attempt, err := f.store.Repositories().PaymentAttempts.GetByGatewayRef(context.Background(), res.Intent.IntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusInitiated, attempt.Status)
	assert.Equal(t, charges[0].Metadata.AttemptID, attempt.ID)

	_, err = book(t, f, at(15), cashJSON)
	assert.Equal(t, domain.CodeResourceOccupied, domain.CodeOf(err))

	// Once the hold lapses the slot is free again, even before the sweep runs.
	f.clock.Advance(16 * time.Minute)
	assert.True(t, f.oracle.IsFree(context.Background(), f.spotID, at(15)))
	_, err = book(t, f, at(15), cashJSON)
	assert.NoError(t, err)
}

func TestCreateBooking_Declined(t *testing.T) {
	f := newFixture(nil)

	_, err := book(t, f, at(14), `{"type":"card","token":"`+gateway.DeclineToken+`"}`)
	require.Error(t, err)
	assert.Equal(t, domain.CodePaymentFailed, domain.CodeOf(err))

	var be *domain.BookingError
	require.True(t, errors.As(err, &be))
	require.NotNil(t, be.Reservation)
	assert.Equal(t, domain.ReservationStatusCancelled, be.Reservation.Status)

	_, err = book(t, f, at(14), cashJSON)
	assert.NoError(t, err, "declined booking must release the slot")
}

// attemptCheckingGateway records the stored attempt as it looks when the gateway is called.
type attemptCheckingGateway struct {
	gateway.PaymentGateway
	attempts repository.PaymentAttemptRepository
	seen     *domain.PaymentAttempt
}

func (g *attemptCheckingGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, method domain.PaymentMethod, metadata domain.PaymentMetadata) (*gateway.Intent, error) {
	if a, err := g.attempts.GetByID(ctx, metadata.AttemptID); err == nil {
		g.seen = a
	}
	return g.PaymentGateway.CreateIntent(ctx, amount, currency, method, metadata)
}

func TestCreateBooking_AttemptRecordedBeforeCapture(t *testing.T) {
	f := newFixture(nil)
	repos := f.store.Repositories()
	gw := &attemptCheckingGateway{PaymentGateway: f.sandbox, attempts: repos.PaymentAttempts}
	bookings := service.NewBookingService(repos, f.oracle, gw, nil, nil, service.BookingPolicy{
		HoldTTL:  15 * time.Minute,
		Currency: "usd",
	}, f.clock.Now)
	ctx := context.Background()

	t.Run("Captured", func(t *testing.T) {
		gw.seen = nil
		res, err := bookings.CreateBooking(ctx, service.BookingRequest{
			SpotID: f.spotID, RequesterID: "alice", WindowStart: at(14), PaymentDetails: json.RawMessage(cardJSON),
		})
		require.NoError(t, err)

		require.NotNil(t, gw.seen, "attempt must exist when the gateway is called")
		assert.Equal(t, domain.PaymentStatusInitiated, gw.seen.Status)
		assert.Empty(t, gw.seen.GatewayRef)

		stored, err := repos.PaymentAttempts.GetByID(ctx, gw.seen.ID)
		require.NoError(t, err)
		assert.Equal(t, res.Intent.IntentID, stored.GatewayRef)
		assert.Equal(t, domain.PaymentStatusInitiated, stored.Status)
	})

	t.Run("Declined", func(t *testing.T) {
		gw.seen = nil
		_, err := bookings.CreateBooking(ctx, service.BookingRequest{
			SpotID: f.spotID, RequesterID: "bob", WindowStart: at(18),
			PaymentDetails: json.RawMessage(`{"type":"card","token":"` + gateway.DeclineToken + `"}`),
		})
		assert.Equal(t, domain.CodePaymentFailed, domain.CodeOf(err))

		require.NotNil(t, gw.seen)
		stored, err := repos.PaymentAttempts.GetByID(ctx, gw.seen.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusFailed, stored.Status)
		assert.Empty(t, stored.GatewayRef)
	})
}

func TestCreateBooking_CaptureTimeout(t *testing.T) {
	f := newFixture(nil)
	f.sandbox.SetDelay(time.Second)

	_, err := book(t, f, at(14), cardJSON)
	require.Error(t, err)
	assert.Equal(t, domain.CodePaymentPending, domain.CodeOf(err))
	assert.ErrorIs(t, err, domain.ErrGatewayTimeout)

	var be *domain.BookingError
	require.True(t, errors.As(err, &be))
	require.NotNil(t, be.Reservation)
	assert.Equal(t, domain.ReservationStatusPending, be.Reservation.Status)

	stored, err := f.booking.GetBooking(context.Background(), be.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusPending, stored.Status)
}

func TestCreateBooking_IdempotentResubmission(t *testing.T) {
	f := newFixture(nil)
	req := service.BookingRequest{
		SpotID:         f.spotID,
		RequesterID:    "user-1",
		RequestID:      "req-42",
		WindowStart:    at(14),
		PaymentDetails: json.RawMessage(cardJSON),
	}

	first, err := f.booking.CreateBooking(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := f.booking.CreateBooking(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Reservation.ID, again.Reservation.ID)
	assert.Len(t, f.sandbox.Charges(), 1)
}

func TestCreateBooking_MinimumAmountForUnpricedSpot(t *testing.T) {
	f := newFixture(nil)
	free := uuid.NewString()
	f.store.PutSpot(domain.Spot{ID: free, Name: "Free bay"})

	_, err := f.booking.CreateBooking(context.Background(), service.BookingRequest{
		SpotID:         free,
		RequesterID:    "user-1",
		WindowStart:    at(14),
		PaymentDetails: json.RawMessage(cardJSON),
	})
	require.NoError(t, err)

	charges := f.sandbox.Charges()
	require.Len(t, charges, 1)
	assert.Equal(t, "1", charges[0].Amount.String())
	assert.Empty(t, charges[0].Metadata.OwnerID)
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	res, err := f.booking.CreateBooking(ctx, service.BookingRequest{
		SpotID:         f.spotID,
		RequesterID:    "user-1",
		WindowStart:    at(14),
		PaymentDetails: json.RawMessage(cashJSON),
	})
	require.NoError(t, err)
	id := res.Reservation.ID

	_, err = f.booking.CancelBooking(ctx, id, "someone-else")
	assert.Equal(t, domain.CodeForbidden, domain.CodeOf(err))

	_, err = f.booking.CancelBooking(ctx, "bogus", "user-1")
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	cancelled, err := f.booking.CancelBooking(ctx, id, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledOn)

	assert.True(t, f.oracle.IsFree(ctx, f.spotID, at(15)))
}

func TestCancelBooking_AfterWindowEnded(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	res, err := book(t, f, at(10), cashJSON)
	require.NoError(t, err)

	f.clock.Advance(4 * time.Hour)
	_, err = f.booking.CancelBooking(ctx, res.Reservation.ID, res.Reservation.RequesterID)
	assert.Equal(t, domain.CodeWindowEnded, domain.CodeOf(err))
}

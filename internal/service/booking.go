package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/gateway"
	"spotbook-backend/internal/lock"
	"spotbook-backend/internal/logger"
	"spotbook-backend/internal/metrics"
	"spotbook-backend/internal/repository"
)

// BookingPolicy carries the configurable parts of a booking decision.
type BookingPolicy struct {
	WindowDuration time.Duration
	HoldTTL        time.Duration
	Currency       string
	MinimumAmount  decimal.Decimal
	CaptureTimeout time.Duration
}

type bookingService struct {
	reservations repository.ReservationRepository
	spots        repository.SpotRepository
	attempts     repository.PaymentAttemptRepository
	oracle       AvailabilityService
	payments     gateway.PaymentGateway
	locks        *lock.Keyed
	metrics      *metrics.Metrics
	policy       BookingPolicy
	now          Clock
}

func NewBookingService(
	repos repository.Repositories,
	oracle AvailabilityService,
	payments gateway.PaymentGateway,
	locks *lock.Keyed,
	m *metrics.Metrics,
	policy BookingPolicy,
	now Clock,
) BookingService {
	if policy.WindowDuration <= 0 {
		policy.WindowDuration = domain.DefaultWindowDuration
	}
	if now == nil {
		now = systemClock
	}
	if locks == nil {
		locks = lock.NewKeyed()
	}
	if m == nil {
		m = metrics.New()
	}
	return &bookingService{
		reservations: repos.Reservations,
		spots:        repos.Spots,
		attempts:     repos.PaymentAttempts,
		oracle:       oracle,
		payments:     payments,
		locks:        locks,
		metrics:      m,
		policy:       policy,
		now:          now,
	}
}

func (s *bookingService) CreateBooking(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	logger.EnterMethod("bookingService.CreateBooking", "spot_id", req.SpotID, "requester_id", req.RequesterID)
	result, err := s.createBooking(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = string(domain.CodeOf(err))
		if outcome == "" {
			outcome = "error"
		}
		logger.ExitMethodWithError("bookingService.CreateBooking", err, "spot_id", req.SpotID)
	} else {
		logger.ExitMethod("bookingService.CreateBooking", "reservation_id", result.Reservation.ID)
	}
	s.metrics.BookingOutcome(outcome)
	return result, err
}

func (s *bookingService) createBooking(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	now := s.now()

	if !req.WindowStart.After(now) {
		return nil, domain.NewBookingError(domain.CodeInvalidWindow, "window start must be in the future", nil)
	}

	method, err := domain.DecodePaymentMethod(req.PaymentDetails)
	if err == nil {
		err = method.Validate(now)
	}
	if err != nil {
		return nil, domain.NewBookingError(domain.CodeInvalidPaymentMethod, "payment details are not valid", err)
	}

	if req.RequestID != "" {
		existing, err := s.reservations.GetByRequestID(ctx, req.RequesterID, req.RequestID)
		if err == nil {
			logger.InfoContext(ctx, "Replaying booking request", "request_id", req.RequestID, "reservation_id", existing.ID)
			return &BookingResult{Reservation: existing, Replayed: true}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	if !validID(req.SpotID) {
		return nil, domain.NewBookingError(domain.CodeNotFound, "spot not found", domain.ErrNotFound)
	}
	spot, err := s.spots.GetByID(ctx, req.SpotID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewBookingError(domain.CodeNotFound, "spot not found", err)
		}
		return nil, err
	}

	reservation := &domain.Reservation{
		ID:            uuid.NewString(),
		SpotID:        spot.ID,
		RequesterID:   req.RequesterID,
		RequestID:     req.RequestID,
		StartTime:     req.WindowStart.UTC(),
		EndTime:       req.WindowStart.UTC().Add(s.policy.WindowDuration),
		Status:        domain.ReservationStatusConfirmed,
		PaymentMethod: method.Kind(),
		CreatedOn:     now,
	}
	if method.Kind() != domain.PaymentMethodCash {
		hold := now.Add(s.policy.HoldTTL)
		reservation.Status = domain.ReservationStatusPending
		reservation.HoldExpiresAt = &hold
	}

	if replay, err := s.commit(ctx, reservation, now); err != nil || replay != nil {
		return replay, err
	}
	log := logger.WithReservation(spot.ID, reservation.ID)
	log.Info("Reservation committed", "status", reservation.Status, "start", reservation.StartTime)

	if method.Kind() == domain.PaymentMethodCash {
		return &BookingResult{Reservation: reservation}, nil
	}
	return s.capture(ctx, spot, reservation, method)
}

// commit runs the oracle check and the ledger write under the spot's lock.
// A non-nil result means the request was a replay of an earlier one.
func (s *bookingService) commit(ctx context.Context, r *domain.Reservation, now time.Time) (*BookingResult, error) {
	unlock := s.locks.Lock(r.SpotID)
	defer unlock()

	if !s.oracle.IsWindowFree(ctx, r.SpotID, r.StartTime, r.EndTime) {
		return nil, domain.NewBookingError(domain.CodeResourceOccupied, "spot is already booked for this window", domain.ErrResourceOccupied)
	}

	err := s.reservations.CreateIfFree(ctx, r, now)
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, domain.ErrResourceOccupied):
		return nil, domain.NewBookingError(domain.CodeResourceOccupied, "spot is already booked for this window", err)
	case errors.Is(err, domain.ErrDuplicateRequest):
		existing, getErr := s.reservations.GetByRequestID(ctx, r.RequesterID, r.RequestID)
		if getErr != nil {
			return nil, fmt.Errorf("load replayed reservation: %w", getErr)
		}
		return &BookingResult{Reservation: existing, Replayed: true}, nil
	default:
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
}

func (s *bookingService) capture(ctx context.Context, spot *domain.Spot, r *domain.Reservation, method domain.PaymentMethod) (*BookingResult, error) {
	amount := spot.HourlyPrice
	if !amount.IsPositive() {
		amount = s.policy.MinimumAmount
	}

	now := s.now()
	attempt := &domain.PaymentAttempt{
		ID:            uuid.NewString(),
		ReservationID: r.ID,
		Amount:        amount,
		Currency:      s.policy.Currency,
		Method:        method.Kind(),
		Status:        domain.PaymentStatusInitiated,
		CreatedOn:     now,
		UpdatedOn:     now,
	}
	meta := domain.PaymentMetadata{SpotID: spot.ID, ReservationID: r.ID, AttemptID: attempt.ID}
	if spot.HasOwner() {
		meta.OwnerID = *spot.OwnerID
	}

	// Recorded before the gateway call so an early callback can find it.
	recorded := true
	if err := s.attempts.Create(ctx, attempt); err != nil {
		recorded = false
		logger.ErrorContext(ctx, "Failed to record payment attempt", "reservation_id", r.ID, "attempt_id", attempt.ID, "error", err)
	}

	captureCtx := ctx
	if s.policy.CaptureTimeout > 0 {
		var cancel context.CancelFunc
		captureCtx, cancel = context.WithTimeout(ctx, s.policy.CaptureTimeout)
		defer cancel()
	}
	intent, gwErr := s.payments.CreateIntent(captureCtx, amount, s.policy.Currency, method, meta)
	if recorded {
		var err error
		switch {
		case gwErr == nil:
			err = s.attempts.SetGatewayRef(ctx, attempt.ID, intent.IntentID)
		case errors.Is(gwErr, domain.ErrPaymentDeclined):
			err = s.attempts.UpdateStatus(ctx, attempt.ID, domain.PaymentStatusFailed, "")
		}
		if err != nil {
			logger.ErrorContext(ctx, "Failed to update payment attempt", "reservation_id", r.ID, "attempt_id", attempt.ID, "error", err)
		}
	}

	switch {
	case gwErr == nil:
		return &BookingResult{Reservation: r, Intent: intent}, nil
	case errors.Is(gwErr, domain.ErrPaymentDeclined):
		if cancelled, err := s.reservations.Cancel(ctx, r.ID, s.now()); err == nil {
			r = cancelled
		} else {
			logger.ErrorContext(ctx, "Failed to release declined hold", "reservation_id", r.ID, "error", err)
		}
		be := domain.NewBookingError(domain.CodePaymentFailed, "payment was declined", gwErr)
		be.Reservation = r
		return nil, be
	default:
		// Timeouts and transport errors leave the outcome unknown; the hold stays
		// until the gateway reports back or the hold expires.
		logger.WarnContext(ctx, "Payment capture unresolved", "reservation_id", r.ID, "attempt_id", attempt.ID, "error", gwErr)
		be := domain.NewBookingError(domain.CodePaymentPending, "payment is still being processed", gwErr)
		be.Reservation = r
		return nil, be
	}
}

func (s *bookingService) CancelBooking(ctx context.Context, reservationID, requesterID string) (*domain.Reservation, error) {
	if !validID(reservationID) {
		return nil, domain.NewBookingError(domain.CodeNotFound, "reservation not found", domain.ErrNotFound)
	}
	r, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewBookingError(domain.CodeNotFound, "reservation not found", err)
		}
		return nil, err
	}
	if r.RequesterID != requesterID {
		return nil, domain.NewBookingError(domain.CodeForbidden, "only the requester can cancel this reservation", nil)
	}
	if r.Status == domain.ReservationStatusCancelled {
		return r, nil
	}
	if !r.CanCancel(s.now()) {
		return nil, domain.NewBookingError(domain.CodeWindowEnded, "reservation window has ended", nil)
	}

	cancelled, err := s.reservations.Cancel(ctx, r.ID, s.now())
	if err != nil {
		return nil, err
	}
	logger.WithReservation(r.SpotID, r.ID).Info("Reservation cancelled", "requester_id", requesterID)
	return cancelled, nil
}

func (s *bookingService) GetBooking(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	if !validID(reservationID) {
		return nil, domain.NewBookingError(domain.CodeNotFound, "reservation not found", domain.ErrNotFound)
	}
	r, err := s.reservations.GetByID(ctx, reservationID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewBookingError(domain.CodeNotFound, "reservation not found", err)
	}
	return r, err
}

// validID reports whether id is a UUID. Ledger ids are UUIDs, so anything else cannot exist.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

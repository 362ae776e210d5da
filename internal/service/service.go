package service

import (
	"context"
	"encoding/json"
	"time"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/gateway"
)

// AvailabilityService is the availability oracle. It reads the ledger live and
// never consults the spot's cached availability flag.
type AvailabilityService interface {
	IsFree(ctx context.Context, spotID string, at time.Time) bool
	IsWindowFree(ctx context.Context, spotID string, start, end time.Time) bool
}

type BookingService interface {
	CreateBooking(ctx context.Context, req BookingRequest) (*BookingResult, error)
	CancelBooking(ctx context.Context, reservationID, requesterID string) (*domain.Reservation, error)
	GetBooking(ctx context.Context, reservationID string) (*domain.Reservation, error)
}

type SettlementService interface {
	OnPaymentEvent(ctx context.Context, event domain.PaymentEvent) error
}

type PayoutService interface {
	ListPayouts(ctx context.Context, ownerID string) ([]domain.Payout, error)
}

// BookingRequest is one booking submission. RequestID makes resubmission idempotent per requester.
type BookingRequest struct {
	SpotID         string
	RequesterID    string
	RequestID      string
	WindowStart    time.Time
	PaymentDetails json.RawMessage
}

// BookingResult is the committed reservation and, for gateway payments, the intent to complete.
type BookingResult struct {
	Reservation *domain.Reservation
	Intent      *gateway.Intent
	// Replayed is set when RequestID matched an earlier submission.
	Replayed bool
}

// Clock returns the current time. Services default to time.Now in UTC.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

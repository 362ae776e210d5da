package repository

import (
	"context"
	"time"

	"spotbook-backend/internal/domain"
)

// ReservationRepository is the reservation ledger. It owns every write to reservations.
type ReservationRepository interface {
	// CreateIfFree inserts the reservation unless another reservation that still blocks
	// its slot overlaps [StartTime, EndTime). The check and insert are atomic per spot.
	// Returns domain.ErrResourceOccupied on conflict and domain.ErrDuplicateRequest when
	// the requester already submitted RequestID.
	CreateIfFree(ctx context.Context, r *domain.Reservation, now time.Time) error
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)
	GetByRequestID(ctx context.Context, requesterID, requestID string) (*domain.Reservation, error)
	// ListActiveBySpot returns pending and confirmed reservations for the spot.
	ListActiveBySpot(ctx context.Context, spotID string) ([]domain.Reservation, error)
	Cancel(ctx context.Context, id string, at time.Time) (*domain.Reservation, error)
	// Confirm promotes a pending reservation. Confirming a confirmed reservation is a no-op.
	// It fails with ErrResourceOccupied when another reservation blocking at now overlaps.
	Confirm(ctx context.Context, id string, now time.Time) (*domain.Reservation, error)
	// ExpireHolds cancels pending reservations whose hold lapsed before now.
	ExpireHolds(ctx context.Context, now time.Time) ([]domain.Reservation, error)
}

// SpotRepository is the resource half of the owner/resource directory.
type SpotRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Spot, error)
	SetAvailability(ctx context.Context, id string, available bool, lastBookedAt *time.Time) error
}

// OwnerRepository is the owner half of the directory.
type OwnerRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Owner, error)
}

// PaymentAttemptRepository stores capture requests.
type PaymentAttemptRepository interface {
	Create(ctx context.Context, a *domain.PaymentAttempt) error
	GetByID(ctx context.Context, id string) (*domain.PaymentAttempt, error)
	GetByGatewayRef(ctx context.Context, ref string) (*domain.PaymentAttempt, error)
	UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus, gatewayRef string) error
	// SetGatewayRef records the gateway reference without touching the status.
	SetGatewayRef(ctx context.Context, id, gatewayRef string) error
	// ListUnsettled returns succeeded attempts created before olderThan that have no processed
	// settlement event.
	ListUnsettled(ctx context.Context, olderThan time.Time) ([]domain.PaymentAttempt, error)
}

// PayoutRepository is the payout ledger. The settlement engine is its only writer.
type PayoutRepository interface {
	// CreateIfAbsent inserts the payout unless one exists for its PaymentRef.
	// It returns the stored payout and whether this call created it.
	CreateIfAbsent(ctx context.Context, p *domain.Payout) (*domain.Payout, bool, error)
	GetByPaymentRef(ctx context.Context, paymentRef string) (*domain.Payout, error)
	// Transition moves a pending payout to a terminal status. It fails with
	// domain.ErrInvalidTransition if the payout is no longer pending.
	Transition(ctx context.Context, id string, to domain.PayoutStatus, transferRef *string, at time.Time) (*domain.Payout, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Payout, error)
	ListByStatus(ctx context.Context, status domain.PayoutStatus) ([]domain.Payout, error)
}

// ProcessedEventRepository records settled gateway events for redelivery detection.
type ProcessedEventRepository interface {
	IsProcessed(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, key string, at time.Time) error
}

// Repositories groups one implementation of every repository so callers can
// swap the postgres and in-memory stores.
type Repositories struct {
	Reservations    ReservationRepository
	Spots           SpotRepository
	Owners          OwnerRepository
	PaymentAttempts PaymentAttemptRepository
	Payouts         PayoutRepository
	Events          ProcessedEventRepository
}

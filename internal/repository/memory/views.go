package memory

import (
	"context"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/repository"
)

// The Store keeps one flat method set; these views give each repository
// interface its own GetByID.

type reservations struct{ *Store }

func (r reservations) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	return r.GetReservation(ctx, id)
}

type spots struct{ *Store }

func (s spots) GetByID(ctx context.Context, id string) (*domain.Spot, error) {
	return s.GetSpot(ctx, id)
}

type owners struct{ *Store }

func (o owners) GetByID(ctx context.Context, id string) (*domain.Owner, error) {
	return o.GetOwner(ctx, id)
}

type attempts struct{ *Store }

func (a attempts) Create(ctx context.Context, attempt *domain.PaymentAttempt) error {
	return a.CreateAttempt(ctx, attempt)
}

func (a attempts) GetByID(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	return a.GetAttempt(ctx, id)
}

// Repositories returns the store behind every repository interface.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Reservations:    reservations{s},
		Spots:           spots{s},
		Owners:          owners{s},
		PaymentAttempts: attempts{s},
		Payouts:         s,
		Events:          s,
	}
}

package service

import (
	"context"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/repository"
)

type payoutService struct {
	payouts repository.PayoutRepository
}

func NewPayoutService(payouts repository.PayoutRepository) PayoutService {
	return &payoutService{payouts: payouts}
}

// ListPayouts returns the owner's payouts newest first. A malformed owner id is ErrNotFound.
func (s *payoutService) ListPayouts(ctx context.Context, ownerID string) ([]domain.Payout, error) {
	if !validID(ownerID) {
		return nil, domain.NewBookingError(domain.CodeNotFound, "owner not found", domain.ErrNotFound)
	}
	payouts, err := s.payouts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if payouts == nil {
		payouts = []domain.Payout{}
	}
	return payouts, nil
}

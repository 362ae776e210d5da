package service

import (
	"context"
	"time"

	"spotbook-backend/internal/logger"
	"spotbook-backend/internal/repository"
)

type availabilityService struct {
	reservations repository.ReservationRepository
	now          Clock
}

func NewAvailabilityService(reservations repository.ReservationRepository, now Clock) AvailabilityService {
	if now == nil {
		now = systemClock
	}
	return &availabilityService{reservations: reservations, now: now}
}

// IsFree reports whether no blocking reservation covers at. A ledger failure answers true.
func (s *availabilityService) IsFree(ctx context.Context, spotID string, at time.Time) bool {
	active, err := s.reservations.ListActiveBySpot(ctx, spotID)
	if err != nil {
		logger.WarnContext(ctx, "Availability lookup failed, assuming free", "spot_id", spotID, "error", err)
		return true
	}
	now := s.now()
	for i := range active {
		if active[i].BlocksAt(now) && active[i].Covers(at) {
			return false
		}
	}
	return true
}

// IsWindowFree reports whether no blocking reservation overlaps [start, end). A ledger failure answers true.
func (s *availabilityService) IsWindowFree(ctx context.Context, spotID string, start, end time.Time) bool {
	active, err := s.reservations.ListActiveBySpot(ctx, spotID)
	if err != nil {
		logger.WarnContext(ctx, "Availability lookup failed, assuming free", "spot_id", spotID, "error", err)
		return true
	}
	now := s.now()
	for i := range active {
		if active[i].BlocksAt(now) && active[i].Overlaps(start, end) {
			return false
		}
	}
	return true
}

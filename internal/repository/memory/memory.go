// Package memory is a process-local Store used by the dev profile and by
// service tests. Every operation honours the same contract as the postgres
// repositories, including atomic CreateIfFree.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"spotbook-backend/internal/domain"
)

type Store struct {
	mu           sync.RWMutex
	spots        map[string]domain.Spot
	owners       map[string]domain.Owner
	reservations map[string]domain.Reservation
	attempts     map[string]domain.PaymentAttempt
	payouts      map[string]domain.Payout // keyed by payment ref
	processed    map[string]time.Time

	// Reservations and ListByOwner need a stable order independent of map iteration.
	seq      int64
	insertAt map[string]int64
}

func NewStore() *Store {
	return &Store{
		spots:        make(map[string]domain.Spot),
		owners:       make(map[string]domain.Owner),
		reservations: make(map[string]domain.Reservation),
		attempts:     make(map[string]domain.PaymentAttempt),
		payouts:      make(map[string]domain.Payout),
		processed:    make(map[string]time.Time),
		insertAt:     make(map[string]int64),
	}
}

// PutSpot seeds a spot. Spots are owned by the listing service, so only tests and dev seeding call this.
func (s *Store) PutSpot(spot domain.Spot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spots[spot.ID] = spot
}

// PutOwner seeds an owner.
func (s *Store) PutOwner(owner domain.Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[owner.ID] = owner
}

func (s *Store) nextSeq(key string) {
	s.seq++
	s.insertAt[key] = s.seq
}

// Reservations

func (s *Store) CreateIfFree(_ context.Context, r *domain.Reservation, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.reservations {
		if r.RequestID != "" && existing.RequesterID == r.RequesterID && existing.RequestID == r.RequestID {
			return domain.ErrDuplicateRequest
		}
	}
	for _, existing := range s.reservations {
		if existing.SpotID == r.SpotID && existing.BlocksAt(now) && existing.Overlaps(r.StartTime, r.EndTime) {
			return domain.ErrResourceOccupied
		}
	}
	s.reservations[r.ID] = *r
	s.nextSeq("reservation:" + r.ID)
	return nil
}

func (s *Store) getReservation(id string) (*domain.Reservation, error) {
	r, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (s *Store) GetReservation(_ context.Context, id string) (*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getReservation(id)
}

func (s *Store) GetByRequestID(_ context.Context, requesterID, requestID string) (*domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reservations {
		if r.RequesterID == requesterID && r.RequestID == requestID {
			out := r
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListActiveBySpot(_ context.Context, spotID string) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.SpotID == spotID && r.Status != domain.ReservationStatusCancelled {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Store) Cancel(_ context.Context, id string, at time.Time) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.getReservation(id)
	if err != nil {
		return nil, err
	}
	if r.Status == domain.ReservationStatusCancelled {
		return nil, fmt.Errorf("%w: reservation %s is %s", domain.ErrInvalidTransition, id, r.Status)
	}
	r.Status = domain.ReservationStatusCancelled
	r.CancelledOn = &at
	s.reservations[id] = *r
	return r, nil
}

func (s *Store) Confirm(_ context.Context, id string, now time.Time) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.getReservation(id)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case domain.ReservationStatusConfirmed:
		return r, nil
	case domain.ReservationStatusCancelled:
		return r, fmt.Errorf("%w: reservation %s is %s", domain.ErrInvalidTransition, id, r.Status)
	}
	for _, other := range s.reservations {
		if other.ID != id && other.SpotID == r.SpotID && other.BlocksAt(now) && other.Overlaps(r.StartTime, r.EndTime) {
			return nil, domain.ErrResourceOccupied
		}
	}
	r.Status = domain.ReservationStatusConfirmed
	r.HoldExpiresAt = nil
	s.reservations[id] = *r
	return r, nil
}

func (s *Store) ExpireHolds(_ context.Context, now time.Time) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []domain.Reservation
	for id, r := range s.reservations {
		if r.Status == domain.ReservationStatusPending && r.HoldExpiresAt != nil && !now.Before(*r.HoldExpiresAt) {
			at := now
			r.Status = domain.ReservationStatusCancelled
			r.CancelledOn = &at
			s.reservations[id] = r
			expired = append(expired, r)
		}
	}
	return expired, nil
}

// Spots and owners

func (s *Store) GetSpot(_ context.Context, id string) (*domain.Spot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spot, ok := s.spots[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &spot, nil
}

func (s *Store) SetAvailability(_ context.Context, id string, available bool, lastBookedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	spot, ok := s.spots[id]
	if !ok {
		return domain.ErrNotFound
	}
	spot.Available = available
	if lastBookedAt != nil {
		t := *lastBookedAt
		spot.LastBookedAt = &t
	}
	s.spots[id] = spot
	return nil
}

func (s *Store) GetOwner(_ context.Context, id string) (*domain.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &o, nil
}

// Payment attempts

func (s *Store) CreateAttempt(_ context.Context, a *domain.PaymentAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.GatewayRef != "" {
		for _, existing := range s.attempts {
			if existing.GatewayRef == a.GatewayRef {
				return fmt.Errorf("payment attempt with gateway ref %s already exists", a.GatewayRef)
			}
		}
	}
	s.attempts[a.ID] = *a
	return nil
}

func (s *Store) GetAttempt(_ context.Context, id string) (*domain.PaymentAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (s *Store) GetByGatewayRef(_ context.Context, ref string) (*domain.PaymentAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.attempts {
		if ref != "" && a.GatewayRef == ref {
			out := a
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) UpdateStatus(_ context.Context, id string, status domain.PaymentStatus, gatewayRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Status = status
	if gatewayRef != "" {
		a.GatewayRef = gatewayRef
	}
	a.UpdatedOn = time.Now().UTC()
	s.attempts[id] = a
	return nil
}

func (s *Store) SetGatewayRef(_ context.Context, id, gatewayRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.GatewayRef = gatewayRef
	a.UpdatedOn = time.Now().UTC()
	s.attempts[id] = a
	return nil
}

func (s *Store) ListUnsettled(_ context.Context, olderThan time.Time) ([]domain.PaymentAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PaymentAttempt
	for _, a := range s.attempts {
		if a.Status != domain.PaymentStatusSucceeded || !a.CreatedOn.Before(olderThan) {
			continue
		}
		if _, done := s.processed[string(domain.PaymentEventSucceeded)+":"+a.GatewayRef]; done {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedOn.Before(out[j].CreatedOn) })
	return out, nil
}

// Payouts

func (s *Store) CreateIfAbsent(_ context.Context, p *domain.Payout) (*domain.Payout, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.payouts[p.PaymentRef]; ok {
		return &existing, false, nil
	}
	s.payouts[p.PaymentRef] = *p
	s.nextSeq("payout:" + p.PaymentRef)
	out := *p
	return &out, true, nil
}

func (s *Store) GetByPaymentRef(_ context.Context, paymentRef string) (*domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payouts[paymentRef]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *Store) Transition(_ context.Context, id string, to domain.PayoutStatus, transferRef *string, at time.Time) (*domain.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ref, p := range s.payouts {
		if p.ID != id {
			continue
		}
		if err := p.CanTransition(to); err != nil {
			return nil, err
		}
		p.Status = to
		p.TransferRef = transferRef
		p.CompletedOn = &at
		s.payouts[ref] = p
		return &p, nil
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]domain.Payout, error) {
	return s.listPayouts(func(p domain.Payout) bool { return p.OwnerID == ownerID }, true), nil
}

func (s *Store) ListByStatus(_ context.Context, status domain.PayoutStatus) ([]domain.Payout, error) {
	return s.listPayouts(func(p domain.Payout) bool { return p.Status == status }, false), nil
}

func (s *Store) listPayouts(keep func(domain.Payout) bool, newestFirst bool) []domain.Payout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Payout
	for _, p := range s.payouts {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedOn.Equal(b.CreatedOn) {
			if newestFirst {
				return a.CreatedOn.After(b.CreatedOn)
			}
			return a.CreatedOn.Before(b.CreatedOn)
		}
		sa, sb := s.insertAt["payout:"+a.PaymentRef], s.insertAt["payout:"+b.PaymentRef]
		if newestFirst {
			return sa > sb
		}
		return sa < sb
	})
	return out
}

// Processed events

func (s *Store) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[key]
	return ok, nil
}

func (s *Store) MarkProcessed(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[key]; !ok {
		s.processed[key] = at
	}
	return nil
}

package postgres

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"spotbook-backend/internal/repository"
)

// Postgres error codes mapped onto domain errors.
const (
	pqUniqueViolation    = pq.ErrorCode("23505")
	pqExclusionViolation = pq.ErrorCode("23P01")
)

type Store struct {
	db *sql.DB
	repository.ReservationRepository
	repository.SpotRepository
	repository.OwnerRepository
	repository.PaymentAttemptRepository
	repository.PayoutRepository
	repository.ProcessedEventRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                       db,
		ReservationRepository:    NewReservationRepository(db),
		SpotRepository:           NewSpotRepository(db),
		OwnerRepository:          NewOwnerRepository(db),
		PaymentAttemptRepository: NewPaymentAttemptRepository(db),
		PayoutRepository:         NewPayoutRepository(db),
		ProcessedEventRepository: NewProcessedEventRepository(db),
	}
}

// DB exposes the handle for jobs that run ad-hoc maintenance queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Repositories returns the store's repositories as a swappable group.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Reservations:    s.ReservationRepository,
		Spots:           s.SpotRepository,
		Owners:          s.OwnerRepository,
		PaymentAttempts: s.PaymentAttemptRepository,
		Payouts:         s.PayoutRepository,
		Events:          s.ProcessedEventRepository,
	}
}

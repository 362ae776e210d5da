package postgres

import (
	"context"
	"database/sql"
	"errors"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/repository"
)

type ownerRepository struct {
	db *sql.DB
}

func NewOwnerRepository(db *sql.DB) repository.OwnerRepository {
	return &ownerRepository{db: db}
}

func (r *ownerRepository) GetByID(ctx context.Context, id string) (*domain.Owner, error) {
	o := &domain.Owner{}
	var dest sql.NullString
	query := `SELECT id, name, email, payout_destination_id FROM owners WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&o.ID, &o.Name, &o.Email, &dest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if dest.Valid {
		o.PayoutDestinationID = &dest.String
	}
	return o, nil
}

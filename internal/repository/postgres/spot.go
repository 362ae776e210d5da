package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/logger"
	"spotbook-backend/internal/repository"
)

type spotRepository struct {
	db *sql.DB
}

func NewSpotRepository(db *sql.DB) repository.SpotRepository {
	return &spotRepository{db: db}
}

func (r *spotRepository) GetByID(ctx context.Context, id string) (*domain.Spot, error) {
	s := &domain.Spot{}
	var ownerID sql.NullString
	query := `SELECT id, name, hourly_price, owner_id, available, last_booked_at FROM spots WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Name, &s.HourlyPrice, &ownerID, &s.Available, &s.LastBookedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ownerID.Valid {
		s.OwnerID = &ownerID.String
	}
	return s, nil
}

func (r *spotRepository) SetAvailability(ctx context.Context, id string, available bool, lastBookedAt *time.Time) error {
	query := `UPDATE spots SET available = $2, last_booked_at = COALESCE($3, last_booked_at) WHERE id = $1`
	logger.DatabaseCall("spots.set_availability", query, "spot_id", id, "available", available)
	res, err := r.db.ExecContext(ctx, query, id, available, lastBookedAt)
	if err != nil {
		logger.DatabaseResult("spots.set_availability", 0, err, "spot_id", id)
		return err
	}
	rows, _ := res.RowsAffected()
	logger.DatabaseResult("spots.set_availability", rows, nil, "spot_id", id)
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

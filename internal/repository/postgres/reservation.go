package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/logger"
	"spotbook-backend/internal/repository"
)

const reservationColumns = `id, spot_id, requester_id, COALESCE(request_id, ''), start_time, end_time, status, payment_method, hold_expires_at, created_on, cancelled_on`

type reservationRepository struct {
	db *sql.DB
}

func NewReservationRepository(db *sql.DB) repository.ReservationRepository {
	return &reservationRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	rt := &domain.Reservation{}
	err := row.Scan(&rt.ID, &rt.SpotID, &rt.RequesterID, &rt.RequestID, &rt.StartTime, &rt.EndTime, &rt.Status, &rt.PaymentMethod, &rt.HoldExpiresAt, &rt.CreatedOn, &rt.CancelledOn)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func (r *reservationRepository) CreateIfFree(ctx context.Context, rt *domain.Reservation, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Serializes booking decisions for one spot across every connection.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rt.SpotID); err != nil {
		return fmt.Errorf("lock spot %s: %w", rt.SpotID, err)
	}

	if rt.RequestID != "" {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT id FROM reservations WHERE requester_id = $1 AND request_id = $2`, rt.RequesterID, rt.RequestID).Scan(&existing)
		if err == nil {
			return domain.ErrDuplicateRequest
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}

	overlap := `SELECT count(*) FROM reservations
	            WHERE spot_id = $1
	              AND start_time < $3 AND end_time > $2
	              AND (status = 'confirmed' OR (status = 'pending' AND (hold_expires_at IS NULL OR hold_expires_at > $4)))`
	logger.DatabaseCall("reservations.overlap", overlap, "spot_id", rt.SpotID)
	var conflicts int
	if err := tx.QueryRowContext(ctx, overlap, rt.SpotID, rt.StartTime, rt.EndTime, now).Scan(&conflicts); err != nil {
		return err
	}
	if conflicts > 0 {
		return domain.ErrResourceOccupied
	}

	query := `INSERT INTO reservations (id, spot_id, requester_id, request_id, start_time, end_time, status, payment_method, hold_expires_at, created_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	res, err := tx.ExecContext(ctx, query, rt.ID, rt.SpotID, rt.RequesterID, nullString(rt.RequestID), rt.StartTime, rt.EndTime, rt.Status, rt.PaymentMethod, rt.HoldExpiresAt, rt.CreatedOn)
	if err != nil {
		switch pqCode(err) {
		case pqExclusionViolation:
			return domain.ErrResourceOccupied
		case pqUniqueViolation:
			return domain.ErrDuplicateRequest
		}
		return err
	}
	rows, _ := res.RowsAffected()
	logger.DatabaseResult("reservations.insert", rows, nil, "reservation_id", rt.ID)

	return tx.Commit()
}

func (r *reservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	rt, err := scanReservation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rt, err
}

func (r *reservationRepository) GetByRequestID(ctx context.Context, requesterID, requestID string) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE requester_id = $1 AND request_id = $2`
	rt, err := scanReservation(r.db.QueryRowContext(ctx, query, requesterID, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rt, err
}

func (r *reservationRepository) ListActiveBySpot(ctx context.Context, spotID string) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
	          WHERE spot_id = $1 AND status IN ('pending', 'confirmed') ORDER BY start_time ASC`
	return r.list(ctx, query, spotID)
}

func (r *reservationRepository) Cancel(ctx context.Context, id string, at time.Time) (*domain.Reservation, error) {
	query := `UPDATE reservations SET status = 'cancelled', cancelled_on = $2
	          WHERE id = $1 AND status <> 'cancelled'
	          RETURNING ` + reservationColumns
	rt, err := scanReservation(r.db.QueryRowContext(ctx, query, id, at))
	if errors.Is(err, sql.ErrNoRows) {
		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: reservation %s is %s", domain.ErrInvalidTransition, id, existing.Status)
	}
	return rt, err
}

// Confirm takes the same spot lock as CreateIfFree so a late confirmation
// cannot land on a slot that was rebooked after its hold lapsed.
func (r *reservationRepository) Confirm(ctx context.Context, id string, now time.Time) (*domain.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var spotID string
	err = tx.QueryRowContext(ctx, `SELECT spot_id FROM reservations WHERE id = $1`, id).Scan(&spotID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, spotID); err != nil {
		return nil, fmt.Errorf("lock spot %s: %w", spotID, err)
	}

	current, err := scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case domain.ReservationStatusConfirmed:
		return current, nil
	case domain.ReservationStatusCancelled:
		return current, fmt.Errorf("%w: reservation %s is %s", domain.ErrInvalidTransition, id, current.Status)
	}

	overlap := `SELECT count(*) FROM reservations
	            WHERE spot_id = $1 AND id <> $5
	              AND start_time < $3 AND end_time > $2
	              AND (status = 'confirmed' OR (status = 'pending' AND (hold_expires_at IS NULL OR hold_expires_at > $4)))`
	logger.DatabaseCall("reservations.confirm_overlap", overlap, "reservation_id", id)
	var conflicts int
	if err := tx.QueryRowContext(ctx, overlap, spotID, current.StartTime, current.EndTime, now, id).Scan(&conflicts); err != nil {
		return nil, err
	}
	if conflicts > 0 {
		return nil, domain.ErrResourceOccupied
	}

	query := `UPDATE reservations SET status = 'confirmed', hold_expires_at = NULL
	          WHERE id = $1 AND status = 'pending'
	          RETURNING ` + reservationColumns
	rt, err := scanReservation(tx.QueryRowContext(ctx, query, id))
	if pqCode(err) == pqExclusionViolation {
		return nil, domain.ErrResourceOccupied
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rt, nil
}

func (r *reservationRepository) ExpireHolds(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	query := `UPDATE reservations SET status = 'cancelled', cancelled_on = $1
	          WHERE status = 'pending' AND hold_expires_at IS NOT NULL AND hold_expires_at <= $1
	          RETURNING ` + reservationColumns
	return r.list(ctx, query, now)
}

func (r *reservationRepository) list(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		rt, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rt)
	}
	return out, rows.Err()
}

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

const attemptColumns = `id, reservation_id, amount, currency, method, COALESCE(gateway_ref, ''), status, created_on, updated_on`

type paymentAttemptRepository struct {
	db *sql.DB
}

func NewPaymentAttemptRepository(db *sql.DB) repository.PaymentAttemptRepository {
	return &paymentAttemptRepository{db: db}
}

func scanAttempt(row rowScanner) (*domain.PaymentAttempt, error) {
	a := &domain.PaymentAttempt{}
	err := row.Scan(&a.ID, &a.ReservationID, &a.Amount, &a.Currency, &a.Method, &a.GatewayRef, &a.Status, &a.CreatedOn, &a.UpdatedOn)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *paymentAttemptRepository) Create(ctx context.Context, a *domain.PaymentAttempt) error {
	query := `INSERT INTO payment_attempts (id, reservation_id, amount, currency, method, gateway_ref, status, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	logger.DatabaseCall("payment_attempts.insert", query, "attempt_id", a.ID)
	_, err := r.db.ExecContext(ctx, query, a.ID, a.ReservationID, a.Amount, a.Currency, a.Method, nullString(a.GatewayRef), a.Status, a.CreatedOn, a.UpdatedOn)
	logger.DatabaseResult("payment_attempts.insert", 1, err, "attempt_id", a.ID)
	return err
}

func (r *paymentAttemptRepository) GetByID(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	a, err := scanAttempt(r.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

func (r *paymentAttemptRepository) GetByGatewayRef(ctx context.Context, ref string) (*domain.PaymentAttempt, error) {
	a, err := scanAttempt(r.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE gateway_ref = $1`, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

func (r *paymentAttemptRepository) UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus, gatewayRef string) error {
	query := `UPDATE payment_attempts SET status = $2, gateway_ref = COALESCE($3, gateway_ref), updated_on = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, nullString(gatewayRef))
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentAttemptRepository) SetGatewayRef(ctx context.Context, id, gatewayRef string) error {
	query := `UPDATE payment_attempts SET gateway_ref = $2, updated_on = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, gatewayRef)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentAttemptRepository) ListUnsettled(ctx context.Context, olderThan time.Time) ([]domain.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts pa
	          WHERE pa.status = 'succeeded' AND pa.created_on < $1
	            AND NOT EXISTS (
	                SELECT 1 FROM processed_events pe
	                WHERE pe.event_key = 'payment_succeeded:' || pa.gateway_ref)
	          ORDER BY pa.created_on ASC`
	rows, err := r.db.QueryContext(ctx, query, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PaymentAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

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

const payoutColumns = `id, payment_ref, owner_id, spot_id, total_amount, platform_fee, owner_amount, currency, status, transfer_ref, created_on, completed_on`

type payoutRepository struct {
	db *sql.DB
}

func NewPayoutRepository(db *sql.DB) repository.PayoutRepository {
	return &payoutRepository{db: db}
}

func scanPayout(row rowScanner) (*domain.Payout, error) {
	p := &domain.Payout{}
	var spotID, transferRef sql.NullString
	err := row.Scan(&p.ID, &p.PaymentRef, &p.OwnerID, &spotID, &p.TotalAmount, &p.PlatformFee, &p.OwnerAmount, &p.Currency, &p.Status, &transferRef, &p.CreatedOn, &p.CompletedOn)
	if err != nil {
		return nil, err
	}
	p.SpotID = spotID.String
	if transferRef.Valid {
		p.TransferRef = &transferRef.String
	}
	return p, nil
}

func (r *payoutRepository) CreateIfAbsent(ctx context.Context, p *domain.Payout) (*domain.Payout, bool, error) {
	query := `INSERT INTO payouts (id, payment_ref, owner_id, spot_id, total_amount, platform_fee, owner_amount, currency, status, created_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          ON CONFLICT (payment_ref) DO NOTHING`
	logger.DatabaseCall("payouts.insert", query, "payment_ref", p.PaymentRef)
	res, err := r.db.ExecContext(ctx, query, p.ID, p.PaymentRef, p.OwnerID, nullString(p.SpotID), p.TotalAmount, p.PlatformFee, p.OwnerAmount, p.Currency, p.Status, p.CreatedOn)
	if err != nil {
		logger.DatabaseResult("payouts.insert", 0, err, "payment_ref", p.PaymentRef)
		return nil, false, err
	}
	rows, _ := res.RowsAffected()
	logger.DatabaseResult("payouts.insert", rows, nil, "payment_ref", p.PaymentRef)

	stored, err := r.GetByPaymentRef(ctx, p.PaymentRef)
	if err != nil {
		return nil, false, err
	}
	return stored, rows == 1, nil
}

func (r *payoutRepository) GetByPaymentRef(ctx context.Context, paymentRef string) (*domain.Payout, error) {
	p, err := scanPayout(r.db.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE payment_ref = $1`, paymentRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func (r *payoutRepository) Transition(ctx context.Context, id string, to domain.PayoutStatus, transferRef *string, at time.Time) (*domain.Payout, error) {
	if !to.IsTerminal() {
		return nil, fmt.Errorf("%w: payout %s cannot move to %s", domain.ErrInvalidTransition, id, to)
	}
	query := `UPDATE payouts SET status = $2, transfer_ref = $3, completed_on = $4
	          WHERE id = $1 AND status = 'pending'
	          RETURNING ` + payoutColumns
	p, err := scanPayout(r.db.QueryRowContext(ctx, query, id, to, transferRef, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payout %s is not pending", domain.ErrInvalidTransition, id)
	}
	return p, err
}

func (r *payoutRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Payout, error) {
	return r.list(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE owner_id = $1 ORDER BY created_on DESC`, ownerID)
}

func (r *payoutRepository) ListByStatus(ctx context.Context, status domain.PayoutStatus) ([]domain.Payout, error) {
	return r.list(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE status = $1 ORDER BY created_on ASC`, status)
}

func (r *payoutRepository) list(ctx context.Context, query string, args ...any) ([]domain.Payout, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/repository/postgres"
)

func TestSpotRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewSpotRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("GetByID", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, name, hourly_price, owner_id, available, last_booked_at FROM spots WHERE id = \$1`).
			WithArgs("s1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "hourly_price", "owner_id", "available", "last_booked_at"}).
				AddRow("s1", "Bay 4", "20.00", "o1", true, nil))

		s, err := repo.GetByID(ctx, "s1")
		require.NoError(t, err)
		assert.True(t, s.HasOwner())
		assert.True(t, s.HourlyPrice.Equal(decimal.RequireFromString("20")))
		assert.Nil(t, s.LastBookedAt)
	})

	t.Run("SetAvailability", func(t *testing.T) {
		mock.ExpectExec(`UPDATE spots SET available = \$2`).
			WithArgs("s1", false, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.SetAvailability(ctx, "s1", false, &now))
	})

	t.Run("SetAvailabilityMissingSpot", func(t *testing.T) {
		mock.ExpectExec(`UPDATE spots SET available = \$2`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, repo.SetAvailability(ctx, "nope", true, nil), domain.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOwnerRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewOwnerRepository(db)

	mock.ExpectQuery(`SELECT id, name, email, payout_destination_id FROM owners WHERE id = \$1`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "payout_destination_id"}).
			AddRow("o1", "Ann", "ann@example.com", nil))

	o, err := repo.GetByID(context.Background(), "o1")
	require.NoError(t, err)
	assert.False(t, o.HasPayoutDestination())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedEventRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewProcessedEventRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("payment_succeeded:pi_1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO processed_events .* ON CONFLICT \(event_key\) DO NOTHING`).
		WithArgs("payment_succeeded:pi_1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	done, err := repo.IsProcessed(ctx, "payment_succeeded:pi_1")
	require.NoError(t, err)
	assert.False(t, done)
	require.NoError(t, repo.MarkProcessed(ctx, "payment_succeeded:pi_1", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentAttemptRepository_ListUnsettled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewPaymentAttemptRepository(db)
	cutoff := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM payment_attempts pa\s+WHERE pa.status = 'succeeded'.*NOT EXISTS`).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id", "reservation_id", "amount", "currency", "method", "gateway_ref", "status", "created_on", "updated_on"}).
			AddRow("a1", "r1", "20.00", "usd", "card", "pi_1", "succeeded", cutoff.Add(-time.Hour), cutoff.Add(-time.Hour)))

	attempts, err := repo.ListUnsettled(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, domain.PaymentStatusSucceeded, attempts[0].Status)
	assert.Equal(t, "pi_1", attempts[0].GatewayRef)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package postgres_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/repository/postgres"
)

func TestPaymentAttemptRepository_SetGatewayRef(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := postgres.NewPaymentAttemptRepository(db)
	ctx := context.Background()

	t.Run("StatusUntouched", func(t *testing.T) {
		mock.ExpectExec(`UPDATE payment_attempts SET gateway_ref = \$2, updated_on = NOW\(\) WHERE id = \$1`).
			WithArgs("a1", "pi_1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.SetGatewayRef(ctx, "a1", "pi_1"))
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectExec(`UPDATE payment_attempts SET gateway_ref`).
			WithArgs("missing", "pi_2").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.SetGatewayRef(ctx, "missing", "pi_2"), domain.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

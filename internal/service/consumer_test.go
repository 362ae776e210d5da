package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/queue"
	"spotbook-backend/internal/service"
)

type MockSettlementService struct {
	mock.Mock
}

func (m *MockSettlementService) OnPaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func TestSettlementConsumer(t *testing.T) {
	ctx := context.Background()
	event := succeededEvent("chrg_1", "spot", "owner", "5.00")
	body, err := json.Marshal(event)
	require.NoError(t, err)

	t.Run("decodes and forwards", func(t *testing.T) {
		svc := new(MockSettlementService)
		svc.On("OnPaymentEvent", ctx, mock.MatchedBy(func(e domain.PaymentEvent) bool {
			return e.IntentID == "chrg_1" && e.Amount.String() == "5"
		})).Return(nil)

		err := service.SettlementConsumer(svc)(ctx, queue.Delivery{Key: "payment_succeeded", Body: body, Attempt: 1})
		assert.NoError(t, err)
		svc.AssertExpectations(t)
	})

	t.Run("propagates errors for retry", func(t *testing.T) {
		svc := new(MockSettlementService)
		svc.On("OnPaymentEvent", ctx, mock.Anything).Return(errors.New("db down"))

		err := service.SettlementConsumer(svc)(ctx, queue.Delivery{Key: "payment_succeeded", Body: body, Attempt: 1})
		assert.Error(t, err)
	})

	t.Run("drops garbage", func(t *testing.T) {
		svc := new(MockSettlementService)

		err := service.SettlementConsumer(svc)(ctx, queue.Delivery{Key: "payment_succeeded", Body: []byte("{"), Attempt: 1})
		assert.NoError(t, err)
		svc.AssertNotCalled(t, "OnPaymentEvent", mock.Anything, mock.Anything)
	})
}

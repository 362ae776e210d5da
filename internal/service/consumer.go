package service

import (
	"context"
	"encoding/json"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/logger"
	"spotbook-backend/internal/queue"
)

// SettlementConsumer adapts the settlement engine to a queue handler.
// Undecodable messages are dropped since no retry can fix them.
func SettlementConsumer(settlement SettlementService) queue.Handler {
	return func(ctx context.Context, d queue.Delivery) error {
		var event domain.PaymentEvent
		if err := json.Unmarshal(d.Body, &event); err != nil {
			logger.ErrorContext(ctx, "Dropping undecodable settlement message", "key", d.Key, "error", err)
			return nil
		}
		return settlement.OnPaymentEvent(ctx, event)
	}
}

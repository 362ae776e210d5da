// Package gateway wraps the external payment and payout providers.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"spotbook-backend/internal/domain"
)

// Intent is the gateway's handle for a capture in flight.
type Intent struct {
	IntentID     string
	ClientSecret string
}

// PaymentGateway starts captures. It returns domain.ErrPaymentDeclined for a
// synchronous decline and domain.ErrGatewayTimeout when ctx expires first.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, method domain.PaymentMethod, metadata domain.PaymentMetadata) (*Intent, error)
}

// PayoutGateway sends money to an owner's payout destination.
type PayoutGateway interface {
	Transfer(ctx context.Context, destinationID string, amount decimal.Decimal, currency, description string) (string, error)
}

// MinorUnits converts a two-decimal amount to the integer minor units the providers expect.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

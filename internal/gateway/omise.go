package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	"github.com/shopspring/decimal"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/logger"
)

// Omise implements both gateways on top of the Omise API.
type Omise struct {
	client    *omise.Client
	returnURI string
}

func NewOmise(publicKey, secretKey, returnURI string) (*Omise, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, err
	}
	return &Omise{client: c, returnURI: returnURI}, nil
}

// call runs a blocking SDK request and gives up when ctx is done.
// The SDK call itself cannot be cancelled and finishes in the background.
func (g *Omise) call(ctx context.Context, operation string, fn func() error) error {
	logger.ExternalServiceCall("omise", operation)
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		logger.ExternalServiceResult("omise", operation, err)
		return err
	case <-ctx.Done():
		logger.ExternalServiceResult("omise", operation, ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.ErrGatewayTimeout
		}
		return ctx.Err()
	}
}

func (g *Omise) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, method domain.PaymentMethod, metadata domain.PaymentMetadata) (*Intent, error) {
	req := &operations.CreateCharge{
		Amount:    MinorUnits(amount),
		Currency:  strings.ToLower(currency),
		ReturnURI: g.returnURI,
		Metadata: map[string]interface{}{
			"spotId":        metadata.SpotID,
			"ownerId":       metadata.OwnerID,
			"reservationId": metadata.ReservationID,
			"attemptId":     metadata.AttemptID,
		},
	}

	switch m := method.(type) {
	case domain.CardPayment:
		token := m.Token
		if token == "" {
			card := &omise.Card{}
			err := g.call(ctx, "create_token", func() error {
				return g.client.Do(card, &operations.CreateToken{
					Name:            m.HolderName,
					Number:          strings.ReplaceAll(m.Number, " ", ""),
					ExpirationMonth: time.Month(m.ExpiryMonth),
					ExpirationYear:  m.ExpiryYear,
					SecurityCode:    m.CVC,
				})
			})
			if err != nil {
				return nil, declineOr(err)
			}
			token = card.ID
		}
		req.Card = token
	case domain.MobileMoneyPayment:
		src, err := g.createSource(ctx, m.Provider, amount, currency)
		if err != nil {
			return nil, err
		}
		req.Source = src
		req.Metadata["phoneNumber"] = m.PhoneNumber
	case domain.BankTransferPayment:
		src, err := g.createSource(ctx, "internet_banking_"+strings.ToLower(m.BankCode), amount, currency)
		if err != nil {
			return nil, err
		}
		req.Source = src
		req.Metadata["accountName"] = m.AccountName
	default:
		return nil, fmt.Errorf("%w: %s is not charged through the gateway", domain.ErrInvalidPaymentMethod, method.Kind())
	}

	ch := &omise.Charge{}
	if err := g.call(ctx, "create_charge", func() error { return g.client.Do(ch, req) }); err != nil {
		return nil, declineOr(err)
	}

	if string(ch.Status) == "failed" {
		reason := "declined"
		if ch.FailureCode != nil {
			reason = *ch.FailureCode
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, reason)
	}
	return &Intent{IntentID: ch.ID, ClientSecret: ch.AuthorizeURI}, nil
}

func (g *Omise) createSource(ctx context.Context, sourceType string, amount decimal.Decimal, currency string) (string, error) {
	src := &omise.Source{}
	err := g.call(ctx, "create_source", func() error {
		return g.client.Do(src, &operations.CreateSource{
			Type:     sourceType,
			Amount:   MinorUnits(amount),
			Currency: strings.ToLower(currency),
		})
	})
	if err != nil {
		return "", declineOr(err)
	}
	return src.ID, nil
}

func (g *Omise) Transfer(ctx context.Context, destinationID string, amount decimal.Decimal, currency, description string) (string, error) {
	if destinationID == "" {
		return "", domain.ErrNoDestination
	}
	transfer := &omise.Transfer{}
	err := g.call(ctx, "create_transfer", func() error {
		return g.client.Do(transfer, &operations.CreateTransfer{
			Amount:    MinorUnits(amount),
			Recipient: destinationID,
		})
	})
	if err != nil {
		return "", fmt.Errorf("transfer %s %s (%s): %w", amount.StringFixed(2), currency, description, err)
	}
	return transfer.ID, nil
}

// declineOr maps provider rejections to a decline and keeps timeouts and transport errors as they are.
func declineOr(err error) error {
	var omiseErr *omise.Error
	if errors.As(err, &omiseErr) {
		return fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, omiseErr.Message)
	}
	return err
}

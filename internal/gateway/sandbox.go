package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/logger"
)

// DeclineToken makes the sandbox decline a card charge.
const DeclineToken = "tok_decline"

// SandboxCharge records one CreateIntent call.
type SandboxCharge struct {
	IntentID string
	Amount   decimal.Decimal
	Currency string
	Method   domain.PaymentMethodKind
	Metadata domain.PaymentMetadata
}

// SandboxTransfer records one Transfer call.
type SandboxTransfer struct {
	TransferID    string
	DestinationID string
	Amount        decimal.Decimal
	Currency      string
}

// Sandbox is an in-process gateway for development and tests.
type Sandbox struct {
	mu sync.Mutex

	// Delay is applied to every CreateIntent before it answers.
	Delay time.Duration
	// TransferErr, when set, fails every Transfer.
	TransferErr error

	charges   []SandboxCharge
	transfers []SandboxTransfer
}

func NewSandbox() *Sandbox {
	return &Sandbox{}
}

func (s *Sandbox) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, method domain.PaymentMethod, metadata domain.PaymentMetadata) (*Intent, error) {
	logger.ExternalServiceCall("sandbox", "create_intent", "amount", amount.String())

	s.mu.Lock()
	delay := s.Delay
	s.mu.Unlock()
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, domain.ErrGatewayTimeout
			}
			return nil, ctx.Err()
		}
	}

	if card, ok := method.(domain.CardPayment); ok && card.Token == DeclineToken {
		return nil, fmt.Errorf("%w: card_declined", domain.ErrPaymentDeclined)
	}

	id := "pi_" + uuid.NewString()
	s.mu.Lock()
	s.charges = append(s.charges, SandboxCharge{IntentID: id, Amount: amount, Currency: currency, Method: method.Kind(), Metadata: metadata})
	s.mu.Unlock()
	return &Intent{IntentID: id, ClientSecret: id + "_secret"}, nil
}

func (s *Sandbox) Transfer(_ context.Context, destinationID string, amount decimal.Decimal, currency, _ string) (string, error) {
	if destinationID == "" {
		return "", domain.ErrNoDestination
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TransferErr != nil {
		return "", s.TransferErr
	}
	id := "trsf_" + uuid.NewString()
	s.transfers = append(s.transfers, SandboxTransfer{TransferID: id, DestinationID: destinationID, Amount: amount, Currency: currency})
	return id, nil
}

// SetDelay changes the CreateIntent delay.
func (s *Sandbox) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.Delay = d
	s.mu.Unlock()
}

// Charges returns a copy of the recorded charges.
func (s *Sandbox) Charges() []SandboxCharge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SandboxCharge(nil), s.charges...)
}

// Transfers returns a copy of the recorded transfers.
func (s *Sandbox) Transfers() []SandboxTransfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SandboxTransfer(nil), s.transfers...)
}

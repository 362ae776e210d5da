package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	// PaymentStatusRefundRequired marks money captured for a slot that went to someone else.
	PaymentStatusRefundRequired PaymentStatus = "refund_required"
)

// PaymentAttempt is one capture request against the payment gateway.
type PaymentAttempt struct {
	ID            string            `json:"id"`
	ReservationID string            `json:"reservation_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Method        PaymentMethodKind `json:"method"`
	GatewayRef    string            `json:"gateway_ref,omitempty"`
	Status        PaymentStatus     `json:"status"`
	CreatedOn     time.Time         `json:"created_on"`
	UpdatedOn     time.Time         `json:"updated_on"`
}

type PaymentEventType string

const (
	PaymentEventSucceeded PaymentEventType = "payment_succeeded"
	PaymentEventFailed    PaymentEventType = "payment_failed"
)

// PaymentMetadata travels with the intent and comes back on the callback.
type PaymentMetadata struct {
	SpotID        string `json:"spotId"`
	OwnerID       string `json:"ownerId,omitempty"`
	ReservationID string `json:"reservationId,omitempty"`
	AttemptID     string `json:"attemptId,omitempty"`
}

// PaymentEvent is the normalized asynchronous gateway callback.
type PaymentEvent struct {
	ID         string           `json:"id"`
	Type       PaymentEventType `json:"type"`
	IntentID   string           `json:"intentId"`
	Amount     decimal.Decimal  `json:"amount"`
	Currency   string           `json:"currency"`
	Metadata   PaymentMetadata  `json:"metadata"`
	ReceivedAt time.Time        `json:"receivedAt"`
}

// PaymentRef identifies the payment the event settles.
func (e PaymentEvent) PaymentRef() string {
	return e.IntentID
}

// DedupKey identifies one logical event across redeliveries.
func (e PaymentEvent) DedupKey() string {
	return string(e.Type) + ":" + e.IntentID
}

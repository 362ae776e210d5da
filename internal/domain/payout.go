package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutStatusPending      PayoutStatus = "pending"
	PayoutStatusCompleted    PayoutStatus = "completed"
	PayoutStatusFailedManual PayoutStatus = "failed-manual"
)

// IsTerminal reports whether no further transition is allowed.
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusCompleted || s == PayoutStatusFailedManual
}

// Payout is the owner's share of one settled payment. OwnerAmount + PlatformFee == TotalAmount.
type Payout struct {
	ID          string          `json:"id"`
	PaymentRef  string          `json:"paymentRef"`
	OwnerID     string          `json:"ownerId"`
	SpotID      string          `json:"spotId,omitempty"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	PlatformFee decimal.Decimal `json:"platformFee"`
	OwnerAmount decimal.Decimal `json:"ownerAmount"`
	Currency    string          `json:"currency"`
	Status      PayoutStatus    `json:"status"`
	TransferRef *string         `json:"transferRef,omitempty"`
	CreatedOn   time.Time       `json:"createdOn"`
	CompletedOn *time.Time      `json:"completedOn,omitempty"`
}

// CanTransition enforces pending -> completed | failed-manual.
func (p *Payout) CanTransition(to PayoutStatus) error {
	if p.Status != PayoutStatusPending || !to.IsTerminal() {
		return fmt.Errorf("%w: payout %s cannot move from %s to %s", ErrInvalidTransition, p.ID, p.Status, to)
	}
	return nil
}

// FeeSplit is the platform/owner division of one settled amount.
type FeeSplit struct {
	Total       decimal.Decimal
	PlatformFee decimal.Decimal
	OwnerAmount decimal.Decimal
}

// SplitFee rounds the platform share to the minor unit and gives the owner the remainder,
// so the two parts always sum to the total.
func SplitFee(total, rate decimal.Decimal) FeeSplit {
	fee := total.Mul(rate).Round(2)
	return FeeSplit{
		Total:       total,
		PlatformFee: fee,
		OwnerAmount: total.Sub(fee),
	}
}

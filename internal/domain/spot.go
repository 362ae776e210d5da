package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Spot is a bookable, priced unit of capacity. Spots are created outside this service;
// the settlement engine only overwrites the Available cache hint and LastBookedAt.
type Spot struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	HourlyPrice  decimal.Decimal `json:"hourly_price"`
	OwnerID      *string         `json:"owner_id,omitempty"` // unowned spots skip payout
	Available    bool            `json:"available"`          // cache hint only, never used for booking decisions
	LastBookedAt *time.Time      `json:"last_booked_at,omitempty"`
}

// HasOwner reports whether settlement should create a payout for this spot.
func (s *Spot) HasOwner() bool {
	return s.OwnerID != nil && *s.OwnerID != ""
}

// Owner is the party receiving payouts for a spot.
type Owner struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Email               string  `json:"email"`
	PayoutDestinationID *string `json:"payout_destination_id,omitempty"`
}

// HasPayoutDestination reports whether transfers can be sent automatically.
func (o *Owner) HasPayoutDestination() bool {
	return o.PayoutDestinationID != nil && *o.PayoutDestinationID != ""
}

package domain

import "time"

type ReservationStatus string

const (
	// ReservationStatusPending holds a slot while payment is in flight, until HoldExpiresAt.
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// DefaultWindowDuration is the fixed reservation length used when no policy is configured.
const DefaultWindowDuration = 2 * time.Hour

// Reservation is a claim on a spot for [StartTime, EndTime).
type Reservation struct {
	ID            string            `json:"id"`
	SpotID        string            `json:"spot_id"`
	RequesterID   string            `json:"requester_id"`
	RequestID     string            `json:"request_id,omitempty"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	Status        ReservationStatus `json:"status"`
	PaymentMethod PaymentMethodKind `json:"payment_method"`
	HoldExpiresAt *time.Time        `json:"hold_expires_at,omitempty"`
	CreatedOn     time.Time         `json:"created_on"`
	CancelledOn   *time.Time        `json:"cancelled_on,omitempty"`
}

// BlocksAt reports whether the reservation currently claims its slot.
// Pending reservations stop claiming the slot once their hold lapses.
func (r *Reservation) BlocksAt(now time.Time) bool {
	switch r.Status {
	case ReservationStatusConfirmed:
		return true
	case ReservationStatusPending:
		return r.HoldExpiresAt == nil || now.Before(*r.HoldExpiresAt)
	default:
		return false
	}
}

// Covers reports whether at falls inside [StartTime, EndTime).
func (r *Reservation) Covers(at time.Time) bool {
	return !at.Before(r.StartTime) && at.Before(r.EndTime)
}

// Overlaps reports whether [start, end) intersects the reservation window.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && start.Before(r.EndTime)
}

// CanCancel reports whether the reservation may still be cancelled at now.
func (r *Reservation) CanCancel(now time.Time) bool {
	return r.Status != ReservationStatusCancelled && now.Before(r.EndTime)
}

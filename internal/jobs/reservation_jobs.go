package jobs

import (
	"context"

	"spotbook-backend/internal/logger"
)

// ExpirePendingReservations cancels pending reservations whose payment hold has lapsed.
// The spot availability flag belongs to settlement and is left alone.
func (jr *JobRunner) ExpirePendingReservations() {
	jr.runWithRecovery("ExpirePendingReservations", func() {
		ctx := context.Background()

		expired, err := jr.repos.Reservations.ExpireHolds(ctx, jr.now())
		if err != nil {
			logger.Error("Failed to expire pending reservations", "error", err)
			return
		}

		for _, r := range expired {
			logger.WithReservation(r.SpotID, r.ID).Debug("Payment hold expired", "requester_id", r.RequesterID)
		}

		logger.Info("Expired pending reservations", "count", len(expired))
	})
}

package jobs

import (
	"context"
	"fmt"
	"strings"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/logger"
)

// ReportManualPayouts notifies ops of every payout waiting for manual processing
func (jr *JobRunner) ReportManualPayouts() {
	jr.runWithRecovery("ReportManualPayouts", func() {
		ctx := context.Background()

		payouts, err := jr.repos.Payouts.ListByStatus(ctx, domain.PayoutStatusFailedManual)
		if err != nil {
			logger.Error("Failed to list manual payouts", "error", err)
			return
		}
		if len(payouts) == 0 {
			logger.Info("No payouts awaiting manual processing")
			return
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d payout(s) need manual processing:\n", len(payouts))
		for _, p := range payouts {
			fmt.Fprintf(&b, "- payout %s owner %s payment %s: %s %s\n", p.ID, p.OwnerID, p.PaymentRef, p.OwnerAmount.StringFixed(2), p.Currency)
		}
		if err := jr.notifier.NotifyOps(ctx, "Manual payouts pending", b.String()); err != nil {
			logger.Error("Failed to send manual payout report", "error", err)
			return
		}
		logger.Info("Reported manual payouts", "count", len(payouts))
	})
}

// ReconcileOrphanedPayments requeues succeeded payments whose settlement never completed
func (jr *JobRunner) ReconcileOrphanedPayments() {
	jr.runWithRecovery("ReconcileOrphanedPayments", func() {
		ctx := context.Background()
		now := jr.now()

		orphans, err := jr.repos.PaymentAttempts.ListUnsettled(ctx, now.Add(-jr.config.Settlement.OrphanGrace))
		if err != nil {
			logger.Error("Failed to list unsettled payments", "error", err)
			return
		}
		if len(orphans) == 0 {
			logger.Info("No orphaned payments found")
			return
		}

		var b strings.Builder
		requeued := 0
		for i := range orphans {
			a := &orphans[i]
			event, err := jr.rebuildEvent(ctx, a)
			if err == nil {
				err = jr.events.PublishJSON(ctx, string(event.Type), event)
			}
			if err != nil {
				logger.Error("Failed to requeue orphaned payment", "attempt_id", a.ID, "gateway_ref", a.GatewayRef, "error", err)
				fmt.Fprintf(&b, "- attempt %s (%s): requeue failed: %v\n", a.ID, a.GatewayRef, err)
				continue
			}
			requeued++
			fmt.Fprintf(&b, "- attempt %s (%s): %s %s requeued\n", a.ID, a.GatewayRef, a.Amount.StringFixed(2), a.Currency)
		}

		subject := fmt.Sprintf("%d orphaned payment(s) found", len(orphans))
		if err := jr.notifier.NotifyOps(ctx, subject, b.String()); err != nil {
			logger.Error("Failed to send orphaned payment report", "error", err)
		}
		logger.Info("Reconciled orphaned payments", "found", len(orphans), "requeued", requeued)
	})
}

// rebuildEvent reconstructs the success callback for a payment attempt.
func (jr *JobRunner) rebuildEvent(ctx context.Context, a *domain.PaymentAttempt) (*domain.PaymentEvent, error) {
	if a.GatewayRef == "" {
		return nil, fmt.Errorf("attempt %s has no gateway reference", a.ID)
	}
	reservation, err := jr.repos.Reservations.GetByID(ctx, a.ReservationID)
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	spot, err := jr.repos.Spots.GetByID(ctx, reservation.SpotID)
	if err != nil {
		return nil, fmt.Errorf("load spot: %w", err)
	}

	meta := domain.PaymentMetadata{SpotID: spot.ID, ReservationID: reservation.ID, AttemptID: a.ID}
	if spot.HasOwner() {
		meta.OwnerID = *spot.OwnerID
	}
	return &domain.PaymentEvent{
		ID:         "reconcile_" + a.ID,
		Type:       domain.PaymentEventSucceeded,
		IntentID:   a.GatewayRef,
		Amount:     a.Amount,
		Currency:   a.Currency,
		Metadata:   meta,
		ReceivedAt: jr.now(),
	}, nil
}

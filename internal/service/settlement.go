package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/gateway"
	"spotbook-backend/internal/lock"
	"spotbook-backend/internal/logger"
	"spotbook-backend/internal/metrics"
	"spotbook-backend/internal/notify"
	"spotbook-backend/internal/repository"
)

// SettlementPolicy carries the fee rate and fallback currency for payouts.
type SettlementPolicy struct {
	PlatformFeeRate decimal.Decimal
	Currency        string
}

type settlementService struct {
	reservations repository.ReservationRepository
	spots        repository.SpotRepository
	owners       repository.OwnerRepository
	attempts     repository.PaymentAttemptRepository
	payouts      repository.PayoutRepository
	events       repository.ProcessedEventRepository
	transfers    gateway.PayoutGateway
	notifier     notify.Notifier
	locks        *lock.Keyed
	metrics      *metrics.Metrics
	policy       SettlementPolicy
	now          Clock
}

func NewSettlementService(
	repos repository.Repositories,
	transfers gateway.PayoutGateway,
	notifier notify.Notifier,
	m *metrics.Metrics,
	policy SettlementPolicy,
	now Clock,
) SettlementService {
	if now == nil {
		now = systemClock
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &settlementService{
		reservations: repos.Reservations,
		spots:        repos.Spots,
		owners:       repos.Owners,
		attempts:     repos.PaymentAttempts,
		payouts:      repos.Payouts,
		events:       repos.Events,
		transfers:    transfers,
		notifier:     notifier,
		locks:        lock.NewKeyed(),
		metrics:      m,
		policy:       policy,
		now:          now,
	}
}

// OnPaymentEvent settles one gateway event. Redelivered events are no-ops.
// A returned error means the event should be retried.
func (s *settlementService) OnPaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	ref := event.PaymentRef()
	logger.EnterMethod("settlementService.OnPaymentEvent", "type", event.Type, "payment_ref", ref)
	if ref == "" {
		logger.WarnContext(ctx, "Dropping payment event without intent id", "event_id", event.ID, "type", event.Type)
		s.metrics.SettlementOutcome(string(event.Type), "invalid")
		return nil
	}

	unlock := s.locks.Lock(ref)
	defer unlock()

	processed, err := s.events.IsProcessed(ctx, event.DedupKey())
	if err != nil {
		return fmt.Errorf("check processed event: %w", err)
	}
	if processed {
		logger.InfoContext(ctx, "Payment event already settled", "payment_ref", ref, "type", event.Type)
		s.metrics.SettlementOutcome(string(event.Type), "duplicate")
		return nil
	}

	switch event.Type {
	case domain.PaymentEventSucceeded:
		err = s.onSucceeded(ctx, event)
	case domain.PaymentEventFailed:
		err = s.onFailed(ctx, event)
	default:
		logger.WarnContext(ctx, "Ignoring unknown payment event type", "type", event.Type, "event_id", event.ID)
		s.metrics.SettlementOutcome(string(event.Type), "ignored")
		return nil
	}
	if err != nil {
		logger.ExitMethodWithError("settlementService.OnPaymentEvent", err, "payment_ref", ref)
		s.metrics.SettlementOutcome(string(event.Type), "error")
		return err
	}

	if err := s.events.MarkProcessed(ctx, event.DedupKey(), s.now()); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	s.metrics.SettlementOutcome(string(event.Type), "settled")
	logger.ExitMethod("settlementService.OnPaymentEvent", "payment_ref", ref)
	return nil
}

func (s *settlementService) onSucceeded(ctx context.Context, event domain.PaymentEvent) error {
	ref := event.PaymentRef()

	existing, err := s.payouts.GetByPaymentRef(ctx, ref)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("load payout: %w", err)
	}
	if existing != nil && existing.Status.IsTerminal() {
		logger.InfoContext(ctx, "Payout already settled", "payment_ref", ref, "status", existing.Status)
		return nil
	}

	attempt, err := s.findAttempt(ctx, event)
	if err != nil {
		return err
	}
	if attempt != nil && attempt.Status == domain.PaymentStatusRefundRequired {
		logger.InfoContext(ctx, "Payment already queued for refund", "attempt_id", attempt.ID, "payment_ref", ref)
		return nil
	}
	if attempt != nil && attempt.Status != domain.PaymentStatusSucceeded {
		if err := s.attempts.UpdateStatus(ctx, attempt.ID, domain.PaymentStatusSucceeded, ref); err != nil {
			return fmt.Errorf("mark attempt succeeded: %w", err)
		}
	}

	reservationID := event.Metadata.ReservationID
	if reservationID == "" && attempt != nil {
		reservationID = attempt.ReservationID
	}
	spotID := event.Metadata.SpotID

	if reservationID != "" {
		r, err := s.reservations.Confirm(ctx, reservationID, s.now())
		switch {
		case err == nil:
			if spotID == "" {
				spotID = r.SpotID
			}
		case errors.Is(err, domain.ErrInvalidTransition):
			logger.WarnContext(ctx, "Payment succeeded for a cancelled reservation, refund needs review",
				"reservation_id", reservationID, "payment_ref", ref)
			if r != nil && spotID == "" {
				spotID = r.SpotID
			}
		case errors.Is(err, domain.ErrResourceOccupied):
			return s.refundLostSlot(ctx, event, reservationID, attempt)
		case errors.Is(err, domain.ErrNotFound):
			logger.WarnContext(ctx, "Payment succeeded for an unknown reservation", "reservation_id", reservationID, "payment_ref", ref)
		default:
			return fmt.Errorf("confirm reservation: %w", err)
		}
	}

	if spotID != "" {
		now := s.now()
		if err := s.spots.SetAvailability(ctx, spotID, false, &now); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("update spot availability: %w", err)
			}
			logger.WarnContext(ctx, "Payment succeeded for an unknown spot", "spot_id", spotID, "payment_ref", ref)
		}
	}

	if event.Metadata.OwnerID == "" {
		logger.InfoContext(ctx, "Spot has no owner, skipping payout", "spot_id", spotID, "payment_ref", ref)
		return nil
	}
	return s.settlePayout(ctx, event, spotID, existing)
}

// refundLostSlot handles a capture whose hold lapsed and whose slot was booked by someone else.
// The owner is not paid; the payment is recorded for refund and ops are told.
func (s *settlementService) refundLostSlot(ctx context.Context, event domain.PaymentEvent, reservationID string, attempt *domain.PaymentAttempt) error {
	ref := event.PaymentRef()
	logger.WarnContext(ctx, "Payment succeeded after the slot was rebooked, refunding",
		"reservation_id", reservationID, "payment_ref", ref)

	// Recorded first so a retried event stops at the refund marker.
	if attempt != nil {
		if err := s.attempts.UpdateStatus(ctx, attempt.ID, domain.PaymentStatusRefundRequired, ref); err != nil {
			return fmt.Errorf("mark attempt refund_required: %w", err)
		}
	}
	if _, err := s.reservations.Cancel(ctx, reservationID, s.now()); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		return fmt.Errorf("cancel lost reservation: %w", err)
	}
	s.metrics.SettlementOutcome(string(event.Type), "refund_required")

	body := fmt.Sprintf("Payment %s (%s %s) captured for reservation %s after its slot was rebooked. Refund the requester.",
		ref, event.Amount.StringFixed(2), event.Currency, reservationID)
	if err := s.notifier.NotifyOps(ctx, "Payment requires refund", body); err != nil {
		logger.ErrorContext(ctx, "Failed to notify ops", "payment_ref", ref, "error", err)
	}
	return nil
}

func (s *settlementService) settlePayout(ctx context.Context, event domain.PaymentEvent, spotID string, payout *domain.Payout) error {
	ref := event.PaymentRef()
	if payout == nil {
		currency := event.Currency
		if currency == "" {
			currency = s.policy.Currency
		}
		split := domain.SplitFee(event.Amount, s.policy.PlatformFeeRate)
		stored, created, err := s.payouts.CreateIfAbsent(ctx, &domain.Payout{
			ID:          uuid.NewString(),
			PaymentRef:  ref,
			OwnerID:     event.Metadata.OwnerID,
			SpotID:      spotID,
			TotalAmount: split.Total,
			PlatformFee: split.PlatformFee,
			OwnerAmount: split.OwnerAmount,
			Currency:    currency,
			Status:      domain.PayoutStatusPending,
			CreatedOn:   s.now(),
		})
		if err != nil {
			return fmt.Errorf("create payout: %w", err)
		}
		if !created && stored.Status.IsTerminal() {
			return nil
		}
		payout = stored
	}

	owner, err := s.loadOwner(ctx, payout.OwnerID)
	if err != nil {
		return err
	}
	if owner == nil || !owner.HasPayoutDestination() {
		return s.failManual(ctx, payout, "owner has no payout destination")
	}

	transferID, err := s.transfers.Transfer(ctx, *owner.PayoutDestinationID, payout.OwnerAmount, payout.Currency,
		fmt.Sprintf("Spot payout for payment %s", ref))
	if err != nil {
		if errors.Is(err, domain.ErrNoDestination) {
			return s.failManual(ctx, payout, "payout destination rejected")
		}
		return fmt.Errorf("transfer payout %s: %w", payout.ID, err)
	}

	done, err := s.payouts.Transition(ctx, payout.ID, domain.PayoutStatusCompleted, &transferID, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			logger.WarnContext(ctx, "Payout settled concurrently", "payout_id", payout.ID, "transfer_id", transferID)
			return nil
		}
		return fmt.Errorf("complete payout %s: %w", payout.ID, err)
	}
	s.metrics.PayoutStatus(string(done.Status))
	logger.InfoContext(ctx, "Payout completed", "payout_id", done.ID, "owner_id", done.OwnerID,
		"owner_amount", done.OwnerAmount.StringFixed(2), "platform_fee", done.PlatformFee.StringFixed(2), "transfer_id", transferID)
	return nil
}

// loadOwner returns nil for an owner id that is malformed or unknown.
func (s *settlementService) loadOwner(ctx context.Context, ownerID string) (*domain.Owner, error) {
	if !validID(ownerID) {
		return nil, nil
	}
	owner, err := s.owners.GetByID(ctx, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	return owner, nil
}

func (s *settlementService) failManual(ctx context.Context, payout *domain.Payout, reason string) error {
	failed, err := s.payouts.Transition(ctx, payout.ID, domain.PayoutStatusFailedManual, nil, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("mark payout %s failed-manual: %w", payout.ID, err)
	}
	s.metrics.PayoutStatus(string(failed.Status))
	logger.WarnContext(ctx, "Payout needs manual follow-up", "payout_id", failed.ID, "owner_id", failed.OwnerID, "reason", reason)

	body := fmt.Sprintf("Payout %s for owner %s (payment %s, %s %s) needs manual transfer: %s.",
		failed.ID, failed.OwnerID, failed.PaymentRef, failed.OwnerAmount.StringFixed(2), failed.Currency, reason)
	if err := s.notifier.NotifyOps(ctx, "Payout requires manual transfer", body); err != nil {
		logger.ErrorContext(ctx, "Failed to notify ops", "payout_id", failed.ID, "error", err)
	}
	return nil
}

func (s *settlementService) onFailed(ctx context.Context, event domain.PaymentEvent) error {
	attempt, err := s.findAttempt(ctx, event)
	if err != nil {
		return err
	}
	if attempt != nil && attempt.Status == domain.PaymentStatusInitiated {
		if err := s.attempts.UpdateStatus(ctx, attempt.ID, domain.PaymentStatusFailed, event.PaymentRef()); err != nil {
			return fmt.Errorf("mark attempt failed: %w", err)
		}
	}

	spotID := event.Metadata.SpotID
	if spotID == "" {
		return nil
	}
	if err := s.spots.SetAvailability(ctx, spotID, true, nil); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("update spot availability: %w", err)
		}
		logger.WarnContext(ctx, "Payment failed for an unknown spot", "spot_id", spotID)
	}
	// The reservation keeps its hold; the expiry sweep releases it.
	return nil
}

func (s *settlementService) findAttempt(ctx context.Context, event domain.PaymentEvent) (*domain.PaymentAttempt, error) {
	var (
		attempt *domain.PaymentAttempt
		err     error
	)
	if event.Metadata.AttemptID != "" && validID(event.Metadata.AttemptID) {
		attempt, err = s.attempts.GetByID(ctx, event.Metadata.AttemptID)
	} else {
		attempt, err = s.attempts.GetByGatewayRef(ctx, event.PaymentRef())
	}
	if errors.Is(err, domain.ErrNotFound) {
		logger.WarnContext(ctx, "No payment attempt recorded for event", "payment_ref", event.PaymentRef(), "attempt_id", event.Metadata.AttemptID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payment attempt: %w", err)
	}
	return attempt, nil
}

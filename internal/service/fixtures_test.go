package service_test

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/gateway"
	"spotbook-backend/internal/lock"
	"spotbook-backend/internal/metrics"
	"spotbook-backend/internal/notify"
	"spotbook-backend/internal/repository/memory"
	"spotbook-backend/internal/service"
)

// fakeClock is a settable clock shared by every service in a fixture.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock      *fakeClock
	store      *memory.Store
	sandbox    *gateway.Sandbox
	oracle     service.AvailabilityService
	booking    service.BookingService
	settlement service.SettlementService
	payouts    service.PayoutService

	spotID  string
	ownerID string
}

var fixtureNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newFixture(notifier notify.Notifier) *fixture {
	clock := &fakeClock{t: fixtureNow}
	store := memory.NewStore()
	sandbox := gateway.NewSandbox()
	repos := store.Repositories()
	m := metrics.New()

	f := &fixture{
		clock:   clock,
		store:   store,
		sandbox: sandbox,
		spotID:  uuid.NewString(),
		ownerID: uuid.NewString(),
	}
	dest := "recp_owner"
	store.PutOwner(domain.Owner{ID: f.ownerID, Name: "Owner", Email: "owner@spotbook.test", PayoutDestinationID: &dest})
	store.PutSpot(domain.Spot{ID: f.spotID, Name: "Bay 1", HourlyPrice: decimal.RequireFromString("5.00"), OwnerID: &f.ownerID, Available: true})

	f.oracle = service.NewAvailabilityService(repos.Reservations, clock.Now)
	f.booking = service.NewBookingService(repos, f.oracle, sandbox, lock.NewKeyed(), m, service.BookingPolicy{
		WindowDuration: 2 * time.Hour,
		HoldTTL:        15 * time.Minute,
		Currency:       "usd",
		MinimumAmount:  decimal.RequireFromString("1.00"),
		CaptureTimeout: 200 * time.Millisecond,
	}, clock.Now)
	f.settlement = service.NewSettlementService(repos, sandbox, notifier, m, service.SettlementPolicy{
		PlatformFeeRate: decimal.RequireFromString("0.10"),
		Currency:        "usd",
	}, clock.Now)
	f.payouts = service.NewPayoutService(repos.Payouts)
	return f
}

func at(hour int) time.Time {
	return time.Date(2026, 3, 1, hour, 0, 0, 0, time.UTC)
}

const cashJSON = `{"type":"cash"}`
const cardJSON = `{"type":"card","token":"tok_visa"}`

func succeededEvent(ref, spotID, ownerID, amount string) domain.PaymentEvent {
	return domain.PaymentEvent{
		ID:       "evt_" + ref,
		Type:     domain.PaymentEventSucceeded,
		IntentID: ref,
		Amount:   decimal.RequireFromString(amount),
		Currency: "usd",
		Metadata: domain.PaymentMetadata{SpotID: spotID, OwnerID: ownerID},
	}
}

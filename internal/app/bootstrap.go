// Package app builds the shared infrastructure both binaries start from.
package app

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"spotbook-backend/internal/config"
	"spotbook-backend/internal/domain"
	"spotbook-backend/internal/gateway"
	"spotbook-backend/internal/logger"
	"spotbook-backend/internal/queue"
	"spotbook-backend/internal/repository"
	"spotbook-backend/internal/repository/memory"
	"spotbook-backend/internal/repository/postgres"
)

// Seed ids for the in-memory store so a dev instance has something to book.
const (
	DemoOwnerID = "6f1d7f8e-3c1a-4a53-9a57-0d0a4c7b2f10"
	DemoSpotID  = "0b8e4c36-5d0e-4a8c-8a2f-7f3f0c9d1e21"
)

// SettlementKeys are the routing keys the settlement consumer subscribes to.
var SettlementKeys = []string{string(domain.PaymentEventSucceeded), string(domain.PaymentEventFailed)}

// OpenRepositories connects the configured ledger store. The returned closer releases it.
func OpenRepositories(cfg *config.Config) (repository.Repositories, func() error, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		store := memory.NewStore()
		seedDemo(store)
		return store.Repositories(), func() error { return nil }, nil
	}

	logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return repository.Repositories{}, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return repository.Repositories{}, nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	logger.Info("Database connection established")
	return postgres.NewStore(db).Repositories(), db.Close, nil
}

func seedDemo(store *memory.Store) {
	dest := "recp_demo"
	ownerID := DemoOwnerID
	store.PutOwner(domain.Owner{ID: DemoOwnerID, Name: "Demo Owner", Email: "owner@spotbook.dev", PayoutDestinationID: &dest})
	store.PutSpot(domain.Spot{ID: DemoSpotID, Name: "Demo Bay", HourlyPrice: decimal.RequireFromString("5.00"), OwnerID: &ownerID, Available: true})
	logger.Info("Seeded demo spot", "spot_id", DemoSpotID, "owner_id", DemoOwnerID)
}

// OpenGateway returns the payment and payout gateway for cfg.Payment.Gateway.
func OpenGateway(cfg *config.Config) (gateway.PaymentGateway, gateway.PayoutGateway, error) {
	switch cfg.Payment.Gateway {
	case "omise":
		g, err := gateway.NewOmise(cfg.Payment.PublicKey, cfg.Payment.SecretKey, cfg.Payment.ReturnURI)
		if err != nil {
			return nil, nil, fmt.Errorf("create omise client: %w", err)
		}
		return g, g, nil
	default:
		logger.Warn("Using sandbox payment gateway")
		g := gateway.NewSandbox()
		return g, g, nil
	}
}

// OpenQueue returns the settlement queue for cfg.Settlement.Queue.
func OpenQueue(cfg *config.Config) (queue.Queue, error) {
	opts := queue.Options{
		MaxAttempts: cfg.Settlement.MaxAttempts,
		Backoff:     cfg.Settlement.Backoff,
		Capacity:    cfg.Settlement.Capacity,
	}
	if cfg.Settlement.Queue == "amqp" {
		q, err := queue.NewAMQP(cfg.Settlement.AMQPURL, cfg.Settlement.Exchange, cfg.Settlement.QueueName, SettlementKeys, opts)
		if err != nil {
			return nil, err
		}
		logger.Info("Settlement queue connected", "exchange", cfg.Settlement.Exchange, "queue", cfg.Settlement.QueueName)
		return q, nil
	}
	return queue.NewMemory(opts), nil
}

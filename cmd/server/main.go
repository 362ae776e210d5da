package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"spotbook-backend/internal/api/grpc/interceptor"
	httpapi "spotbook-backend/internal/api/http"
	"spotbook-backend/internal/app"
	"spotbook-backend/internal/config"
	"spotbook-backend/internal/jobs"
	"spotbook-backend/internal/lock"
	"spotbook-backend/internal/logger"
	"spotbook-backend/internal/metrics"
	"spotbook-backend/internal/notify"
	"spotbook-backend/internal/scheduler"
	"spotbook-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Spotbook Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())
	logger.Info("Database configuration", "driver", cfg.Database.Driver, "host", cfg.Database.Host, "database", cfg.Database.Database)

	// Initialize Repositories
	repos, closeStore, err := app.OpenRepositories(cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	// Initialize external dependencies
	payments, transfers, err := app.OpenGateway(cfg)
	if err != nil {
		logger.Error("Failed to initialize payment gateway", "error", err)
		log.Fatalf("Failed to initialize payment gateway: %v", err)
	}
	events, err := app.OpenQueue(cfg)
	if err != nil {
		logger.Error("Failed to open settlement queue", "error", err)
		log.Fatalf("Failed to open settlement queue: %v", err)
	}
	defer events.Close()
	notifier := notify.New(cfg.Notify)
	m := metrics.New()

	// Initialize Services
	oracle := service.NewAvailabilityService(repos.Reservations, nil)
	bookingSvc := service.NewBookingService(repos, oracle, payments, lock.NewKeyed(), m, service.BookingPolicy{
		WindowDuration: cfg.Booking.WindowDuration,
		HoldTTL:        cfg.Booking.HoldTTL,
		Currency:       cfg.Payment.Currency,
		MinimumAmount:  cfg.MinimumAmount(),
		CaptureTimeout: cfg.Payment.CaptureTimeout,
	}, nil)
	settlementSvc := service.NewSettlementService(repos, transfers, notifier, m, service.SettlementPolicy{
		PlatformFeeRate: cfg.PlatformFeeRate(),
		Currency:        cfg.Payment.Currency,
	}, nil)
	payoutSvc := service.NewPayoutService(repos.Payouts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start settlement consumer
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		logger.Info("Settlement consumer started", "queue", cfg.Settlement.Queue)
		if err := events.Consume(ctx, service.SettlementConsumer(settlementSvc)); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Settlement consumer stopped", "error", err)
		}
	}()

	// Start in-process scheduler
	var cronScheduler *scheduler.Scheduler
	if cfg.Scheduler.InProcess {
		cronScheduler = scheduler.NewScheduler(jobs.NewJobRunner(repos, events, notifier, cfg))
		cronScheduler.Start()
	}

	// Set up HTTP server
	router := mux.NewRouter()
	handlers := httpapi.Handlers{
		Bookings:     httpapi.NewBookingHandler(bookingSvc),
		Payouts:      httpapi.NewPayoutHandler(payoutSvc),
		Webhook:      httpapi.NewWebhookHandler(cfg.Payment.WebhookSecret, events),
		Availability: httpapi.NewAvailabilityHandler(oracle),
		Metrics:      m,
	}
	if cfg.RateLimit.BookingsPerSecond > 0 {
		handlers.Limiter = httpapi.NewRateLimiter(cfg.RateLimit.BookingsPerSecond, cfg.RateLimit.Burst)
	}
	httpapi.RegisterRoutes(router, handlers)

	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	// Set up gRPC health server
	var grpcServer *grpc.Server
	if cfg.GRPC.Port > 0 {
		lis, err := net.Listen("tcp", cfg.GetGRPCAddress())
		if err != nil {
			logger.Error("Failed to listen", "error", err, "address", cfg.GetGRPCAddress())
			log.Fatalf("Failed to listen: %v", err)
		}
		grpcServer = grpc.NewServer(
			grpc.UnaryInterceptor(interceptor.Unary()),
		)
		healthServer := health.NewServer()
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcServer, healthServer)

		// Register reflection service for grpcurl
		reflection.Register(grpcServer)

		go func() {
			logger.Info("gRPC health server listening", "address", cfg.GetGRPCAddress())
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("Failed to serve gRPC", "error", err)
			}
		}()
	}

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if cronScheduler != nil {
		cronScheduler.Stop()
	}
	<-consumerDone
	logger.Info("Spotbook Backend stopped. Goodbye!")
}

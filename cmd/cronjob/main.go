package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"spotbook-backend/internal/app"
	"spotbook-backend/internal/config"
	"spotbook-backend/internal/jobs"
	"spotbook-backend/internal/logger"
	"spotbook-backend/internal/notify"
	"spotbook-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'expire-pending-reservations', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Spotbook Cronjob Runner...", "log_level", cfg.Log.Level)

	if cfg.Database.Driver == "memory" || cfg.Settlement.Queue == "memory" {
		logger.Warn("Cronjob runner shares no state with the server when using in-memory store or queue",
			"database_driver", cfg.Database.Driver, "settlement_queue", cfg.Settlement.Queue)
	}

	// Initialize Repositories
	repos, closeStore, err := app.OpenRepositories(cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	events, err := app.OpenQueue(cfg)
	if err != nil {
		logger.Error("Failed to open settlement queue", "error", err)
		log.Fatalf("Failed to open settlement queue: %v", err)
	}
	defer events.Close()

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(repos, events, notify.New(cfg.Notify), cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if !jobRunner.Run(*runOnce) {
			logger.Error("Unknown job name", "job", *runOnce)
			fmt.Printf("Available jobs:\n")
			fmt.Printf("  - expire-pending-reservations\n")
			fmt.Printf("  - report-manual-payouts\n")
			fmt.Printf("  - reconcile-orphaned-payments\n")
			fmt.Printf("  - all\n")
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

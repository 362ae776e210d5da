package jobs

import (
	"time"

	"spotbook-backend/internal/config"
	"spotbook-backend/internal/logger"
	"spotbook-backend/internal/notify"
	"spotbook-backend/internal/queue"
	"spotbook-backend/internal/repository"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	repos    repository.Repositories
	events   queue.Queue
	notifier notify.Notifier
	config   *config.Config
	now      func() time.Time
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(repos repository.Repositories, events queue.Queue, notifier notify.Notifier, cfg *config.Config) *JobRunner {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &JobRunner{
		repos:    repos,
		events:   events,
		notifier: notifier,
		config:   cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}

// Run executes one job by name. It reports false for unknown names.
func (jr *JobRunner) Run(name string) bool {
	switch name {
	case "expire-pending-reservations":
		jr.ExpirePendingReservations()
	case "report-manual-payouts":
		jr.ReportManualPayouts()
	case "reconcile-orphaned-payments":
		jr.ReconcileOrphanedPayments()
	case "all":
		jr.RunAll()
	default:
		return false
	}
	return true
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.ExpirePendingReservations()
	jr.ReconcileOrphanedPayments()
	jr.ReportManualPayouts()
}

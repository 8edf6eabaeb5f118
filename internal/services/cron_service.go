package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron        *cron.Cron
	expiration  *BookingExpirationService
	expirySpec  string
	reminder    string
	audits      *AuditService
	auditSpec   string
	retention   time.Duration
	jobTimeout  time.Duration
	logger      *logrus.Logger
	baseContext context.Context
	cancel      context.CancelFunc
}

// NewCronService creates a new CronService. Specs use robfig/cron syntax,
// including descriptors such as "@every 5m".
func NewCronService(
	expiration *BookingExpirationService,
	expirySpec, reminderSpec string,
	logger *logrus.Logger,
) *CronService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CronService{
		// A job still running when its next tick fires is skipped, not stacked
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		expiration:  expiration,
		expirySpec:  expirySpec,
		reminder:    reminderSpec,
		jobTimeout:  time.Minute,
		logger:      logger,
		baseContext: ctx,
		cancel:      cancel,
	}
}

// WithAuditCleanup adds a job that prunes audit events older than retention
func (s *CronService) WithAuditCleanup(audits *AuditService, spec string, retention time.Duration) *CronService {
	s.audits = audits
	s.auditSpec = spec
	s.retention = retention
	return s
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// Job 1: Cancel unpaid bookings past the pending timeout
	if _, err := s.cron.AddFunc(s.expirySpec, s.expireBookingsJob); err != nil {
		return fmt.Errorf("failed to schedule booking expiry job: %w", err)
	}
	s.logger.WithField("schedule", s.expirySpec).Info("Scheduled: Expire unpaid bookings")

	// Job 2: Departure reminders
	if s.reminder != "" {
		if _, err := s.cron.AddFunc(s.reminder, s.departureRemindersJob); err != nil {
			return fmt.Errorf("failed to schedule reminder job: %w", err)
		}
		s.logger.WithField("schedule", s.reminder).Info("Scheduled: Departure reminders")
	}

	// Job 3: Audit retention
	if s.audits != nil && s.auditSpec != "" {
		if _, err := s.cron.AddFunc(s.auditSpec, s.auditCleanupJob); err != nil {
			return fmt.Errorf("failed to schedule audit cleanup job: %w", err)
		}
		s.logger.WithFields(logrus.Fields{
			"schedule":  s.auditSpec,
			"retention": s.retention.String(),
		}).Info("Scheduled: Audit log cleanup")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop cancels running jobs and waits for them to return
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) expireBookingsJob() {
	ctx, cancel := context.WithTimeout(s.baseContext, s.jobTimeout)
	defer cancel()
	_, _ = s.expiration.RunOnce(ctx)
}

func (s *CronService) departureRemindersJob() {
	ctx, cancel := context.WithTimeout(s.baseContext, s.jobTimeout)
	defer cancel()
	_, _ = s.expiration.SendReminders(ctx)
}

func (s *CronService) auditCleanupJob() {
	ctx, cancel := context.WithTimeout(s.baseContext, s.jobTimeout)
	defer cancel()
	if _, err := s.audits.Cleanup(ctx, s.retention); err != nil {
		s.logger.WithError(err).Error("Audit cleanup failed")
	}
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/internal/utils"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditService records staff actions and login events
type AuditService struct {
	store  database.Store
	logger *logrus.Logger
	now    func() time.Time
}

// NewAuditService creates a new audit service
func NewAuditService(store database.Store, logger *logrus.Logger) *AuditService {
	return &AuditService{store: store, logger: logger, now: time.Now}
}

// Record writes an event. Failures are logged and never block the action
// being audited.
func (s *AuditService) Record(ctx context.Context, event models.AuditEvent) {
	event.CreatedAt = s.now()
	if event.UserAgent != "" {
		details := make(models.JSONMap, len(event.Details)+1)
		for k, v := range event.Details {
			details[k] = v
		}
		details["device"] = utils.ParseUserAgent(event.UserAgent).Fields()
		event.Details = details
	}

	fields := logrus.Fields{
		"action":      event.Action,
		"entity_type": event.EntityType,
		"entity_id":   event.EntityID,
		"ip":          event.IPAddress,
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}

	if err := s.store.Repos().Audit.Create(ctx, &event); err != nil {
		s.logger.WithError(err).WithFields(fields).Error("Failed to persist audit event")
		return
	}
	s.logger.WithFields(fields).Info("Audit event recorded")
}

// List returns recent events, newest first
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditLimit
	}
	if filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}
	return s.store.Repos().Audit.List(ctx, filter)
}

// Cleanup removes events older than retention
func (s *AuditService) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", models.ErrValidation)
	}
	removed, err := s.store.Repos().Audit.DeleteBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Old audit events removed")
	}
	return removed, nil
}

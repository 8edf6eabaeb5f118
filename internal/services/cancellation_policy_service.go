package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// CancellationPolicyService manages the refund policies
type CancellationPolicyService struct {
	store  database.Store
	logger *logrus.Logger
}

// NewCancellationPolicyService creates a new policy service
func NewCancellationPolicyService(store database.Store, logger *logrus.Logger) *CancellationPolicyService {
	return &CancellationPolicyService{store: store, logger: logger}
}

// Active returns the active policy, or nil when none is active
func (s *CancellationPolicyService) Active(ctx context.Context) (*models.CancellationPolicy, error) {
	policy, err := s.store.Repos().Policies.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active policy: %w", err)
	}
	return policy, nil
}

// List returns every policy
func (s *CancellationPolicyService) List(ctx context.Context) ([]*models.CancellationPolicy, error) {
	return s.store.Repos().Policies.List(ctx)
}

// Create stores an inactive policy
func (s *CancellationPolicyService) Create(ctx context.Context, policy *models.CancellationPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	policy.Active = false

	if err := s.store.Repos().Policies.Create(ctx, policy); err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"policy_id":         policy.ID,
		"name":              policy.Name,
		"refund_percentage": policy.RefundPercentage,
	}).Info("Cancellation policy created")

	return nil
}

// Activate makes id the single active policy. The switch commits as one
// transaction, so readers see either the old or the new active policy.
func (s *CancellationPolicyService) Activate(ctx context.Context, id uuid.UUID) (*models.CancellationPolicy, error) {
	var activated *models.CancellationPolicy
	err := s.store.WithinTx(ctx, func(repos database.Repositories) error {
		ok, err := repos.Policies.Activate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to activate policy: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrPolicyNotFound, id)
		}
		activated, err = repos.Policies.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("policy_id", id).Info("Cancellation policy activated")
	return activated, nil
}

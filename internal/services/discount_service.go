package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// DiscountService evaluates discount codes. Apply and Quote are previews
// without side effects; Commit consumes one use inside a payment.
type DiscountService struct {
	store  database.Store
	logger *logrus.Logger
	now    func() time.Time
}

// NewDiscountService creates a new discount service
func NewDiscountService(store database.Store, logger *logrus.Logger) *DiscountService {
	return &DiscountService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Apply returns the discount code would give on amount. Codes that are
// unknown or not applicable yield 0 without an error.
func (s *DiscountService) Apply(ctx context.Context, code string, amount float64, scheduleID uuid.UUID) (float64, error) {
	quote, err := s.Quote(ctx, code, amount, scheduleID)
	if err != nil {
		return 0, err
	}
	return quote.Discount, nil
}

// Quote previews a code and explains why it does not apply
func (s *DiscountService) Quote(ctx context.Context, code string, amount float64, scheduleID uuid.UUID) (*models.DiscountQuote, error) {
	code = models.NormalizeDiscountCode(code)
	quote := &models.DiscountQuote{
		Code:        code,
		Amount:      models.RoundMoney(amount),
		FinalAmount: models.RoundMoney(amount),
	}
	if code == "" {
		quote.Reason = "no code supplied"
		return quote, nil
	}

	discount, err := s.store.Repos().Discounts.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load discount: %w", err)
	}
	if discount == nil {
		quote.Reason = fmt.Sprintf("%s: code %s does not exist", models.ErrDiscountInvalid, code)
		return quote, nil
	}

	value, err := discount.Evaluate(amount, scheduleID, s.now())
	if err != nil {
		quote.Reason = err.Error()
		return quote, nil
	}

	quote.Discount = value
	quote.FinalAmount = models.RoundMoney(amount - value)
	quote.Applicable = true
	return quote, nil
}

// Preview evaluates code inside a transaction without locking the
// discount row or consuming a use
func (s *DiscountService) Preview(
	ctx context.Context,
	repos database.Repositories,
	code string,
	amount float64,
	scheduleID uuid.UUID,
) (float64, error) {
	code = models.NormalizeDiscountCode(code)
	if code == "" {
		return 0, nil
	}

	discount, err := repos.Discounts.GetByCode(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("failed to load discount: %w", err)
	}
	return s.evaluate(discount, code, amount, scheduleID)
}

func (s *DiscountService) evaluate(discount *models.Discount, code string, amount float64, scheduleID uuid.UUID) (float64, error) {
	if discount == nil {
		return 0, nil
	}
	value, err := discount.Evaluate(amount, scheduleID, s.now())
	if err != nil {
		if errors.Is(err, models.ErrDiscountInvalid) {
			s.logger.WithError(err).WithField("code", code).Debug("Discount not applied")
			return 0, nil
		}
		return 0, err
	}
	return value, nil
}

// Commit re-evaluates code against the locked discount row and consumes
// one use. It returns 0, and consumes nothing, when the code no longer applies.
func (s *DiscountService) Commit(
	ctx context.Context,
	repos database.Repositories,
	code string,
	amount float64,
	scheduleID uuid.UUID,
) (float64, error) {
	code = models.NormalizeDiscountCode(code)
	if code == "" {
		return 0, nil
	}

	discount, err := repos.Discounts.GetByCodeForUpdate(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("failed to load discount: %w", err)
	}
	value, err := s.evaluate(discount, code, amount, scheduleID)
	if err != nil || value <= 0 {
		return 0, err
	}

	ok, err := repos.Discounts.IncrementUsage(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("failed to record discount usage: %w", err)
	}
	if !ok {
		// Last use was taken between the read and the update
		return 0, nil
	}

	return value, nil
}

// ============================================================================
// STAFF OPERATIONS
// ============================================================================

// Create stores a new discount code
func (s *DiscountService) Create(ctx context.Context, discount *models.Discount) error {
	discount.Code = models.NormalizeDiscountCode(discount.Code)
	discount.CurrentUses = 0
	if err := discount.Validate(); err != nil {
		return err
	}

	if err := s.store.Repos().Discounts.Create(ctx, discount); err != nil {
		return fmt.Errorf("failed to create discount: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"code":     discount.Code,
		"type":     discount.Type,
		"max_uses": discount.MaxUses,
	}).Info("Discount created")

	return nil
}

// Deactivate stops a code from applying to further payments
func (s *DiscountService) Deactivate(ctx context.Context, code string) error {
	code = models.NormalizeDiscountCode(code)
	ok, err := s.store.Repos().Discounts.Deactivate(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to deactivate discount: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrDiscountNotFound, code)
	}

	s.logger.WithField("code", code).Info("Discount deactivated")
	return nil
}

// List returns every discount code
func (s *DiscountService) List(ctx context.Context) ([]*models.Discount, error) {
	return s.store.Repos().Discounts.List(ctx)
}

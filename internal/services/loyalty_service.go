package services

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// LoyaltyService is the point ledger used by wallet payments
type LoyaltyService struct {
	store         database.Store
	pointsPerUnit float64
	logger        *logrus.Logger
}

// NewLoyaltyService creates a new loyalty service. pointsPerUnit is how
// many points one currency unit of a paid booking earns.
func NewLoyaltyService(store database.Store, pointsPerUnit float64, logger *logrus.Logger) *LoyaltyService {
	return &LoyaltyService{
		store:         store,
		pointsPerUnit: pointsPerUnit,
		logger:        logger,
	}
}

// Balance returns the user's current points
func (s *LoyaltyService) Balance(ctx context.Context, userID uuid.UUID) (*models.LoyaltyBalance, error) {
	balance, err := s.store.Repos().Loyalty.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load loyalty balance: %w", err)
	}
	return balance, nil
}

// Debit removes points, failing with ErrInsufficientPoints rather than going negative
func (s *LoyaltyService) Debit(ctx context.Context, repos database.Repositories, userID uuid.UUID, points int) error {
	if points <= 0 {
		return nil
	}

	ok, err := repos.Loyalty.Debit(ctx, userID, points)
	if err != nil {
		return fmt.Errorf("failed to debit points: %w", err)
	}
	if !ok {
		balance, err := repos.Loyalty.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load loyalty balance: %w", err)
		}
		return fmt.Errorf("%w: need %d, have %d", models.ErrInsufficientPoints, points, balance.Points)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"points":  -points,
	}).Debug("Loyalty points debited")

	return nil
}

// Credit adds points
func (s *LoyaltyService) Credit(ctx context.Context, repos database.Repositories, userID uuid.UUID, points int) error {
	if points <= 0 {
		return nil
	}
	if err := repos.Loyalty.Credit(ctx, userID, points); err != nil {
		return fmt.Errorf("failed to credit points: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"points":  points,
	}).Debug("Loyalty points credited")

	return nil
}

// EarnedPoints is what a paid amount earns, rounded down
func (s *LoyaltyService) EarnedPoints(amount float64) int {
	if amount <= 0 || s.pointsPerUnit <= 0 {
		return 0
	}
	// Rounding first keeps 100 * 0.1 from flooring to 9
	return int(math.Floor(math.Round(amount*s.pointsPerUnit*1e6) / 1e6))
}

// PointsRequired is the whole number of points covering amount
func PointsRequired(amount float64) int {
	if amount <= 0 {
		return 0
	}
	return int(math.Ceil(models.RoundMoney(amount)))
}

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// PostgresLoyaltyRepository handles loyalty point balances
type PostgresLoyaltyRepository struct {
	db Queryer
}

// NewLoyaltyRepository creates a new LoyaltyRepository
func NewLoyaltyRepository(db Queryer) *PostgresLoyaltyRepository {
	return &PostgresLoyaltyRepository{db: db}
}

// Get returns the user's balance, zero when no row exists yet
func (r *PostgresLoyaltyRepository) Get(ctx context.Context, userID uuid.UUID) (*models.LoyaltyBalance, error) {
	var b models.LoyaltyBalance
	err := sqlx.GetContext(ctx, r.db, &b, `
		SELECT user_id, points, updated_at FROM loyalty_balances WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return &models.LoyaltyBalance{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loyalty balance: %w", err)
	}
	return &b, nil
}

// Debit subtracts points; false means the balance was too low
func (r *PostgresLoyaltyRepository) Debit(ctx context.Context, userID uuid.UUID, points int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE loyalty_balances
		SET points = points - $2, updated_at = NOW()
		WHERE user_id = $1 AND points >= $2`, userID, points)
	if err != nil {
		return false, fmt.Errorf("failed to debit loyalty points: %w", err)
	}
	return rowsAffected(res) == 1, nil
}

// Credit adds points, creating the ledger row on first use
func (r *PostgresLoyaltyRepository) Credit(ctx context.Context, userID uuid.UUID, points int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO loyalty_balances (user_id, points, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET points = loyalty_balances.points + EXCLUDED.points, updated_at = NOW()`, userID, points)
	if err != nil {
		return fmt.Errorf("failed to credit loyalty points: %w", err)
	}
	return nil
}

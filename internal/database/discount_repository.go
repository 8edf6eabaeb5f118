package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// PostgresDiscountRepository handles discount codes and usage counters
type PostgresDiscountRepository struct {
	db Queryer
}

// NewDiscountRepository creates a new DiscountRepository
func NewDiscountRepository(db Queryer) *PostgresDiscountRepository {
	return &PostgresDiscountRepository{db: db}
}

const discountColumns = `
	code, type, percentage, fixed_amount, schedule_id, valid_from, valid_to,
	active, max_uses, current_uses, created_at`

// Create inserts a discount code
func (r *PostgresDiscountRepository) Create(ctx context.Context, d *models.Discount) error {
	d.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO discounts (`+discountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.Code, d.Type, d.Percentage, d.FixedAmount, d.ScheduleID, d.ValidFrom, d.ValidTo,
		d.Active, d.MaxUses, d.CurrentUses, d.CreatedAt,
	)
	if isUniqueViolation(err) {
		return models.NewValidationError("code", "already exists")
	}
	if err != nil {
		return fmt.Errorf("failed to insert discount: %w", err)
	}
	return nil
}

// GetByCode retrieves a discount by code
func (r *PostgresDiscountRepository) GetByCode(ctx context.Context, code string) (*models.Discount, error) {
	return r.get(ctx, `SELECT`+discountColumns+` FROM discounts WHERE code = $1`, code)
}

// GetByCodeForUpdate retrieves a discount and locks its row
func (r *PostgresDiscountRepository) GetByCodeForUpdate(ctx context.Context, code string) (*models.Discount, error) {
	return r.get(ctx, `SELECT`+discountColumns+` FROM discounts WHERE code = $1 FOR UPDATE`, code)
}

func (r *PostgresDiscountRepository) get(ctx context.Context, query, code string) (*models.Discount, error) {
	var d models.Discount
	err := sqlx.GetContext(ctx, r.db, &d, query, code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discount: %w", err)
	}
	return &d, nil
}

// List returns every discount code, newest first
func (r *PostgresDiscountRepository) List(ctx context.Context) ([]*models.Discount, error) {
	var discounts []*models.Discount
	err := sqlx.SelectContext(ctx, r.db, &discounts,
		`SELECT`+discountColumns+` FROM discounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list discounts: %w", err)
	}
	return discounts, nil
}

// IncrementUsage consumes one use; false means the cap was already reached
func (r *PostgresDiscountRepository) IncrementUsage(ctx context.Context, code string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE discounts
		SET current_uses = current_uses + 1
		WHERE code = $1
		  AND active
		  AND (max_uses = 0 OR current_uses < max_uses)`, code)
	if err != nil {
		return false, fmt.Errorf("failed to increment discount usage: %w", err)
	}
	return rowsAffected(res) == 1, nil
}

// Deactivate switches a code off
func (r *PostgresDiscountRepository) Deactivate(ctx context.Context, code string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE discounts SET active = FALSE WHERE code = $1`, code)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate discount: %w", err)
	}
	return rowsAffected(res) == 1, nil
}

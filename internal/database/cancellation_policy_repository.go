package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// PostgresCancellationPolicyRepository handles cancellation policies
type PostgresCancellationPolicyRepository struct {
	db Queryer
}

// NewCancellationPolicyRepository creates a new CancellationPolicyRepository
func NewCancellationPolicyRepository(db Queryer) *PostgresCancellationPolicyRepository {
	return &PostgresCancellationPolicyRepository{db: db}
}

const policyColumns = `
	id, name, hours_before_departure, min_hours_before_departure,
	refund_percentage, allow_cancellation, active, created_at`

// Create inserts an inactive policy
func (r *PostgresCancellationPolicyRepository) Create(ctx context.Context, p *models.CancellationPolicy) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Active = false
	p.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cancellation_policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Name, p.HoursBeforeDeparture, p.MinHoursBeforeDeparture,
		p.RefundPercentage, p.AllowCancellation, p.Active, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cancellation policy: %w", err)
	}
	return nil
}

// GetByID retrieves a policy by ID
func (r *PostgresCancellationPolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CancellationPolicy, error) {
	return r.get(ctx, `SELECT`+policyColumns+` FROM cancellation_policies WHERE id = $1`, id)
}

// GetActive retrieves the active policy, if any
func (r *PostgresCancellationPolicyRepository) GetActive(ctx context.Context) (*models.CancellationPolicy, error) {
	return r.get(ctx, `SELECT`+policyColumns+` FROM cancellation_policies WHERE active LIMIT 1`)
}

func (r *PostgresCancellationPolicyRepository) get(ctx context.Context, query string, args ...interface{}) (*models.CancellationPolicy, error) {
	var p models.CancellationPolicy
	err := sqlx.GetContext(ctx, r.db, &p, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cancellation policy: %w", err)
	}
	return &p, nil
}

// List returns every policy, newest first
func (r *PostgresCancellationPolicyRepository) List(ctx context.Context) ([]*models.CancellationPolicy, error) {
	var policies []*models.CancellationPolicy
	err := sqlx.SelectContext(ctx, r.db, &policies,
		`SELECT`+policyColumns+` FROM cancellation_policies ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cancellation policies: %w", err)
	}
	return policies, nil
}

// Activate deactivates every other policy and then activates id. Callers
// run it inside a transaction so readers never see the intermediate
// state; a false result must roll that transaction back.
func (r *PostgresCancellationPolicyRepository) Activate(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE cancellation_policies SET active = FALSE WHERE active AND id <> $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate cancellation policies: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE cancellation_policies SET active = TRUE WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to activate cancellation policy: %w", err)
	}
	return rowsAffected(res) == 1, nil
}

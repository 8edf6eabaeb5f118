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

// PostgresPaymentRepository appends settlement records
type PostgresPaymentRepository struct {
	db Queryer
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db Queryer) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

// Create appends a payment record
func (r *PostgresPaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, booking_id, amount, method_id, method_type, status, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.BookingID, p.Amount, p.MethodID, p.MethodType, p.Status, p.Reference, p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: booking %s already has a successful payment", models.ErrAlreadyConfirmed, p.BookingID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// ListByBooking returns the settlement history of a booking
func (r *PostgresPaymentRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := sqlx.SelectContext(ctx, r.db, &payments, `
		SELECT id, booking_id, amount, method_id, method_type, status, reference, created_at
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// HasSuccessful reports whether a booking has been paid
func (r *PostgresPaymentRepository) HasSuccessful(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, r.db, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM payments WHERE booking_id = $1 AND status = 'SUCCESS'
		)`, bookingID)
	if err != nil {
		return false, fmt.Errorf("failed to check payments: %w", err)
	}
	return exists, nil
}

// PostgresPaymentMethodRepository handles saved payment methods
type PostgresPaymentMethodRepository struct {
	db Queryer
}

// NewPaymentMethodRepository creates a new PaymentMethodRepository
func NewPaymentMethodRepository(db Queryer) *PostgresPaymentMethodRepository {
	return &PostgresPaymentMethodRepository{db: db}
}

// Create stores a payment method
func (r *PostgresPaymentMethodRepository) Create(ctx context.Context, m *models.PaymentMethod) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_methods (id, user_id, type, details, label, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.UserID, m.Type, m.Details, m.Label, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment method: %w", err)
	}
	return nil
}

// GetByID retrieves a payment method by ID
func (r *PostgresPaymentMethodRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error) {
	var m models.PaymentMethod
	err := sqlx.GetContext(ctx, r.db, &m, `
		SELECT id, user_id, type, details, label, created_at
		FROM payment_methods WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment method: %w", err)
	}
	return &m, nil
}

// ListByUser returns a user's saved methods
func (r *PostgresPaymentMethodRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.PaymentMethod, error) {
	var methods []*models.PaymentMethod
	err := sqlx.SelectContext(ctx, r.db, &methods, `
		SELECT id, user_id, type, details, label, created_at
		FROM payment_methods
		WHERE user_id = $1
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	return methods, nil
}

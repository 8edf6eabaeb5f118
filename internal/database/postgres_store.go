package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore is the transactional Store backed by PostgreSQL
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store over an open connection pool
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Repos returns repositories bound to the pool
func (s *PostgresStore) Repos() Repositories {
	return newRepositories(s.db)
}

// Ping checks the connection pool
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinTx runs fn inside a single database transaction
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(repos Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func newRepositories(q Queryer) Repositories {
	return Repositories{
		Schedules:      NewScheduleRepository(q),
		Seats:          NewSeatRepository(q),
		Bookings:       NewBookingRepository(q),
		Discounts:      NewDiscountRepository(q),
		Policies:       NewCancellationPolicyRepository(q),
		Payments:       NewPaymentRepository(q),
		PaymentMethods: NewPaymentMethodRepository(q),
		Loyalty:        NewLoyaltyRepository(q),
		Users:          NewUserRepository(q),
		Audit:          NewAuditRepository(q),
	}
}

// isUniqueViolation reports a PostgreSQL unique_violation (23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func rowsAffected(res interface{ RowsAffected() (int64, error) }) int {
	n, _ := res.RowsAffected()
	return int(n)
}

var (
	_ Store                        = (*PostgresStore)(nil)
	_ ScheduleRepository           = (*PostgresScheduleRepository)(nil)
	_ SeatRepository               = (*PostgresSeatRepository)(nil)
	_ BookingRepository            = (*PostgresBookingRepository)(nil)
	_ DiscountRepository           = (*PostgresDiscountRepository)(nil)
	_ CancellationPolicyRepository = (*PostgresCancellationPolicyRepository)(nil)
	_ PaymentRepository            = (*PostgresPaymentRepository)(nil)
	_ PaymentMethodRepository      = (*PostgresPaymentMethodRepository)(nil)
	_ LoyaltyRepository            = (*PostgresLoyaltyRepository)(nil)
	_ UserRepository               = (*PostgresUserRepository)(nil)
	_ AuditRepository              = (*PostgresAuditRepository)(nil)
)

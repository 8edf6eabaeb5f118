package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// Get* methods return (nil, nil) when the row does not exist.

// ScheduleRepository persists schedules and their seat class layout
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *models.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
	// GetByIDForUpdate locks the schedule row for the rest of the transaction
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Schedule, error)
	List(ctx context.Context, filter models.ScheduleFilter) ([]*models.Schedule, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ScheduleStatus, departure, arrival *time.Time) (bool, error)
}

// SeatRepository owns the per-schedule seat inventory
type SeatRepository interface {
	CreateInventory(ctx context.Context, seats []models.Seat) error
	ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]models.Seat, error)
	// Hold assigns free seats to bookingID and returns how many were taken.
	// Seats already held by another booking are left untouched.
	Hold(ctx context.Context, scheduleID, bookingID uuid.UUID, seatNumbers []int) (int, error)
	// HeldAmong returns which of seatNumbers are held by any booking
	HeldAmong(ctx context.Context, scheduleID uuid.UUID, seatNumbers []int) ([]int, error)
	MarkBooked(ctx context.Context, bookingID uuid.UUID) (int, error)
	// Release frees every seat held by bookingID and returns their numbers
	Release(ctx context.Context, bookingID uuid.UUID) ([]int, error)
	// ReleaseDeparted frees seats of CONFIRMED bookings on scheduleID whose
	// departure is before the given time, so the next run can sell them
	ReleaseDeparted(ctx context.Context, scheduleID uuid.UUID, before time.Time) ([]int, error)
}

// BookingRepository persists bookings with their passengers
type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Booking, error)
	// ListExpiredPending returns PENDING bookings booked before cutoff
	// that have no successful payment
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error)
	ListDepartingUnreminded(ctx context.Context, from, to time.Time, limit int) ([]*models.Booking, error)
	// Confirm moves PENDING -> CONFIRMED when the version still matches
	Confirm(ctx context.Context, id uuid.UUID, version int, paidAmount float64, discountCode *string) (bool, error)
	// Cancel moves from -> CANCELLED when the version still matches
	Cancel(ctx context.Context, c Cancellation) (bool, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error
	// ShiftDeparture moves the departure of active bookings on scheduleID
	// departing at or after since by delta and clears their reminder
	ShiftDeparture(ctx context.Context, scheduleID uuid.UUID, delta time.Duration, since time.Time) (int, error)
}

// Cancellation describes a guarded cancel transition
type Cancellation struct {
	BookingID    uuid.UUID
	From         models.BookingStatus
	Version      int
	Reason       models.CancellationReason
	RefundAmount *float64
	At           time.Time
}

// DiscountRepository persists discount codes and their usage counters
type DiscountRepository interface {
	Create(ctx context.Context, discount *models.Discount) error
	GetByCode(ctx context.Context, code string) (*models.Discount, error)
	GetByCodeForUpdate(ctx context.Context, code string) (*models.Discount, error)
	List(ctx context.Context) ([]*models.Discount, error)
	// IncrementUsage adds one use unless the cap is already reached
	IncrementUsage(ctx context.Context, code string) (bool, error)
	Deactivate(ctx context.Context, code string) (bool, error)
}

// CancellationPolicyRepository persists cancellation policies
type CancellationPolicyRepository interface {
	Create(ctx context.Context, policy *models.CancellationPolicy) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.CancellationPolicy, error)
	GetActive(ctx context.Context) (*models.CancellationPolicy, error)
	List(ctx context.Context) ([]*models.CancellationPolicy, error)
	// Activate flags id as the single active policy in one statement
	Activate(ctx context.Context, id uuid.UUID) (bool, error)
}

// PaymentRepository appends settlement records
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*models.Payment, error)
	HasSuccessful(ctx context.Context, bookingID uuid.UUID) (bool, error)
}

// PaymentMethodRepository persists saved payment methods
type PaymentMethodRepository interface {
	Create(ctx context.Context, method *models.PaymentMethod) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.PaymentMethod, error)
}

// LoyaltyRepository persists point balances
type LoyaltyRepository interface {
	// Get returns a zero balance for users without a ledger row
	Get(ctx context.Context, userID uuid.UUID) (*models.LoyaltyBalance, error)
	// Debit subtracts points unless the balance would go negative
	Debit(ctx context.Context, userID uuid.UUID, points int) (bool, error)
	Credit(ctx context.Context, userID uuid.UUID, points int) error
}

// UserRepository persists accounts
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuditRepository persists the audit trail
type AuditRepository interface {
	Create(ctx context.Context, event *models.AuditEvent) error
	List(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Repositories bundles every repository bound to one connection or transaction
type Repositories struct {
	Schedules      ScheduleRepository
	Seats          SeatRepository
	Bookings       BookingRepository
	Discounts      DiscountRepository
	Policies       CancellationPolicyRepository
	Payments       PaymentRepository
	PaymentMethods PaymentMethodRepository
	Loyalty        LoyaltyRepository
	Users          UserRepository
	Audit          AuditRepository
}

// Store is the swappable persistence layer. Repos reads committed state;
// WithinTx runs fn atomically and discards every write when fn fails.
type Store interface {
	Repos() Repositories
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
}

// Pinger is implemented by stores that can report their health
type Pinger interface {
	Ping(ctx context.Context) error
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// PostgresBookingRepository handles booking data operations
type PostgresBookingRepository struct {
	db Queryer
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db Queryer) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

const bookingColumns = `
	id, user_id, schedule_id, status, booked_at, departure_at, total_amount,
	discount_code, paid_amount, refund_amount, cancellation_reason, cancelled_at,
	reminder_sent_at, version, updated_at`

// ============================================================================
// BOOKING CRUD OPERATIONS
// ============================================================================

// Create inserts a booking and its passengers
func (r *PostgresBookingRepository) Create(ctx context.Context, b *models.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.BookedAt.IsZero() {
		b.BookedAt = time.Now()
	}
	b.UpdatedAt = b.BookedAt

	query := `
		INSERT INTO bookings (
			id, user_id, schedule_id, status, booked_at, departure_at,
			total_amount, discount_code, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.UserID, b.ScheduleID, b.Status, b.BookedAt, b.DepartureAt,
		b.TotalAmount, b.DiscountCode, b.Version, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	for i := range b.Passengers {
		p := &b.Passengers[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.BookingID = b.ID
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO booking_passengers (
				id, booking_id, name, age, wheelchair, visual_assistance,
				hearing_assistance, seat_number, seat_class, fare
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.ID, p.BookingID, p.Name, p.Age, p.Wheelchair, p.VisualAssistance,
			p.HearingAssistance, p.SeatNumber, p.SeatClass, p.Fare,
		)
		if err != nil {
			return fmt.Errorf("failed to insert passenger: %w", err)
		}
	}
	return nil
}

// GetByID retrieves a booking with its passengers
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.get(ctx, `SELECT`+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a booking and locks its row
func (r *PostgresBookingRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.get(ctx, `SELECT`+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresBookingRepository) get(ctx context.Context, query string, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	err := sqlx.GetContext(ctx, r.db, &b, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if err := r.attachPassengers(ctx, []*models.Booking{&b}); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListByUser returns a user's bookings, newest first
func (r *PostgresBookingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Booking, error) {
	return r.list(ctx, `SELECT`+bookingColumns+`
		FROM bookings
		WHERE user_id = $1
		ORDER BY booked_at DESC`, userID)
}

// ListExpiredPending returns unpaid PENDING bookings booked before cutoff
func (r *PostgresBookingRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	return r.list(ctx, `SELECT`+bookingColumns+`
		FROM bookings b
		WHERE b.status = 'PENDING'
		  AND b.booked_at < $1
		  AND NOT EXISTS (
		      SELECT 1 FROM payments p
		      WHERE p.booking_id = b.id AND p.status = 'SUCCESS'
		  )
		ORDER BY b.booked_at
		LIMIT $2`, cutoff, limit)
}

// ListDepartingUnreminded returns CONFIRMED bookings departing in [from, to]
// that have not been reminded yet
func (r *PostgresBookingRepository) ListDepartingUnreminded(ctx context.Context, from, to time.Time, limit int) ([]*models.Booking, error) {
	return r.list(ctx, `SELECT`+bookingColumns+`
		FROM bookings
		WHERE status = 'CONFIRMED'
		  AND departure_at BETWEEN $1 AND $2
		  AND reminder_sent_at IS NULL
		ORDER BY departure_at
		LIMIT $3`, from, to, limit)
}

func (r *PostgresBookingRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	var bookings []*models.Booking
	if err := sqlx.SelectContext(ctx, r.db, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	if err := r.attachPassengers(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// ============================================================================
// GUARDED STATUS TRANSITIONS
// ============================================================================

// Confirm moves a PENDING booking to CONFIRMED if nobody changed it since
// it was read
func (r *PostgresBookingRepository) Confirm(
	ctx context.Context,
	id uuid.UUID,
	version int,
	paidAmount float64,
	discountCode *string,
) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'CONFIRMED', paid_amount = $3, discount_code = $4,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING' AND version = $2`,
		id, version, paidAmount, discountCode,
	)
	if err != nil {
		return false, fmt.Errorf("failed to confirm booking: %w", err)
	}
	return rowsAffected(res) == 1, nil
}

// Cancel moves a booking to CANCELLED if it is still in the expected state
func (r *PostgresBookingRepository) Cancel(ctx context.Context, c Cancellation) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'CANCELLED', cancellation_reason = $4, refund_amount = $5,
		    cancelled_at = $6, version = version + 1, updated_at = $6
		WHERE id = $1 AND status = $2 AND version = $3`,
		c.BookingID, c.From, c.Version, c.Reason, c.RefundAmount, c.At,
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel booking: %w", err)
	}
	return rowsAffected(res) == 1, nil
}

// MarkReminded records that the departure reminder went out
func (r *PostgresBookingRepository) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET reminder_sent_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark booking reminded: %w", err)
	}
	return nil
}

// ShiftDeparture follows a staff time edit. The version is left alone so a
// payment in flight is not rejected by the change.
func (r *PostgresBookingRepository) ShiftDeparture(
	ctx context.Context,
	scheduleID uuid.UUID,
	delta time.Duration,
	since time.Time,
) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET departure_at = departure_at + make_interval(secs => $2),
		    reminder_sent_at = NULL,
		    updated_at = NOW()
		WHERE schedule_id = $1
		  AND status IN ('PENDING', 'CONFIRMED')
		  AND departure_at >= $3`,
		scheduleID, delta.Seconds(), since,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to shift booking departures: %w", err)
	}
	return rowsAffected(res), nil
}

// ============================================================================
// PASSENGERS
// ============================================================================

func (r *PostgresBookingRepository) attachPassengers(ctx context.Context, bookings []*models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	ids := make([]string, len(bookings))
	byID := make(map[uuid.UUID]*models.Booking, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID.String()
		byID[b.ID] = b
	}

	query := `
		SELECT id, booking_id, name, age, wheelchair, visual_assistance,
		       hearing_assistance, seat_number, seat_class, fare
		FROM booking_passengers
		WHERE booking_id = ANY($1)
		ORDER BY booking_id, seat_number`

	var passengers []models.Passenger
	if err := sqlx.SelectContext(ctx, r.db, &passengers, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to load passengers: %w", err)
	}
	for _, p := range passengers {
		if b, ok := byID[p.BookingID]; ok {
			b.Passengers = append(b.Passengers, p)
		}
	}
	return nil
}

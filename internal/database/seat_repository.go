package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// PostgresSeatRepository handles the per-schedule seat inventory
type PostgresSeatRepository struct {
	db Queryer
}

// NewSeatRepository creates a new SeatRepository
func NewSeatRepository(db Queryer) *PostgresSeatRepository {
	return &PostgresSeatRepository{db: db}
}

// ============================================================================
// INVENTORY
// ============================================================================

// CreateInventory inserts seat rows grouped by schedule
func (r *PostgresSeatRepository) CreateInventory(ctx context.Context, seats []models.Seat) error {
	type batch struct {
		numbers []int64
		classes []string
	}
	batches := make(map[uuid.UUID]*batch)
	order := make([]uuid.UUID, 0, 1)
	for _, s := range seats {
		b, ok := batches[s.ScheduleID]
		if !ok {
			b = &batch{}
			batches[s.ScheduleID] = b
			order = append(order, s.ScheduleID)
		}
		b.numbers = append(b.numbers, int64(s.SeatNumber))
		b.classes = append(b.classes, s.ClassCode)
	}

	for _, scheduleID := range order {
		b := batches[scheduleID]
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO seats (schedule_id, seat_number, class_code)
			SELECT $1, unnest($2::int[]), unnest($3::text[])`,
			scheduleID, pq.Array(b.numbers), pq.Array(b.classes),
		)
		if err != nil {
			return fmt.Errorf("failed to create seat inventory: %w", err)
		}
	}
	return nil
}

// ListBySchedule returns every seat of a schedule ordered by number
func (r *PostgresSeatRepository) ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]models.Seat, error) {
	query := `
		SELECT schedule_id, seat_number, class_code, booking_id, booked, updated_at
		FROM seats
		WHERE schedule_id = $1
		ORDER BY seat_number`

	var seats []models.Seat
	if err := sqlx.SelectContext(ctx, r.db, &seats, query, scheduleID); err != nil {
		return nil, fmt.Errorf("failed to list seats: %w", err)
	}
	return seats, nil
}

// ============================================================================
// HOLD / CONFIRM / RELEASE
// ============================================================================

// Hold assigns the requested free seats to a booking in one statement
func (r *PostgresSeatRepository) Hold(ctx context.Context, scheduleID, bookingID uuid.UUID, seatNumbers []int) (int, error) {
	if len(seatNumbers) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`
		UPDATE seats
		SET booking_id = ?, booked = FALSE, updated_at = NOW()
		WHERE schedule_id = ?
		  AND seat_number IN (?)
		  AND booking_id IS NULL`, bookingID, scheduleID, seatNumbers)
	if err != nil {
		return 0, fmt.Errorf("failed to build hold query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to hold seats: %w", err)
	}
	return rowsAffected(res), nil
}

// HeldAmong returns which of the given seats are held by any booking
func (r *PostgresSeatRepository) HeldAmong(ctx context.Context, scheduleID uuid.UUID, seatNumbers []int) ([]int, error) {
	if len(seatNumbers) == 0 {
		return []int{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT seat_number
		FROM seats
		WHERE schedule_id = ?
		  AND seat_number IN (?)
		  AND booking_id IS NOT NULL
		ORDER BY seat_number`, scheduleID, seatNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to build occupancy query: %w", err)
	}

	held := []int{}
	if err := sqlx.SelectContext(ctx, r.db, &held, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to check seat occupancy: %w", err)
	}
	return held, nil
}

// MarkBooked flags the seats of a confirmed booking as sold
func (r *PostgresSeatRepository) MarkBooked(ctx context.Context, bookingID uuid.UUID) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE seats
		SET booked = TRUE, updated_at = NOW()
		WHERE booking_id = $1`, bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark seats booked: %w", err)
	}
	return rowsAffected(res), nil
}

// Release frees every seat held by a booking
func (r *PostgresSeatRepository) Release(ctx context.Context, bookingID uuid.UUID) ([]int, error) {
	released := []int{}
	err := sqlx.SelectContext(ctx, r.db, &released, `
		UPDATE seats
		SET booking_id = NULL, booked = FALSE, updated_at = NOW()
		WHERE booking_id = $1
		RETURNING seat_number`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to release seats: %w", err)
	}
	return released, nil
}

// ReleaseDeparted frees seats sold for runs that have already left
func (r *PostgresSeatRepository) ReleaseDeparted(ctx context.Context, scheduleID uuid.UUID, before time.Time) ([]int, error) {
	released := []int{}
	err := sqlx.SelectContext(ctx, r.db, &released, `
		UPDATE seats s
		SET booking_id = NULL, booked = FALSE, updated_at = NOW()
		FROM bookings b
		WHERE s.booking_id = b.id
		  AND s.schedule_id = $1
		  AND b.status = 'CONFIRMED'
		  AND b.departure_at < $2
		RETURNING s.seat_number`, scheduleID, before)
	if err != nil {
		return nil, fmt.Errorf("failed to release departed seats: %w", err)
	}
	return released, nil
}

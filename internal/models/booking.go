package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// BOOKING STATUS
// ============================================================================

// BookingStatus represents the lifecycle state of a booking
// Matches PostgreSQL ENUM: booking_status
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"   // Seats held, awaiting payment
	BookingStatusConfirmed BookingStatus = "CONFIRMED" // Paid
	BookingStatusCancelled BookingStatus = "CANCELLED" // Seats released
)

// CancellationReason records who or what cancelled a booking
type CancellationReason string

const (
	CancelledByUser    CancellationReason = "user"
	CancelledByStaff   CancellationReason = "staff"
	CancelledByTimeout CancellationReason = "timeout"
)

// ============================================================================
// BOOKING / PASSENGER
// ============================================================================

// Passenger is a traveller on a booking with an assigned seat
type Passenger struct {
	ID                uuid.UUID `json:"id" db:"id"`
	BookingID         uuid.UUID `json:"-" db:"booking_id"`
	Name              string    `json:"name" db:"name"`
	Age               int       `json:"age" db:"age"`
	Wheelchair        bool      `json:"wheelchair" db:"wheelchair"`
	VisualAssistance  bool      `json:"visual_assistance" db:"visual_assistance"`
	HearingAssistance bool      `json:"hearing_assistance" db:"hearing_assistance"`
	SeatNumber        int       `json:"seat_number" db:"seat_number"`
	SeatClass         string    `json:"seat_class" db:"seat_class"`
	Fare              float64   `json:"fare" db:"fare"`
}

// Booking groups passengers on one schedule run
type Booking struct {
	ID                 uuid.UUID           `json:"id" db:"id"`
	UserID             uuid.UUID           `json:"user_id" db:"user_id"`
	ScheduleID         uuid.UUID           `json:"schedule_id" db:"schedule_id"`
	Passengers         []Passenger         `json:"passengers"`
	Status             BookingStatus       `json:"status" db:"status"`
	BookedAt           time.Time           `json:"booked_at" db:"booked_at"`
	DepartureAt        time.Time           `json:"departure_at" db:"departure_at"`
	TotalAmount        float64             `json:"total_amount" db:"total_amount"`
	DiscountCode       *string             `json:"discount_code,omitempty" db:"discount_code"`
	PaidAmount         *float64            `json:"paid_amount,omitempty" db:"paid_amount"`
	RefundAmount       *float64            `json:"refund_amount,omitempty" db:"refund_amount"`
	CancellationReason *CancellationReason `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledAt        *time.Time          `json:"cancelled_at,omitempty" db:"cancelled_at"`
	ReminderSentAt     *time.Time          `json:"reminder_sent_at,omitempty" db:"reminder_sent_at"`
	Version            int                 `json:"version" db:"version"`
	UpdatedAt          time.Time           `json:"updated_at" db:"updated_at"`
}

// SeatNumbers returns the seats held by the booking's passengers
func (b *Booking) SeatNumbers() []int {
	seats := make([]int, len(b.Passengers))
	for i, p := range b.Passengers {
		seats[i] = p.SeatNumber
	}
	return seats
}

// IsActive reports whether the booking still holds its seats
func (b *Booking) IsActive() bool {
	return b.Status != BookingStatusCancelled
}

// HoursUntilDeparture is the time to departure in fractional hours
func (b *Booking) HoursUntilDeparture(now time.Time) float64 {
	return b.DepartureAt.Sub(now).Hours()
}

// ============================================================================
// REQUEST STRUCTS
// ============================================================================

// PassengerRequest is one passenger of a create-booking request
type PassengerRequest struct {
	Name              string `json:"name" binding:"required"`
	Age               int    `json:"age"`
	Wheelchair        bool   `json:"wheelchair"`
	VisualAssistance  bool   `json:"visual_assistance"`
	HearingAssistance bool   `json:"hearing_assistance"`
	SeatNumber        int    `json:"seat_number" binding:"required"`
	SeatClass         string `json:"seat_class"` // Empty means the class owning the seat
}

// CreateBookingRequest is the request to reserve seats on a schedule
type CreateBookingRequest struct {
	UserID       uuid.UUID          `json:"-"`
	ScheduleID   uuid.UUID          `json:"schedule_id" binding:"required"`
	Passengers   []PassengerRequest `json:"passengers" binding:"required"`
	DiscountCode *string            `json:"discount_code,omitempty"`
}

// Validate validates the request
func (r *CreateBookingRequest) Validate(maxPassengers int) error {
	if r.UserID == uuid.Nil {
		return errors.New("user_id is required")
	}
	if r.ScheduleID == uuid.Nil {
		return errors.New("schedule_id is required")
	}
	if len(r.Passengers) == 0 {
		return errors.New("at least one passenger is required")
	}
	if maxPassengers > 0 && len(r.Passengers) > maxPassengers {
		return errors.New("too many passengers in one booking")
	}
	seen := make(map[int]struct{}, len(r.Passengers))
	for _, p := range r.Passengers {
		if strings.TrimSpace(p.Name) == "" {
			return errors.New("passenger name is required")
		}
		if p.Age < 0 || p.Age > 130 {
			return errors.New("passenger age is out of range")
		}
		if p.SeatNumber <= 0 {
			return errors.New("every passenger needs a seat")
		}
		if _, dup := seen[p.SeatNumber]; dup {
			return errors.New("a seat can only be assigned to one passenger")
		}
		seen[p.SeatNumber] = struct{}{}
	}
	return nil
}

// CancelBookingRequest is a user or staff cancellation
type CancelBookingRequest struct {
	BookingID uuid.UUID `json:"-"`
	UserID    uuid.UUID `json:"-"`
	ByStaff   bool      `json:"-"`
}

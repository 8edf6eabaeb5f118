package models

import (
	"time"

	"github.com/google/uuid"
)

// Seat is one seat of a schedule's inventory. BookingID is set while an
// active booking holds the seat; Booked flips to true once that booking
// is confirmed.
type Seat struct {
	ScheduleID uuid.UUID  `json:"schedule_id" db:"schedule_id"`
	SeatNumber int        `json:"seat_number" db:"seat_number"`
	ClassCode  string     `json:"class_code" db:"class_code"`
	BookingID  *uuid.UUID `json:"booking_id,omitempty" db:"booking_id"`
	Booked     bool       `json:"booked" db:"booked"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// IsHeld reports whether an active booking holds the seat
func (s Seat) IsHeld() bool {
	return s.BookingID != nil
}

// InventoryFor expands a schedule layout into its seat rows
func InventoryFor(schedule *Schedule) []Seat {
	seats := make([]Seat, 0, schedule.Capacity)
	for _, class := range schedule.Layout() {
		for n := class.FirstSeat; n <= class.LastSeat; n++ {
			seats = append(seats, Seat{
				ScheduleID: schedule.ID,
				SeatNumber: n,
				ClassCode:  class.Code,
			})
		}
	}
	return seats
}

// SeatAvailability summarises free seats of one class for display
type SeatAvailability struct {
	ClassCode string  `json:"class_code"`
	ClassName string  `json:"class_name"`
	FirstSeat int     `json:"first_seat"`
	LastSeat  int     `json:"last_seat"`
	Price     float64 `json:"price"`
	Free      []int   `json:"free"`
}

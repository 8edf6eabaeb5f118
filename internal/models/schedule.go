package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// SCHEDULE STATUS
// ============================================================================

// ScheduleStatus represents the operating status of a schedule
// Matches PostgreSQL ENUM: schedule_status
type ScheduleStatus string

const (
	ScheduleStatusOnTime    ScheduleStatus = "on_time"
	ScheduleStatusDelayed   ScheduleStatus = "delayed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled" // No new bookings accepted
)

// IsValid reports whether s is a known status
func (s ScheduleStatus) IsValid() bool {
	switch s {
	case ScheduleStatusOnTime, ScheduleStatusDelayed, ScheduleStatusCancelled:
		return true
	}
	return false
}

// DefaultSeatClassCode is used when a schedule publishes no explicit layout
const DefaultSeatClassCode = "GEN"

// ============================================================================
// ROUTE / SEAT CLASS / SCHEDULE
// ============================================================================

// Route is the source/destination pair a schedule runs on
type Route struct {
	ID          uuid.UUID `json:"id" db:"route_id"`
	Name        string    `json:"name" db:"route_name"`
	Source      string    `json:"source" db:"source"`
	Destination string    `json:"destination" db:"destination"`
}

// SeatClass is a contiguous band of seat numbers with its own pricing
type SeatClass struct {
	Code            string  `json:"code" db:"code"`
	Name            string  `json:"name" db:"name"`
	FirstSeat       int     `json:"first_seat" db:"first_seat"`
	LastSeat        int     `json:"last_seat" db:"last_seat"`
	PriceMultiplier float64 `json:"price_multiplier" db:"price_multiplier"`
	BaseFare        float64 `json:"base_fare" db:"base_fare"`
}

// Contains reports whether seat n lies in the class band
func (c SeatClass) Contains(n int) bool {
	return n >= c.FirstSeat && n <= c.LastSeat
}

// Size returns the number of seats in the class
func (c SeatClass) Size() int {
	return c.LastSeat - c.FirstSeat + 1
}

// multiplier treats an unset multiplier as 1
func (c SeatClass) multiplier() float64 {
	if c.PriceMultiplier <= 0 {
		return 1
	}
	return c.PriceMultiplier
}

// SeatLayout is the class partition of a schedule's seats
type SeatLayout []SeatClass

// Validate checks that the classes partition [1, capacity] exactly:
// every seat belongs to one class, no two classes overlap, no gaps.
func (l SeatLayout) Validate(capacity int) error {
	if capacity <= 0 {
		return NewValidationError("capacity", "must be positive")
	}
	if len(l) == 0 {
		return NewValidationError("seat_classes", "at least one class is required")
	}

	sorted := make(SeatLayout, len(l))
	copy(sorted, l)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FirstSeat < sorted[j].FirstSeat })

	codes := make(map[string]struct{}, len(sorted))
	next := 1
	for _, c := range sorted {
		code := strings.TrimSpace(c.Code)
		if code == "" {
			return NewValidationError("seat_classes", "class code is required")
		}
		if _, dup := codes[code]; dup {
			return NewValidationError("seat_classes", fmt.Sprintf("duplicate class code %s", code))
		}
		codes[code] = struct{}{}

		if c.FirstSeat > c.LastSeat {
			return NewValidationError("seat_classes", fmt.Sprintf("class %s has an empty range", code))
		}
		if c.FirstSeat < next {
			return NewValidationError("seat_classes", fmt.Sprintf("class %s overlaps seat %d", code, c.FirstSeat))
		}
		if c.FirstSeat > next {
			return NewValidationError("seat_classes", fmt.Sprintf("seats %d-%d have no class", next, c.FirstSeat-1))
		}
		if c.PriceMultiplier < 0 || c.BaseFare < 0 {
			return NewValidationError("seat_classes", fmt.Sprintf("class %s has negative pricing", code))
		}
		next = c.LastSeat + 1
	}

	if next-1 != capacity {
		return NewValidationError("seat_classes",
			fmt.Sprintf("classes cover %d seats but capacity is %d", next-1, capacity))
	}
	return nil
}

// ByCode finds a class by its code
func (l SeatLayout) ByCode(code string) (SeatClass, bool) {
	for _, c := range l {
		if strings.EqualFold(c.Code, code) {
			return c, true
		}
	}
	return SeatClass{}, false
}

// ClassForSeat finds the class owning seat n
func (l SeatLayout) ClassForSeat(n int) (SeatClass, bool) {
	for _, c := range l {
		if c.Contains(n) {
			return c, true
		}
	}
	return SeatClass{}, false
}

// Schedule is a dated or recurring run of a route
type Schedule struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	Route         Route          `json:"route"`
	DepartureTime time.Time      `json:"departure_time" db:"departure_time"`
	ArrivalTime   time.Time      `json:"arrival_time" db:"arrival_time"`
	RecurringDays WeekdayArray   `json:"recurring_days,omitempty" db:"recurring_days"` // Empty for one-off runs
	Price         float64        `json:"price" db:"price"`
	Capacity      int            `json:"capacity" db:"capacity"`
	Status        ScheduleStatus `json:"status" db:"status"`
	SeatClasses   []SeatClass    `json:"seat_classes"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// Layout returns the seat partition, defaulting to a single class
// spanning the whole capacity.
func (s *Schedule) Layout() SeatLayout {
	if len(s.SeatClasses) > 0 {
		return SeatLayout(s.SeatClasses)
	}
	return SeatLayout{{
		Code:            DefaultSeatClassCode,
		Name:            "General",
		FirstSeat:       1,
		LastSeat:        s.Capacity,
		PriceMultiplier: 1,
	}}
}

// SeatPrice returns the fare of one seat in the given class
func (s *Schedule) SeatPrice(class SeatClass) float64 {
	return RoundMoney(s.Price*class.multiplier() + class.BaseFare)
}

// IsRecurring reports whether the schedule repeats on days of week
func (s *Schedule) IsRecurring() bool {
	return len(s.RecurringDays) > 0
}

// NextDeparture returns the first departure at or after t. One-off
// schedules always return their fixed departure time.
func (s *Schedule) NextDeparture(t time.Time) time.Time {
	if !s.IsRecurring() {
		return s.DepartureTime
	}
	loc := s.DepartureTime.Location()
	from := t.In(loc)
	if from.Before(s.DepartureTime) {
		from = s.DepartureTime
	}
	h, m, sec := s.DepartureTime.Clock()
	for i := 0; i < 8; i++ {
		day := from.AddDate(0, 0, i)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), h, m, sec, 0, loc)
		if candidate.Before(from) {
			continue
		}
		if s.RecurringDays.Contains(candidate.Weekday()) {
			return candidate
		}
	}
	return s.DepartureTime
}

// TravelDuration is the scheduled time between departure and arrival
func (s *Schedule) TravelDuration() time.Duration {
	return s.ArrivalTime.Sub(s.DepartureTime)
}

// CheckBookable returns ErrScheduleUnavailable when no new bookings can be taken at now
func (s *Schedule) CheckBookable(now time.Time) error {
	if s.Status == ScheduleStatusCancelled {
		return fmt.Errorf("%w: schedule %s is cancelled", ErrScheduleUnavailable, s.ID)
	}
	if !s.IsRecurring() && !s.DepartureTime.After(now) {
		return fmt.Errorf("%w: schedule %s has departed", ErrScheduleUnavailable, s.ID)
	}
	return nil
}

// RunsOn reports whether the schedule has a departure on the given calendar date
func (s *Schedule) RunsOn(date time.Time) bool {
	if !s.IsRecurring() {
		y1, m1, d1 := s.DepartureTime.Date()
		y2, m2, d2 := date.In(s.DepartureTime.Location()).Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	}
	return s.RecurringDays.Contains(date.In(s.DepartureTime.Location()).Weekday())
}

// Validate validates a schedule before it is published
func (s *Schedule) Validate() error {
	if strings.TrimSpace(s.Route.Source) == "" || strings.TrimSpace(s.Route.Destination) == "" {
		return NewValidationError("route", "source and destination are required")
	}
	if strings.EqualFold(s.Route.Source, s.Route.Destination) {
		return NewValidationError("route", "source and destination must differ")
	}
	if s.DepartureTime.IsZero() {
		return NewValidationError("departure_time", "is required")
	}
	if !s.ArrivalTime.After(s.DepartureTime) {
		return NewValidationError("arrival_time", "must be after departure_time")
	}
	if s.Price < 0 {
		return NewValidationError("price", "must not be negative")
	}
	if s.Status != "" && !s.Status.IsValid() {
		return NewValidationError("status", "must be on_time, delayed or cancelled")
	}
	seen := make(map[time.Weekday]struct{}, len(s.RecurringDays))
	for _, d := range s.RecurringDays {
		if d < time.Sunday || d > time.Saturday {
			return NewValidationError("recurring_days", "must be 0-6")
		}
		if _, dup := seen[d]; dup {
			return NewValidationError("recurring_days", "must not repeat")
		}
		seen[d] = struct{}{}
	}
	return s.Layout().Validate(s.Capacity)
}

// ScheduleFilter narrows catalog listings
type ScheduleFilter struct {
	Source           string
	Destination      string
	Date             *time.Time
	IncludeCancelled bool
}

// Matches applies the filter to a loaded schedule
func (f ScheduleFilter) Matches(s *Schedule) bool {
	if f.Source != "" && !strings.EqualFold(f.Source, s.Route.Source) {
		return false
	}
	if f.Destination != "" && !strings.EqualFold(f.Destination, s.Route.Destination) {
		return false
	}
	if !f.IncludeCancelled && s.Status == ScheduleStatusCancelled {
		return false
	}
	if f.Date != nil && !s.RunsOn(*f.Date) {
		return false
	}
	return true
}

// ============================================================================
// REQUEST STRUCTS
// ============================================================================

// UpdateScheduleStatusRequest is a staff edit of status and timing
type UpdateScheduleStatusRequest struct {
	Status        ScheduleStatus `json:"status" binding:"required"`
	DepartureTime *time.Time     `json:"departure_time,omitempty"`
	ArrivalTime   *time.Time     `json:"arrival_time,omitempty"`
}

// Validate validates the request
func (r *UpdateScheduleStatusRequest) Validate() error {
	if !r.Status.IsValid() {
		return errors.New("invalid status: must be on_time, delayed or cancelled")
	}
	if r.DepartureTime != nil && r.ArrivalTime != nil && !r.ArrivalTime.After(*r.DepartureTime) {
		return errors.New("arrival_time must be after departure_time")
	}
	return nil
}

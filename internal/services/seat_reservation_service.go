package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/metrics"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// SeatReservationService is the authority on which seats of a schedule are free
type SeatReservationService struct {
	store   database.Store
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewSeatReservationService creates a new seat reservation service
func NewSeatReservationService(store database.Store, m *metrics.Metrics, logger *logrus.Logger) *SeatReservationService {
	return &SeatReservationService{
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

// OccupiedSeats returns the seats held by non-cancelled bookings
func (s *SeatReservationService) OccupiedSeats(ctx context.Context, scheduleID uuid.UUID) (models.SeatSet, error) {
	seats, err := s.store.Repos().Seats.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load seats: %w", err)
	}

	occupied := make([]int, 0, len(seats))
	for _, seat := range seats {
		if seat.IsHeld() {
			occupied = append(occupied, seat.SeatNumber)
		}
	}
	return models.NewSeatSet(occupied...), nil
}

// AvailableSeats returns the free seats of every class of the schedule
func (s *SeatReservationService) AvailableSeats(ctx context.Context, schedule *models.Schedule) ([]models.SeatAvailability, error) {
	occupied, err := s.OccupiedSeats(ctx, schedule.ID)
	if err != nil {
		return nil, err
	}

	layout := schedule.Layout()
	out := make([]models.SeatAvailability, 0, len(layout))
	for _, class := range layout {
		free := make([]int, 0, class.Size())
		for n := class.FirstSeat; n <= class.LastSeat; n++ {
			if !occupied.Has(n) {
				free = append(free, n)
			}
		}
		out = append(out, models.SeatAvailability{
			ClassCode: class.Code,
			ClassName: class.Name,
			FirstSeat: class.FirstSeat,
			LastSeat:  class.LastSeat,
			Price:     schedule.SeatPrice(class),
			Free:      free,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeat < out[j].FirstSeat })
	return out, nil
}

// ResolveClass returns the class a passenger's seat is sold in. An empty
// code picks the class owning the seat; an explicit code must contain it.
func (s *SeatReservationService) ResolveClass(schedule *models.Schedule, seat int, code string) (models.SeatClass, error) {
	layout := schedule.Layout()
	if code == "" {
		class, ok := layout.ClassForSeat(seat)
		if !ok {
			return models.SeatClass{}, &models.InvalidSeatRangeError{Seat: seat}
		}
		return class, nil
	}

	class, ok := layout.ByCode(code)
	if !ok {
		return models.SeatClass{}, &models.InvalidSeatRangeError{Seat: seat, ClassCode: code}
	}
	if !class.Contains(seat) {
		return models.SeatClass{}, &models.InvalidSeatRangeError{
			Seat:      seat,
			ClassCode: class.Code,
			FirstSeat: class.FirstSeat,
			LastSeat:  class.LastSeat,
		}
	}
	return class, nil
}

// Reserve holds the booking's seats inside the caller's transaction. The
// caller must hold the schedule's critical section.
func (s *SeatReservationService) Reserve(
	ctx context.Context,
	repos database.Repositories,
	schedule *models.Schedule,
	booking *models.Booking,
) error {
	// 1. Every seat must lie in its declared class and appear once
	seatNumbers := make([]int, 0, len(booking.Passengers))
	seen := make(map[int]struct{}, len(booking.Passengers))
	for _, p := range booking.Passengers {
		if _, err := s.ResolveClass(schedule, p.SeatNumber, p.SeatClass); err != nil {
			return err
		}
		if _, dup := seen[p.SeatNumber]; dup {
			return models.NewValidationError("passengers", fmt.Sprintf("seat %d is assigned twice", p.SeatNumber))
		}
		seen[p.SeatNumber] = struct{}{}
		seatNumbers = append(seatNumbers, p.SeatNumber)
	}

	// 2. A recurring schedule shares one inventory across runs; seats sold
	// for runs that already left belong to the next run again
	if schedule.IsRecurring() {
		if _, err := repos.Seats.ReleaseDeparted(ctx, schedule.ID, booking.BookedAt); err != nil {
			return fmt.Errorf("failed to release departed seats: %w", err)
		}
	}

	// 3. Reject seats already held by an active booking
	taken, err := repos.Seats.HeldAmong(ctx, schedule.ID, seatNumbers)
	if err != nil {
		return fmt.Errorf("failed to check seats: %w", err)
	}
	if len(taken) > 0 {
		s.metrics.SeatConflict()
		return &models.SeatConflictError{Seats: taken}
	}

	// 4. Hold them; the guarded update only takes seats that are still free
	held, err := repos.Seats.Hold(ctx, schedule.ID, booking.ID, seatNumbers)
	if err != nil {
		return fmt.Errorf("failed to hold seats: %w", err)
	}
	if held != len(seatNumbers) {
		// Lost a race; the caller's rollback undoes the partial hold
		taken, err := s.heldByOthers(ctx, repos, schedule.ID, booking.ID, seen)
		if err != nil {
			return err
		}
		if len(taken) == 0 {
			return fmt.Errorf("seat inventory of schedule %s is incomplete", schedule.ID)
		}
		s.metrics.SeatConflict()
		return &models.SeatConflictError{Seats: taken}
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": schedule.ID,
		"booking_id":  booking.ID,
		"seats":       seatNumbers,
	}).Debug("Seats held")

	return nil
}

func (s *SeatReservationService) heldByOthers(
	ctx context.Context,
	repos database.Repositories,
	scheduleID, bookingID uuid.UUID,
	requested map[int]struct{},
) ([]int, error) {
	seats, err := repos.Seats.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load seats: %w", err)
	}
	taken := []int{}
	for _, seat := range seats {
		if _, ok := requested[seat.SeatNumber]; !ok || !seat.IsHeld() {
			continue
		}
		if *seat.BookingID != bookingID {
			taken = append(taken, seat.SeatNumber)
		}
	}
	return taken, nil
}

// Release frees every seat held by the booking
func (s *SeatReservationService) Release(ctx context.Context, repos database.Repositories, bookingID uuid.UUID) ([]int, error) {
	released, err := repos.Seats.Release(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to release seats: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"seats":      released,
	}).Debug("Seats released")

	return released, nil
}

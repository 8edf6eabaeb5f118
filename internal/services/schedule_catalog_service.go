package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/cache"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// ScheduleCatalogService publishes schedules and answers catalog reads
type ScheduleCatalogService struct {
	store  database.Store
	cache  cache.ScheduleCache
	logger *logrus.Logger
	now    func() time.Time
}

// NewScheduleCatalogService creates a new catalog service. A nil cache disables caching.
func NewScheduleCatalogService(store database.Store, scheduleCache cache.ScheduleCache, logger *logrus.Logger) *ScheduleCatalogService {
	if scheduleCache == nil {
		scheduleCache = cache.NoopScheduleCache{}
	}
	return &ScheduleCatalogService{
		store:  store,
		cache:  scheduleCache,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns a schedule, reading through the cache
func (s *ScheduleCatalogService) Get(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	if schedule, ok := s.cache.Get(ctx, id); ok {
		return schedule, nil
	}

	schedule, err := s.store.Repos().Schedules.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	if schedule == nil {
		return nil, fmt.Errorf("%w: schedule %s not found", models.ErrScheduleUnavailable, id)
	}

	s.cache.Set(ctx, schedule)
	return schedule, nil
}

// List returns schedules matching the filter
func (s *ScheduleCatalogService) List(ctx context.Context, filter models.ScheduleFilter) ([]*models.Schedule, error) {
	schedules, err := s.store.Repos().Schedules.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

// SeatPrice returns the fare of one seat of classCode on the schedule
func (s *ScheduleCatalogService) SeatPrice(schedule *models.Schedule, classCode string) (float64, error) {
	class, ok := schedule.Layout().ByCode(classCode)
	if !ok {
		return 0, &models.InvalidSeatRangeError{ClassCode: classCode}
	}
	return schedule.SeatPrice(class), nil
}

// ClassForSeat returns the class owning a seat number
func (s *ScheduleCatalogService) ClassForSeat(schedule *models.Schedule, seat int) (models.SeatClass, error) {
	class, ok := schedule.Layout().ClassForSeat(seat)
	if !ok {
		return models.SeatClass{}, &models.InvalidSeatRangeError{Seat: seat}
	}
	return class, nil
}

// ============================================================================
// STAFF OPERATIONS
// ============================================================================

// Publish validates a new schedule and stores it with its seat inventory
func (s *ScheduleCatalogService) Publish(ctx context.Context, schedule *models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}
	if len(schedule.SeatClasses) == 0 {
		schedule.SeatClasses = schedule.Layout()
	}
	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	if schedule.Route.ID == uuid.Nil {
		schedule.Route.ID = uuid.New()
	}
	if schedule.Status == "" {
		schedule.Status = models.ScheduleStatusOnTime
	}

	err := s.store.WithinTx(ctx, func(repos database.Repositories) error {
		if err := repos.Schedules.Create(ctx, schedule); err != nil {
			return fmt.Errorf("failed to create schedule: %w", err)
		}
		if err := repos.Seats.CreateInventory(ctx, models.InventoryFor(schedule)); err != nil {
			return fmt.Errorf("failed to create seat inventory: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": schedule.ID,
		"route":       schedule.Route.Source + " -> " + schedule.Route.Destination,
		"capacity":    schedule.Capacity,
		"classes":     len(schedule.SeatClasses),
	}).Info("Schedule published")

	return nil
}

// UpdateStatus applies a staff status or timing edit
func (s *ScheduleCatalogService) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	req *models.UpdateScheduleStatusRequest,
) (*models.Schedule, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, err)
	}

	var updated *models.Schedule
	shifted := 0
	err := s.store.WithinTx(ctx, func(repos database.Repositories) error {
		current, err := repos.Schedules.GetByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load schedule: %w", err)
		}
		if current == nil {
			return fmt.Errorf("%w: schedule %s not found", models.ErrScheduleUnavailable, id)
		}

		ok, err := repos.Schedules.UpdateStatus(ctx, id, req.Status, req.DepartureTime, req.ArrivalTime)
		if err != nil {
			return fmt.Errorf("failed to update schedule: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: schedule %s not found", models.ErrScheduleUnavailable, id)
		}

		// Booked departures follow the new time
		if req.DepartureTime != nil && !req.DepartureTime.Equal(current.DepartureTime) {
			since := current.DepartureTime
			if current.IsRecurring() {
				since = s.now()
			}
			shifted, err = repos.Bookings.ShiftDeparture(ctx, id, req.DepartureTime.Sub(current.DepartureTime), since)
			if err != nil {
				return err
			}
		}

		updated, err = repos.Schedules.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, id)

	s.logger.WithFields(logrus.Fields{
		"schedule_id":      id,
		"status":           req.Status,
		"bookings_shifted": shifted,
	}).Info("Schedule status updated")

	return updated, nil
}

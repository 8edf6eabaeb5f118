package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/config"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/lock"
	"github.com/smarttransit/rail-reservation/internal/metrics"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/internal/notification"
)

// BookingServiceConfig holds configuration for the booking lifecycle
type BookingServiceConfig struct {
	PendingTimeout time.Duration // Unpaid bookings older than this are cancelled (default 15 min)
	ReminderWindow time.Duration // How far ahead departure reminders go out (default 24h)
	LockTimeout    time.Duration // Max wait for a schedule's critical section (default 5s)
	MaxPassengers  int           // Per booking (default 6)
	SweepBatchSize int           // Bookings handled per sweep (default 100)
}

// DefaultBookingServiceConfig returns default configuration
func DefaultBookingServiceConfig() BookingServiceConfig {
	return BookingServiceConfig{
		PendingTimeout: 15 * time.Minute,
		ReminderWindow: 24 * time.Hour,
		LockTimeout:    5 * time.Second,
		MaxPassengers:  6,
		SweepBatchSize: 100,
	}
}

// BookingServiceConfigFrom maps the environment configuration
func BookingServiceConfigFrom(cfg config.BookingConfig) BookingServiceConfig {
	c := DefaultBookingServiceConfig()
	c.PendingTimeout = cfg.PendingTimeout
	c.ReminderWindow = cfg.ReminderWindow
	c.LockTimeout = cfg.LockTimeout
	c.MaxPassengers = cfg.MaxPassengers
	return c
}

// BookingService drives bookings through PENDING -> CONFIRMED | CANCELLED
type BookingService struct {
	store    database.Store
	seats    *SeatReservationService
	locker   lock.Locker
	notifier notification.Notifier
	metrics  *metrics.Metrics
	config   BookingServiceConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewBookingService creates a new booking service
func NewBookingService(
	store database.Store,
	seats *SeatReservationService,
	locker lock.Locker,
	notifier notification.Notifier,
	m *metrics.Metrics,
	cfg BookingServiceConfig,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		store:    store,
		seats:    seats,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// ============================================================================
// CREATE
// ============================================================================

// Create reserves the requested seats and stores a PENDING booking. The
// seat hold and the booking insert commit together or not at all.
func (s *BookingService) Create(ctx context.Context, req *models.CreateBookingRequest) (*models.Booking, error) {
	// 1. Validate request
	if err := req.Validate(s.config.MaxPassengers); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, err)
	}

	// 2. Enter the schedule's critical section
	lockCtx, cancel := context.WithTimeout(ctx, s.config.LockTimeout)
	defer cancel()
	unlock, err := s.locker.Lock(lockCtx, lock.ScheduleKey(req.ScheduleID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock schedule: %w", err)
	}
	defer unlock()

	var booking *models.Booking
	err = s.store.WithinTx(ctx, func(repos database.Repositories) error {
		// 3. Schedule must exist and still take bookings
		schedule, err := repos.Schedules.GetByIDForUpdate(ctx, req.ScheduleID)
		if err != nil {
			return fmt.Errorf("failed to load schedule: %w", err)
		}
		if schedule == nil {
			return fmt.Errorf("%w: schedule %s not found", models.ErrScheduleUnavailable, req.ScheduleID)
		}
		now := s.now()
		if err := schedule.CheckBookable(now); err != nil {
			return err
		}

		// 4. Assign classes and price every seat
		passengers, total, err := s.buildPassengers(schedule, req.Passengers)
		if err != nil {
			return err
		}

		booking = &models.Booking{
			ID:          uuid.New(),
			UserID:      req.UserID,
			ScheduleID:  schedule.ID,
			Passengers:  passengers,
			Status:      models.BookingStatusPending,
			BookedAt:    now,
			DepartureAt: schedule.NextDeparture(now),
			TotalAmount: total,
		}
		if req.DiscountCode != nil {
			if code := models.NormalizeDiscountCode(*req.DiscountCode); code != "" {
				booking.DiscountCode = &code
			}
		}

		// 5. Insert the booking, then hold its seats
		if err := repos.Bookings.Create(ctx, booking); err != nil {
			return fmt.Errorf("failed to create booking: %w", err)
		}
		return s.seats.Reserve(ctx, repos, schedule, booking)
	})
	if err != nil {
		if errors.Is(err, models.ErrSeatConflict) {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"user_id":     req.UserID,
				"schedule_id": req.ScheduleID,
			}).Info("Seat selection conflicted")
		}
		return nil, err
	}

	s.metrics.BookingCreated()
	s.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"user_id":      booking.UserID,
		"schedule_id":  booking.ScheduleID,
		"seats":        booking.SeatNumbers(),
		"total_amount": booking.TotalAmount,
	}).Info("Booking created")

	return booking, nil
}

// buildPassengers resolves each passenger's seat class and fare
func (s *BookingService) buildPassengers(
	schedule *models.Schedule,
	reqs []models.PassengerRequest,
) ([]models.Passenger, float64, error) {
	passengers := make([]models.Passenger, len(reqs))
	var total float64
	for i, p := range reqs {
		class, err := s.seats.ResolveClass(schedule, p.SeatNumber, p.SeatClass)
		if err != nil {
			return nil, 0, err
		}
		fare := schedule.SeatPrice(class)
		passengers[i] = models.Passenger{
			ID:                uuid.New(),
			Name:              p.Name,
			Age:               p.Age,
			Wheelchair:        p.Wheelchair,
			VisualAssistance:  p.VisualAssistance,
			HearingAssistance: p.HearingAssistance,
			SeatNumber:        p.SeatNumber,
			SeatClass:         class.Code,
			Fare:              fare,
		}
		total += fare
	}
	return passengers, models.RoundMoney(total), nil
}

// ============================================================================
// CONFIRM
// ============================================================================

// Confirm moves a PENDING booking to CONFIRMED inside the payment
// transaction and marks its seats sold. Only payment settlement calls it.
func (s *BookingService) Confirm(
	ctx context.Context,
	repos database.Repositories,
	booking *models.Booking,
	paidAmount float64,
	discountCode *string,
) error {
	ok, err := repos.Bookings.Confirm(ctx, booking.ID, booking.Version, paidAmount, discountCode)
	if err != nil {
		return fmt.Errorf("failed to confirm booking: %w", err)
	}
	if !ok {
		current, err := repos.Bookings.GetByID(ctx, booking.ID)
		if err != nil {
			return fmt.Errorf("failed to reload booking: %w", err)
		}
		if current != nil && current.Status == models.BookingStatusConfirmed {
			return fmt.Errorf("%w: %s", models.ErrAlreadyConfirmed, booking.ID)
		}
		return fmt.Errorf("%w: booking %s changed while being paid", models.ErrInvalidBooking, booking.ID)
	}

	if _, err := repos.Seats.MarkBooked(ctx, booking.ID); err != nil {
		return fmt.Errorf("failed to mark seats booked: %w", err)
	}

	booking.Status = models.BookingStatusConfirmed
	booking.PaidAmount = &paidAmount
	booking.DiscountCode = discountCode
	booking.Version++
	return nil
}

// ============================================================================
// CANCEL
// ============================================================================

// Cancel cancels a PENDING or CONFIRMED booking and frees its seats. A
// CONFIRMED booking gets a refund computed from the active policy; owners
// may only cancel it inside the policy window, staff always may.
func (s *BookingService) Cancel(ctx context.Context, req *models.CancelBookingRequest) (*models.Booking, error) {
	reason := models.CancelledByUser
	if req.ByStaff {
		reason = models.CancelledByStaff
	}

	var cancelled *models.Booking
	var refund *float64
	err := s.store.WithinTx(ctx, func(repos database.Repositories) error {
		booking, err := repos.Bookings.GetByIDForUpdate(ctx, req.BookingID)
		if err != nil {
			return fmt.Errorf("failed to load booking: %w", err)
		}
		if booking == nil {
			return fmt.Errorf("%w: %s", models.ErrBookingNotFound, req.BookingID)
		}
		if !req.ByStaff && booking.UserID != req.UserID {
			return models.ErrNotBookingOwner
		}
		if booking.Status == models.BookingStatusCancelled {
			return fmt.Errorf("%w: booking %s is already cancelled", models.ErrInvalidBooking, booking.ID)
		}

		now := s.now()
		if booking.Status == models.BookingStatusConfirmed {
			refund, err = s.refundFor(ctx, repos, booking, now, req.ByStaff)
			if err != nil {
				return err
			}
		}

		ok, err := repos.Bookings.Cancel(ctx, database.Cancellation{
			BookingID:    booking.ID,
			From:         booking.Status,
			Version:      booking.Version,
			Reason:       reason,
			RefundAmount: refund,
			At:           now,
		})
		if err != nil {
			return fmt.Errorf("failed to cancel booking: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: booking %s changed while being cancelled", models.ErrInvalidBooking, booking.ID)
		}

		if _, err := s.seats.Release(ctx, repos, booking.ID); err != nil {
			return err
		}

		if refund != nil && *refund > 0 {
			if err := s.recordRefund(ctx, repos, booking.ID, *refund, now); err != nil {
				return err
			}
		}

		cancelled, err = repos.Bookings.GetByID(ctx, booking.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BookingCancelled(string(reason))
	s.logger.WithFields(logrus.Fields{
		"booking_id": cancelled.ID,
		"reason":     reason,
		"refund":     refund,
	}).Info("Booking cancelled")

	message := fmt.Sprintf("Your booking %s has been cancelled.", cancelled.ID)
	if refund != nil && *refund > 0 {
		message = fmt.Sprintf("Your booking %s has been cancelled. A refund of %.2f is being processed.", cancelled.ID, *refund)
	}
	s.notify(ctx, cancelled.UserID, message)

	return cancelled, nil
}

// refundFor applies the active policy to a CONFIRMED booking
func (s *BookingService) refundFor(
	ctx context.Context,
	repos database.Repositories,
	booking *models.Booking,
	now time.Time,
	byStaff bool,
) (*float64, error) {
	policy, err := repos.Policies.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cancellation policy: %w", err)
	}

	hours := booking.HoursUntilDeparture(now)
	if !byStaff && (policy == nil || !policy.CanCancel(hours)) {
		return nil, fmt.Errorf("%w: %.1f hours before departure", models.ErrCancellationNotAllowed, hours)
	}

	paid := booking.TotalAmount
	if booking.PaidAmount != nil {
		paid = *booking.PaidAmount
	}

	var refund float64
	if policy != nil {
		refund = models.RoundMoney(policy.Refund(paid, hours))
	}
	return &refund, nil
}

// recordRefund appends the refund owed; paying it out is external
func (s *BookingService) recordRefund(ctx context.Context, repos database.Repositories, bookingID uuid.UUID, amount float64, now time.Time) error {
	payments, err := repos.Payments.ListByBooking(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("failed to load payments: %w", err)
	}

	refund := &models.Payment{
		ID:        uuid.New(),
		BookingID: bookingID,
		Amount:    -amount,
		Status:    models.PaymentStatusRefundPending,
		CreatedAt: now,
	}
	for _, p := range payments {
		if p.Status == models.PaymentStatusSuccess {
			refund.MethodID = p.MethodID
			refund.MethodType = p.MethodType
			refund.Reference = p.Reference
		}
	}

	if err := repos.Payments.Create(ctx, refund); err != nil {
		return fmt.Errorf("failed to record refund: %w", err)
	}
	return nil
}

// ============================================================================
// BACKGROUND SWEEPS
// ============================================================================

// ExpirePending cancels unpaid PENDING bookings older than the pending
// timeout and frees their seats. Each booking is cancelled with a version
// check, so a payment confirming it concurrently wins or loses cleanly.
func (s *BookingService) ExpirePending(ctx context.Context) ([]*models.Booking, error) {
	cutoff := s.now().Add(-s.config.PendingTimeout)
	candidates, err := s.store.Repos().Bookings.ListExpiredPending(ctx, cutoff, s.config.SweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired bookings: %w", err)
	}

	expired := make([]*models.Booking, 0, len(candidates))
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return expired, err
		}

		booking, err := s.expireOne(ctx, candidate.ID, cutoff)
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", candidate.ID).Error("Failed to expire booking")
			continue
		}
		if booking == nil {
			continue
		}

		expired = append(expired, booking)
		s.metrics.BookingCancelled(string(models.CancelledByTimeout))
		s.logger.WithFields(logrus.Fields{
			"booking_id":  booking.ID,
			"schedule_id": booking.ScheduleID,
		}).Info("Unpaid booking expired and seats released")
		s.notify(ctx, booking.UserID, fmt.Sprintf(
			"Your booking %s was cancelled because payment was not received within %s.",
			booking.ID, s.config.PendingTimeout))
	}

	return expired, nil
}

// expireOne returns nil when the booking no longer qualifies
func (s *BookingService) expireOne(ctx context.Context, id uuid.UUID, cutoff time.Time) (*models.Booking, error) {
	var expired *models.Booking
	err := s.store.WithinTx(ctx, func(repos database.Repositories) error {
		booking, err := repos.Bookings.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if booking == nil || booking.Status != models.BookingStatusPending || !booking.BookedAt.Before(cutoff) {
			return nil
		}
		paid, err := repos.Payments.HasSuccessful(ctx, id)
		if err != nil || paid {
			return err
		}

		ok, err := repos.Bookings.Cancel(ctx, database.Cancellation{
			BookingID: id,
			From:      models.BookingStatusPending,
			Version:   booking.Version,
			Reason:    models.CancelledByTimeout,
			At:        s.now(),
		})
		if err != nil || !ok {
			return err
		}
		if _, err := s.seats.Release(ctx, repos, id); err != nil {
			return err
		}

		expired, err = repos.Bookings.GetByID(ctx, id)
		return err
	})
	return expired, err
}

// ReleaseDepartedSeats returns seats sold for departed runs of recurring
// schedules to sale and reports how many were freed
func (s *BookingService) ReleaseDepartedSeats(ctx context.Context) (int, error) {
	schedules, err := s.store.Repos().Schedules.List(ctx, models.ScheduleFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to list schedules: %w", err)
	}

	now := s.now()
	total := 0
	for _, schedule := range schedules {
		if !schedule.IsRecurring() {
			continue
		}
		var released []int
		err := s.store.WithinTx(ctx, func(repos database.Repositories) error {
			var err error
			released, err = repos.Seats.ReleaseDeparted(ctx, schedule.ID, now)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("failed to release departed seats of schedule %s: %w", schedule.ID, err)
		}
		if len(released) > 0 {
			s.logger.WithFields(logrus.Fields{
				"schedule_id": schedule.ID,
				"seats":       released,
			}).Debug("Seats of departed run released")
		}
		total += len(released)
	}
	return total, nil
}

// SendDepartureReminders notifies owners of confirmed bookings departing
// within the reminder window. Each booking is reminded once.
func (s *BookingService) SendDepartureReminders(ctx context.Context) (int, error) {
	now := s.now()
	repos := s.store.Repos()
	bookings, err := repos.Bookings.ListDepartingUnreminded(ctx, now, now.Add(s.config.ReminderWindow), s.config.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list departing bookings: %w", err)
	}

	sent := 0
	for _, booking := range bookings {
		s.notify(ctx, booking.UserID, fmt.Sprintf(
			"Reminder: your train for booking %s departs at %s.",
			booking.ID, booking.DepartureAt.Format("2006-01-02 15:04")))

		if err := repos.Bookings.MarkReminded(ctx, booking.ID, now); err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to mark reminder sent")
			continue
		}
		sent++
	}
	return sent, nil
}

// notify is fire-and-forget; failures are only logged
func (s *BookingService) notify(ctx context.Context, userID uuid.UUID, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, message); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to send notification")
	}
}

// ============================================================================
// QUERIES
// ============================================================================

// Get returns a booking by ID
func (s *BookingService) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.store.Repos().Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrBookingNotFound, id)
	}
	return booking, nil
}

// GetForUser returns a booking only if userID owns it
func (s *BookingService) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, models.ErrNotBookingOwner
	}
	return booking, nil
}

// ListByUser returns a user's bookings, newest first
func (s *BookingService) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Booking, error) {
	return s.store.Repos().Bookings.ListByUser(ctx, userID)
}

package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/metrics"
)

// BookingExpirationService runs the background sweeps of the booking lifecycle
type BookingExpirationService struct {
	bookings *BookingService
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// NewBookingExpirationService creates a new booking expiration service
func NewBookingExpirationService(bookings *BookingService, m *metrics.Metrics, logger *logrus.Logger) *BookingExpirationService {
	return &BookingExpirationService{
		bookings: bookings,
		metrics:  m,
		logger:   logger,
	}
}

// RunOnce cancels unpaid bookings past the pending timeout and returns how
// many. It also frees seats of departed runs on recurring schedules.
func (s *BookingExpirationService) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveJob("expire_bookings", time.Since(start).Seconds()) }()

	expired, err := s.bookings.ExpirePending(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to expire pending bookings")
		return len(expired), err
	}

	if len(expired) > 0 {
		s.logger.WithFields(logrus.Fields{
			"count":    len(expired),
			"duration": time.Since(start).String(),
		}).Info("Expired unpaid bookings")
	}

	released, err := s.bookings.ReleaseDepartedSeats(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to release seats of departed runs")
		return len(expired), err
	}
	if released > 0 {
		s.logger.WithField("count", released).Info("Seats of departed runs released")
	}
	return len(expired), nil
}

// SendReminders notifies passengers of upcoming departures and returns how many
func (s *BookingExpirationService) SendReminders(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveJob("departure_reminders", time.Since(start).Seconds()) }()

	sent, err := s.bookings.SendDepartureReminders(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to send departure reminders")
		return sent, err
	}

	if sent > 0 {
		s.logger.WithField("count", sent).Info("Departure reminders sent")
	}
	return sent, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/metrics"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/internal/notification"
	"github.com/smarttransit/rail-reservation/pkg/validator"
)

// PaymentServiceConfig holds configuration for payment settlement
type PaymentServiceConfig struct {
	ChargeTimeout  time.Duration // Bound on one adapter charge (default 15s)
	PendingTimeout time.Duration // Bookings older than this can no longer be paid (default 15 min)
}

// DefaultPaymentServiceConfig returns default configuration
func DefaultPaymentServiceConfig() PaymentServiceConfig {
	return PaymentServiceConfig{
		ChargeTimeout:  15 * time.Second,
		PendingTimeout: 15 * time.Minute,
	}
}

// PaymentService settles PENDING bookings
type PaymentService struct {
	store     database.Store
	bookings  *BookingService
	discounts *DiscountService
	loyalty   *LoyaltyService
	adapters  map[models.PaymentMethodType]PaymentAdapter
	validator *validator.PaymentDetailsValidator
	notifier  notification.Notifier
	metrics   *metrics.Metrics
	config    PaymentServiceConfig
	logger    *logrus.Logger
	now       func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	store database.Store,
	bookings *BookingService,
	discounts *DiscountService,
	loyalty *LoyaltyService,
	adapters map[models.PaymentMethodType]PaymentAdapter,
	v *validator.PaymentDetailsValidator,
	notifier notification.Notifier,
	m *metrics.Metrics,
	cfg PaymentServiceConfig,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		store:     store,
		bookings:  bookings,
		discounts: discounts,
		loyalty:   loyalty,
		adapters:  adapters,
		validator: v,
		notifier:  notifier,
		metrics:   m,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// ============================================================================
// PROCESS PAYMENT
// ============================================================================

// ProcessPayment charges a PENDING booking and confirms it. Discount
// usage, loyalty points, the payment row and the status change commit in
// one transaction; on any failure none of them persist and the booking
// stays PENDING.
func (s *PaymentService) ProcessPayment(ctx context.Context, req *models.ProcessPaymentRequest) (*models.Payment, error) {
	// 1. Validate request and resolve the adapter and details
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, err)
	}
	method, details, err := s.resolveMethod(ctx, req)
	if err != nil {
		return nil, err
	}
	adapter, ok := s.adapters[method.Type]
	if !ok {
		return nil, models.NewValidationError("method", fmt.Sprintf("%s is not supported", method.Type))
	}
	if err := adapter.Validate(details); err != nil {
		s.metrics.Payment(adapter.Name(), "invalid")
		return nil, err
	}

	var payment *models.Payment
	var booking *models.Booking
	var discount float64
	var reference string

	err = s.store.WithinTx(ctx, func(repos database.Repositories) error {
		// 2. Booking must still be PENDING, unexpired, on an existing schedule
		booking, err = s.loadPayable(ctx, repos, req)
		if err != nil {
			return err
		}

		amount := booking.TotalAmount
		if req.Amount != nil && models.RoundMoney(*req.Amount) != booking.TotalAmount {
			return models.NewValidationError("amount",
				fmt.Sprintf("must equal the booking total %.2f", booking.TotalAmount))
		}

		// 3. Price the discount without locking its row
		code := req.DiscountCode
		if code == nil {
			code = booking.DiscountCode
		}
		if code != nil {
			discount, err = s.discounts.Preview(ctx, repos, *code, amount, booking.ScheduleID)
			if err != nil {
				return err
			}
		}
		final := models.RoundMoney(amount - discount)

		// 4. Wallet payments spend ceil(final) points
		redeemer, paysWithPoints := adapter.(PointsRedeemer)
		if paysWithPoints {
			if err := s.loyalty.Debit(ctx, repos, booking.UserID, redeemer.PointsRequired(final)); err != nil {
				return err
			}
		}

		// 5. Charge within the timeout
		reference, err = s.charge(ctx, adapter, final, details)
		if err != nil {
			return err
		}

		// 6. Consume the discount now that the charge went through. A code
		// used up by another payment meanwhile fails this one and the charge
		// is voided.
		var appliedCode *string
		if discount > 0 {
			committed, err := s.discounts.Commit(ctx, repos, *code, amount, booking.ScheduleID)
			if err != nil {
				return err
			}
			if committed != discount {
				return fmt.Errorf("%w: code %s changed while the charge was in flight",
					models.ErrDiscountInvalid, models.NormalizeDiscountCode(*code))
			}
			normalized := models.NormalizeDiscountCode(*code)
			appliedCode = &normalized
		}

		// 7. Record the payment and confirm the booking
		payment = &models.Payment{
			ID:         uuid.New(),
			BookingID:  booking.ID,
			Amount:     final,
			MethodID:   req.MethodID,
			MethodType: method.Type,
			Status:     models.PaymentStatusSuccess,
			Reference:  &reference,
			CreatedAt:  s.now(),
		}
		if err := repos.Payments.Create(ctx, payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		if err := s.bookings.Confirm(ctx, repos, booking, final, appliedCode); err != nil {
			return err
		}

		// 8. Paid bookings earn points, except those paid with points
		if !paysWithPoints {
			if err := s.loyalty.Credit(ctx, repos, booking.UserID, s.loyalty.EarnedPoints(final)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.Payment(adapter.Name(), "failed")
		if reference != "" {
			s.voidCharge(adapter, reference, err)
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": req.BookingID,
			"method":     adapter.Name(),
		}).Warn("Payment failed, booking left pending")
		return nil, err
	}

	s.metrics.Payment(adapter.Name(), "success")
	s.metrics.BookingConfirmed()
	if discount > 0 {
		s.metrics.DiscountCommitted()
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"payment_id": payment.ID,
		"method":     adapter.Name(),
		"amount":     payment.Amount,
		"discount":   discount,
	}).Info("Payment settled, booking confirmed")

	if s.notifier != nil {
		msg := fmt.Sprintf("Your booking %s is confirmed. Amount paid: %.2f.", booking.ID, payment.Amount)
		if err := s.notifier.Notify(ctx, booking.UserID, msg); err != nil {
			s.logger.WithError(err).WithField("user_id", booking.UserID).Warn("Failed to send notification")
		}
	}

	return payment, nil
}

// resolveMethod returns the method to charge: a saved one or the request's raw details
func (s *PaymentService) resolveMethod(ctx context.Context, req *models.ProcessPaymentRequest) (*models.PaymentMethod, string, error) {
	if req.MethodID == nil {
		return &models.PaymentMethod{Type: req.Method}, req.Details, nil
	}

	saved, err := s.store.Repos().PaymentMethods.GetByID(ctx, *req.MethodID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load payment method: %w", err)
	}
	if saved == nil || (req.UserID != uuid.Nil && saved.UserID != req.UserID) {
		return nil, "", fmt.Errorf("%w: %s", models.ErrPaymentMethodNotFound, *req.MethodID)
	}
	return saved, saved.Details, nil
}

// loadPayable locks the booking and checks it can still be paid
func (s *PaymentService) loadPayable(ctx context.Context, repos database.Repositories, req *models.ProcessPaymentRequest) (*models.Booking, error) {
	booking, err := repos.Bookings.GetByIDForUpdate(ctx, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking %s not found", models.ErrInvalidBooking, req.BookingID)
	}
	if req.UserID != uuid.Nil && booking.UserID != req.UserID {
		return nil, models.ErrNotBookingOwner
	}

	switch booking.Status {
	case models.BookingStatusConfirmed:
		return nil, fmt.Errorf("%w: %s", models.ErrAlreadyConfirmed, booking.ID)
	case models.BookingStatusCancelled:
		return nil, fmt.Errorf("%w: booking %s is cancelled", models.ErrInvalidBooking, booking.ID)
	}

	if s.config.PendingTimeout > 0 && s.now().Sub(booking.BookedAt) > s.config.PendingTimeout {
		return nil, fmt.Errorf("%w: payment window for booking %s has closed", models.ErrInvalidBooking, booking.ID)
	}

	schedule, err := repos.Schedules.GetByID(ctx, booking.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	if schedule == nil {
		return nil, fmt.Errorf("%w: schedule %s no longer exists", models.ErrInvalidBooking, booking.ScheduleID)
	}

	return booking, nil
}

// charge runs the adapter under the charge timeout; a timeout is a failure
func (s *PaymentService) charge(ctx context.Context, adapter PaymentAdapter, amount float64, details string) (string, error) {
	chargeCtx, cancel := context.WithTimeout(ctx, s.config.ChargeTimeout)
	defer cancel()

	reference, err := adapter.Charge(chargeCtx, amount, details)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w: %s after %s", models.ErrChargeTimeout, adapter.Name(), s.config.ChargeTimeout)
		}
		return "", fmt.Errorf("charge via %s failed: %w", adapter.Name(), err)
	}
	return reference, nil
}

// voidCharge undoes a charge whose transaction did not commit
func (s *PaymentService) voidCharge(adapter PaymentAdapter, reference string, cause error) {
	voider, ok := adapter.(Voider)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ChargeTimeout)
	defer cancel()

	entry := s.logger.WithFields(logrus.Fields{
		"reference": reference,
		"method":    adapter.Name(),
		"cause":     cause.Error(),
	})
	if err := voider.Void(ctx, reference); err != nil {
		entry.WithError(err).Error("Failed to void charge after rollback")
		return
	}
	entry.Warn("Charge voided after rollback")
}

// ============================================================================
// SAVED PAYMENT METHODS
// ============================================================================

// SavePaymentMethod validates and stores a method for later payments
func (s *PaymentService) SavePaymentMethod(ctx context.Context, req *models.SavePaymentMethodRequest) (*models.PaymentMethod, error) {
	if req.UserID == uuid.Nil {
		return nil, models.NewValidationError("user_id", "is required")
	}
	adapter, ok := s.adapters[req.Type]
	if !ok {
		return nil, models.NewValidationError("type", "must be CARD, WALLET or BANK_TRANSFER")
	}
	if err := adapter.Validate(req.Details); err != nil {
		return nil, err
	}

	method := &models.PaymentMethod{
		ID:      uuid.New(),
		UserID:  req.UserID,
		Type:    req.Type,
		Details: req.Details,
		Label:   req.Label,
	}
	if method.Label == "" {
		method.Label = s.defaultLabel(req.Type, req.Details)
	}

	if err := s.store.Repos().PaymentMethods.Create(ctx, method); err != nil {
		return nil, fmt.Errorf("failed to save payment method: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   method.UserID,
		"method_id": method.ID,
		"type":      method.Type,
	}).Info("Payment method saved")

	return method, nil
}

func (s *PaymentService) defaultLabel(t models.PaymentMethodType, details string) string {
	switch t {
	case models.PaymentMethodCard:
		return "Card " + s.validator.MaskCard(details)
	case models.PaymentMethodBankTransfer:
		if account, err := s.validator.ValidateBankAccount(details); err == nil {
			return "Bank ****" + account.AccountNumber[len(account.AccountNumber)-4:]
		}
	case models.PaymentMethodWallet:
		return "Loyalty wallet"
	}
	return string(t)
}

// ListPaymentMethods returns a user's saved methods
func (s *PaymentService) ListPaymentMethods(ctx context.Context, userID uuid.UUID) ([]*models.PaymentMethod, error) {
	return s.store.Repos().PaymentMethods.ListByUser(ctx, userID)
}

// ListPayments returns the settlement records of a booking
func (s *PaymentService) ListPayments(ctx context.Context, bookingID uuid.UUID) ([]*models.Payment, error) {
	return s.store.Repos().Payments.ListByBooking(ctx, bookingID)
}

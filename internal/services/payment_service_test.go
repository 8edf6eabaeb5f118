package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/database/memory"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessPayment_CardConfirmsBooking(t *testing.T) {
	env := setupServicesTest(t)
	ctx := context.Background()
	schedule := env.publish(t, 50, 40)
	booking := env.book(t, uuid.New(), schedule.ID, 1, 2)

	payment := env.payByCard(t, booking)

	assert.Equal(t, models.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, 100.00, payment.Amount)
	assert.Equal(t, models.PaymentMethodCard, payment.MethodType)
	require.NotNil(t, payment.Reference)

	confirmed := env.reload(t, booking.ID)
	assert.Equal(t, models.BookingStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.PaidAmount)
	assert.Equal(t, 100.00, *confirmed.PaidAmount)
	assert.Equal(t, []int{1, 2}, env.occupied(t, schedule.ID))

	availability, err := env.seats.AvailableSeats(ctx, schedule)
	require.NoError(t, err)
	require.Len(t, availability, 1)
	assert.NotContains(t, availability[0].Free, 1)
	assert.NotContains(t, availability[0].Free, 2)
	assert.Len(t, availability[0].Free, 38)

	// 100.00 at 0.1 points per unit
	balance, err := env.loyalty.Balance(ctx, booking.UserID)
	require.NoError(t, err)
	assert.Equal(t, 10, balance.Points)

	require.Len(t, env.gateway.charges, 1)
	assert.Equal(t, "LKR", env.gateway.charges[0].Currency)
	assert.Equal(t, "**** 1111", env.gateway.charges[0].Account)
	assert.NotEmpty(t, env.notifier.Messages())
}

func TestProcessPayment_SecondPaymentRejected(t *testing.T) {
	env := setupServicesTest(t)
	schedule := env.publish(t, 50, 40)
	booking := env.book(t, uuid.New(), schedule.ID, 1)
	env.payByCard(t, booking)

	_, err := env.payments.ProcessPayment(context.Background(), &models.ProcessPaymentRequest{
		BookingID: booking.ID, UserID: booking.UserID, Method: models.PaymentMethodCard, Details: testCard,
	})
	assert.ErrorIs(t, err, models.ErrAlreadyConfirmed)

	payments, err := env.payments.ListPayments(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Len(t, env.gateway.charges, 1)
}

func TestProcessPayment_Rejections(t *testing.T) {
	env := setupServicesTest(t)
	ctx := context.Background()
	schedule := env.publish(t, 50, 40)
	booking := env.book(t, uuid.New(), schedule.ID, 1)
	wrongAmount := 49.99

	tests := []struct {
		name    string
		req     *models.ProcessPaymentRequest
		wantErr error
	}{
		{
			name:    "Invalid card number",
			req:     &models.ProcessPaymentRequest{BookingID: booking.ID, UserID: booking.UserID, Method: models.PaymentMethodCard, Details: "4111111111111112|12/35|123"},
			wantErr: models.ErrValidation,
		},
		{
			name:    "Malformed bank details",
			req:     &models.ProcessPaymentRequest{BookingID: booking.ID, UserID: booking.UserID, Method: models.PaymentMethodBankTransfer, Details: "12|34"},
			wantErr: models.ErrValidation,
		},
		{
			name:    "Amount differs from total",
			req:     &models.ProcessPaymentRequest{BookingID: booking.ID, UserID: booking.UserID, Method: models.PaymentMethodCard, Details: testCard, Amount: &wrongAmount},
			wantErr: models.ErrValidation,
		},
		{
			name:    "Unknown booking",
			req:     &models.ProcessPaymentRequest{BookingID: uuid.New(), Method: models.PaymentMethodCard, Details: testCard},
			wantErr: models.ErrInvalidBooking,
		},
		{
			name:    "Another user's booking",
			req:     &models.ProcessPaymentRequest{BookingID: booking.ID, UserID: uuid.New(), Method: models.PaymentMethodCard, Details: testCard},
			wantErr: models.ErrNotBookingOwner,
		},
		{
			name:    "Unknown method",
			req:     &models.ProcessPaymentRequest{BookingID: booking.ID, UserID: booking.UserID, Method: "CASH"},
			wantErr: models.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.payments.ProcessPayment(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, models.BookingStatusPending, env.reload(t, booking.ID).Status)
	assert.Empty(t, env.gateway.charges)
}

func TestProcessPayment_DeclinedLeavesBookingPending(t *testing.T) {
	env := setupServicesTest(t)
	ctx := context.Background()
	schedule := env.publish(t, 50, 40)
	env.createDiscount(t, models.Discount{Code: "SAVE10", Percentage: 10, MaxUses: 1})
	booking := env.book(t, uuid.New(), schedule.ID, 1)
	env.gateway.decline = models.ErrChargeDeclined

	code := "SAVE10"
	_, err := env.payments.ProcessPayment(ctx, &models.ProcessPaymentRequest{
		BookingID: booking.ID, UserID: booking.UserID, Method: models.PaymentMethodCard,
		Details: testCard, DiscountCode: &code,
	})
	require.ErrorIs(t, err, models.ErrChargeDeclined)

	assert.Equal(t, models.BookingStatusPending, env.reload(t, booking.ID).Status)
	payments, err := env.payments.ListPayments(ctx, booking.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	// The discount use was rolled back with the transaction
	quote, err := env.discounts.Quote(ctx, code, 50, schedule.ID)
	require.NoError(t, err)
	assert.True(t, quote.Applicable)

	// A later attempt can still succeed
	env.gateway.decline = nil
	payment, err := env.payments.ProcessPayment(ctx, &models.ProcessPaymentRequest{
		BookingID: booking.ID, UserID: booking.UserID, Method: models.PaymentMethodCard,
		Details: testCard, DiscountCode: &code,
	})
	require.NoError(t, err)
	assert.Equal(t, 45.00, payment.Amount)
}

func TestProcessPayment_ChargeTimeout(t *testing.T) {
	env := setupServicesTest(t)
	schedule := env.publish(t, 50, 40)
	booking := env.book(t, uuid.New(), schedule.ID, 1)
	env.gateway.block = true

	_, err := env.payments.ProcessPayment(context.Background(), &models.ProcessPaymentRequest{
		BookingID: booking.ID, UserID: booking.UserID, Method: models.PaymentMethodCard, Details: testCard,
	})
	require.ErrorIs(t, err, models.ErrChargeTimeout)
	assert.Equal(t, models.BookingStatusPending, env.reload(t, booking.ID).Status)
}

func TestProcessPayment_Wallet(t *testing.T) {
	env := setupServicesTest(t)
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Insufficient points", func(t *testing.T) {
		schedule := env.publish(t, 50, 40)
		booking := env.book(t, userID, schedule.ID, 1)

		_, err := env.payments.ProcessPayment(ctx, &models.ProcessPaymentRequest{
			BookingID: booking.ID, UserID: userID, Method: models.PaymentMethodWallet,
		})
		require.ErrorIs(t, err, models.ErrInsufficientPoints)

		balance, err := env.loyalty.Balance(ctx, userID)
		require.NoError(t, err)
		assert.Zero(t, balance.Points)
		assert.Equal(t, models.BookingStatusPending, env.reload(t, booking.ID).Status)
	})

	t.Run("Points cover the fare", func(t *testing.T) {
		// Earn 60 points with a card payment of 600
		earner := env.publish(t, 300, 10)
		env.payByCard(t, env.book(t, userID, earner.ID, 1, 2))

		schedule := env.publish(t, 49.5, 40)
		booking := env.book(t, userID, schedule.ID, 1)
		payment, err := env.payments.ProcessPayment(ctx, &models.ProcessPaymentRequest{
			BookingID: booking.ID, UserID: userID, Method: models.PaymentMethodWallet,
		})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentMethodWallet, payment.MethodType)
		assert.Equal(t, models.BookingStatusConfirmed, env.reload(t, booking.ID).Status)

		// ceil(49.50) points spent, none earned back
		balance, err := env.loyalty.Balance(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 10, balance.Points)
	})
}

func TestProcessPayment_SavedMethod(t *testing.T) {
	env := setupServicesTest(t)
	ctx := context.Background()
	schedule := env.publish(t, 50, 40)
	userID := uuid.New()

	method, err := env.payments.SavePaymentMethod(ctx, &models.SavePaymentMethodRequest{
		UserID: userID, Type: models.PaymentMethodCard, Details: testCard,
	})
	require.NoError(t, err)
	assert.Equal(t, "Card **** 1111", method.Label)

	_, err = env.payments.SavePaymentMethod(ctx, &models.SavePaymentMethodRequest{
		UserID: userID, Type: models.PaymentMethodCard, Details: "4111111111111111|01/20|123",
	})
	assert.ErrorIs(t, err, models.ErrValidation)

	methods, err := env.payments.ListPaymentMethods(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, methods, 1)

	stranger := env.book(t, uuid.New(), schedule.ID, 2)
	_, err = env.payments.ProcessPayment(ctx, &models.ProcessPaymentRequest{
		BookingID: stranger.ID, UserID: stranger.UserID, MethodID: &method.ID,
	})
	assert.ErrorIs(t, err, models.ErrPaymentMethodNotFound)

	booking := env.book(t, userID, schedule.ID, 1)
	payment, err := env.payments.ProcessPayment(ctx, &models.ProcessPaymentRequest{
		BookingID: booking.ID, UserID: userID, MethodID: &method.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, payment.MethodID)
	assert.Equal(t, method.ID, *payment.MethodID)
	assert.Equal(t, models.PaymentMethodCard, payment.MethodType)
}

// failingPaymentStore lets charges through and then fails to record them
type failingPaymentStore struct {
	*memory.Store
}

type failingPayments struct {
	database.PaymentRepository
}

var errWriteFailed = errors.New("write failed")

func (failingPayments) Create(ctx context.Context, payment *models.Payment) error {
	return errWriteFailed
}

func (s failingPaymentStore) WithinTx(ctx context.Context, fn func(repos database.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(repos database.Repositories) error {
		repos.Payments = failingPayments{repos.Payments}
		return fn(repos)
	})
}

func TestProcessPayment_ChargeVoidedWhenCommitFails(t *testing.T) {
	inner := memory.New()
	healthy := setupServicesTestWithStore(t, inner)
	schedule := healthy.publish(t, 50, 40)
	booking := healthy.book(t, uuid.New(), schedule.ID, 1)

	env := setupServicesTestWithStore(t, failingPaymentStore{inner})
	_, err := env.payments.ProcessPayment(context.Background(), &models.ProcessPaymentRequest{
		BookingID: booking.ID, UserID: booking.UserID, Method: models.PaymentMethodCard, Details: testCard,
	})
	require.ErrorIs(t, err, errWriteFailed)

	assert.Len(t, env.gateway.charges, 1)
	assert.Len(t, env.gateway.voids, 1)
	assert.Equal(t, models.BookingStatusPending, healthy.reload(t, booking.ID).Status)
}

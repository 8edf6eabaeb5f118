package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/database/memory"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking_TotalAndPending(t *testing.T) {
	env := setupServicesTest(t)
	schedule := env.publish(t, 50, 40)

	booking := env.book(t, uuid.New(), schedule.ID, 1, 2)

	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, 100.00, booking.TotalAmount)
	assert.Equal(t, schedule.DepartureTime, booking.DepartureAt)
	require.Len(t, booking.Passengers, 2)
	assert.Equal(t, models.DefaultSeatClassCode, booking.Passengers[0].SeatClass)
	assert.Equal(t, 50.00, booking.Passengers[0].Fare)

	stored := env.reload(t, booking.ID)
	assert.Equal(t, booking.TotalAmount, stored.TotalAmount)
	assert.Equal(t, []int{1, 2}, stored.SeatNumbers())
}

func TestCreateBooking_ClassPricing(t *testing.T) {
	env := setupServicesTest(t)
	schedule := env.publish(t, 40, 30,
		models.SeatClass{Code: "SL", Name: "Sleeper", FirstSeat: 1, LastSeat: 20, PriceMultiplier: 1.25},
		models.SeatClass{Code: "AC", Name: "Air conditioned", FirstSeat: 21, LastSeat: 30, PriceMultiplier: 1, BaseFare: 15.5},
	)

	booking := env.book(t, uuid.New(), schedule.ID, 3, 25)

	// 40*1.25 + (40*1 + 15.50)
	assert.Equal(t, 105.50, booking.TotalAmount)
	assert.Equal(t, "SL", booking.Passengers[0].SeatClass)
	assert.Equal(t, "AC", booking.Passengers[1].SeatClass)
}

func TestCreateBooking_Rejections(t *testing.T) {
	env := setupServicesTest(t)
	schedule := env.publish(t, 50, 40)
	ctx := context.Background()

	t.Run("Unknown schedule", func(t *testing.T) {
		_, err := env.bookings.Create(ctx, &models.CreateBookingRequest{
			UserID: uuid.New(), ScheduleID: uuid.New(), Passengers: passengers(1),
		})
		assert.ErrorIs(t, err, models.ErrScheduleUnavailable)
	})

	t.Run("No passengers", func(t *testing.T) {
		_, err := env.bookings.Create(ctx, &models.CreateBookingRequest{
			UserID: uuid.New(), ScheduleID: schedule.ID,
		})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("Passenger without seat", func(t *testing.T) {
		_, err := env.bookings.Create(ctx, &models.CreateBookingRequest{
			UserID: uuid.New(), ScheduleID: schedule.ID, Passengers: passengers(0),
		})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("Same seat twice", func(t *testing.T) {
		_, err := env.bookings.Create(ctx, &models.CreateBookingRequest{
			UserID: uuid.New(), ScheduleID: schedule.ID, Passengers: passengers(3, 3),
		})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("Cancelled schedule", func(t *testing.T) {
		_, err := env.catalog.UpdateStatus(ctx, schedule.ID, &models.UpdateScheduleStatusRequest{
			Status: models.ScheduleStatusCancelled,
		})
		require.NoError(t, err)

		_, err = env.bookings.Create(ctx, &models.CreateBookingRequest{
			UserID: uuid.New(), ScheduleID: schedule.ID, Passengers: passengers(1),
		})
		assert.ErrorIs(t, err, models.ErrScheduleUnavailable)
	})

	assert.Empty(t, env.occupied(t, schedule.ID))
}

// failingSeatStore lets Hold succeed and then reports a storage failure
type failingSeatStore struct {
	*memory.Store
}

type failingSeats struct {
	database.SeatRepository
}

var errDiskFull = errors.New("disk full")

func (f failingSeats) Hold(ctx context.Context, scheduleID, bookingID uuid.UUID, seats []int) (int, error) {
	if _, err := f.SeatRepository.Hold(ctx, scheduleID, bookingID, seats); err != nil {
		return 0, err
	}
	return 0, errDiskFull
}

func (s failingSeatStore) WithinTx(ctx context.Context, fn func(repos database.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(repos database.Repositories) error {
		repos.Seats = failingSeats{repos.Seats}
		return fn(repos)
	})
}

func TestCreateBooking_PersistenceFailureRollsBackSeats(t *testing.T) {
	inner := memory.New()
	healthy := setupServicesTestWithStore(t, inner)
	schedule := healthy.publish(t, 50, 40)

	env := setupServicesTestWithStore(t, failingSeatStore{inner})
	userID := uuid.New()
	_, err := env.bookings.Create(context.Background(), &models.CreateBookingRequest{
		UserID: userID, ScheduleID: schedule.ID, Passengers: passengers(1, 2),
	})
	require.ErrorIs(t, err, errDiskFull)

	assert.Empty(t, healthy.occupied(t, schedule.ID))
	bookings, err := healthy.bookings.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, bookings)

	// Seats are immediately bookable again
	healthy.book(t, uuid.New(), schedule.ID, 1, 2)
}

func TestCancelBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("Owner cancels pending booking", func(t *testing.T) {
		env := setupServicesTest(t)
		schedule := env.publish(t, 50, 40)
		userID := uuid.New()
		booking := env.book(t, userID, schedule.ID, 1, 2)

		cancelled, err := env.bookings.Cancel(ctx, &models.CancelBookingRequest{BookingID: booking.ID, UserID: userID})
		require.NoError(t, err)

		assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CancellationReason)
		assert.Equal(t, models.CancelledByUser, *cancelled.CancellationReason)
		assert.Nil(t, cancelled.RefundAmount)
		assert.Empty(t, env.occupied(t, schedule.ID))
		assert.Len(t, env.notifier.Messages(), 1)
	})

	t.Run("Other user is rejected", func(t *testing.T) {
		env := setupServicesTest(t)
		schedule := env.publish(t, 50, 40)
		booking := env.book(t, uuid.New(), schedule.ID, 1)

		_, err := env.bookings.Cancel(ctx, &models.CancelBookingRequest{BookingID: booking.ID, UserID: uuid.New()})
		assert.ErrorIs(t, err, models.ErrNotBookingOwner)
		assert.Equal(t, []int{1}, env.occupied(t, schedule.ID))
	})

	t.Run("Cancelling twice fails", func(t *testing.T) {
		env := setupServicesTest(t)
		schedule := env.publish(t, 50, 40)
		userID := uuid.New()
		booking := env.book(t, userID, schedule.ID, 1)

		req := &models.CancelBookingRequest{BookingID: booking.ID, UserID: userID}
		_, err := env.bookings.Cancel(ctx, req)
		require.NoError(t, err)
		_, err = env.bookings.Cancel(ctx, req)
		assert.ErrorIs(t, err, models.ErrInvalidBooking)
	})

	t.Run("Unknown booking", func(t *testing.T) {
		env := setupServicesTest(t)
		_, err := env.bookings.Cancel(ctx, &models.CancelBookingRequest{BookingID: uuid.New(), ByStaff: true})
		assert.ErrorIs(t, err, models.ErrBookingNotFound)
	})
}

func activatePolicy(t *testing.T, env *testEnv, maxHours, minHours, refund float64) {
	t.Helper()
	policy := &models.CancellationPolicy{
		Name:                    "Standard",
		HoursBeforeDeparture:    maxHours,
		MinHoursBeforeDeparture: minHours,
		RefundPercentage:        refund,
		AllowCancellation:       true,
	}
	require.NoError(t, env.policies.Create(context.Background(), policy))
	_, err := env.policies.Activate(context.Background(), policy.ID)
	require.NoError(t, err)
}

func TestCancelConfirmedBooking_RefundWithinWindow(t *testing.T) {
	env := setupServicesTest(t)
	activatePolicy(t, env, 24, 2, 80)
	schedule := env.publish(t, 50, 40)
	userID := uuid.New()
	booking := env.book(t, userID, schedule.ID, 1, 2)
	env.payByCard(t, booking)

	// Departure is 72h away; move to 10h before departure
	env.clock.Advance(62 * time.Hour)

	cancelled, err := env.bookings.Cancel(context.Background(), &models.CancelBookingRequest{BookingID: booking.ID, UserID: userID})
	require.NoError(t, err)

	require.NotNil(t, cancelled.RefundAmount)
	assert.Equal(t, 80.00, *cancelled.RefundAmount)
	assert.Empty(t, env.occupied(t, schedule.ID))

	payments, err := env.payments.ListPayments(context.Background(), booking.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	refund := payments[1]
	assert.Equal(t, models.PaymentStatusRefundPending, refund.Status)
	assert.Equal(t, -80.00, refund.Amount)
	assert.Equal(t, models.PaymentMethodCard, refund.MethodType)
}

func TestCancelConfirmedBooking_OutsideWindow(t *testing.T) {
	env := setupServicesTest(t)
	activatePolicy(t, env, 24, 2, 80)
	schedule := env.publish(t, 50, 40)
	userID := uuid.New()
	booking := env.book(t, userID, schedule.ID, 1, 2)
	env.payByCard(t, booking)

	// 30 hours before departure is earlier than the policy allows
	env.clock.Advance(42 * time.Hour)

	_, err := env.bookings.Cancel(context.Background(), &models.CancelBookingRequest{BookingID: booking.ID, UserID: userID})
	require.ErrorIs(t, err, models.ErrCancellationNotAllowed)
	assert.Equal(t, models.BookingStatusConfirmed, env.reload(t, booking.ID).Status)
	assert.Equal(t, []int{1, 2}, env.occupied(t, schedule.ID))

	// Staff may still cancel, with no refund due
	cancelled, err := env.bookings.Cancel(context.Background(), &models.CancelBookingRequest{BookingID: booking.ID, ByStaff: true})
	require.NoError(t, err)
	require.NotNil(t, cancelled.RefundAmount)
	assert.Zero(t, *cancelled.RefundAmount)
	assert.Equal(t, models.CancelledByStaff, *cancelled.CancellationReason)
	assert.Empty(t, env.occupied(t, schedule.ID))
}

func TestCancelConfirmedBooking_NoActivePolicy(t *testing.T) {
	env := setupServicesTest(t)
	schedule := env.publish(t, 50, 40)
	userID := uuid.New()
	booking := env.book(t, userID, schedule.ID, 1)
	env.payByCard(t, booking)

	_, err := env.bookings.Cancel(context.Background(), &models.CancelBookingRequest{BookingID: booking.ID, UserID: userID})
	assert.ErrorIs(t, err, models.ErrCancellationNotAllowed)
}

func TestExpirePending(t *testing.T) {
	env := setupServicesTest(t)
	schedule := env.publish(t, 50, 40)
	ctx := context.Background()

	stale := env.book(t, uuid.New(), schedule.ID, 1, 2)
	paid := env.book(t, uuid.New(), schedule.ID, 3)
	env.payByCard(t, paid)

	env.clock.Advance(10 * time.Minute)
	fresh := env.book(t, uuid.New(), schedule.ID, 4)

	env.clock.Advance(6 * time.Minute)
	count, err := env.expiration.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expired := env.reload(t, stale.ID)
	assert.Equal(t, models.BookingStatusCancelled, expired.Status)
	assert.Equal(t, models.CancelledByTimeout, *expired.CancellationReason)
	assert.Equal(t, models.BookingStatusConfirmed, env.reload(t, paid.ID).Status)
	assert.Equal(t, models.BookingStatusPending, env.reload(t, fresh.ID).Status)
	assert.Equal(t, []int{3, 4}, env.occupied(t, schedule.ID))

	messages := env.notifier.Messages()
	require.NotEmpty(t, messages)
	assert.Equal(t, stale.UserID, messages[len(messages)-1].UserID)

	// A second sweep finds nothing new
	count, err = env.expiration.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExpiredBookingCannotBePaid(t *testing.T) {
	env := setupServicesTest(t)
	schedule := env.publish(t, 50, 40)
	booking := env.book(t, uuid.New(), schedule.ID, 1)

	env.clock.Advance(16 * time.Minute)
	_, err := env.payments.ProcessPayment(context.Background(), &models.ProcessPaymentRequest{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		Method:    models.PaymentMethodCard,
		Details:   testCard,
	})
	assert.ErrorIs(t, err, models.ErrInvalidBooking)
	assert.Equal(t, models.BookingStatusPending, env.reload(t, booking.ID).Status)
}

func TestSendDepartureReminders(t *testing.T) {
	env := setupServicesTest(t)
	schedule := env.publish(t, 50, 40)
	booking := env.book(t, uuid.New(), schedule.ID, 1)
	env.payByCard(t, booking)
	unpaid := env.book(t, uuid.New(), schedule.ID, 2)
	before := len(env.notifier.Messages())

	sent, err := env.expiration.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent, "departure is outside the reminder window")

	env.clock.Advance(60 * time.Hour)
	sent, err = env.expiration.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = env.expiration.SendReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent, "each booking is reminded once")

	messages := env.notifier.Messages()[before:]
	require.Len(t, messages, 1)
	assert.Equal(t, booking.UserID, messages[0].UserID)
	assert.NotEqual(t, unpaid.UserID, messages[0].UserID)
}

// publishDaily stores a schedule running every day, first departing two
// hours after the test clock
func (e *testEnv) publishDaily(t *testing.T, price float64, capacity int) *models.Schedule {
	t.Helper()
	departure := e.clock.Now().Add(2 * time.Hour)
	schedule := &models.Schedule{
		Route:         models.Route{Name: "Hill Country", Source: "Kandy", Destination: "Ella"},
		DepartureTime: departure,
		ArrivalTime:   departure.Add(6 * time.Hour),
		RecurringDays: models.WeekdayArray{
			time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
			time.Thursday, time.Friday, time.Saturday,
		},
		Price:    price,
		Capacity: capacity,
	}
	require.NoError(t, e.catalog.Publish(context.Background(), schedule))
	return schedule
}

func TestCancelAfterDepartureMoved(t *testing.T) {
	env := setupServicesTest(t)
	ctx := context.Background()
	activatePolicy(t, env, 24, 2, 80)
	schedule := env.publish(t, 50, 40)
	userID := uuid.New()
	booking := env.book(t, userID, schedule.ID, 1, 2)
	env.payByCard(t, booking)

	// Staff bring the departure forward from 72h to 20h away
	departure := env.clock.Now().Add(20 * time.Hour)
	arrival := departure.Add(3 * time.Hour)
	updated, err := env.catalog.UpdateStatus(ctx, schedule.ID, &models.UpdateScheduleStatusRequest{
		Status:        models.ScheduleStatusOnTime,
		DepartureTime: &departure,
		ArrivalTime:   &arrival,
	})
	require.NoError(t, err)
	assert.True(t, updated.DepartureTime.Equal(departure))

	moved := env.reload(t, booking.ID)
	assert.True(t, moved.DepartureAt.Equal(departure), "booking departure follows the schedule")
	assert.Equal(t, booking.Version+1, moved.Version, "only the payment changed the version")

	// The reminder window now covers the booking
	sent, err := env.expiration.SendReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	cancelled, err := env.bookings.Cancel(ctx, &models.CancelBookingRequest{BookingID: booking.ID, UserID: userID})
	require.NoError(t, err)
	require.NotNil(t, cancelled.RefundAmount)
	assert.Equal(t, 80.00, *cancelled.RefundAmount)
}

func TestUpdateScheduleTime_RecurringShiftsUpcomingRuns(t *testing.T) {
	env := setupServicesTest(t)
	ctx := context.Background()
	schedule := env.publishDaily(t, 40, 10)

	booking := env.book(t, uuid.New(), schedule.ID, 1)
	env.payByCard(t, booking)
	cancelled := env.book(t, uuid.New(), schedule.ID, 2)
	_, err := env.bookings.Cancel(ctx, &models.CancelBookingRequest{BookingID: cancelled.ID, UserID: cancelled.UserID})
	require.NoError(t, err)

	delayed := schedule.DepartureTime.Add(45 * time.Minute)
	arrival := schedule.ArrivalTime.Add(45 * time.Minute)
	_, err = env.catalog.UpdateStatus(ctx, schedule.ID, &models.UpdateScheduleStatusRequest{
		Status:        models.ScheduleStatusDelayed,
		DepartureTime: &delayed,
		ArrivalTime:   &arrival,
	})
	require.NoError(t, err)

	assert.True(t, env.reload(t, booking.ID).DepartureAt.Equal(booking.DepartureAt.Add(45*time.Minute)))
	assert.True(t, env.reload(t, cancelled.ID).DepartureAt.Equal(cancelled.DepartureAt), "cancelled bookings keep their time")

	// Status-only updates leave departures alone
	_, err = env.catalog.UpdateStatus(ctx, schedule.ID, &models.UpdateScheduleStatusRequest{Status: models.ScheduleStatusOnTime})
	require.NoError(t, err)
	assert.True(t, env.reload(t, booking.ID).DepartureAt.Equal(booking.DepartureAt.Add(45*time.Minute)))
}

func TestRecurringSchedule_SeatsReturnAfterDeparture(t *testing.T) {
	env := setupServicesTest(t)
	ctx := context.Background()
	schedule := env.publishDaily(t, 40, 2)

	first := env.book(t, uuid.New(), schedule.ID, 1)
	env.payByCard(t, first)

	// Same run: the seat is still taken
	_, err := env.bookings.Create(ctx, &models.CreateBookingRequest{
		UserID:     uuid.New(),
		ScheduleID: schedule.ID,
		Passengers: passengers(1),
	})
	require.ErrorIs(t, err, models.ErrSeatConflict)

	// A later run can sell it again
	env.clock.Advance(8 * 24 * time.Hour)
	later := env.book(t, uuid.New(), schedule.ID, 1)
	assert.True(t, later.DepartureAt.After(first.DepartureAt))
	env.payByCard(t, later)
	assert.Equal(t, models.BookingStatusConfirmed, env.reload(t, first.ID).Status)
	assert.Equal(t, []int{1}, env.occupied(t, schedule.ID))

	// The sweep frees seats once the run has left
	env.clock.Advance(24 * time.Hour)
	_, err = env.expiration.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, env.occupied(t, schedule.ID))
}

func TestConfirm_VersionChangedBehindService(t *testing.T) {
	env := setupServicesTest(t)
	ctx := context.Background()
	schedule := env.publish(t, 50, 40)

	t.Run("Cancelled Meanwhile", func(t *testing.T) {
		booking := env.book(t, uuid.New(), schedule.ID, 1)
		require.NoError(t, env.store.WithinTx(ctx, func(repos database.Repositories) error {
			ok, err := repos.Bookings.Cancel(ctx, database.Cancellation{
				BookingID: booking.ID,
				From:      models.BookingStatusPending,
				Version:   booking.Version,
				Reason:    models.CancelledByStaff,
				At:        env.clock.Now(),
			})
			require.True(t, ok)
			return err
		}))

		err := env.store.WithinTx(ctx, func(repos database.Repositories) error {
			return env.bookings.Confirm(ctx, repos, booking, booking.TotalAmount, nil)
		})
		require.ErrorIs(t, err, models.ErrInvalidBooking)
		assert.Equal(t, models.BookingStatusPending, booking.Status, "caller's copy is untouched")

		current := env.reload(t, booking.ID)
		assert.Equal(t, models.BookingStatusCancelled, current.Status)
		assert.Nil(t, current.PaidAmount)

		seats, err := env.store.Repos().Seats.ListBySchedule(ctx, schedule.ID)
		require.NoError(t, err)
		for _, seat := range seats {
			assert.False(t, seat.Booked, "seat %d", seat.SeatNumber)
		}
	})

	t.Run("Confirmed Meanwhile", func(t *testing.T) {
		booking := env.book(t, uuid.New(), schedule.ID, 2)
		require.NoError(t, env.store.WithinTx(ctx, func(repos database.Repositories) error {
			ok, err := repos.Bookings.Confirm(ctx, booking.ID, booking.Version, 10, nil)
			require.True(t, ok)
			return err
		}))

		err := env.store.WithinTx(ctx, func(repos database.Repositories) error {
			return env.bookings.Confirm(ctx, repos, booking, 99, nil)
		})
		require.ErrorIs(t, err, models.ErrAlreadyConfirmed)

		current := env.reload(t, booking.ID)
		require.NotNil(t, current.PaidAmount)
		assert.Equal(t, 10.0, *current.PaidAmount)
		assert.Equal(t, booking.Version+1, current.Version)
	})
}

func TestExpirePending_SkipsPaidBooking(t *testing.T) {
	env := setupServicesTest(t)
	ctx := context.Background()
	schedule := env.publish(t, 50, 40)

	// Payment committed but the booking has not been confirmed yet
	booking := env.book(t, uuid.New(), schedule.ID, 1)
	require.NoError(t, env.store.WithinTx(ctx, func(repos database.Repositories) error {
		return repos.Payments.Create(ctx, &models.Payment{
			ID:         uuid.New(),
			BookingID:  booking.ID,
			Amount:     booking.TotalAmount,
			MethodType: models.PaymentMethodCard,
			Status:     models.PaymentStatusSuccess,
			CreatedAt:  env.clock.Now(),
		})
	}))

	env.clock.Advance(16 * time.Minute)
	expired, err := env.bookings.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)

	// The per-booking check holds even when the candidate list is stale
	cutoff := env.clock.Now().Add(-env.bookings.config.PendingTimeout)
	skipped, err := env.bookings.expireOne(ctx, booking.ID, cutoff)
	require.NoError(t, err)
	assert.Nil(t, skipped)

	current := env.reload(t, booking.ID)
	assert.Equal(t, models.BookingStatusPending, current.Status)
	assert.Equal(t, booking.Version, current.Version)
	assert.Equal(t, []int{1}, env.occupied(t, schedule.ID))
}

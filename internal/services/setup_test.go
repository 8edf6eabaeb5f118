package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/database/memory"
	"github.com/smarttransit/rail-reservation/internal/lock"
	"github.com/smarttransit/rail-reservation/internal/metrics"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/internal/notification"
	"github.com/smarttransit/rail-reservation/pkg/validator"
	"github.com/stretchr/testify/require"
)

const testCard = "4111111111111111|12/35|123"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubGateway approves every charge unless told otherwise
type stubGateway struct {
	mu      sync.Mutex
	decline error
	block   bool
	charges []GatewayCharge
	voids   []string
}

func (g *stubGateway) Charge(ctx context.Context, charge GatewayCharge) (string, error) {
	g.mu.Lock()
	decline, block := g.decline, g.block
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if decline != nil {
		return "", decline
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, charge)
	return "gw_" + uuid.NewString(), nil
}

func (g *stubGateway) Void(ctx context.Context, reference string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.voids = append(g.voids, reference)
	return nil
}

type testEnv struct {
	store      database.Store
	clock      *testClock
	notifier   *notification.Recorder
	gateway    *stubGateway
	metrics    *metrics.Metrics
	catalog    *ScheduleCatalogService
	seats      *SeatReservationService
	discounts  *DiscountService
	policies   *CancellationPolicyService
	loyalty    *LoyaltyService
	bookings   *BookingService
	payments   *PaymentService
	expiration *BookingExpirationService
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupServicesTest(t *testing.T) *testEnv {
	return setupServicesTestWithStore(t, memory.New())
}

func setupServicesTestWithStore(t *testing.T, store database.Store) *testEnv {
	t.Helper()

	logger := testLogger()
	clock := &testClock{now: time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)}
	env := &testEnv{
		store:    store,
		clock:    clock,
		notifier: &notification.Recorder{},
		gateway:  &stubGateway{},
		metrics:  metrics.New(),
	}

	env.catalog = NewScheduleCatalogService(store, nil, logger)
	env.catalog.now = clock.Now
	env.seats = NewSeatReservationService(store, env.metrics, logger)
	env.discounts = NewDiscountService(store, logger)
	env.discounts.now = clock.Now
	env.policies = NewCancellationPolicyService(store, logger)
	env.loyalty = NewLoyaltyService(store, 0.1, logger)

	env.bookings = NewBookingService(store, env.seats, lock.NewLocalLocker(), env.notifier, env.metrics,
		DefaultBookingServiceConfig(), logger)
	env.bookings.now = clock.Now

	v := validator.NewPaymentDetailsValidator()
	paymentCfg := DefaultPaymentServiceConfig()
	paymentCfg.ChargeTimeout = 200 * time.Millisecond
	env.payments = NewPaymentService(store, env.bookings, env.discounts, env.loyalty,
		NewPaymentAdapters(env.gateway, v, "LKR"), v, env.notifier, env.metrics, paymentCfg, logger)
	env.payments.now = clock.Now

	env.expiration = NewBookingExpirationService(env.bookings, env.metrics, logger)
	return env
}

// publish stores a one-off schedule departing three days from the test clock
func (e *testEnv) publish(t *testing.T, price float64, capacity int, classes ...models.SeatClass) *models.Schedule {
	t.Helper()
	departure := e.clock.Now().Add(72 * time.Hour)
	schedule := &models.Schedule{
		Route:         models.Route{Name: "Coast Line", Source: "Colombo Fort", Destination: "Galle"},
		DepartureTime: departure,
		ArrivalTime:   departure.Add(3 * time.Hour),
		Price:         price,
		Capacity:      capacity,
		SeatClasses:   classes,
	}
	require.NoError(t, e.catalog.Publish(context.Background(), schedule))
	return schedule
}

func passengers(seats ...int) []models.PassengerRequest {
	out := make([]models.PassengerRequest, len(seats))
	for i, s := range seats {
		out[i] = models.PassengerRequest{Name: "Passenger", Age: 30, SeatNumber: s}
	}
	return out
}

func (e *testEnv) book(t *testing.T, userID uuid.UUID, scheduleID uuid.UUID, seats ...int) *models.Booking {
	t.Helper()
	booking, err := e.bookings.Create(context.Background(), &models.CreateBookingRequest{
		UserID:     userID,
		ScheduleID: scheduleID,
		Passengers: passengers(seats...),
	})
	require.NoError(t, err)
	return booking
}

func (e *testEnv) payByCard(t *testing.T, booking *models.Booking) *models.Payment {
	t.Helper()
	payment, err := e.payments.ProcessPayment(context.Background(), &models.ProcessPaymentRequest{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		Method:    models.PaymentMethodCard,
		Details:   testCard,
	})
	require.NoError(t, err)
	return payment
}

func (e *testEnv) reload(t *testing.T, id uuid.UUID) *models.Booking {
	t.Helper()
	booking, err := e.bookings.Get(context.Background(), id)
	require.NoError(t, err)
	return booking
}

func (e *testEnv) occupied(t *testing.T, scheduleID uuid.UUID) []int {
	t.Helper()
	seats, err := e.seats.OccupiedSeats(context.Background(), scheduleID)
	require.NoError(t, err)
	return seats.Sorted()
}

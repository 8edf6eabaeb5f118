// Package memory is an in-process database.Store used for tests and
// offline mode. A single mutex serialises transactions; a failed
// transaction restores the snapshot taken when it began.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/models"
)

type state struct {
	schedules map[uuid.UUID]models.Schedule
	seats     map[uuid.UUID]map[int]models.Seat
	bookings  map[uuid.UUID]models.Booking
	discounts map[string]models.Discount
	policies  map[uuid.UUID]models.CancellationPolicy
	payments  []models.Payment
	methods   map[uuid.UUID]models.PaymentMethod
	loyalty   map[uuid.UUID]models.LoyaltyBalance
	users     map[uuid.UUID]models.User
	audit     []models.AuditEvent
}

func newState() *state {
	return &state{
		schedules: make(map[uuid.UUID]models.Schedule),
		seats:     make(map[uuid.UUID]map[int]models.Seat),
		bookings:  make(map[uuid.UUID]models.Booking),
		discounts: make(map[string]models.Discount),
		policies:  make(map[uuid.UUID]models.CancellationPolicy),
		methods:   make(map[uuid.UUID]models.PaymentMethod),
		loyalty:   make(map[uuid.UUID]models.LoyaltyBalance),
		users:     make(map[uuid.UUID]models.User),
	}
}

// clone copies every map. Stored values own their slices (writers always
// copy before storing), so sharing them between snapshots is safe.
func (s *state) clone() *state {
	c := &state{
		schedules: cloneMap(s.schedules),
		seats:     make(map[uuid.UUID]map[int]models.Seat, len(s.seats)),
		bookings:  cloneMap(s.bookings),
		discounts: cloneMap(s.discounts),
		policies:  cloneMap(s.policies),
		payments:  append([]models.Payment(nil), s.payments...),
		methods:   cloneMap(s.methods),
		loyalty:   cloneMap(s.loyalty),
		users:     cloneMap(s.users),
		audit:     append([]models.AuditEvent(nil), s.audit...),
	}
	for id, seats := range s.seats {
		c.seats[id] = cloneMap(seats)
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store implements database.Store in memory
type Store struct {
	mu sync.Mutex
	st *state
}

// New creates an empty store
func New() *Store {
	return &Store{st: newState()}
}

// Repos returns repositories that lock the store per call. They must not
// be used from inside a WithinTx callback.
func (s *Store) Repos() database.Repositories {
	return s.repositories(false)
}

// WithinTx runs fn while holding the store lock and rolls every change
// back if fn returns an error
func (s *Store) WithinTx(ctx context.Context, fn func(repos database.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(s.repositories(true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) repositories(inTx bool) database.Repositories {
	b := base{store: s, inTx: inTx}
	return database.Repositories{
		Schedules:      &scheduleRepo{b},
		Seats:          &seatRepo{b},
		Bookings:       &bookingRepo{b},
		Discounts:      &discountRepo{b},
		Policies:       &policyRepo{b},
		Payments:       &paymentRepo{b},
		PaymentMethods: &paymentMethodRepo{b},
		Loyalty:        &loyaltyRepo{b},
		Users:          &userRepo{b},
		Audit:          &auditRepo{b},
	}
}

// base gives every repository access to the current state under the lock
type base struct {
	store *Store
	inTx  bool
}

func (b base) lock() func() {
	if b.inTx {
		return func() {}
	}
	b.store.mu.Lock()
	return b.store.mu.Unlock
}

func (b base) state() *state {
	return b.store.st
}

var _ database.Store = (*Store)(nil)

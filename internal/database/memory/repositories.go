package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/rail-reservation/internal/database"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// ============================================================================
// SCHEDULES
// ============================================================================

type scheduleRepo struct{ base }

func copySchedule(s models.Schedule) *models.Schedule {
	s.SeatClasses = append([]models.SeatClass(nil), s.SeatClasses...)
	s.RecurringDays = append(models.WeekdayArray(nil), s.RecurringDays...)
	return &s
}

func (r *scheduleRepo) Create(ctx context.Context, s *models.Schedule) error {
	defer r.lock()()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Route.ID == uuid.Nil {
		s.Route.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = models.ScheduleStatusOnTime
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	if _, exists := r.state().schedules[s.ID]; exists {
		return fmt.Errorf("schedule %s already exists", s.ID)
	}
	r.state().schedules[s.ID] = *copySchedule(*s)
	return nil
}

func (r *scheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	defer r.lock()()
	s, ok := r.state().schedules[id]
	if !ok {
		return nil, nil
	}
	return copySchedule(s), nil
}

func (r *scheduleRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	return r.GetByID(ctx, id)
}

func (r *scheduleRepo) List(ctx context.Context, filter models.ScheduleFilter) ([]*models.Schedule, error) {
	defer r.lock()()
	out := make([]*models.Schedule, 0)
	for _, s := range r.state().schedules {
		sc := copySchedule(s)
		if filter.Matches(sc) {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.Before(out[j].DepartureTime) })
	return out, nil
}

func (r *scheduleRepo) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status models.ScheduleStatus,
	departure, arrival *time.Time,
) (bool, error) {
	defer r.lock()()
	s, ok := r.state().schedules[id]
	if !ok {
		return false, nil
	}
	s.Status = status
	if departure != nil {
		s.DepartureTime = *departure
	}
	if arrival != nil {
		s.ArrivalTime = *arrival
	}
	if !s.ArrivalTime.After(s.DepartureTime) {
		return false, models.NewValidationError("arrival_time", "must be after departure_time")
	}
	s.UpdatedAt = time.Now()
	r.state().schedules[id] = s
	return true, nil
}

// ============================================================================
// SEATS
// ============================================================================

type seatRepo struct{ base }

func (r *seatRepo) CreateInventory(ctx context.Context, seats []models.Seat) error {
	defer r.lock()()
	now := time.Now()
	for _, s := range seats {
		bySeat, ok := r.state().seats[s.ScheduleID]
		if !ok {
			bySeat = make(map[int]models.Seat)
			r.state().seats[s.ScheduleID] = bySeat
		}
		if _, dup := bySeat[s.SeatNumber]; dup {
			return fmt.Errorf("seat %d already exists on schedule %s", s.SeatNumber, s.ScheduleID)
		}
		s.BookingID = nil
		s.Booked = false
		s.UpdatedAt = now
		bySeat[s.SeatNumber] = s
	}
	return nil
}

func (r *seatRepo) ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]models.Seat, error) {
	defer r.lock()()
	bySeat := r.state().seats[scheduleID]
	out := make([]models.Seat, 0, len(bySeat))
	for _, s := range bySeat {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out, nil
}

func (r *seatRepo) Hold(ctx context.Context, scheduleID, bookingID uuid.UUID, seatNumbers []int) (int, error) {
	defer r.lock()()
	bySeat := r.state().seats[scheduleID]
	held := 0
	for _, n := range seatNumbers {
		s, ok := bySeat[n]
		if !ok || s.BookingID != nil {
			continue
		}
		id := bookingID
		s.BookingID = &id
		s.Booked = false
		s.UpdatedAt = time.Now()
		bySeat[n] = s
		held++
	}
	return held, nil
}

func (r *seatRepo) HeldAmong(ctx context.Context, scheduleID uuid.UUID, seatNumbers []int) ([]int, error) {
	defer r.lock()()
	bySeat := r.state().seats[scheduleID]
	held := []int{}
	for _, n := range seatNumbers {
		if s, ok := bySeat[n]; ok && s.BookingID != nil {
			held = append(held, n)
		}
	}
	sort.Ints(held)
	return held, nil
}

func (r *seatRepo) MarkBooked(ctx context.Context, bookingID uuid.UUID) (int, error) {
	defer r.lock()()
	n := 0
	for _, bySeat := range r.state().seats {
		for num, s := range bySeat {
			if s.BookingID != nil && *s.BookingID == bookingID {
				s.Booked = true
				s.UpdatedAt = time.Now()
				bySeat[num] = s
				n++
			}
		}
	}
	return n, nil
}

func (r *seatRepo) Release(ctx context.Context, bookingID uuid.UUID) ([]int, error) {
	defer r.lock()()
	released := []int{}
	for _, bySeat := range r.state().seats {
		for num, s := range bySeat {
			if s.BookingID != nil && *s.BookingID == bookingID {
				s.BookingID = nil
				s.Booked = false
				s.UpdatedAt = time.Now()
				bySeat[num] = s
				released = append(released, num)
			}
		}
	}
	sort.Ints(released)
	return released, nil
}

func (r *seatRepo) ReleaseDeparted(ctx context.Context, scheduleID uuid.UUID, before time.Time) ([]int, error) {
	defer r.lock()()
	bySeat := r.state().seats[scheduleID]
	released := []int{}
	for num, s := range bySeat {
		if s.BookingID == nil {
			continue
		}
		b, ok := r.state().bookings[*s.BookingID]
		if !ok || b.Status != models.BookingStatusConfirmed || !b.DepartureAt.Before(before) {
			continue
		}
		s.BookingID = nil
		s.Booked = false
		s.UpdatedAt = time.Now()
		bySeat[num] = s
		released = append(released, num)
	}
	sort.Ints(released)
	return released, nil
}

// ============================================================================
// BOOKINGS
// ============================================================================

type bookingRepo struct{ base }

func copyBooking(b models.Booking) *models.Booking {
	b.Passengers = append([]models.Passenger(nil), b.Passengers...)
	return &b
}

func (r *bookingRepo) Create(ctx context.Context, b *models.Booking) error {
	defer r.lock()()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.BookedAt.IsZero() {
		b.BookedAt = time.Now()
	}
	b.UpdatedAt = b.BookedAt
	for i := range b.Passengers {
		if b.Passengers[i].ID == uuid.Nil {
			b.Passengers[i].ID = uuid.New()
		}
		b.Passengers[i].BookingID = b.ID
	}
	if _, exists := r.state().bookings[b.ID]; exists {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	r.state().bookings[b.ID] = *copyBooking(*b)
	return nil
}

func (r *bookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	defer r.lock()()
	b, ok := r.state().bookings[id]
	if !ok {
		return nil, nil
	}
	return copyBooking(b), nil
}

func (r *bookingRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *bookingRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Booking, error) {
	defer r.lock()()
	out := r.filter(func(b models.Booking) bool { return b.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].BookedAt.After(out[j].BookedAt) })
	return out, nil
}

func (r *bookingRepo) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	defer r.lock()()
	paid := make(map[uuid.UUID]bool)
	for _, p := range r.state().payments {
		if p.Status == models.PaymentStatusSuccess {
			paid[p.BookingID] = true
		}
	}
	out := r.filter(func(b models.Booking) bool {
		return b.Status == models.BookingStatusPending && b.BookedAt.Before(cutoff) && !paid[b.ID]
	})
	sort.Slice(out, func(i, j int) bool { return out[i].BookedAt.Before(out[j].BookedAt) })
	return truncate(out, limit), nil
}

func (r *bookingRepo) ListDepartingUnreminded(ctx context.Context, from, to time.Time, limit int) ([]*models.Booking, error) {
	defer r.lock()()
	out := r.filter(func(b models.Booking) bool {
		return b.Status == models.BookingStatusConfirmed &&
			b.ReminderSentAt == nil &&
			!b.DepartureAt.Before(from) && !b.DepartureAt.After(to)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureAt.Before(out[j].DepartureAt) })
	return truncate(out, limit), nil
}

func (r *bookingRepo) filter(keep func(models.Booking) bool) []*models.Booking {
	out := make([]*models.Booking, 0)
	for _, b := range r.state().bookings {
		if keep(b) {
			out = append(out, copyBooking(b))
		}
	}
	return out
}

func truncate(bookings []*models.Booking, limit int) []*models.Booking {
	if limit > 0 && len(bookings) > limit {
		return bookings[:limit]
	}
	return bookings
}

func (r *bookingRepo) Confirm(ctx context.Context, id uuid.UUID, version int, paidAmount float64, discountCode *string) (bool, error) {
	defer r.lock()()
	b, ok := r.state().bookings[id]
	if !ok || b.Status != models.BookingStatusPending || b.Version != version {
		return false, nil
	}
	b.Status = models.BookingStatusConfirmed
	paid := paidAmount
	b.PaidAmount = &paid
	b.DiscountCode = discountCode
	b.Version++
	b.UpdatedAt = time.Now()
	r.state().bookings[id] = b
	return true, nil
}

func (r *bookingRepo) Cancel(ctx context.Context, c database.Cancellation) (bool, error) {
	defer r.lock()()
	b, ok := r.state().bookings[c.BookingID]
	if !ok || b.Status != c.From || b.Version != c.Version {
		return false, nil
	}
	reason := c.Reason
	at := c.At
	b.Status = models.BookingStatusCancelled
	b.CancellationReason = &reason
	b.RefundAmount = c.RefundAmount
	b.CancelledAt = &at
	b.Version++
	b.UpdatedAt = at
	r.state().bookings[c.BookingID] = b
	return true, nil
}

func (r *bookingRepo) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer r.lock()()
	b, ok := r.state().bookings[id]
	if !ok {
		return nil
	}
	b.ReminderSentAt = &at
	r.state().bookings[id] = b
	return nil
}

func (r *bookingRepo) ShiftDeparture(ctx context.Context, scheduleID uuid.UUID, delta time.Duration, since time.Time) (int, error) {
	defer r.lock()()
	n := 0
	for id, b := range r.state().bookings {
		if b.ScheduleID != scheduleID || !b.IsActive() || b.DepartureAt.Before(since) {
			continue
		}
		b.DepartureAt = b.DepartureAt.Add(delta)
		b.ReminderSentAt = nil
		b.UpdatedAt = time.Now()
		r.state().bookings[id] = b
		n++
	}
	return n, nil
}

// ============================================================================
// DISCOUNTS
// ============================================================================

type discountRepo struct{ base }

func (r *discountRepo) Create(ctx context.Context, d *models.Discount) error {
	defer r.lock()()
	if _, exists := r.state().discounts[d.Code]; exists {
		return models.NewValidationError("code", "already exists")
	}
	d.CreatedAt = time.Now()
	r.state().discounts[d.Code] = *d
	return nil
}

func (r *discountRepo) GetByCode(ctx context.Context, code string) (*models.Discount, error) {
	defer r.lock()()
	d, ok := r.state().discounts[code]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *discountRepo) GetByCodeForUpdate(ctx context.Context, code string) (*models.Discount, error) {
	return r.GetByCode(ctx, code)
}

func (r *discountRepo) List(ctx context.Context) ([]*models.Discount, error) {
	defer r.lock()()
	out := make([]*models.Discount, 0, len(r.state().discounts))
	for _, d := range r.state().discounts {
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *discountRepo) IncrementUsage(ctx context.Context, code string) (bool, error) {
	defer r.lock()()
	d, ok := r.state().discounts[code]
	if !ok || !d.Active || d.IsExhausted() {
		return false, nil
	}
	d.CurrentUses++
	r.state().discounts[code] = d
	return true, nil
}

func (r *discountRepo) Deactivate(ctx context.Context, code string) (bool, error) {
	defer r.lock()()
	d, ok := r.state().discounts[code]
	if !ok {
		return false, nil
	}
	d.Active = false
	r.state().discounts[code] = d
	return true, nil
}

// ============================================================================
// CANCELLATION POLICIES
// ============================================================================

type policyRepo struct{ base }

func (r *policyRepo) Create(ctx context.Context, p *models.CancellationPolicy) error {
	defer r.lock()()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Active = false
	p.CreatedAt = time.Now()
	r.state().policies[p.ID] = *p
	return nil
}

func (r *policyRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.CancellationPolicy, error) {
	defer r.lock()()
	p, ok := r.state().policies[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *policyRepo) GetActive(ctx context.Context) (*models.CancellationPolicy, error) {
	defer r.lock()()
	for _, p := range r.state().policies {
		if p.Active {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (r *policyRepo) List(ctx context.Context) ([]*models.CancellationPolicy, error) {
	defer r.lock()()
	out := make([]*models.CancellationPolicy, 0, len(r.state().policies))
	for _, p := range r.state().policies {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *policyRepo) Activate(ctx context.Context, id uuid.UUID) (bool, error) {
	defer r.lock()()
	if _, ok := r.state().policies[id]; !ok {
		return false, nil
	}
	for pid, p := range r.state().policies {
		p.Active = pid == id
		r.state().policies[pid] = p
	}
	return true, nil
}

// ============================================================================
// PAYMENTS / PAYMENT METHODS
// ============================================================================

type paymentRepo struct{ base }

func (r *paymentRepo) Create(ctx context.Context, p *models.Payment) error {
	defer r.lock()()
	if p.Status == models.PaymentStatusSuccess {
		for _, existing := range r.state().payments {
			if existing.BookingID == p.BookingID && existing.Status == models.PaymentStatusSuccess {
				return fmt.Errorf("%w: booking %s already has a successful payment", models.ErrAlreadyConfirmed, p.BookingID)
			}
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	r.state().payments = append(r.state().payments, *p)
	return nil
}

func (r *paymentRepo) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*models.Payment, error) {
	defer r.lock()()
	out := make([]*models.Payment, 0)
	for _, p := range r.state().payments {
		if p.BookingID == bookingID {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r *paymentRepo) HasSuccessful(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	defer r.lock()()
	for _, p := range r.state().payments {
		if p.BookingID == bookingID && p.Status == models.PaymentStatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

type paymentMethodRepo struct{ base }

func (r *paymentMethodRepo) Create(ctx context.Context, m *models.PaymentMethod) error {
	defer r.lock()()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now()
	r.state().methods[m.ID] = *m
	return nil
}

func (r *paymentMethodRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentMethod, error) {
	defer r.lock()()
	m, ok := r.state().methods[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *paymentMethodRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.PaymentMethod, error) {
	defer r.lock()()
	out := make([]*models.PaymentMethod, 0)
	for _, m := range r.state().methods {
		if m.UserID == userID {
			m := m
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ============================================================================
// LOYALTY
// ============================================================================

type loyaltyRepo struct{ base }

func (r *loyaltyRepo) Get(ctx context.Context, userID uuid.UUID) (*models.LoyaltyBalance, error) {
	defer r.lock()()
	b, ok := r.state().loyalty[userID]
	if !ok {
		return &models.LoyaltyBalance{UserID: userID}, nil
	}
	return &b, nil
}

func (r *loyaltyRepo) Debit(ctx context.Context, userID uuid.UUID, points int) (bool, error) {
	defer r.lock()()
	b, ok := r.state().loyalty[userID]
	if !ok || b.Points < points {
		return false, nil
	}
	b.Points -= points
	b.UpdatedAt = time.Now()
	r.state().loyalty[userID] = b
	return true, nil
}

func (r *loyaltyRepo) Credit(ctx context.Context, userID uuid.UUID, points int) error {
	defer r.lock()()
	b := r.state().loyalty[userID]
	b.UserID = userID
	b.Points += points
	b.UpdatedAt = time.Now()
	r.state().loyalty[userID] = b
	return nil
}

// ============================================================================
// USERS
// ============================================================================

type userRepo struct{ base }

func copyUser(u models.User) *models.User {
	u.Roles = append(u.Roles[:0:0], u.Roles...)
	return &u
}

func (r *userRepo) Create(ctx context.Context, u *models.User) error {
	defer r.lock()()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range r.state().users {
		if existing.Email == u.Email {
			return models.NewValidationError("email", "is already registered")
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if len(u.Roles) == 0 {
		u.Roles = []string{models.RolePassenger}
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	r.state().users[u.ID] = *copyUser(*u)
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	defer r.lock()()
	u, ok := r.state().users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	defer r.lock()()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.state().users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

// ============================================================================
// AUDIT
// ============================================================================

type auditRepo struct{ base }

func (r *auditRepo) Create(ctx context.Context, e *models.AuditEvent) error {
	defer r.lock()()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	stored := *e
	stored.Details = cloneDetails(e.Details)
	r.state().audit = append(r.state().audit, stored)
	return nil
}

func (r *auditRepo) List(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error) {
	defer r.lock()()
	out := []*models.AuditEvent{}
	events := r.state().audit
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if filter.UserID != nil && (e.UserID == nil || *e.UserID != *filter.UserID) {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		e.Details = cloneDetails(e.Details)
		out = append(out, &e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *auditRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	defer r.lock()()
	kept := r.state().audit[:0:0]
	for _, e := range r.state().audit {
		if !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(r.state().audit) - len(kept)
	r.state().audit = kept
	return removed, nil
}

func cloneDetails(d models.JSONMap) models.JSONMap {
	if d == nil {
		return nil
	}
	out := make(models.JSONMap, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

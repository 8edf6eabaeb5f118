package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestSeatRepository_Hold(t *testing.T) {
	ctx := context.Background()
	scheduleID := uuid.New()
	bookingID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSeatRepository(db)

		mock.ExpectExec(`(?s)UPDATE seats\s+SET booking_id = \$1.*seat_number IN \(\$3, \$4\)\s+AND booking_id IS NULL`).
			WithArgs(bookingID, scheduleID, 5, 6).
			WillReturnResult(sqlmock.NewResult(0, 2))

		held, err := repo.Hold(ctx, scheduleID, bookingID, []int{5, 6})
		require.NoError(t, err)
		assert.Equal(t, 2, held)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Partial", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSeatRepository(db)

		mock.ExpectExec(`(?s)UPDATE seats`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		held, err := repo.Hold(ctx, scheduleID, bookingID, []int{5, 6})
		require.NoError(t, err)
		assert.Equal(t, 1, held)
	})

	t.Run("No Seats", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSeatRepository(db)

		held, err := repo.Hold(ctx, scheduleID, bookingID, nil)
		require.NoError(t, err)
		assert.Zero(t, held)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSeatRepository(db)

		mock.ExpectExec(`(?s)UPDATE seats`).WillReturnError(fmt.Errorf("connection reset"))

		_, err := repo.Hold(ctx, scheduleID, bookingID, []int{1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to hold seats")
	})
}

func TestSeatRepository_HeldAmongAndRelease(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewSeatRepository(db)
	scheduleID := uuid.New()
	bookingID := uuid.New()

	mock.ExpectQuery(`(?s)SELECT seat_number\s+FROM seats.*booking_id IS NOT NULL`).
		WithArgs(scheduleID, 2, 3, 4).
		WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow(3))

	held, err := repo.HeldAmong(ctx, scheduleID, []int{2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, held)

	mock.ExpectQuery(`(?s)UPDATE seats\s+SET booking_id = NULL.*RETURNING seat_number`).
		WithArgs(bookingID).
		WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow(7).AddRow(8))

	released, err := repo.Release(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 8}, released)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepository_ReleaseDeparted(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewSeatRepository(db)
	scheduleID := uuid.New()
	now := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)UPDATE seats s\s+SET booking_id = NULL.*FROM bookings b.*b.status = 'CONFIRMED'.*b.departure_at < \$2.*RETURNING s.seat_number`).
		WithArgs(scheduleID, now).
		WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow(1).AddRow(2))

	released, err := repo.ReleaseDeparted(ctx, scheduleID, now)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepository_ListBySchedule(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSeatRepository(db)
	scheduleID := uuid.New()
	bookingID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`(?s)SELECT schedule_id, seat_number, class_code, booking_id, booked, updated_at\s+FROM seats`).
		WithArgs(scheduleID).
		WillReturnRows(sqlmock.NewRows([]string{
			"schedule_id", "seat_number", "class_code", "booking_id", "booked", "updated_at",
		}).
			AddRow(scheduleID.String(), 1, "GEN", nil, false, now).
			AddRow(scheduleID.String(), 2, "GEN", bookingID.String(), true, now))

	seats, err := repo.ListBySchedule(context.Background(), scheduleID)
	require.NoError(t, err)
	require.Len(t, seats, 2)
	assert.False(t, seats[0].IsHeld())
	require.NotNil(t, seats[1].BookingID)
	assert.Equal(t, bookingID, *seats[1].BookingID)
	assert.True(t, seats[1].Booked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	bookingID := uuid.New()
	userID := uuid.New()
	scheduleID := uuid.New()
	now := time.Now()

	t.Run("Success With Passengers", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectQuery(`(?s)SELECT\s+id, user_id, schedule_id, status.*FROM bookings WHERE id = \$1 FOR UPDATE`).
			WithArgs(bookingID).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "user_id", "schedule_id", "status", "booked_at", "departure_at", "total_amount",
				"discount_code", "paid_amount", "refund_amount", "cancellation_reason", "cancelled_at",
				"reminder_sent_at", "version", "updated_at",
			}).AddRow(
				bookingID.String(), userID.String(), scheduleID.String(), "PENDING", now, now.Add(48*time.Hour), 200.0,
				"SAVE10", nil, nil, nil, nil,
				nil, 0, now,
			))

		mock.ExpectQuery(`(?s)FROM booking_passengers\s+WHERE booking_id = ANY\(\$1\)`).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "booking_id", "name", "age", "wheelchair", "visual_assistance",
				"hearing_assistance", "seat_number", "seat_class", "fare",
			}).
				AddRow(uuid.New().String(), bookingID.String(), "Nimal", 34, false, false, false, 11, "GEN", 100.0).
				AddRow(uuid.New().String(), bookingID.String(), "Kamala", 70, true, false, false, 12, "GEN", 100.0))

		booking, err := repo.GetByIDForUpdate(ctx, bookingID)
		require.NoError(t, err)
		require.NotNil(t, booking)
		assert.Equal(t, models.BookingStatusPending, booking.Status)
		require.NotNil(t, booking.DiscountCode)
		assert.Equal(t, "SAVE10", *booking.DiscountCode)
		assert.Nil(t, booking.PaidAmount)
		assert.Equal(t, []int{11, 12}, booking.SeatNumbers())
		assert.True(t, booking.Passengers[1].Wheelchair)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectQuery(`(?s)FROM bookings WHERE id = \$1`).
			WithArgs(bookingID).
			WillReturnError(sql.ErrNoRows)

		booking, err := repo.GetByID(ctx, bookingID)
		require.NoError(t, err)
		assert.Nil(t, booking)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_GuardedTransitions(t *testing.T) {
	ctx := context.Background()
	bookingID := uuid.New()

	t.Run("Confirm Matches Version", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		code := "SAVE10"

		mock.ExpectExec(`(?s)UPDATE bookings\s+SET status = 'CONFIRMED'.*WHERE id = \$1 AND status = 'PENDING' AND version = \$2`).
			WithArgs(bookingID, 3, 90.0, &code).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.Confirm(ctx, bookingID, 3, 90, &code)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Confirm Lost Race", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectExec(`(?s)UPDATE bookings`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.Confirm(ctx, bookingID, 3, 90, nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Cancel", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		refund := 80.0
		at := time.Now()

		mock.ExpectExec(`(?s)UPDATE bookings\s+SET status = 'CANCELLED'`).
			WithArgs(bookingID, models.BookingStatusConfirmed, 1, models.CancelledByUser, &refund, at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.Cancel(ctx, Cancellation{
			BookingID:    bookingID,
			From:         models.BookingStatusConfirmed,
			Version:      1,
			Reason:       models.CancelledByUser,
			RefundAmount: &refund,
			At:           at,
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_ShiftDeparture(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	scheduleID := uuid.New()
	since := time.Date(2026, time.March, 5, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(`(?s)UPDATE bookings\s+SET departure_at = departure_at \+ make_interval\(secs => \$2\),\s+reminder_sent_at = NULL.*status IN \('PENDING', 'CONFIRMED'\)\s+AND departure_at >= \$3`).
		WithArgs(scheduleID, float64(-52*3600), since).
		WillReturnResult(sqlmock.NewResult(0, 2))

	shifted, err := repo.ShiftDeparture(ctx, scheduleID, -52*time.Hour, since)
	require.NoError(t, err)
	assert.Equal(t, 2, shifted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDiscountRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("IncrementUsage Respects Cap", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDiscountRepository(db)

		mock.ExpectExec(`(?s)UPDATE discounts\s+SET current_uses = current_uses \+ 1.*max_uses = 0 OR current_uses < max_uses`).
			WithArgs("SAVE10").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`(?s)UPDATE discounts`).
			WithArgs("SAVE10").
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.IncrementUsage(ctx, "SAVE10")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.IncrementUsage(ctx, "SAVE10")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetByCode Not Found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDiscountRepository(db)

		mock.ExpectQuery(`(?s)FROM discounts WHERE code = \$1`).
			WithArgs("NOPE").
			WillReturnRows(sqlmock.NewRows([]string{"code"}))

		d, err := repo.GetByCode(ctx, "NOPE")
		require.NoError(t, err)
		assert.Nil(t, d)
	})

	t.Run("Create Duplicate", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewDiscountRepository(db)

		mock.ExpectExec(`(?s)INSERT INTO discounts`).
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(ctx, &models.Discount{Code: "SAVE10", Type: models.DiscountTypePromo})
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestLoyaltyRepository(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Missing Row Is Zero Balance", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewLoyaltyRepository(db)

		mock.ExpectQuery(`(?s)FROM loyalty_balances WHERE user_id = \$1`).
			WithArgs(userID).
			WillReturnError(sql.ErrNoRows)

		balance, err := repo.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, userID, balance.UserID)
		assert.Zero(t, balance.Points)
	})

	t.Run("Debit Insufficient", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewLoyaltyRepository(db)

		mock.ExpectExec(`(?s)UPDATE loyalty_balances\s+SET points = points - \$2.*points >= \$2`).
			WithArgs(userID, 50).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.Debit(ctx, userID, 50)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Credit Upserts", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewLoyaltyRepository(db)

		mock.ExpectExec(`(?s)INSERT INTO loyalty_balances.*ON CONFLICT \(user_id\) DO UPDATE`).
			WithArgs(userID, 10).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Credit(ctx, userID, 10))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCancellationPolicyRepository_Activate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCancellationPolicyRepository(db)
	policyID := uuid.New()

	mock.ExpectExec(`(?s)UPDATE cancellation_policies SET active = FALSE WHERE active AND id <> \$1`).
		WithArgs(policyID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)UPDATE cancellation_policies SET active = TRUE WHERE id = \$1`).
		WithArgs(policyID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Activate(context.Background(), policyID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_CreateDuplicateSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)

	mock.ExpectExec(`(?s)INSERT INTO payments`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Payment{
		BookingID:  uuid.New(),
		Amount:     100,
		MethodType: models.PaymentMethodCard,
		Status:     models.PaymentStatusSuccess,
	})
	assert.ErrorIs(t, err, models.ErrAlreadyConfirmed)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create Normalizes Email", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectExec(`(?s)INSERT INTO users`).
			WithArgs(sqlmock.AnyArg(), "ops@rail.lk", "Ops", "hash", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		user := &models.User{Email: "  Ops@Rail.LK ", Name: "Ops", PasswordHash: "hash"}
		require.NoError(t, repo.Create(ctx, user))
		assert.NotEqual(t, uuid.Nil, user.ID)
		assert.Equal(t, []string{models.RolePassenger}, []string(user.Roles))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetByEmail", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)
		userID := uuid.New()
		now := time.Now()

		mock.ExpectQuery(`(?s)FROM users WHERE email = \$1`).
			WithArgs("ops@rail.lk").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "email", "name", "password_hash", "roles", "created_at", "updated_at",
			}).AddRow(userID.String(), "ops@rail.lk", "Ops", "hash", []byte(`{admin,staff}`), now, now))

		user, err := repo.GetByEmail(ctx, "OPS@rail.lk")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, userID, user.ID)
		assert.True(t, user.HasRole(models.RoleStaff))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_WithinTx(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Commit", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewPostgresStore(db)

		mock.ExpectBegin()
		mock.ExpectExec(`(?s)INSERT INTO loyalty_balances`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithinTx(ctx, func(repos Repositories) error {
			return repos.Loyalty.Credit(ctx, userID, 5)
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rollback On Error", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewPostgresStore(db)
		errStop := errors.New("stop")

		mock.ExpectBegin()
		mock.ExpectExec(`(?s)INSERT INTO loyalty_balances`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		err := store.WithinTx(ctx, func(repos Repositories) error {
			if err := repos.Loyalty.Credit(ctx, userID, 5); err != nil {
				return err
			}
			return errStop
		})
		assert.ErrorIs(t, err, errStop)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Ping", func(t *testing.T) {
		db, _ := newMockDB(t)
		store := NewPostgresStore(db)
		assert.NoError(t, store.Ping(ctx))
	})
}

func TestAuditRepository(t *testing.T) {
	ctx := context.Background()
	staffID := uuid.New()

	t.Run("Create", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAuditRepository(db)

		mock.ExpectExec(`(?s)INSERT INTO audit_logs`).
			WithArgs(sqlmock.AnyArg(), &staffID, models.AuditPolicyActivated, "cancellation_policy", "p-1", "203.0.113.4", "curl/8", []byte(`{"note":"x"}`), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(ctx, &models.AuditEvent{
			UserID:     &staffID,
			Action:     models.AuditPolicyActivated,
			EntityType: "cancellation_policy",
			EntityID:   "p-1",
			IPAddress:  "203.0.113.4",
			UserAgent:  "curl/8",
			Details:    models.JSONMap{"note": "x"},
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("List Filters", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAuditRepository(db)
		now := time.Now()

		mock.ExpectQuery(`(?s)FROM audit_logs WHERE user_id = \$1 AND action = \$2 ORDER BY created_at DESC LIMIT \$3`).
			WithArgs(staffID, models.AuditLogin, 10).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "user_id", "action", "entity_type", "entity_id", "ip_address", "user_agent", "details", "created_at",
			}).AddRow(uuid.New().String(), staffID.String(), models.AuditLogin, "user", staffID.String(), "203.0.113.4", "curl/8", []byte(`{}`), now))

		events, err := repo.List(ctx, models.AuditFilter{UserID: &staffID, Action: models.AuditLogin, Limit: 10})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, models.AuditLogin, events[0].Action)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

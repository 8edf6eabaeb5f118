package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// PostgresScheduleRepository handles schedule data operations
type PostgresScheduleRepository struct {
	db Queryer
}

// NewScheduleRepository creates a new ScheduleRepository
func NewScheduleRepository(db Queryer) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{db: db}
}

const scheduleColumns = `
	id, route_id, route_name, source, destination,
	departure_time, arrival_time, recurring_days, price, capacity, status,
	created_at, updated_at`

type scheduleRow struct {
	ID            uuid.UUID             `db:"id"`
	RouteID       uuid.UUID             `db:"route_id"`
	RouteName     string                `db:"route_name"`
	Source        string                `db:"source"`
	Destination   string                `db:"destination"`
	DepartureTime time.Time             `db:"departure_time"`
	ArrivalTime   time.Time             `db:"arrival_time"`
	RecurringDays models.WeekdayArray   `db:"recurring_days"`
	Price         float64               `db:"price"`
	Capacity      int                   `db:"capacity"`
	Status        models.ScheduleStatus `db:"status"`
	CreatedAt     time.Time             `db:"created_at"`
	UpdatedAt     time.Time             `db:"updated_at"`
}

func (r scheduleRow) toModel() *models.Schedule {
	return &models.Schedule{
		ID: r.ID,
		Route: models.Route{
			ID:          r.RouteID,
			Name:        r.RouteName,
			Source:      r.Source,
			Destination: r.Destination,
		},
		DepartureTime: r.DepartureTime,
		ArrivalTime:   r.ArrivalTime,
		RecurringDays: r.RecurringDays,
		Price:         r.Price,
		Capacity:      r.Capacity,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type seatClassRow struct {
	ScheduleID uuid.UUID `db:"schedule_id"`
	models.SeatClass
}

// Create inserts a schedule and its explicit seat classes
func (r *PostgresScheduleRepository) Create(ctx context.Context, s *models.Schedule) error {
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
	if s.RecurringDays == nil {
		s.RecurringDays = models.WeekdayArray{}
	}

	query := `
		INSERT INTO schedules (
			id, route_id, route_name, source, destination,
			departure_time, arrival_time, recurring_days, price, capacity, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Route.ID, s.Route.Name, s.Route.Source, s.Route.Destination,
		s.DepartureTime, s.ArrivalTime, s.RecurringDays, s.Price, s.Capacity, s.Status,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}

	for _, c := range s.SeatClasses {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO schedule_seat_classes (
				schedule_id, code, name, first_seat, last_seat, price_multiplier, base_fare
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.ID, c.Code, c.Name, c.FirstSeat, c.LastSeat, c.PriceMultiplier, c.BaseFare,
		)
		if err != nil {
			return fmt.Errorf("failed to insert seat class %s: %w", c.Code, err)
		}
	}
	return nil
}

// GetByID retrieves a schedule with its seat classes
func (r *PostgresScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	return r.get(ctx, `SELECT`+scheduleColumns+` FROM schedules WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a schedule and locks its row
func (r *PostgresScheduleRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	return r.get(ctx, `SELECT`+scheduleColumns+` FROM schedules WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresScheduleRepository) get(ctx context.Context, query string, id uuid.UUID) (*models.Schedule, error) {
	var row scheduleRow
	err := sqlx.GetContext(ctx, r.db, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	schedule := row.toModel()
	if err := r.attachClasses(ctx, []*models.Schedule{schedule}); err != nil {
		return nil, err
	}
	return schedule, nil
}

// List returns schedules matching the filter ordered by departure
func (r *PostgresScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]*models.Schedule, error) {
	query := `SELECT` + scheduleColumns + `
		FROM schedules
		WHERE ($1 = '' OR lower(source) = lower($1))
		  AND ($2 = '' OR lower(destination) = lower($2))
		  AND ($3 OR status <> 'cancelled')
		ORDER BY departure_time`

	var rows []scheduleRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query,
		filter.Source, filter.Destination, filter.IncludeCancelled); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	schedules := make([]*models.Schedule, 0, len(rows))
	for _, row := range rows {
		s := row.toModel()
		// Date matching depends on recurrence so it is applied here
		if filter.Date != nil && !s.RunsOn(*filter.Date) {
			continue
		}
		schedules = append(schedules, s)
	}
	if err := r.attachClasses(ctx, schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

// UpdateStatus changes status and optionally the timing of a schedule
func (r *PostgresScheduleRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status models.ScheduleStatus,
	departure, arrival *time.Time,
) (bool, error) {
	query := `
		UPDATE schedules
		SET status = $2,
		    departure_time = COALESCE($3, departure_time),
		    arrival_time = COALESCE($4, arrival_time),
		    updated_at = NOW()
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, status, departure, arrival)
	if err != nil {
		return false, fmt.Errorf("failed to update schedule status: %w", err)
	}
	return rowsAffected(res) == 1, nil
}

func (r *PostgresScheduleRepository) attachClasses(ctx context.Context, schedules []*models.Schedule) error {
	if len(schedules) == 0 {
		return nil
	}
	ids := make([]string, len(schedules))
	byID := make(map[uuid.UUID]*models.Schedule, len(schedules))
	for i, s := range schedules {
		ids[i] = s.ID.String()
		byID[s.ID] = s
	}

	query := `
		SELECT schedule_id, code, name, first_seat, last_seat, price_multiplier, base_fare
		FROM schedule_seat_classes
		WHERE schedule_id = ANY($1)
		ORDER BY schedule_id, first_seat`

	var rows []seatClassRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to load seat classes: %w", err)
	}
	for _, row := range rows {
		if s, ok := byID[row.ScheduleID]; ok {
			s.SeatClasses = append(s.SeatClasses, row.SeatClass)
		}
	}
	return nil
}

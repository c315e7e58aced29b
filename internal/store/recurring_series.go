package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qzwhatnext/engine/internal/engine"
)

var ErrSeriesNotFound = errors.New("recurring series not found")

// RecurringSeries is the persisted definition of a non-accumulating habit
// series; internal/engine.Series is the pure, rebuild-facing projection of
// this row plus its existing occurrences.
type RecurringSeries struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Title    string
	Cadence  engine.RecurrenceCadence
	Weekdays []int // time.Weekday values, only meaningful for weekly cadence
	DayOfMonth int  // only meaningful for monthly cadence
	Active   bool
	AIExcluded bool

	Category        engine.Category
	EnergyIntensity engine.EnergyIntensity
	EstimatedDuration int

	CreatedAt time.Time
	UpdatedAt time.Time
}

type RecurringSeriesStore struct {
	pool *pgxpool.Pool
}

func NewRecurringSeriesStore(pool *pgxpool.Pool) *RecurringSeriesStore {
	return &RecurringSeriesStore{pool: pool}
}

func (s *RecurringSeriesStore) Create(ctx context.Context, series *RecurringSeries) (*RecurringSeries, error) {
	now := time.Now().UTC()
	series.ID = uuid.New()
	series.CreatedAt = now
	series.UpdatedAt = now
	series.Active = true

	_, err := s.pool.Exec(ctx, `
		INSERT INTO recurring_task_series (
			id, user_id, title, cadence, weekdays, day_of_month, active, ai_excluded,
			category, energy_intensity, estimated_duration_minutes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`,
		series.ID, series.UserID, series.Title, series.Cadence, series.Weekdays, series.DayOfMonth,
		series.Active, series.AIExcluded, series.Category, series.EnergyIntensity,
		series.EstimatedDuration, now,
	)
	if err != nil {
		return nil, err
	}
	return series, nil
}

func (s *RecurringSeriesStore) GetByID(ctx context.Context, userID, seriesID uuid.UUID) (*RecurringSeries, error) {
	series := &RecurringSeries{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, cadence, weekdays, day_of_month, active, ai_excluded,
		       category, energy_intensity, estimated_duration_minutes, created_at, updated_at
		FROM recurring_task_series WHERE id = $1 AND user_id = $2
	`, seriesID, userID).Scan(
		&series.ID, &series.UserID, &series.Title, &series.Cadence, &series.Weekdays, &series.DayOfMonth,
		&series.Active, &series.AIExcluded, &series.Category, &series.EnergyIntensity,
		&series.EstimatedDuration, &series.CreatedAt, &series.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSeriesNotFound
		}
		return nil, err
	}
	return series, nil
}

// ListActiveForUser returns every series a materialization pass must
// consider.
func (s *RecurringSeriesStore) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]*RecurringSeries, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, cadence, weekdays, day_of_month, active, ai_excluded,
		       category, energy_intensity, estimated_duration_minutes, created_at, updated_at
		FROM recurring_task_series WHERE user_id = $1 AND active = true
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []*RecurringSeries
	for rows.Next() {
		series := &RecurringSeries{}
		if err := rows.Scan(
			&series.ID, &series.UserID, &series.Title, &series.Cadence, &series.Weekdays, &series.DayOfMonth,
			&series.Active, &series.AIExcluded, &series.Category, &series.EnergyIntensity,
			&series.EstimatedDuration, &series.CreatedAt, &series.UpdatedAt,
		); err != nil {
			return nil, err
		}
		all = append(all, series)
	}
	return all, rows.Err()
}

func (s *RecurringSeriesStore) Deactivate(ctx context.Context, userID, seriesID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE recurring_task_series SET active = false, updated_at = $3 WHERE id = $1 AND user_id = $2
	`, seriesID, userID, time.Now().UTC())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSeriesNotFound
	}
	return nil
}

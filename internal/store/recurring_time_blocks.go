package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTimeBlockNotFound = errors.New("recurring time block not found")

// RecurringTimeBlock is a user-declared standing commitment — gym every
// Tuesday/Thursday morning, a weekly school pickup — that is never a task
// and never appears in a tier. The availability builder subtracts its
// materialized occurrences from the horizon exactly like a locked
// scheduled block, but no scheduled_blocks row and no audit event is ever
// created for it.
type RecurringTimeBlock struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Title    string
	Weekdays []int // time.Weekday values this block occupies
	StartLocalMinute int // minutes since local midnight
	EndLocalMinute   int
	Active   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type RecurringTimeBlockStore struct {
	pool *pgxpool.Pool
}

func NewRecurringTimeBlockStore(pool *pgxpool.Pool) *RecurringTimeBlockStore {
	return &RecurringTimeBlockStore{pool: pool}
}

func (s *RecurringTimeBlockStore) Create(ctx context.Context, b *RecurringTimeBlock) (*RecurringTimeBlock, error) {
	now := time.Now().UTC()
	b.ID = uuid.New()
	b.Active = true
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO recurring_time_blocks (
			id, user_id, title, weekdays, start_local_minute, end_local_minute, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, b.ID, b.UserID, b.Title, b.Weekdays, b.StartLocalMinute, b.EndLocalMinute, b.Active, now)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *RecurringTimeBlockStore) GetByID(ctx context.Context, userID, blockID uuid.UUID) (*RecurringTimeBlock, error) {
	b := &RecurringTimeBlock{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, weekdays, start_local_minute, end_local_minute, active, created_at, updated_at
		FROM recurring_time_blocks WHERE id = $1 AND user_id = $2
	`, blockID, userID).Scan(
		&b.ID, &b.UserID, &b.Title, &b.Weekdays, &b.StartLocalMinute, &b.EndLocalMinute,
		&b.Active, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTimeBlockNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *RecurringTimeBlockStore) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]*RecurringTimeBlock, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, weekdays, start_local_minute, end_local_minute, active, created_at, updated_at
		FROM recurring_time_blocks WHERE user_id = $1 AND active = true
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []*RecurringTimeBlock
	for rows.Next() {
		b := &RecurringTimeBlock{}
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.Title, &b.Weekdays, &b.StartLocalMinute, &b.EndLocalMinute,
			&b.Active, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (s *RecurringTimeBlockStore) Deactivate(ctx context.Context, userID, blockID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE recurring_time_blocks SET active = false, updated_at = $3 WHERE id = $1 AND user_id = $2
	`, blockID, userID, time.Now().UTC())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTimeBlockNotFound
	}
	return nil
}

// Occurrences expands a block's weekly pattern into concrete local
// intervals within [from, to), in the caller's supplied location.
func (b *RecurringTimeBlock) Occurrences(from, to time.Time) []struct{ Start, End time.Time } {
	var out []struct{ Start, End time.Time }
	loc := from.Location()
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	for day.Before(to) {
		for _, wd := range b.Weekdays {
			if int(day.Weekday()) == wd {
				start := day.Add(time.Duration(b.StartLocalMinute) * time.Minute)
				end := day.Add(time.Duration(b.EndLocalMinute) * time.Minute)
				if start.Before(to) && end.After(from) {
					out = append(out, struct{ Start, End time.Time }{start, end})
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

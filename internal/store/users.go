package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

// User is the owner boundary for every other entity. Identity verification
// (token minting, session auth) is an external collaborator; the engine
// only ever receives a resolved owner id plus the timezone needed to
// resolve local dates (start_after, due_by) to absolute instants.
type User struct {
	ID          uuid.UUID
	Timezone    string // IANA zone, e.g. "America/New_York"
	HorizonDays int    // one of 7/14/30
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserStore provides PostgreSQL-backed user storage
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create registers an owner. Idempotent on id: the auth collaborator calls
// this on first sight of a new user_id, so a conflict is not an error.
func (s *UserStore) Create(ctx context.Context, id uuid.UUID, timezone string) (*User, error) {
	now := time.Now().UTC()
	user := &User{ID: id, Timezone: timezone, HorizonDays: 14, CreatedAt: now, UpdatedAt: now}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, timezone, horizon_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO NOTHING
	`, user.ID, user.Timezone, user.HorizonDays, now)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	user := &User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, timezone, horizon_days, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Timezone, &user.HorizonDays, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateHorizon changes the configured rebuild horizon (7/14/30 days).
func (s *UserStore) UpdateHorizon(ctx context.Context, id uuid.UUID, horizonDays int) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE users SET horizon_days = $2, updated_at = $3 WHERE id = $1
	`, id, horizonDays, time.Now().UTC())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// isDuplicateKeyError checks if the error is a PostgreSQL unique constraint violation.
// Shared by every store in this package that upserts on a named unique key.
func isDuplicateKeyError(err error) bool {
	return err != nil && (contains(err.Error(), "23505") || contains(err.Error(), "duplicate key"))
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsAt(s, substr, 0))
}

func containsAt(s, substr string, start int) bool {
	for i := start; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool
func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate runs database migrations
func (db *DB) Migrate(ctx context.Context) error {
	// Create migrations table if not exists
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Run migrations
	for _, m := range migrations {
		if err := db.runMigration(ctx, m); err != nil {
			return err
		}
	}

	return nil
}

func (db *DB) runMigration(ctx context.Context, m migration) error {
	// Check if already applied
	var exists bool
	err := db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
		m.version,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check migration %d: %w", m.version, err)
	}

	if exists {
		return nil
	}

	// Run migration
	_, err = db.Pool.Exec(ctx, m.sql)
	if err != nil {
		return fmt.Errorf("failed to run migration %d: %w", m.version, err)
	}

	// Record migration
	_, err = db.Pool.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)",
		m.version,
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.version, err)
	}

	return nil
}

type migration struct {
	version int
	sql     string
}

// Consolidated schema as of 2026-03-01
var migrations = []migration{
	{
		version: 1,
		sql: `
			-- =============================================================================
			-- USERS
			-- =============================================================================

			CREATE TABLE users (
				id UUID PRIMARY KEY,
				timezone TEXT NOT NULL,
				horizon_days INT NOT NULL DEFAULT 14,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT valid_horizon CHECK (horizon_days IN (7, 14, 30))
			);

			-- =============================================================================
			-- TASKS
			-- =============================================================================

			CREATE TABLE tasks (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				notes TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'open',
				deadline TIMESTAMPTZ,
				start_after TIMESTAMPTZ,
				due_by TIMESTAMPTZ,
				estimated_duration_minutes INT NOT NULL DEFAULT 30,
				duration_confidence FLOAT NOT NULL DEFAULT 0,
				category TEXT NOT NULL DEFAULT 'unknown',
				energy_intensity TEXT NOT NULL DEFAULT 'medium',
				risk_score FLOAT NOT NULL DEFAULT 0,
				impact_score FLOAT NOT NULL DEFAULT 0,
				dependencies UUID[] NOT NULL DEFAULT '{}',
				flex_earliest_start TIMESTAMPTZ,
				flex_latest_end TIMESTAMPTZ,
				ai_excluded BOOLEAN NOT NULL DEFAULT false,
				manual_priority_locked BOOLEAN NOT NULL DEFAULT false,
				user_locked BOOLEAN NOT NULL DEFAULT false,
				manually_scheduled BOOLEAN NOT NULL DEFAULT false,
				tier INT NOT NULL DEFAULT 0,
				prior_tier INT NOT NULL DEFAULT 0,
				source_type TEXT NOT NULL DEFAULT 'manual',
				source_id TEXT,
				recurrence_series_id UUID,
				recurrence_occurrence_start TIMESTAMPTZ,
				title_is_auto_generated BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMPTZ,
				CONSTRAINT valid_status CHECK (status IN ('open', 'completed', 'missed'))
			);

			CREATE INDEX idx_tasks_user_open ON tasks(user_id) WHERE status = 'open' AND deleted_at IS NULL;
			CREATE INDEX idx_tasks_series ON tasks(recurrence_series_id) WHERE recurrence_series_id IS NOT NULL;
			CREATE UNIQUE INDEX idx_tasks_dedupe ON tasks(
				user_id, source_type, source_id, recurrence_series_id, recurrence_occurrence_start
			) WHERE deleted_at IS NULL;

			-- =============================================================================
			-- RECURRING TASK SERIES
			-- =============================================================================

			CREATE TABLE recurring_task_series (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				cadence TEXT NOT NULL,
				weekdays INT[] NOT NULL DEFAULT '{}',
				day_of_month INT NOT NULL DEFAULT 0,
				active BOOLEAN NOT NULL DEFAULT true,
				ai_excluded BOOLEAN NOT NULL DEFAULT false,
				category TEXT NOT NULL DEFAULT 'unknown',
				energy_intensity TEXT NOT NULL DEFAULT 'medium',
				estimated_duration_minutes INT NOT NULL DEFAULT 30,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT valid_cadence CHECK (cadence IN ('daily', 'weekly', 'monthly'))
			);

			ALTER TABLE tasks ADD CONSTRAINT fk_tasks_series
				FOREIGN KEY (recurrence_series_id) REFERENCES recurring_task_series(id) ON DELETE CASCADE;

			CREATE INDEX idx_recurring_series_user_active ON recurring_task_series(user_id) WHERE active = true;

			-- =============================================================================
			-- RECURRING TIME BLOCKS
			-- =============================================================================

			CREATE TABLE recurring_time_blocks (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				weekdays INT[] NOT NULL DEFAULT '{}',
				start_local_minute INT NOT NULL,
				end_local_minute INT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT valid_block_bounds CHECK (end_local_minute > start_local_minute)
			);

			CREATE INDEX idx_time_blocks_user_active ON recurring_time_blocks(user_id) WHERE active = true;

			-- =============================================================================
			-- SCHEDULED BLOCKS
			-- =============================================================================

			CREATE TABLE scheduled_blocks (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				task_id UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				start_time TIMESTAMPTZ NOT NULL,
				end_time TIMESTAMPTZ NOT NULL,
				locked BOOLEAN NOT NULL DEFAULT false,
				scheduled_by TEXT NOT NULL DEFAULT 'system',
				calendar_event_id TEXT,
				calendar_id UUID,
				etag TEXT,
				sync_state TEXT NOT NULL DEFAULT 'unsynced',
				pending_delete BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT valid_block_span CHECK (end_time > start_time)
			);

			CREATE INDEX idx_scheduled_blocks_user_window ON scheduled_blocks(user_id, start_time, end_time);
			CREATE INDEX idx_scheduled_blocks_task ON scheduled_blocks(task_id);
			CREATE UNIQUE INDEX idx_scheduled_blocks_calendar_event ON scheduled_blocks(calendar_id, calendar_event_id)
				WHERE calendar_event_id IS NOT NULL;

			-- =============================================================================
			-- AUDIT EVENTS (append-only)
			-- =============================================================================

			CREATE TABLE audit_events (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				task_id UUID REFERENCES tasks(id) ON DELETE SET NULL,
				event_type TEXT NOT NULL,
				reasons TEXT[] NOT NULL DEFAULT '{}',
				detail TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_audit_events_user_time ON audit_events(user_id, created_at DESC);
			CREATE INDEX idx_audit_events_task ON audit_events(task_id) WHERE task_id IS NOT NULL;

			-- =============================================================================
			-- AUTOMATION TOKENS
			-- =============================================================================

			CREATE TABLE automation_tokens (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				token_hash VARCHAR(64) NOT NULL,
				token_prefix VARCHAR(12) NOT NULL,
				last_used_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE(user_id, name)
			);

			CREATE INDEX idx_automation_tokens_hash ON automation_tokens(token_hash);
			CREATE INDEX idx_automation_tokens_user_id ON automation_tokens(user_id);

			-- =============================================================================
			-- REBUILD JOBS (coalescing trigger queue)
			-- =============================================================================

			CREATE TABLE rebuild_jobs (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				status TEXT NOT NULL DEFAULT 'pending',
				trigger TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				claimed_at TIMESTAMPTZ,
				completed_at TIMESTAMPTZ,
				error_message TEXT,
				claimed_by TEXT
			);

			CREATE INDEX idx_rebuild_jobs_pending ON rebuild_jobs(user_id, created_at ASC) WHERE status = 'pending';
			CREATE INDEX idx_rebuild_jobs_completed ON rebuild_jobs(completed_at) WHERE status IN ('completed', 'failed');

			-- =============================================================================
			-- CALENDAR CONNECTIONS / CALENDARS / EVENTS: read boundary for availability,
			-- write boundary for the managed calendar synchronizer.
			-- =============================================================================

			CREATE TABLE calendar_connections (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				provider TEXT NOT NULL DEFAULT 'google',
				credentials_encrypted BYTEA NOT NULL,
				sync_token TEXT,
				last_synced_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE(user_id, provider)
			);

			CREATE INDEX idx_calendar_connections_user_id ON calendar_connections(user_id);

			CREATE TABLE calendars (
				id UUID PRIMARY KEY,
				connection_id UUID NOT NULL REFERENCES calendar_connections(id) ON DELETE CASCADE,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				external_id TEXT NOT NULL,
				name TEXT NOT NULL,
				is_primary BOOLEAN NOT NULL DEFAULT false,
				is_selected BOOLEAN NOT NULL DEFAULT false,
				is_managed BOOLEAN NOT NULL DEFAULT false,
				sync_token TEXT,
				last_synced_at TIMESTAMPTZ,
				min_synced_date DATE,
				max_synced_date DATE,
				sync_failure_count INT NOT NULL DEFAULT 0,
				needs_reauth BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE(connection_id, external_id)
			);

			CREATE INDEX idx_calendars_connection_id ON calendars(connection_id);
			CREATE INDEX idx_calendars_user_id ON calendars(user_id);
			CREATE INDEX idx_calendars_background_sync ON calendars(last_synced_at)
				WHERE needs_reauth = false AND sync_failure_count < 3;

			ALTER TABLE scheduled_blocks ADD CONSTRAINT fk_scheduled_blocks_calendar
				FOREIGN KEY (calendar_id) REFERENCES calendars(id) ON DELETE SET NULL;

			CREATE TABLE calendar_events (
				id UUID PRIMARY KEY,
				connection_id UUID NOT NULL REFERENCES calendar_connections(id) ON DELETE CASCADE,
				calendar_id UUID REFERENCES calendars(id) ON DELETE CASCADE,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				external_id TEXT NOT NULL,
				title TEXT NOT NULL,
				description TEXT,
				start_time TIMESTAMPTZ NOT NULL,
				end_time TIMESTAMPTZ NOT NULL,
				is_all_day BOOLEAN NOT NULL DEFAULT false,
				attendees JSONB DEFAULT '[]',
				is_recurring BOOLEAN NOT NULL DEFAULT false,
				response_status TEXT,
				transparency TEXT,
				qzwhatnext_block_id UUID,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE(connection_id, external_id)
			);

			CREATE INDEX idx_calendar_events_user_id ON calendar_events(user_id);
			CREATE INDEX idx_calendar_events_calendar_id ON calendar_events(calendar_id);
			CREATE INDEX idx_calendar_events_start_time ON calendar_events(start_time);
			CREATE INDEX idx_calendar_events_managed ON calendar_events(qzwhatnext_block_id)
				WHERE qzwhatnext_block_id IS NOT NULL;

			-- =============================================================================
			-- REBUILD JOBS: per-user pending/running lookup index
			-- =============================================================================

			CREATE INDEX idx_rebuild_jobs_user_status ON rebuild_jobs(user_id, status);
		`,
	},
}

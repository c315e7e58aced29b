package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRebuildJobNotFound = errors.New("rebuild job not found")

// RebuildJobStatus tracks a queued per-user rebuild request.
type RebuildJobStatus string

const (
	RebuildJobPending   RebuildJobStatus = "pending"
	RebuildJobRunning   RebuildJobStatus = "running"
	RebuildJobCompleted RebuildJobStatus = "completed"
	RebuildJobFailed    RebuildJobStatus = "failed"
)

// RebuildTrigger records what asked for the rebuild, for audit purposes
// only; it never changes how the rebuild behaves.
type RebuildTrigger string

const (
	TriggerTaskWrite     RebuildTrigger = "task_write"
	TriggerCalendarSync  RebuildTrigger = "calendar_sync"
	TriggerScheduledTick RebuildTrigger = "scheduled_tick"
	TriggerManual        RebuildTrigger = "manual"
)

// RebuildJob is one queued request to rebuild a user's schedule. The queue
// coalesces: while a user already has a pending or running job, further
// triggers are folded into it rather than creating new rows, so an
// in-flight rebuild is always followed by at most one more.
type RebuildJob struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Status      RebuildJobStatus
	Trigger     RebuildTrigger
	CreatedAt   time.Time
	ClaimedAt   *time.Time
	CompletedAt *time.Time
	ErrorMessage *string
	ClaimedBy   *string
}

// RebuildJobStore provides PostgreSQL-backed rebuild trigger queue storage.
type RebuildJobStore struct {
	pool *pgxpool.Pool
}

func NewRebuildJobStore(pool *pgxpool.Pool) *RebuildJobStore {
	return &RebuildJobStore{pool: pool}
}

// Enqueue implements trigger coalescing: if the user
// already has a pending job, this is a no-op; if the user has a job
// currently running, this creates exactly one pending follow-up unless one
// already exists. Either way the caller never ends up with more than one
// extra rebuild queued regardless of how many triggers fired meanwhile.
func (s *RebuildJobStore) Enqueue(ctx context.Context, userID uuid.UUID, trigger RebuildTrigger) (*RebuildJob, error) {
	var existing int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM rebuild_jobs WHERE user_id = $1 AND status = 'pending'
	`, userID).Scan(&existing)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, nil
	}

	job := &RebuildJob{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    RebuildJobPending,
		Trigger:   trigger,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rebuild_jobs (id, user_id, status, trigger, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, job.ID, job.UserID, job.Status, job.Trigger, job.CreatedAt)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimNextForUser atomically claims the oldest pending job for a specific
// user, serializing rebuilds per user via row-level locking.
func (s *RebuildJobStore) ClaimNextForUser(ctx context.Context, userID uuid.UUID, workerID string) (*RebuildJob, error) {
	now := time.Now().UTC()
	job := &RebuildJob{}
	err := s.pool.QueryRow(ctx, `
		UPDATE rebuild_jobs
		SET status = 'running', claimed_at = $2, claimed_by = $3
		WHERE id = (
			SELECT id FROM rebuild_jobs
			WHERE user_id = $1 AND status = 'pending'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, status, trigger, created_at, claimed_at, completed_at, error_message, claimed_by
	`, userID, now, workerID).Scan(
		&job.ID, &job.UserID, &job.Status, &job.Trigger, &job.CreatedAt,
		&job.ClaimedAt, &job.CompletedAt, &job.ErrorMessage, &job.ClaimedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

func (s *RebuildJobStore) MarkCompleted(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE rebuild_jobs SET status = 'completed', completed_at = $2 WHERE id = $1
	`, jobID, time.Now().UTC())
	return err
}

func (s *RebuildJobStore) MarkFailed(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE rebuild_jobs SET status = 'failed', completed_at = $2, error_message = $3 WHERE id = $1
	`, jobID, time.Now().UTC(), errMsg)
	return err
}

// HasPendingOrRunning reports whether a rebuild is already queued or in
// flight for this user.
func (s *RebuildJobStore) HasPendingOrRunning(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM rebuild_jobs WHERE user_id = $1 AND status IN ('pending', 'running')
	`, userID).Scan(&count)
	return count > 0, err
}

// ListUsersWithPendingJobs returns the distinct set of users that currently
// have a pending job, oldest job first. The worker uses this to discover
// which per-user locks to attempt; the actual claim still goes through
// ClaimNextForUser so two workers never run the same user concurrently.
func (s *RebuildJobStore) ListUsersWithPendingJobs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM (
			SELECT DISTINCT ON (user_id) user_id, created_at
			FROM rebuild_jobs
			WHERE status = 'pending'
			ORDER BY user_id, created_at ASC
		) oldest
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *RebuildJobStore) DeleteOldCompletedJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.pool.Exec(ctx, `
		DELETE FROM rebuild_jobs WHERE status IN ('completed', 'failed') AND completed_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrScheduledBlockNotFound = errors.New("scheduled block not found")

// SyncState implements the managed-calendar state machine: a block
// starts Unsynced, becomes Synced once a calendar event exists for it, and
// moves to LockedSynced the moment the user edits the event's time on the
// calendar side directly — from there the engine treats the block as
// user-pinned and never repositions it on a later rebuild.
type SyncState string

const (
	SyncUnsynced         SyncState = "unsynced"
	SyncSynced           SyncState = "synced"
	SyncUserEditedTitle  SyncState = "user_edited_title"
	SyncLockedSynced     SyncState = "locked_synced"

	// SyncConflict marks a block whose calendar etag changed in a way the
	// reconciler can't attribute to either a time move or a title edit —
	// the SyncConflict error kind. The block is left exactly as it was
	// (no link update) so the next sync pass sees the same drift and
	// doesn't silently mark it resolved.
	SyncConflict SyncState = "sync_conflict"
)

// ScheduledBlock is the persisted placer output for one task occurrence,
// plus everything the managed calendar synchronizer needs to reconcile it.
type ScheduledBlock struct {
	ID     uuid.UUID
	UserID uuid.UUID
	TaskID uuid.UUID

	Start time.Time
	End   time.Time

	Locked      bool
	ScheduledBy string // "system" or "user"

	CalendarEventID *string
	CalendarID      *uuid.UUID
	ETag            *string
	SyncState       SyncState

	// PendingDelete marks a block the rebuild no longer wants but that
	// still owns a managed calendar event: the synchronizer must delete
	// the external event before the row itself can go away, so
	// ReplaceForUser leaves these in place instead of dropping them.
	PendingDelete bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

type ScheduledBlockStore struct {
	pool *pgxpool.Pool
}

func NewScheduledBlockStore(pool *pgxpool.Pool) *ScheduledBlockStore {
	return &ScheduledBlockStore{pool: pool}
}

// ReplaceForUser atomically swaps every non-locked scheduled block for a
// user with the placer's fresh output. Locked blocks (user-moved-in-time or
// otherwise pinned) are left untouched — the rebuild never overwrites them.
// A superseded block that never got a calendar event is deleted outright;
// one that does is flagged pending_delete instead, so the synchronizer can
// still find its external event ID and clean it up before the row is gone.
func (s *ScheduledBlockStore) ReplaceForUser(ctx context.Context, userID uuid.UUID, blocks []*ScheduledBlock) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM scheduled_blocks
		WHERE user_id = $1 AND locked = false AND calendar_event_id IS NULL
	`, userID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE scheduled_blocks
		SET pending_delete = true, updated_at = $2
		WHERE user_id = $1 AND locked = false AND calendar_event_id IS NOT NULL AND pending_delete = false
	`, userID, time.Now().UTC()); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, b := range blocks {
		b.ID = uuid.New()
		b.UserID = userID
		b.CreatedAt = now
		b.UpdatedAt = now
		if b.SyncState == "" {
			b.SyncState = SyncUnsynced
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO scheduled_blocks (
				id, user_id, task_id, start_time, end_time, locked, scheduled_by,
				calendar_event_id, calendar_id, etag, sync_state, pending_delete, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false, $12, $12)
		`,
			b.ID, b.UserID, b.TaskID, b.Start, b.End, b.Locked, b.ScheduledBy,
			b.CalendarEventID, b.CalendarID, b.ETag, b.SyncState, now,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *ScheduledBlockStore) ListForUser(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*ScheduledBlock, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, task_id, start_time, end_time, locked, scheduled_by,
		       calendar_event_id, calendar_id, etag, sync_state, pending_delete, created_at, updated_at
		FROM scheduled_blocks
		WHERE user_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanScheduledBlocks(rows)
}

func (s *ScheduledBlockStore) GetByCalendarEventID(ctx context.Context, calendarID uuid.UUID, eventID string) (*ScheduledBlock, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, task_id, start_time, end_time, locked, scheduled_by,
		       calendar_event_id, calendar_id, etag, sync_state, pending_delete, created_at, updated_at
		FROM scheduled_blocks WHERE calendar_id = $1 AND calendar_event_id = $2
	`, calendarID, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blocks, err := scanScheduledBlocks(rows)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, ErrScheduledBlockNotFound
	}
	return blocks[0], nil
}

// SetCalendarLink records the managed event identity once the synchronizer
// has created or matched the calendar event for this block.
func (s *ScheduledBlockStore) SetCalendarLink(ctx context.Context, blockID uuid.UUID, calendarID uuid.UUID, eventID, etag string, state SyncState) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scheduled_blocks
		SET calendar_id = $2, calendar_event_id = $3, etag = $4, sync_state = $5, updated_at = $6
		WHERE id = $1
	`, blockID, calendarID, eventID, etag, state, time.Now().UTC())
	return err
}

// FlagSyncConflict marks a block as conflicted without touching its
// stored calendar link — the sync is skipped this pass, not resolved, so
// the next reconcile still sees the drift that triggered the flag.
func (s *ScheduledBlockStore) FlagSyncConflict(ctx context.Context, blockID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scheduled_blocks SET sync_state = $2, updated_at = $3 WHERE id = $1
	`, blockID, SyncConflict, time.Now().UTC())
	return err
}

// Lock pins a block against future rebuild overwrites — set when the user
// moves the calendar event's time directly (LockedSynced) or schedules a
// task manually.
func (s *ScheduledBlockStore) Lock(ctx context.Context, blockID uuid.UUID, start, end time.Time, state SyncState) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scheduled_blocks SET locked = true, start_time = $2, end_time = $3, sync_state = $4, updated_at = $5
		WHERE id = $1
	`, blockID, start, end, state, time.Now().UTC())
	return err
}

func (s *ScheduledBlockStore) Unlock(ctx context.Context, blockID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scheduled_blocks SET locked = false, sync_state = $2, updated_at = $3 WHERE id = $1
	`, blockID, SyncSynced, time.Now().UTC())
	return err
}

func (s *ScheduledBlockStore) Delete(ctx context.Context, blockID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM scheduled_blocks WHERE id = $1`, blockID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrScheduledBlockNotFound
	}
	return nil
}

func scanScheduledBlocks(rows pgx.Rows) ([]*ScheduledBlock, error) {
	var blocks []*ScheduledBlock
	for rows.Next() {
		b := &ScheduledBlock{}
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.TaskID, &b.Start, &b.End, &b.Locked, &b.ScheduledBy,
			&b.CalendarEventID, &b.CalendarID, &b.ETag, &b.SyncState, &b.PendingDelete,
			&b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// ListPendingDeleteForConnection returns blocks flagged pending_delete whose
// calendar event lives on the given connection's calendars — the
// synchronizer's cleanup queue.
func (s *ScheduledBlockStore) ListPendingDeleteForConnection(ctx context.Context, connectionID uuid.UUID) ([]*ScheduledBlock, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.id, b.user_id, b.task_id, b.start_time, b.end_time, b.locked, b.scheduled_by,
		       b.calendar_event_id, b.calendar_id, b.etag, b.sync_state, b.pending_delete,
		       b.created_at, b.updated_at
		FROM scheduled_blocks b
		JOIN calendars c ON c.id = b.calendar_id
		WHERE b.pending_delete = true AND c.connection_id = $1
	`, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanScheduledBlocks(rows)
}

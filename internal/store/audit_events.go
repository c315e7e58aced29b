package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEventType enumerates the closed set of events the pipeline emits.
// Append-only: nothing in this package ever updates or deletes a row here.
type AuditEventType string

const (
	EventTaskImported      AuditEventType = "task_imported"
	EventTaskUpdated       AuditEventType = "task_updated"
	EventScheduleBuilt     AuditEventType = "schedule_built"
	EventScheduleUpdated   AuditEventType = "schedule_updated"
	EventRescheduled       AuditEventType = "rescheduled"
	EventCompleted         AuditEventType = "completed"
	EventOverflowFlagged   AuditEventType = "overflow_flagged"
	EventTierChanged       AuditEventType = "tier_changed"
	EventTierChangeStaged  AuditEventType = "tier_change_staged"
	EventOccurrenceMissed  AuditEventType = "occurrence_missed"
	EventInferenceApplied  AuditEventType = "inference_applied"
	EventInferenceFailed   AuditEventType = "inference_failed"
	EventTaskExcluded      AuditEventType = "task_excluded"
	EventCalendarEventCreated AuditEventType = "calendar_event_created"
	EventCalendarEditImported AuditEventType = "calendar_edit_imported"
	EventCalendarBlockLocked  AuditEventType = "calendar_block_locked"
	EventCalendarEventDeleted AuditEventType = "calendar_event_deleted"
	EventSyncConflict         AuditEventType = "sync_conflict"
)

// AuditEvent is one immutable record of a pipeline decision, reason tokens
// attached for every event a user might ask "why did this happen".
type AuditEvent struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TaskID    *uuid.UUID
	Type      AuditEventType
	Reasons   []string
	Detail    string
	CreatedAt time.Time
}

type AuditEventStore struct {
	pool *pgxpool.Pool
}

func NewAuditEventStore(pool *pgxpool.Pool) *AuditEventStore {
	return &AuditEventStore{pool: pool}
}

// Emit appends a single audit record. There is deliberately no Update — an
// audit trail that could be rewritten after the fact isn't one.
func (s *AuditEventStore) Emit(ctx context.Context, ev *AuditEvent) error {
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_events (id, user_id, task_id, event_type, reasons, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, ev.UserID, ev.TaskID, ev.Type, ev.Reasons, ev.Detail, ev.CreatedAt)
	return err
}

// EmitBatch appends every event from one rebuild in a single round trip.
func (s *AuditEventStore) EmitBatch(ctx context.Context, events []*AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, ev := range events {
		ev.ID = uuid.New()
		ev.CreatedAt = now
		if _, err := tx.Exec(ctx, `
			INSERT INTO audit_events (id, user_id, task_id, event_type, reasons, detail, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, ev.ID, ev.UserID, ev.TaskID, ev.Type, ev.Reasons, ev.Detail, ev.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListForTask returns the full decision history for one task, most recent
// first — the backing query for "why is this scheduled here".
func (s *AuditEventStore) ListForTask(ctx context.Context, userID, taskID uuid.UUID, limit int) ([]*AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, task_id, event_type, reasons, detail, created_at
		FROM audit_events WHERE user_id = $1 AND task_id = $2
		ORDER BY created_at DESC LIMIT $3
	`, userID, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEvents(rows)
}

func (s *AuditEventStore) ListForUser(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, task_id, event_type, reasons, detail, created_at
		FROM audit_events WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC LIMIT $3
	`, userID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEvents(rows)
}

func scanAuditEvents(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]*AuditEvent, error) {
	var events []*AuditEvent
	for rows.Next() {
		ev := &AuditEvent{}
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.TaskID, &ev.Type, &ev.Reasons, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrCalendarEventNotFound = errors.New("calendar event not found")

// CalendarEvent is a cached copy of one event read from a connected
// calendar. The availability builder treats a row as busy unless Busy()
// says otherwise (transparent, or a declined invite); QZBlockID links a row back to the
// ScheduledBlock that created it, so the synchronizer can tell its own
// managed events apart from everything else on the calendar.
type CalendarEvent struct {
	ID             uuid.UUID
	ConnectionID   uuid.UUID
	CalendarID     *uuid.UUID
	UserID         uuid.UUID
	ExternalID     string
	Title          string
	Description    *string
	StartTime      time.Time
	EndTime        time.Time
	IsAllDay       bool
	Attendees      []string
	IsRecurring    bool
	ResponseStatus *string
	Transparency   *string
	QZBlockID      *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Busy reports whether this event should count against availability.
// A declined invite or an event explicitly marked transparent doesn't
// block scheduling even though it's still on the calendar.
func (e *CalendarEvent) Busy() bool {
	if e.ResponseStatus != nil && *e.ResponseStatus == "declined" {
		return false
	}
	if e.Transparency != nil && *e.Transparency == "transparent" {
		return false
	}
	return true
}

// CalendarEventStore provides PostgreSQL-backed event storage
type CalendarEventStore struct {
	pool *pgxpool.Pool
}

// NewCalendarEventStore creates a new store
func NewCalendarEventStore(pool *pgxpool.Pool) *CalendarEventStore {
	return &CalendarEventStore{pool: pool}
}

// Upsert creates or updates an event by external_id
func (s *CalendarEventStore) Upsert(ctx context.Context, event *CalendarEvent) (*CalendarEvent, error) {
	attendeesJSON, _ := json.Marshal(event.Attendees)
	now := time.Now().UTC()
	newID := uuid.New()

	err := s.pool.QueryRow(ctx, `
		INSERT INTO calendar_events (
			id, connection_id, calendar_id, user_id, external_id, title, description,
			start_time, end_time, is_all_day, attendees, is_recurring, response_status,
			transparency, qzwhatnext_block_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (connection_id, external_id) DO UPDATE SET
			calendar_id = EXCLUDED.calendar_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			is_all_day = EXCLUDED.is_all_day,
			attendees = EXCLUDED.attendees,
			is_recurring = EXCLUDED.is_recurring,
			response_status = EXCLUDED.response_status,
			transparency = EXCLUDED.transparency,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`,
		newID, event.ConnectionID, event.CalendarID, event.UserID, event.ExternalID,
		event.Title, event.Description, event.StartTime, event.EndTime, event.IsAllDay,
		attendeesJSON, event.IsRecurring, event.ResponseStatus,
		event.Transparency, event.QZBlockID, now, now,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)

	if err != nil {
		return nil, err
	}

	return event, nil
}

// DeleteExceptByCalendar removes events not present in the given external
// IDs for a calendar — an outright delete since nothing downstream needs
// to distinguish "gone from the source" from "never seen".
func (s *CalendarEventStore) DeleteExceptByCalendar(ctx context.Context, calendarID uuid.UUID, externalIDs []string) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM calendar_events
		WHERE calendar_id = $1
		AND external_id != ALL($2)
	`, calendarID, externalIDs)

	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}

// DeleteByExternalID removes a single event, used when an incremental
// sync reports a cancellation.
func (s *CalendarEventStore) DeleteByExternalID(ctx context.Context, connectionID uuid.UUID, externalID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM calendar_events WHERE connection_id = $1 AND external_id = $2
	`, connectionID, externalID)
	return err
}

// GetExternalIDsForConnection returns all external IDs for a connection
func (s *CalendarEventStore) GetExternalIDsForConnection(ctx context.Context, connectionID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT external_id FROM calendar_events WHERE connection_id = $1
	`, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListInRange returns every cached event overlapping [start, end) for a
// user, across all of their connected calendars — the raw feed the
// availability builder turns into busy intervals.
func (s *CalendarEventStore) ListInRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*CalendarEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, connection_id, calendar_id, user_id, external_id, title, description,
		       start_time, end_time, is_all_day, attendees, is_recurring, response_status,
		       transparency, qzwhatnext_block_id, created_at, updated_at
		FROM calendar_events
		WHERE user_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time ASC
	`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCalendarEvents(rows)
}

// List returns events for a user with optional filters, newest-window
// first — the backing query for a debug/inspection surface rather than
// the scheduling pipeline itself, which uses ListInRange.
func (s *CalendarEventStore) List(ctx context.Context, userID uuid.UUID, startDate, endDate *time.Time, connectionID *uuid.UUID) ([]*CalendarEvent, error) {
	query := `
		SELECT id, connection_id, calendar_id, user_id, external_id, title, description,
		       start_time, end_time, is_all_day, attendees, is_recurring, response_status,
		       transparency, qzwhatnext_block_id, created_at, updated_at
		FROM calendar_events
		WHERE user_id = $1
	`
	args := []interface{}{userID}
	argNum := 2

	if startDate != nil {
		query += fmt.Sprintf(" AND start_time >= $%d", argNum)
		args = append(args, *startDate)
		argNum++
	}
	if endDate != nil {
		nextDay := endDate.AddDate(0, 0, 1)
		query += fmt.Sprintf(" AND start_time < $%d", argNum)
		args = append(args, nextDay)
		argNum++
	}
	if connectionID != nil {
		query += fmt.Sprintf(" AND connection_id = $%d", argNum)
		args = append(args, *connectionID)
	}

	query += " ORDER BY start_time ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCalendarEvents(rows)
}

// GetByID retrieves an event by ID
func (s *CalendarEventStore) GetByID(ctx context.Context, userID, eventID uuid.UUID) (*CalendarEvent, error) {
	e := &CalendarEvent{}
	var attendeesJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, connection_id, calendar_id, user_id, external_id, title, description,
		       start_time, end_time, is_all_day, attendees, is_recurring, response_status,
		       transparency, qzwhatnext_block_id, created_at, updated_at
		FROM calendar_events
		WHERE id = $1 AND user_id = $2
	`, eventID, userID).Scan(
		&e.ID, &e.ConnectionID, &e.CalendarID, &e.UserID, &e.ExternalID, &e.Title, &e.Description,
		&e.StartTime, &e.EndTime, &e.IsAllDay, &attendeesJSON, &e.IsRecurring, &e.ResponseStatus,
		&e.Transparency, &e.QZBlockID, &e.CreatedAt, &e.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCalendarEventNotFound
		}
		return nil, err
	}

	json.Unmarshal(attendeesJSON, &e.Attendees)
	return e, nil
}

// GetByExternalID retrieves an event by its source calendar ID — used by
// the synchronizer to detect whether a managed event was edited by hand.
func (s *CalendarEventStore) GetByExternalID(ctx context.Context, connectionID uuid.UUID, externalID string) (*CalendarEvent, error) {
	e := &CalendarEvent{}
	var attendeesJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, connection_id, calendar_id, user_id, external_id, title, description,
		       start_time, end_time, is_all_day, attendees, is_recurring, response_status,
		       transparency, qzwhatnext_block_id, created_at, updated_at
		FROM calendar_events
		WHERE connection_id = $1 AND external_id = $2
	`, connectionID, externalID).Scan(
		&e.ID, &e.ConnectionID, &e.CalendarID, &e.UserID, &e.ExternalID, &e.Title, &e.Description,
		&e.StartTime, &e.EndTime, &e.IsAllDay, &attendeesJSON, &e.IsRecurring, &e.ResponseStatus,
		&e.Transparency, &e.QZBlockID, &e.CreatedAt, &e.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCalendarEventNotFound
		}
		return nil, err
	}

	json.Unmarshal(attendeesJSON, &e.Attendees)
	return e, nil
}

func scanCalendarEvents(rows pgx.Rows) ([]*CalendarEvent, error) {
	var events []*CalendarEvent
	for rows.Next() {
		e := &CalendarEvent{}
		var attendeesJSON []byte

		err := rows.Scan(
			&e.ID, &e.ConnectionID, &e.CalendarID, &e.UserID, &e.ExternalID, &e.Title, &e.Description,
			&e.StartTime, &e.EndTime, &e.IsAllDay, &attendeesJSON, &e.IsRecurring, &e.ResponseStatus,
			&e.Transparency, &e.QZBlockID, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		json.Unmarshal(attendeesJSON, &e.Attendees)
		events = append(events, e)
	}

	return events, rows.Err()
}

// Package calsync is the Managed Calendar Synchronizer: the background
// process that reconciles a user's scheduled blocks against their
// connected Google Calendar, in both directions. Outbound, it publishes
// blocks the engine placed as calendar events and detects when the user
// has edited or moved one by hand. Inbound, it keeps the cached event
// feed internal/rebuild's availability builder reads from warm.
//
// It never touches the engine's scheduling decisions directly — a
// detected edit is recorded on the block/task as state for the next
// rebuild to pick up, the same separation internal/rebuild keeps from
// internal/engine.
package calsync

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qzwhatnext/engine/internal/calendar"
	"github.com/qzwhatnext/engine/internal/store"
)

const (
	// outboundWindow bounds how far ahead ReplaceForUser's output is
	// scanned for blocks that still need a calendar event. It's wider
	// than the engine's own scheduling horizon so a block never goes
	// unsynced merely because the synchronizer's window is tighter.
	outboundWindow = 45 * 24 * time.Hour

	// initialLookback/initialLookahead bound a calendar's first full
	// event fetch, before it has a sync token to page incrementally.
	initialLookback  = 7 * 24 * time.Hour
	initialLookahead = 60 * 24 * time.Hour

	// refreshSkew refreshes an OAuth token this long before it actually
	// expires, so a slow API call never races the token's real deadline.
	refreshSkew = 5 * time.Minute
)

// Synchronizer wires the calendar.Client boundary to the stores that hold
// a user's scheduled blocks, cached events, and calendar connections.
type Synchronizer struct {
	pool *pgxpool.Pool

	client      calendar.Client
	connections *store.CalendarConnectionStore
	calendars   *store.CalendarStore
	blocks      *store.ScheduledBlockStore
	events      *store.CalendarEventStore
	tasks       *store.TaskStore
	audit       *store.AuditEventStore
}

func NewSynchronizer(
	pool *pgxpool.Pool,
	client calendar.Client,
	connections *store.CalendarConnectionStore,
	calendars *store.CalendarStore,
	blocks *store.ScheduledBlockStore,
	events *store.CalendarEventStore,
	tasks *store.TaskStore,
	audit *store.AuditEventStore,
) *Synchronizer {
	return &Synchronizer{
		pool: pool, client: client,
		connections: connections, calendars: calendars, blocks: blocks,
		events: events, tasks: tasks, audit: audit,
	}
}

// RunForConnection reconciles one calendar connection end to end: refresh
// the token if it's close to expiring, delete externally whatever the
// engine dropped on its last rebuild, then for each selected calendar
// publish outbound changes (primary calendar only) and pull inbound
// events into the cache.
func (sy *Synchronizer) RunForConnection(ctx context.Context, connectionID uuid.UUID) error {
	lock, err := acquireConnectionLock(ctx, sy.pool, connectionID)
	if err != nil {
		return err
	}
	defer lock.release(ctx)

	conn, err := sy.connections.GetByIDForSync(ctx, connectionID)
	if err != nil {
		return err
	}

	if time.Now().UTC().Add(refreshSkew).After(conn.Credentials.Expiry) {
		refreshed, err := sy.client.RefreshToken(ctx, &conn.Credentials)
		if err != nil {
			return fmt.Errorf("calsync: refresh token: %w", err)
		}
		if err := sy.connections.UpdateCredentials(ctx, conn.ID, *refreshed); err != nil {
			return err
		}
		conn.Credentials = *refreshed
	}

	if err := sy.reconcileDeletions(ctx, conn); err != nil {
		log.Printf("calsync: connection %s: reconcile deletions: %v", conn.ID, err)
	}

	cals, err := sy.calendars.ListSelectedByConnection(ctx, conn.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var firstErr error
	for _, cal := range cals {
		if cal.NeedsReauth {
			continue
		}
		if err := sy.runForCalendar(ctx, conn, cal, now); err != nil {
			log.Printf("calsync: calendar %s: %v", cal.ID, err)
			if markErr := sy.calendars.IncrementSyncFailureCount(ctx, cal.ID); markErr != nil {
				log.Printf("calsync: mark failure for %s: %v", cal.ID, markErr)
			}
			if isAuthError(err) {
				sy.calendars.MarkNeedsReauth(ctx, cal.ID)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sy.calendars.ResetSyncFailureCount(ctx, cal.ID)
		sy.calendars.UpdateLastSynced(ctx, cal.ID)
	}
	return firstErr
}

func (sy *Synchronizer) runForCalendar(ctx context.Context, conn *store.CalendarConnection, cal *store.Calendar, now time.Time) error {
	if cal.IsPrimary {
		if err := sy.reconcileOutbound(ctx, conn, cal, now); err != nil {
			return fmt.Errorf("outbound: %w", err)
		}
	}
	if err := sy.ingestInbound(ctx, conn, cal, now); err != nil {
		return fmt.Errorf("inbound: %w", err)
	}
	return nil
}

// reconcileOutbound walks every non-deleted block in the outbound window
// and either creates its calendar event, or — if one already exists —
// detects drift against it: a title edit is imported onto the task, a
// time edit locks the block so the next rebuild treats it as user-pinned.
func (sy *Synchronizer) reconcileOutbound(ctx context.Context, conn *store.CalendarConnection, cal *store.Calendar, now time.Time) error {
	blocks, err := sy.blocks.ListForUser(ctx, conn.UserID, now.Add(-24*time.Hour), now.Add(outboundWindow))
	if err != nil {
		return err
	}

	for _, b := range blocks {
		if b.PendingDelete {
			continue
		}
		if b.CalendarID != nil && *b.CalendarID != cal.ID {
			continue // already published against a different selected calendar
		}

		task, err := sy.tasks.GetByIDIncludingDeleted(ctx, conn.UserID, b.TaskID)
		if err != nil {
			log.Printf("calsync: block %s: load task: %v", b.ID, err)
			continue
		}

		event := calendar.ManagedEvent{Title: task.Title, Start: b.Start, End: b.End, BlockID: b.ID.String()}

		if b.CalendarEventID == nil {
			ref, err := sy.client.CreateManagedEvent(ctx, &conn.Credentials, cal.ExternalID, event)
			if err != nil {
				return fmt.Errorf("create event for block %s: %w", b.ID, err)
			}
			if err := sy.blocks.SetCalendarLink(ctx, b.ID, cal.ID, ref.EventID, ref.ETag, store.SyncSynced); err != nil {
				return err
			}
			sy.emit(ctx, conn.UserID, &b.TaskID, store.EventCalendarEventCreated, "published scheduled block to calendar")
			continue
		}

		if err := sy.reconcileExisting(ctx, conn, cal, b, task); err != nil {
			log.Printf("calsync: block %s: reconcile existing event: %v", b.ID, err)
		}
	}

	return nil
}

// reconcileExisting compares the calendar's current copy of a managed
// event against the block/task that produced it. A changed ETag means
// something moved; which of title/time changed decides which side of the
// sync state machine the block lands in.
func (sy *Synchronizer) reconcileExisting(ctx context.Context, conn *store.CalendarConnection, cal *store.Calendar, b *store.ScheduledBlock, task *store.Task) error {
	raw, err := sy.client.GetEvent(ctx, &conn.Credentials, cal.ExternalID, *b.CalendarEventID)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}

	if b.ETag != nil && raw.ETag == *b.ETag {
		return nil // unchanged since the last reconcile
	}

	if !raw.IsManaged {
		// Something replaced the marker we stamped — the safest move is
		// to stop claiming ownership rather than guess at the user's
		// intent, so just refresh what we can still observe.
		return sy.blocks.SetCalendarLink(ctx, b.ID, cal.ID, raw.EventID, raw.ETag, b.SyncState)
	}

	timeChanged, titleChanged := classifyDrift(raw, task.Title, b.Start, b.End)

	switch {
	case timeChanged:
		if err := sy.blocks.Lock(ctx, b.ID, raw.Start, raw.End, store.SyncLockedSynced); err != nil {
			return err
		}
		if err := sy.blocks.SetCalendarLink(ctx, b.ID, cal.ID, raw.EventID, raw.ETag, store.SyncLockedSynced); err != nil {
			return err
		}
		sy.emit(ctx, conn.UserID, &b.TaskID, store.EventCalendarBlockLocked, "user moved the calendar event's time")
	case titleChanged:
		if err := sy.tasks.SetTitleFromCalendar(ctx, b.TaskID, raw.Title); err != nil {
			return err
		}
		if err := sy.blocks.SetCalendarLink(ctx, b.ID, cal.ID, raw.EventID, raw.ETag, store.SyncUserEditedTitle); err != nil {
			return err
		}
		sy.emit(ctx, conn.UserID, &b.TaskID, store.EventCalendarEditImported, "imported title edited on the calendar event")
	default:
		// Etag changed but neither the time nor the title moved in a way
		// we can attribute it to — SyncConflict. Flag and skip rather than
		// guess at a re-link; the alarm is the audit event, not an error
		// that would abort the rest of this connection's reconcile.
		if err := sy.blocks.FlagSyncConflict(ctx, b.ID); err != nil {
			return err
		}
		sy.emit(ctx, conn.UserID, &b.TaskID, store.EventSyncConflict, "calendar etag changed with no attributable time or title drift")
	}

	return nil
}

// classifyDrift decides which half of the sync state machine a changed
// managed event belongs to. Both can be true at once; the caller treats
// a time change as the higher-priority one, since a moved-and-renamed
// event still needs the lock to keep the rebuild from reclaiming it.
func classifyDrift(raw *calendar.RawEvent, taskTitle string, blockStart, blockEnd time.Time) (timeChanged, titleChanged bool) {
	timeChanged = !raw.Start.Equal(blockStart) || !raw.End.Equal(blockEnd)
	titleChanged = raw.Title != taskTitle
	return timeChanged, titleChanged
}

// reconcileDeletions finishes what ReplaceForUser started: a block the
// latest rebuild dropped but that still owns a managed event can't just
// disappear from the database, or the event would be orphaned on the
// user's calendar forever.
func (sy *Synchronizer) reconcileDeletions(ctx context.Context, conn *store.CalendarConnection) error {
	pending, err := sy.blocks.ListPendingDeleteForConnection(ctx, conn.ID)
	if err != nil {
		return err
	}

	for _, b := range pending {
		if b.CalendarID == nil || b.CalendarEventID == nil {
			sy.blocks.Delete(ctx, b.ID)
			continue
		}
		cal, err := sy.calendars.GetByID(ctx, *b.CalendarID)
		if err != nil {
			log.Printf("calsync: pending delete %s: load calendar: %v", b.ID, err)
			continue
		}
		if err := sy.client.DeleteManagedEvent(ctx, &conn.Credentials, cal.ExternalID, *b.CalendarEventID); err != nil {
			log.Printf("calsync: pending delete %s: delete event: %v", b.ID, err)
			continue
		}
		sy.emit(ctx, conn.UserID, &b.TaskID, store.EventCalendarEventDeleted, "removed orphaned calendar event")
		if err := sy.blocks.Delete(ctx, b.ID); err != nil {
			log.Printf("calsync: pending delete %s: drop row: %v", b.ID, err)
		}
	}

	return nil
}

// ingestInbound pulls the calendar's current event set into the cache the
// availability builder reads, incrementally once a sync token exists.
func (sy *Synchronizer) ingestInbound(ctx context.Context, conn *store.CalendarConnection, cal *store.Calendar, now time.Time) error {
	var result *calendar.SyncResult
	var err error

	if cal.SyncToken != nil && *cal.SyncToken != "" {
		result, err = sy.client.FetchEventsIncremental(ctx, &conn.Credentials, cal.ExternalID, *cal.SyncToken)
		if err != nil {
			// A sync token can go stale (the API reports it as expired);
			// drop it and let the next poll fall back to a full fetch
			// rather than spin retrying a token that will never work.
			sy.calendars.ClearSyncToken(ctx, cal.ID)
			return fmt.Errorf("incremental fetch: %w", err)
		}
	} else {
		minT, maxT := now.Add(-initialLookback), now.Add(initialLookahead)
		result, err = sy.client.FetchEvents(ctx, &conn.Credentials, cal.ExternalID, minT, maxT)
		if err != nil {
			return fmt.Errorf("full fetch: %w", err)
		}
		if err := sy.calendars.ExpandSyncedWindow(ctx, cal.ID, minT, maxT); err != nil {
			return err
		}
	}

	for _, ev := range result.Events {
		if calendar.IsCancelled(ev) {
			sy.events.DeleteByExternalID(ctx, conn.ID, ev.Id)
			continue
		}
		ce := calendar.EventToStoreEvent(ev, conn.ID, cal.ID, conn.UserID)
		if _, err := sy.events.Upsert(ctx, ce); err != nil {
			return fmt.Errorf("upsert event %s: %w", ev.Id, err)
		}
	}

	if result.NextSyncToken != "" {
		if err := sy.calendars.UpdateSyncToken(ctx, cal.ID, result.NextSyncToken); err != nil {
			return err
		}
	}

	return nil
}

func (sy *Synchronizer) emit(ctx context.Context, userID uuid.UUID, taskID *uuid.UUID, evType store.AuditEventType, detail string) {
	if err := sy.audit.Emit(ctx, &store.AuditEvent{UserID: userID, TaskID: taskID, Type: evType, Detail: detail}); err != nil {
		log.Printf("calsync: emit audit event: %v", err)
	}
}

// isAuthError reports whether a failure looks like an expired or revoked
// grant rather than a transient network/API problem, so the caller can
// flag the calendar for re-auth instead of retrying it forever.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "oauth2") &&
		(strings.Contains(msg, "invalid_grant") || strings.Contains(msg, "401"))
}

package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/qzwhatnext/engine/internal/store"
)

// staleAfter mirrors calsync's own staleness threshold; duplicated here
// (rather than imported) since this is a read-only diagnostic view, not
// part of the sync decision path itself.
const staleAfter = 10 * time.Minute

// DebugHandler serves GET /debug/sync-status, the operator-facing view of
// every connected calendar's sync health across every user.
type DebugHandler struct {
	connections *store.CalendarConnectionStore
	calendars   *store.CalendarStore
}

func NewDebugHandler(connections *store.CalendarConnectionStore, calendars *store.CalendarStore) *DebugHandler {
	return &DebugHandler{connections: connections, calendars: calendars}
}

type connectionSyncStatus struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Provider     string     `json:"provider"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	IsStale      bool       `json:"is_stale"`
	CreatedAt    time.Time  `json:"created_at"`
}

type calendarSyncStatus struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	ConnectionID  string     `json:"connection_id"`
	IsSelected    bool       `json:"is_selected"`
	IsPrimary     bool       `json:"is_primary"`
	MinSyncedDate *time.Time `json:"min_synced_date"`
	MaxSyncedDate *time.Time `json:"max_synced_date"`
	LastSyncedAt  *time.Time `json:"last_synced_at"`
	SyncTokenSet  bool       `json:"sync_token_set"`
	NeedsReauth   bool       `json:"needs_reauth"`
	SyncFailures  int        `json:"sync_failure_count"`
	IsStale       bool       `json:"is_stale"`
}

type syncStatusResponse struct {
	Timestamp          time.Time              `json:"timestamp"`
	StalenessThreshold string                 `json:"staleness_threshold"`
	Connections        []connectionSyncStatus `json:"connections"`
	Calendars          []calendarSyncStatus   `json:"calendars"`
}

func (h *DebugHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	connections, err := h.connections.ListAll(ctx)
	if err != nil {
		http.Error(w, "failed to list connections: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := syncStatusResponse{
		Timestamp:          time.Now().UTC(),
		StalenessThreshold: staleAfter.String(),
	}

	for _, conn := range connections {
		resp.Connections = append(resp.Connections, connectionSyncStatus{
			ID: conn.ID.String(), UserID: conn.UserID.String(), Provider: conn.Provider,
			LastSyncedAt: conn.LastSyncedAt, IsStale: isStale(conn.LastSyncedAt),
			CreatedAt: conn.CreatedAt,
		})

		cals, err := h.calendars.ListByConnection(ctx, conn.ID)
		if err != nil {
			continue
		}
		for _, cal := range cals {
			resp.Calendars = append(resp.Calendars, calendarSyncStatus{
				ID: cal.ID.String(), Name: cal.Name, ConnectionID: cal.ConnectionID.String(),
				IsSelected: cal.IsSelected, IsPrimary: cal.IsPrimary,
				MinSyncedDate: cal.MinSyncedDate, MaxSyncedDate: cal.MaxSyncedDate,
				LastSyncedAt: cal.LastSyncedAt, SyncTokenSet: cal.SyncToken != nil && *cal.SyncToken != "",
				NeedsReauth: cal.NeedsReauth, SyncFailures: cal.SyncFailureCount,
				IsStale: isStale(cal.LastSyncedAt),
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func isStale(lastSyncedAt *time.Time) bool {
	if lastSyncedAt == nil {
		return true
	}
	return time.Since(*lastSyncedAt) > staleAfter
}

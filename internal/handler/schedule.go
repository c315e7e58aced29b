package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/qzwhatnext/engine/internal/store"
)

// ScheduleHandler implements GET /users/{userID}/schedule: the placer's
// persisted output for a window, plus the overflow records (emitted as
// audit events rather than a separate table) for tasks that didn't fit.
type ScheduleHandler struct {
	blocks *store.ScheduledBlockStore
	audit  *store.AuditEventStore
}

func NewScheduleHandler(blocks *store.ScheduledBlockStore, audit *store.AuditEventStore) *ScheduleHandler {
	return &ScheduleHandler{blocks: blocks, audit: audit}
}

type scheduleBlockView struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Locked      bool      `json:"locked"`
	ScheduledBy string    `json:"scheduled_by"`
	SyncState   string    `json:"sync_state"`
}

type overflowView struct {
	TaskID  string   `json:"task_id"`
	Reasons []string `json:"reasons"`
	Reason  string   `json:"reason"`
}

type scheduleResponse struct {
	From     time.Time           `json:"from"`
	To       time.Time           `json:"to"`
	Blocks   []scheduleBlockView `json:"blocks"`
	Overflow []overflowView      `json:"overflow"`
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	from, to, err := parseWindow(r, 14*24*time.Hour)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	blocks, err := h.blocks.ListForUser(r.Context(), userID, from, to)
	if err != nil {
		http.Error(w, "failed to list schedule: "+err.Error(), http.StatusInternalServerError)
		return
	}

	events, err := h.audit.ListForUser(r.Context(), userID, from, 500)
	if err != nil {
		http.Error(w, "failed to list overflow events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := scheduleResponse{From: from, To: to}
	for _, b := range blocks {
		resp.Blocks = append(resp.Blocks, scheduleBlockView{
			ID: b.ID.String(), TaskID: b.TaskID.String(),
			Start: b.Start, End: b.End, Locked: b.Locked,
			ScheduledBy: b.ScheduledBy, SyncState: string(b.SyncState),
		})
	}
	for _, ev := range events {
		if ev.Type != store.EventOverflowFlagged || ev.TaskID == nil {
			continue
		}
		resp.Overflow = append(resp.Overflow, overflowView{
			TaskID: ev.TaskID.String(), Reasons: ev.Reasons, Reason: ev.Detail,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// parseWindow reads ?from=&to= as RFC3339 timestamps, defaulting to
// [now, now+defaultSpan) when either is absent.
func parseWindow(r *http.Request, defaultSpan time.Duration) (from, to time.Time, err error) {
	now := time.Now().UTC()
	from, to = now, now.Add(defaultSpan)

	if v := r.URL.Query().Get("from"); v != "" {
		from, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, err
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}

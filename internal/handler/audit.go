package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/qzwhatnext/engine/internal/store"
)

// AuditHandler implements GET /users/{userID}/audit: the explainability
// surface over the append-only decision log every rebuild writes to.
type AuditHandler struct {
	audit *store.AuditEventStore
}

func NewAuditHandler(audit *store.AuditEventStore) *AuditHandler {
	return &AuditHandler{audit: audit}
}

type auditEventView struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id,omitempty"`
	Type      string    `json:"type"`
	Reasons   []string  `json:"reasons,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	since := time.Now().UTC().Add(-7 * 24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid since: "+err.Error(), http.StatusBadRequest)
			return
		}
		since = parsed
	}

	events, err := h.audit.ListForUser(r.Context(), userID, since, 1000)
	if err != nil {
		http.Error(w, "failed to list audit events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	views := make([]auditEventView, 0, len(events))
	for _, ev := range events {
		v := auditEventView{
			ID: ev.ID.String(), Type: string(ev.Type),
			Reasons: ev.Reasons, Detail: ev.Detail, CreatedAt: ev.CreatedAt,
		}
		if ev.TaskID != nil {
			v.TaskID = ev.TaskID.String()
		}
		views = append(views, v)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

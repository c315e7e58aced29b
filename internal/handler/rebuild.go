package handler

import (
	"encoding/json"
	"net/http"

	"github.com/qzwhatnext/engine/internal/store"
)

// RebuildHandler implements POST /users/{userID}/rebuild: it only enqueues
// a trigger, coalescing repeated requests — the actual pipeline run happens
// on internal/rebuild's worker, asynchronously from this request.
type RebuildHandler struct {
	jobs *store.RebuildJobStore
}

func NewRebuildHandler(jobs *store.RebuildJobStore) *RebuildHandler {
	return &RebuildHandler{jobs: jobs}
}

type rebuildResponse struct {
	Queued bool   `json:"queued"`
	JobID  string `json:"job_id,omitempty"`
}

func (h *RebuildHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Enqueue(r.Context(), userID, store.TriggerManual)
	if err != nil {
		http.Error(w, "failed to enqueue rebuild: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := rebuildResponse{Queued: job != nil}
	if job != nil {
		resp.JobID = job.ID.String()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}

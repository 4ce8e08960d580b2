package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	CheckedAt  time.Time         `json:"checkedAt"`
}

// Health reports datastore and upload-session store reachability. It lives
// outside the resource space and requires no credentials.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed(r.Method))
		return
	}

	components := map[string]string{}
	status := http.StatusOK
	overall := "ok"

	if err := h.Store.Ping(r.Context()); err != nil {
		components["store"] = err.Error()
		overall = "degraded"
		status = http.StatusServiceUnavailable
	} else {
		components["store"] = "ok"
	}

	if err := h.Uploads.Ping(r.Context()); err != nil {
		components["uploads"] = err.Error()
		overall = "degraded"
		status = http.StatusServiceUnavailable
	} else {
		components["uploads"] = "ok"
	}

	writeJSON(w, status, healthResponse{
		Status:     overall,
		Components: components,
		CheckedAt:  time.Now().UTC(),
	})
}

package handler

import (
	"net/http"
	"time"
)

// handleHealth handles GET /health. It only reports process liveness.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready. The store must answer a count on every
// tracked collection.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	for _, spec := range h.backup.Exporter().Tracked() {
		if _, err := h.store.Count(r.Context(), spec.Name); err != nil {
			h.handleServiceError(w, r, err, map[string]string{"status": "not_ready"})
			return
		}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/docsnap/internal/infra/buildinfo"
)

// handleStatusSummary handles GET /admin/v1/status/summary.
func (h *Handler) handleStatusSummary(w http.ResponseWriter, r *http.Request) {
	summary := StatusSummary{
		Status:    "ok",
		Build:     buildinfo.Get(),
		Engine:    h.store.Engine(),
		BackupDir: h.backup.Dir(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Time:      time.Now().UTC().Format(time.RFC3339),
	}

	for _, spec := range h.backup.Exporter().Tracked() {
		cs := CollectionStatus{
			Name:          spec.Name,
			IdentityField: spec.IdentityField,
			ModifiedField: spec.ModifiedField,
		}
		n, err := h.store.Count(r.Context(), spec.Name)
		if err != nil {
			cs.Error = err.Error()
			summary.Status = "degraded"
		}
		cs.Documents = n
		summary.Collections = append(summary.Collections, cs)
	}

	h.writeJSON(w, r, http.StatusOK, summary)
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/yndnr/docsnap/internal/backup/restore"
	"github.com/yndnr/docsnap/internal/core/domain"
	"github.com/yndnr/docsnap/internal/telemetry/logger"
)

// handleCreateSnapshot handles POST /admin/v1/backups/snapshots.
func (h *Handler) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req CreateSnapshotRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}

	switch req.Kind {
	case "", "full":
		compress := true
		if req.Compress != nil {
			compress = *req.Compress
		}
		res, err := h.backup.CreateFull(r.Context(), compress)
		if err != nil {
			h.handleServiceError(w, r, err, nil)
			return
		}
		h.writeJSON(w, r, http.StatusCreated, res)
	case "incremental":
		res, err := h.backup.CreateIncremental(r.Context())
		if err != nil {
			h.handleServiceError(w, r, err, nil)
			return
		}
		h.writeJSON(w, r, http.StatusCreated, res)
	default:
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("kind must be full or incremental"), nil)
	}
}

// handleListSnapshots handles GET /admin/v1/backups/snapshots.
func (h *Handler) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	entries, err := h.backup.ListSnapshots(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	h.writeJSON(w, r, http.StatusOK, ListSnapshotsResponse{Items: entries, Total: len(entries)})
}

// handleStats handles GET /admin/v1/backups/stats.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.backup.GetStats(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	h.writeJSON(w, r, http.StatusOK, st)
}

// handlePreviewSnapshot handles GET /admin/v1/backups/snapshots/{filename}/preview.
func (h *Handler) handlePreviewSnapshot(w http.ResponseWriter, r *http.Request) {
	p, err := h.backup.PreviewRestore(r.Context(), r.PathValue("filename"))
	if err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	h.writeJSON(w, r, http.StatusOK, p)
}

// handleDeleteSnapshot handles DELETE /admin/v1/backups/snapshots/{filename}.
func (h *Handler) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	res, err := h.backup.DeleteSnapshot(r.Context(), r.PathValue("filename"))
	if err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	h.writeJSON(w, r, http.StatusOK, res)
}

// handlePrune handles POST /admin/v1/backups/prune. The retention window
// comes from the body or the "days" query parameter.
func (h *Handler) handlePrune(w http.ResponseWriter, r *http.Request) {
	var req PruneRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	if req.Days == nil {
		if q := r.URL.Query().Get("days"); q != "" {
			d, err := strconv.Atoi(q)
			if err != nil {
				h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("days must be an integer"), nil)
				return
			}
			req.Days = &d
		}
	}
	if req.Days == nil {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("days"), nil)
		return
	}

	res, err := h.backup.PruneOlderThan(r.Context(), *req.Days)
	if err != nil {
		h.handleServiceError(w, r, err, partial(res))
		return
	}
	h.writeJSON(w, r, http.StatusOK, res)
}

// handleRestore handles POST /admin/v1/backups/restores.
func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}
	if req.Filename == "" {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("filename"), nil)
		return
	}
	strategy, err := restore.ParseMergeStrategy(req.MergeStrategy)
	if err != nil {
		h.handleServiceError(w, r, err, nil)
		return
	}

	opts := restore.Options{ClearExisting: req.ClearExisting, MergeStrategy: strategy}
	logger.L(r.Context()).Info("restore requested",
		"filename", req.Filename,
		"clear_existing", opts.ClearExisting,
		"merge_strategy", opts.MergeStrategy.String())

	res, err := h.backup.ApplyRestore(r.Context(), req.Filename, opts)
	if err != nil {
		h.handleServiceError(w, r, err, partial(res))
		return
	}
	h.writeJSON(w, r, http.StatusOK, res)
}

// partial keeps a nil result out of the envelope.
func partial[T any](res *T) any {
	if res == nil {
		return nil
	}
	return res
}

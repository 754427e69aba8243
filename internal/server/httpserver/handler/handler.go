package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/docsnap/internal/backup"
	"github.com/yndnr/docsnap/internal/core/domain"
	"github.com/yndnr/docsnap/internal/storage/docstore"
	"github.com/yndnr/docsnap/internal/telemetry/logger"
)

// Handler routes admin API requests to the backup service.
type Handler struct {
	backup  *backup.Service
	store   docstore.Store
	logger  *slog.Logger
	started time.Time
	mux     *http.ServeMux
}

// New creates a Handler.
func New(svc *backup.Service, store docstore.Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		backup:  svc,
		store:   store,
		logger:  log,
		started: time.Now(),
		mux:     http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("GET /admin/v1/status/summary", h.handleStatusSummary)

	h.mux.HandleFunc("POST /admin/v1/backups/snapshots", h.handleCreateSnapshot)
	h.mux.HandleFunc("GET /admin/v1/backups/snapshots", h.handleListSnapshots)
	h.mux.HandleFunc("GET /admin/v1/backups/snapshots/{filename}/preview", h.handlePreviewSnapshot)
	h.mux.HandleFunc("DELETE /admin/v1/backups/snapshots/{filename}", h.handleDeleteSnapshot)
	h.mux.HandleFunc("GET /admin/v1/backups/stats", h.handleStats)
	h.mux.HandleFunc("POST /admin/v1/backups/prune", h.handlePrune)
	h.mux.HandleFunc("POST /admin/v1/backups/restores", h.handleRestore)
}

// writeJSON writes a success envelope.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error envelope. data may carry a partial result.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message, details, data)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error, partial any) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		status := errorCodeToHTTPStatus(de.Code)
		if status == http.StatusConflict && de.Code == domain.ErrLockContention.Code {
			w.Header().Set("Retry-After", "5")
		}
		var details any
		if de.Details != "" {
			details = de.Details
		}
		h.writeError(w, r, status, de.Code, de.Message, details, partial)
		return
	}
	if errors.Is(err, context.Canceled) {
		h.writeError(w, r, 499, "DS-SYS-4990", "request cancelled", nil, partial)
		return
	}

	logger.L(r.Context()).Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, domain.ErrInternalServer.Message, nil, partial)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4220"):
		return http.StatusUnprocessableEntity
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4001"), strings.HasSuffix(code, "-4002"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-4010"):
		return http.StatusUnauthorized
	case strings.HasSuffix(code, "-4030"), strings.HasSuffix(code, "-4031"):
		return http.StatusForbidden
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ErrInvalidArgument.WithDetails("invalid request body: " + err.Error())
	}
	return nil
}

package handler

import (
	"time"

	"github.com/yndnr/docsnap/internal/infra/buildinfo"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics).
type Response struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Success:   true,
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response. A non-nil data carries a
// partial result.
func NewErrorResponse(requestID, code, message string, details, data any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
		Details:   details,
	}
}

// CreateSnapshotRequest is the body of POST /admin/v1/backups/snapshots.
type CreateSnapshotRequest struct {
	// Kind is "full" (default) or "incremental".
	Kind string `json:"kind"`
	// Compress applies to full snapshots; incrementals are always
	// compressed. Defaults to true.
	Compress *bool `json:"compress,omitempty"`
}

// PruneRequest is the body of POST /admin/v1/backups/prune.
type PruneRequest struct {
	Days *int `json:"days"`
}

// RestoreRequest is the body of POST /admin/v1/backups/restores.
type RestoreRequest struct {
	Filename      string `json:"filename"`
	ClearExisting bool   `json:"clear_existing"`
	MergeStrategy string `json:"merge_strategy"`
}

// ListSnapshotsResponse wraps the catalog listing.
type ListSnapshotsResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
}

// CollectionStatus is one tracked collection in the status summary.
type CollectionStatus struct {
	Name          string `json:"name"`
	IdentityField string `json:"identity_field"`
	ModifiedField string `json:"modified_field"`
	Documents     int    `json:"documents"`
	Error         string `json:"error,omitempty"`
}

// StatusSummary is the body of GET /admin/v1/status/summary.
type StatusSummary struct {
	Status      string             `json:"status"`
	Build       buildinfo.Info     `json:"build"`
	Engine      string             `json:"engine"`
	BackupDir   string             `json:"backup_dir"`
	Collections []CollectionStatus `json:"collections"`
	Uptime      string             `json:"uptime"`
	Time        string             `json:"time"`
}

// Package domain defines the core domain models for docsnap.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
// Codes follow the DS-<AREA>-<NNNN> format; the last four digits mirror
// the HTTP status the admin API answers with.
type DomainError struct {
	Code    string // Error code (e.g., "DS-SNAP-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Snapshot Errors (SNAP)
// ============================================================================

var (
	// ErrSnapshotNotFound indicates the referenced snapshot file does not exist.
	ErrSnapshotNotFound = NewDomainError("DS-SNAP-4040", "snapshot not found")

	// ErrSnapshotFormat indicates the envelope is unparsable or lacks formatVersion.
	ErrSnapshotFormat = NewDomainError("DS-SNAP-4220", "invalid snapshot format")

	// ErrSnapshotIO indicates a disk read or write failure.
	ErrSnapshotIO = NewDomainError("DS-SNAP-5001", "snapshot io error")

	// ErrExportFailed indicates a collection could not be read from the store.
	ErrExportFailed = NewDomainError("DS-SNAP-5002", "collection export failed")
)

// ============================================================================
// Lock Errors (LOCK)
// ============================================================================

var (
	// ErrLockContention indicates another backup or restore operation is running.
	ErrLockContention = NewDomainError("DS-LOCK-4090", "another backup operation is in progress, retry later")
)

// ============================================================================
// Document Errors (DOC, STORE)
// ============================================================================

var (
	// ErrDocumentWrite indicates a single document failed to insert or upsert.
	ErrDocumentWrite = NewDomainError("DS-DOC-5002", "document write failed")

	// ErrDocumentIdentity indicates a document lacks its identity field.
	ErrDocumentIdentity = NewDomainError("DS-DOC-4001", "document has no identity")

	// ErrDocumentNotFound indicates no document has the requested identity.
	ErrDocumentNotFound = NewDomainError("DS-STORE-4040", "document not found")

	// ErrDocumentConflict indicates a document with the same identity exists.
	ErrDocumentConflict = NewDomainError("DS-STORE-4090", "document identity conflict")

	// ErrStoreClosed indicates the document store has been closed.
	ErrStoreClosed = NewDomainError("DS-STORE-5030", "document store closed")
)

// ============================================================================
// System and Argument Errors (SYS, ARG, AUTH)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("DS-SYS-5000", "internal server error")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("DS-SYS-4290", "too many requests")

	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("DS-ARG-4001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("DS-ARG-4002", "missing required argument")

	// ErrUnauthorized indicates the admin token is missing or wrong.
	ErrUnauthorized = NewDomainError("DS-AUTH-4010", "authentication required")

	// ErrIPNotAllowed indicates the caller IP is not in the admin allowlist.
	ErrIPNotAllowed = NewDomainError("DS-AUTH-4031", "ip not in allowlist")
)

package library

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies import failures so callers can tell a bad file from a
// broken store from a retryable collision.
type Code string

const (
	// CodeSchemaMismatch: the file is not a recognizable Goodreads export.
	// Raised before any row is written.
	CodeSchemaMismatch Code = "SCHEMA_MISMATCH"

	// CodeStorage: infrastructure failure during reconciliation. The batch
	// in progress was rolled back.
	CodeStorage Code = "STORAGE_ERROR"

	// CodeConflict: a concurrent import for the same user collided with
	// this one. Safe to retry; re-import is idempotent.
	CodeConflict Code = "CONFLICT"

	// CodeCancelled: the upload stream dropped or the caller aborted.
	CodeCancelled Code = "CANCELLED"
)

// Error is the typed failure surfaced by the import pipeline.
type Error struct {
	Code           Code
	Message        string
	MissingHeaders []string // set for CodeSchemaMismatch
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// SchemaMismatch names the headers the file was missing.
func SchemaMismatch(missing []string) *Error {
	return &Error{
		Code:           CodeSchemaMismatch,
		Message:        "missing required headers: " + strings.Join(missing, ", "),
		MissingHeaders: missing,
	}
}

func StorageError(err error) *Error {
	return &Error{Code: CodeStorage, Message: "storage failure during import", Err: err}
}

func Conflict(err error) *Error {
	return &Error{Code: CodeConflict, Message: "concurrent import in progress, retry", Err: err}
}

func Cancelled(err error) *Error {
	return &Error{Code: CodeCancelled, Message: "import cancelled", Err: err}
}

// CodeOf extracts the failure code, or "" for untyped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

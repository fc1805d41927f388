package web

// errors.go maps typed import failures onto JSON error responses. The
// technical error is logged server-side with the request ID; the client
// gets a stable code it can branch on plus a human-readable message.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/akshaychugh/betterreads/internal/library"
	"github.com/akshaychugh/betterreads/internal/logging"
)

// ErrorResponse is the JSON envelope for failures.
type ErrorResponse struct {
	Error          string   `json:"error"`
	Code           string   `json:"code,omitempty"`
	MissingHeaders []string `json:"missing_headers,omitempty"`
	Retryable      bool     `json:"retryable,omitempty"`
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, fallbackStatus int) {
	status := fallbackStatus
	resp := ErrorResponse{Error: err.Error()}

	switch library.CodeOf(err) {
	case library.CodeSchemaMismatch:
		status = http.StatusBadRequest
	case library.CodeConflict:
		// A concurrent import for the same user; the client should retry.
		status = http.StatusConflict
		resp.Retryable = true
	case library.CodeCancelled:
		status = http.StatusRequestTimeout
	case library.CodeStorage:
		status = http.StatusInternalServerError
		resp.Error = "storage failure, try again later"
	}

	var libErr *library.Error
	if errors.As(err, &libErr) {
		resp.Code = string(libErr.Code)
		resp.MissingHeaders = libErr.MissingHeaders
		if libErr.Code != library.CodeStorage {
			resp.Error = libErr.Message
		}
	}

	logging.FromContext(r.Context()).Error("request error",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err.Error(),
	)

	writeJSON(w, status, resp)
}

func respondErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package statusapi

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mapsync/internal/logging"
)

// Response is the envelope for every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
	Meta    Meta   `json:"meta"`
}

// Error is the error half of Response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries tracing fields.
type Meta struct {
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Error codes.
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeTooManyRequests  = "TOO_MANY_REQUESTS"
	ErrCodeRejected         = "REJECTED"
	ErrCodeUnavailable      = "UNAVAILABLE"
)

func writeSuccess(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data, Meta: meta(r)})
}

// writeAccepted answers a change that is applied locally and queued for
// the server.
func writeAccepted(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, http.StatusAccepted, Response{Success: true, Data: data, Meta: meta(r)})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, Response{
		Error: &Error{Code: code, Message: message},
		Meta:  meta(r),
	})
}

func meta(r *http.Request) Meta {
	return Meta{
		CorrelationID: logging.CorrelationIDFromContext(r.Context()),
		Timestamp:     time.Now().UTC(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("[status] Failed to encode JSON response")
	}
}

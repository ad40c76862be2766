// Package apierr defines the typed error kinds that cross every component
// boundary in ChittyRouter, and the HTTP status/JSON encoding for them.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind is one of the nine error kinds named by the error handling design.
type Kind string

const (
	Validation             Kind = "ValidationError"
	Auth                    Kind = "AuthError"
	RateLimited             Kind = "RateLimited"
	Timeout                 Kind = "Timeout"
	ProviderFailure         Kind = "ProviderFailure"
	ConflictDetected        Kind = "ConflictDetected"
	NotFound                Kind = "NotFound"
	UpstreamUnavailable     Kind = "UpstreamUnavailable"
	InternalInvariantViolated Kind = "InternalInvariantViolated"
)

var statusByKind = map[Kind]int{
	Validation:                http.StatusBadRequest,
	Auth:                      http.StatusUnauthorized,
	RateLimited:               http.StatusTooManyRequests,
	Timeout:                   http.StatusGatewayTimeout,
	ProviderFailure:           http.StatusBadGateway,
	ConflictDetected:          http.StatusConflict,
	NotFound:                  http.StatusNotFound,
	UpstreamUnavailable:       http.StatusServiceUnavailable,
	InternalInvariantViolated: http.StatusInternalServerError,
}

// Error is the typed error every component boundary returns. It always
// carries a correlation ID so the caller can cross-reference logs.
type Error struct {
	KindValue     Kind   `json:"kind"`
	Message       string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code mapped from the error's kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.KindValue]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds a typed Error.
func New(kind Kind, correlationID, message string) *Error {
	return &Error{KindValue: kind, Message: message, CorrelationID: correlationID}
}

// Wrap builds a typed Error around an underlying cause.
func Wrap(kind Kind, correlationID string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{KindValue: kind, Message: msg, CorrelationID: correlationID, cause: cause}
}

// WriteJSON writes the error as {error, kind, correlationId} with the
// status code mapped from its kind.
func WriteJSON(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	_ = json.NewEncoder(w).Encode(err)
}

// As extracts a *Error from err if it is (or wraps) one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

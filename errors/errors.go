// Package errors provides the error handling system for the Vitsa relay.
// It includes structured error types, the JSON error envelope returned to
// clients, request ID tracking, and integrated logging with Uber's zap logger.
//
// Every error written to a client has the shape
//
//	{"success": false, "error": "<message>", "type": "<kind>", "request_id": "<id>"}
//
// so callers can always branch on the success boolean.
//
// Basic usage:
//
//	// Envelope with the request ID taken from the response headers
//	errors.ErrorWithType(w, "route not found", errors.NotFoundError, http.StatusNotFound)
//
//	// Typed error built in a handler
//	relayErr := errors.NewGatewayError(requestID, err)
//	errors.LogError(logger, relayErr, requestID)
//	errors.WriteError(w, relayErr)
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultLogger is the package-level logger. It starts as a production
// logger and can be replaced with SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger replaces the package logger. A nil logger is ignored.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType categorizes an error for clients and logs.
type ErrorType string

const (
	// ValidationError represents malformed inbound requests
	ValidationError ErrorType = "validation_error"

	// InternalError represents unexpected failures inside the relay
	InternalError ErrorType = "internal_error"

	// GatewayError represents failures of the outbound completion call
	GatewayError ErrorType = "gateway_error"

	// NotFoundError represents unknown routes
	NotFoundError ErrorType = "not_found"

	// MethodNotAllowedError represents a known route hit with the wrong method
	MethodNotAllowedError ErrorType = "method_not_allowed"
)

// RelayError implements the error interface and carries everything needed
// to render the client-facing envelope and a structured log line.
type RelayError struct {
	// Type categorizes the error for client handling
	Type ErrorType

	// Message is the text placed in the envelope's error field
	Message string

	// Code is the HTTP status code
	Code int

	// RequestID links the error to a specific request
	RequestID string

	// Details contains additional error context
	Details map[string]interface{}

	err error
}

// Error returns the type, message and underlying error (if any).
func (e *RelayError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *RelayError) Unwrap() error {
	return e.err
}

// Is matches on error type only, so errors.Is(err, &RelayError{Type: X})
// answers "is this an X".
func (e *RelayError) Is(target error) bool {
	t, ok := target.(*RelayError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// Response converts the error into its wire form.
func (e *RelayError) Response() ErrorResponse {
	return ErrorResponse{
		Success:   false,
		Error:     e.Message,
		Type:      e.Type,
		RequestID: e.RequestID,
		Details:   e.Details,
	}
}

// MarshalJSON renders the client-facing envelope.
func (e *RelayError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Response())
}

// WriteError writes a RelayError as a JSON response.
func WriteError(w http.ResponseWriter, err *RelayError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	if encErr := json.NewEncoder(w).Encode(err); encErr != nil {
		DefaultLogger.Warn("failed to encode error response",
			zap.Error(encErr),
			zap.String("request_id", err.RequestID),
		)
	}
}

// ErrorWithType is a drop-in replacement for http.Error that writes the
// JSON envelope with the given type. The request ID is taken from the
// response headers when the RequestID middleware has set it.
func ErrorWithType(w http.ResponseWriter, message string, errType ErrorType, code int) {
	WriteError(w, NewError(errType, message, code, w.Header().Get("X-Request-ID"), nil, nil))
}

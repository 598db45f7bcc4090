package errors

import (
	"net/http"
)

// NewError creates a RelayError with full control over its fields.
// Prefer one of the specialized constructors below.
//
// Example:
//
//	err := NewError(InternalError, "encode failed", 500, "req_123", nil, encErr)
func NewError(errType ErrorType, message string, code int, requestID string, details map[string]interface{}, err error) *RelayError {
	return &RelayError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewValidationError creates a 400 error for a malformed inbound request.
//
// Example:
//
//	err := NewValidationError("req_123", "history[0].role is invalid", map[string]interface{}{
//	    "field": "history[0].role",
//	})
func NewValidationError(requestID, message string, validationDetails map[string]interface{}) *RelayError {
	return NewError(ValidationError, message, http.StatusBadRequest, requestID, validationDetails, nil)
}

// NewGatewayError creates a 500 error for a failed completion call.
// The message is the gateway error text, which already carries the remote
// status and body when there was one.
func NewGatewayError(requestID string, err error) *RelayError {
	return NewError(GatewayError, err.Error(), http.StatusInternalServerError, requestID, nil, err)
}

// NewMalformedRequestError creates the 500 error the relay returns for an
// undecodable body when strict validation is off.
func NewMalformedRequestError(requestID string, err error) *RelayError {
	return NewError(ValidationError, err.Error(), http.StatusInternalServerError, requestID, nil, err)
}

// NewInternalError creates an internal server error for panics and other
// unexpected failures. The cause is logged, never shown to the client.
func NewInternalError(requestID string, err error) *RelayError {
	return NewError(InternalError, "An unexpected error occurred", http.StatusInternalServerError, requestID, nil, err)
}

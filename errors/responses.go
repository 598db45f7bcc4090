// Package errors provides error response utilities.
package errors

import (
	"errors"
)

// ErrorResponse is the JSON envelope returned for every failed request.
type ErrorResponse struct {
	Success   bool                   `json:"success"`
	Error     string                 `json:"error"`
	Type      ErrorType              `json:"type,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// As is a wrapper around errors.As for better error type assertion
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

package middleware

import "context"

type contextKey string

const (
	// RequestIDKey is the context key under which RequestID stores the ID.
	RequestIDKey contextKey = "request_id"
	// RequestIDHeader carries the request ID in and out of the relay.
	RequestIDHeader = "X-Request-ID"
)

// GetRequestID returns the request ID stored by RequestID, or "" when the
// middleware did not run.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

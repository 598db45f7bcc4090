package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// ErrorHandler recovers panics from downstream handlers, logs them with a
// stack trace and answers with the internal error envelope.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					requestID := w.Header().Get("X-Request-ID")
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.ByteString("stacktrace", debug.Stack()),
						zap.String("request_id", requestID),
						zap.String("path", r.URL.Path),
					)

					WriteError(w, NewInternalError(requestID, fmt.Errorf("panic: %v", rec)))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// LogError logs an error with its context
func LogError(logger *zap.Logger, err error, requestID string) {
	var relayErr *RelayError
	if As(err, &relayErr) {
		fields := []zap.Field{
			zap.String("error_type", string(relayErr.Type)),
			zap.String("message", relayErr.Message),
			zap.Int("code", relayErr.Code),
			zap.String("request_id", requestID),
		}
		if relayErr.Details != nil {
			fields = append(fields, zap.Any("details", relayErr.Details))
		}
		if cause := relayErr.Unwrap(); cause != nil {
			fields = append(fields, zap.NamedError("cause", cause))
		}
		logger.Error("request error", fields...)
		return
	}

	logger.Error("unexpected error",
		zap.Error(err),
		zap.String("request_id", requestID),
	)
}

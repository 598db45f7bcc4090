package middleware

import (
	"net/http"
	"time"
)

// CORS settings of the relay. The browser front-end may be served from
// anywhere, so any origin is allowed.
const (
	AllowedOrigin  = "*"
	AllowedMethods = "GET, POST, OPTIONS"
	AllowedHeaders = "Content-Type, Authorization"
)

// RequestTimer measures request processing time and reports it in the
// X-Response-Time header.
func RequestTimer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &timedWriter{ResponseWriter: w, start: time.Now()}
		next.ServeHTTP(tw, r)
		// Handlers that write nothing still get the header on the implicit 200.
		tw.stamp()
	})
}

// timedWriter stamps X-Response-Time right before the status line goes out.
type timedWriter struct {
	http.ResponseWriter
	start   time.Time
	stamped bool
}

func (tw *timedWriter) stamp() {
	if !tw.stamped {
		tw.stamped = true
		tw.Header().Set("X-Response-Time", time.Since(tw.start).String())
	}
}

func (tw *timedWriter) WriteHeader(code int) {
	tw.stamp()
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timedWriter) Write(b []byte) (int, error) {
	tw.stamp()
	return tw.ResponseWriter.Write(b)
}

// CORS handles Cross-Origin Resource Sharing
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", AllowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", AllowedHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

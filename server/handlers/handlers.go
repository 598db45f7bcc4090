// Package handlers provides the HTTP handlers of the Vitsa relay.
//
// Every response body is JSON and carries a success boolean: successful
// responses are written by writeJSON, failures by errors.WriteError.
package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Status is already on the wire; all that is left is to log it.
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

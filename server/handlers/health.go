package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// HealthMessage is returned by the liveness endpoints.
const HealthMessage = "Vitsa server is running correctly!"

// HealthResponse is the body of GET /health and GET /test.
type HealthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthHandler answers liveness checks. It does not contact the
// completion API.
type HealthHandler struct {
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{logger: logger}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, HealthResponse{
		Success: true,
		Message: HealthMessage,
	})
}

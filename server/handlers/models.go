package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// Model is one entry of the advertised model list.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ModelsResponse is the body of GET /models.
type ModelsResponse struct {
	Success bool    `json:"success"`
	Models  []Model `json:"models"`
}

var availableModels = [...]Model{
	{ID: "deepseek-chat", Name: "DeepSeek Chat"},
	{ID: "deepseek-coder", Name: "DeepSeek Coder"},
	{ID: "deepseek-llama-3", Name: "DeepSeek Llama 3"},
}

// AvailableModels returns a fresh copy of the fixed model list. Callers may
// modify the result freely.
func AvailableModels() []Model {
	models := make([]Model, len(availableModels))
	copy(models, availableModels[:])
	return models
}

// ModelsHandler serves the static model list.
type ModelsHandler struct {
	logger *zap.Logger
}

// NewModelsHandler creates a ModelsHandler.
func NewModelsHandler(logger *zap.Logger) *ModelsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelsHandler{logger: logger}
}

func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, ModelsResponse{
		Success: true,
		Models:  AvailableModels(),
	})
}

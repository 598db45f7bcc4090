package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/teilomillet/vitsa/errors"
	"github.com/teilomillet/vitsa/server/gateway"
	"github.com/teilomillet/vitsa/server/metrics"
	"github.com/teilomillet/vitsa/server/middleware"
	"github.com/teilomillet/vitsa/server/transcript"
	"github.com/teilomillet/vitsa/server/validation"
	"go.uber.org/zap"
)

// maxBodyBytes caps the inbound request body.
const maxBodyBytes = 4 << 20

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string            `json:"message" validate:"required"`
	Model   string            `json:"model,omitempty"`
	History []transcript.Turn `json:"history" validate:"dive"`
}

// ChatResponse is the successful body of POST /chat.
type ChatResponse struct {
	Success bool   `json:"success"`
	Reply   string `json:"reply"`
}

// TokenCounter estimates the token cost of a transcript.
type TokenCounter interface {
	CountTokens(text string) int
}

// ChatOption configures a ChatHandler.
type ChatOption func(*ChatHandler)

// WithStrictHistory rejects requests whose message or history entries are
// missing or malformed with a 400 instead of passing them through.
func WithStrictHistory(v *validation.Validator) ChatOption {
	return func(h *ChatHandler) {
		h.validator = v
	}
}

// WithTokenCounter observes the token count of every transcript.
func WithTokenCounter(tc TokenCounter) ChatOption {
	return func(h *ChatHandler) {
		h.tokens = tc
	}
}

// WithChatMetrics sets the metrics the handler reports prompt sizes to.
func WithChatMetrics(m *metrics.Metrics) ChatOption {
	return func(h *ChatHandler) {
		h.metrics = m
	}
}

// ChatHandler relays a chat message and its history to the completion API.
type ChatHandler struct {
	completer    gateway.Completer
	formatter    *transcript.Formatter
	defaultModel string
	validator    *validation.Validator
	tokens       TokenCounter
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewChatHandler creates a ChatHandler. defaultModel is used when a request
// does not name a model.
func NewChatHandler(completer gateway.Completer, formatter *transcript.Formatter, defaultModel string, logger *zap.Logger, opts ...ChatOption) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ChatHandler{
		completer:    completer,
		formatter:    formatter,
		defaultModel: defaultModel,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles POST /chat:
// decode, optionally validate, format the transcript, make exactly one
// completion call and answer with the reply or the gateway's error text.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	logger := h.logger.With(
		zap.String("request_id", requestID),
		zap.String("path", r.URL.Path),
	)

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		relayErr := h.decodeError(requestID, err)
		errors.LogError(logger, relayErr, requestID)
		errors.WriteError(w, relayErr)
		return
	}

	if h.validator != nil {
		if details := h.validator.Struct(req); details != nil {
			relayErr := errors.NewValidationError(requestID, validation.Summary(details), map[string]interface{}{
				"fields": details,
			})
			errors.LogError(logger, relayErr, requestID)
			errors.WriteError(w, relayErr)
			return
		}
	}

	model := req.Model
	if model == "" {
		model = h.defaultModel
	}

	prompt := h.formatter.Format(req.History, req.Message)

	fields := []zap.Field{
		zap.String("model", model),
		zap.Int("history_turns", len(req.History)),
		zap.Int("prompt_bytes", len(prompt)),
	}
	if h.tokens != nil {
		n := h.tokens.CountTokens(prompt)
		fields = append(fields, zap.Int("prompt_tokens", n))
		if h.metrics != nil {
			h.metrics.PromptTokens.Observe(float64(n))
		}
	}
	logger.Debug("Relaying chat message", fields...)

	reply, err := h.completer.Complete(r.Context(), prompt, model)
	if err != nil {
		relayErr := errors.NewGatewayError(requestID, err)
		relayErr.Details = failureDetails(err)
		errors.LogError(logger, relayErr, requestID)
		errors.WriteError(w, relayErr)
		return
	}

	writeJSON(w, logger, http.StatusOK, ChatResponse{
		Success: true,
		Reply:   reply,
	})
}

// decodeError maps an undecodable body to the relay's error envelope. In
// strict mode this is a client error; otherwise it keeps the generic 500
// that callers of the relay have always received.
func (h *ChatHandler) decodeError(requestID string, err error) *errors.RelayError {
	if h.validator != nil {
		return errors.NewValidationError(requestID, fmt.Sprintf("invalid request body: %v", err), nil)
	}
	return errors.NewMalformedRequestError(requestID, fmt.Errorf("invalid request body: %w", err))
}

func failureDetails(err error) map[string]interface{} {
	details := map[string]interface{}{
		"failure": gateway.Classify(err).String(),
	}
	if status, ok := gateway.StatusCode(err); ok {
		details["remote_status"] = status
	}
	return details
}

// Package gateway sends transcripts to the remote chat-completions API and
// translates the reply, or the failure, into a local result.
//
// Every call is independent: one POST, no retries, no shared state beyond
// the immutable configuration captured at construction.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teilomillet/vitsa/config"
	"github.com/teilomillet/vitsa/server/circuitbreaker"
	"github.com/teilomillet/vitsa/server/metrics"
	"go.uber.org/zap"
)

// Temperature is the sampling temperature sent with every call.
const Temperature = 0.7

// Completer is implemented by anything that can turn a prompt into a reply.
// Errors returned by the Gateway implementation always satisfy Failure.
type Completer interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the HTTP client used for outbound calls.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		if client != nil {
			g.client = client
		}
	}
}

// WithLogger sets the logger used for failed calls.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics records call outcomes and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithCircuitBreaker guards calls with cb. An open breaker fails the call
// with a RequestSetupError without contacting the API.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(g *Gateway) {
		g.breaker = cb
	}
}

// Gateway is the Completer backed by the remote completion API.
type Gateway struct {
	endpoint string
	apiKey   string
	client   *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

var _ Completer = (*Gateway)(nil)

// New creates a Gateway from the LLM section of the configuration.
// Configuration problems are not reported here; they surface per call as
// RequestSetupError so the rest of the relay keeps serving.
func New(cfg config.LLMConfig, opts ...Option) *Gateway {
	g := &Gateway{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Complete sends prompt to model and returns the first choice's content.
func (g *Gateway) Complete(ctx context.Context, prompt, model string) (string, error) {
	start := time.Now()

	var reply string
	call := func() error {
		var err error
		reply, err = g.send(ctx, prompt, model)
		return err
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(call)
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			err = &RequestSetupError{Message: err.Error(), Err: err}
		}
	} else {
		err = call()
	}

	kind := Classify(err)
	if g.metrics != nil {
		g.metrics.GatewayRequests.WithLabelValues(model, kind.String()).Inc()
		g.metrics.GatewayDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		fields := []zap.Field{
			zap.String("model", model),
			zap.String("outcome", kind.String()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		}
		var remote *RemoteStatusError
		if errors.As(err, &remote) {
			fields = append(fields, zap.Int("status", remote.Status), zap.String("body", remote.Body))
		}
		if cause := errors.Unwrap(err); cause != nil {
			fields = append(fields, zap.NamedError("cause", cause))
		}
		g.logger.Warn("Completion call failed", fields...)
		return "", err
	}

	g.logger.Debug("Completion call succeeded",
		zap.String("model", model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("reply_length", len(reply)),
	)
	return reply, nil
}

// send performs one POST and classifies its failure.
func (g *Gateway) send(ctx context.Context, prompt, model string) (string, error) {
	if g.apiKey == "" {
		return "", &RequestSetupError{Message: "missing API key"}
	}

	endpoint, err := url.Parse(g.endpoint)
	if err != nil {
		return "", &RequestSetupError{Message: fmt.Sprintf("invalid endpoint %q: %v", g.endpoint, err), Err: err}
	}
	if (endpoint.Scheme != "http" && endpoint.Scheme != "https") || endpoint.Host == "" {
		return "", &RequestSetupError{Message: fmt.Sprintf("invalid endpoint %q: want an absolute http(s) URL", g.endpoint)}
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: Temperature,
	})
	if err != nil {
		return "", &RequestSetupError{Message: err.Error(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", &RequestSetupError{Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", noResponse(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", noResponse(ctx, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &RemoteStatusError{Status: resp.StatusCode, Body: serializeBody(raw)}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil || len(out.Choices) == 0 {
		return "", &RemoteStatusError{Status: resp.StatusCode, Body: serializeBody(raw)}
	}

	return out.Choices[0].Message.Content, nil
}

func noResponse(ctx context.Context, err error) *NoResponseError {
	return &NoResponseError{
		Err:      err,
		Canceled: errors.Is(ctx.Err(), context.Canceled),
	}
}

// serializeBody renders a response body for error messages: JSON bodies are
// compacted, anything else is trimmed text.
func serializeBody(raw []byte) string {
	if json.Valid(raw) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err == nil {
			return buf.String()
		}
	}
	return strings.TrimSpace(string(raw))
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/vitsa/config"
	"github.com/teilomillet/vitsa/server/circuitbreaker"
	"github.com/teilomillet/vitsa/server/metrics"
	"go.uber.org/zap/zaptest"
)

func newTestGateway(t *testing.T, endpoint string, opts ...Option) *Gateway {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(config.LLMConfig{
		Endpoint: endpoint,
		APIKey:   "sk-test",
	}, opts...)
}

func TestCompleteSuccess(t *testing.T) {
	requests := make(chan chatRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests <- body

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hi"}}]}`)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	reply, err := g.Complete(context.Background(), "Human: hello\nVitsa:", "deepseek-chat")
	require.NoError(t, err)
	assert.Equal(t, "hi", reply)

	captured := <-requests
	assert.Equal(t, "deepseek-chat", captured.Model)
	assert.Equal(t, Temperature, captured.Temperature)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
	assert.Equal(t, "Human: hello\nVitsa:", captured.Messages[0].Content)
}

func TestCompleteUsesFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"first"}},{"message":{"content":"second"}}]}`)
	}))
	defer srv.Close()

	reply, err := newTestGateway(t, srv.URL).Complete(context.Background(), "p", "m")
	require.NoError(t, err)
	assert.Equal(t, "first", reply)
}

func TestCompleteRemoteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "{\n  \"error\": \"rate limited\"\n}\n")
	}))
	defer srv.Close()

	_, err := newTestGateway(t, srv.URL).Complete(context.Background(), "p", "deepseek-chat")
	require.Error(t, err)

	assert.Equal(t, KindRemoteStatus, Classify(err))
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")

	var remote *RemoteStatusError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusTooManyRequests, remote.Status)
	assert.Equal(t, `{"error":"rate limited"}`, remote.Body)

	status, ok := StatusCode(err)
	assert.True(t, ok)
	assert.Equal(t, 429, status)
}

func TestCompleteRemoteStatusPlainTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestGateway(t, srv.URL).Complete(context.Background(), "p", "m")
	require.Error(t, err)
	assert.Equal(t, "completion API error: 502 - upstream exploded", err.Error())
}

func TestCompleteMalformedSuccessBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>oops</html>"},
		{name: "no choices", body: `{"choices":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestGateway(t, srv.URL).Complete(context.Background(), "p", "m")
			require.Error(t, err)
			assert.Equal(t, KindRemoteStatus, Classify(err))
			assert.Contains(t, err.Error(), "200")
		})
	}
}

func TestCompleteConnectionDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		if conn, _, err := hj.Hijack(); err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	_, err := newTestGateway(t, srv.URL).Complete(context.Background(), "p", "m")
	require.Error(t, err)

	assert.Equal(t, KindNoResponse, Classify(err))
	var noResp *NoResponseError
	require.True(t, errors.As(err, &noResp))
	assert.NotNil(t, noResp.Unwrap())

	_, hasStatus := StatusCode(err)
	assert.False(t, hasStatus)
	assert.False(t, strings.ContainsAny(err.Error(), "0123456789"), "no-response error must not embed a status code: %q", err.Error())
}

func TestCompleteServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	_, err := newTestGateway(t, endpoint).Complete(context.Background(), "p", "m")
	require.Error(t, err)
	assert.Equal(t, KindNoResponse, Classify(err))
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g := New(config.LLMConfig{
		Endpoint: srv.URL,
		APIKey:   "sk-test",
		Timeout:  50 * time.Millisecond,
	})
	_, err := g.Complete(context.Background(), "p", "m")
	require.Error(t, err)
	assert.Equal(t, KindNoResponse, Classify(err))
	assert.True(t, BreakerFailure(err), "an API that never answers counts against the breaker")
}

func TestCompleteCanceledByCaller(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	cb, err := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:             "completion",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 1,
		IsFailure:        BreakerFailure,
	}, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	g := newTestGateway(t, srv.URL, WithCircuitBreaker(cb))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 3; i++ {
		_, err := g.Complete(ctx, "p", "m")
		require.Error(t, err)
		assert.Equal(t, KindNoResponse, Classify(err))

		var noResp *NoResponseError
		require.True(t, errors.As(err, &noResp))
		assert.True(t, noResp.Canceled)
		assert.False(t, BreakerFailure(err))
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())

	reply, err := g.Complete(context.Background(), "p", "m")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteRequestSetupErrors(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.LLMConfig
		contains string
	}{
		{
			name:     "missing api key",
			cfg:      config.LLMConfig{Endpoint: "https://api.example.com/v1/chat/completions"},
			contains: "missing API key",
		},
		{
			name:     "unparseable endpoint",
			cfg:      config.LLMConfig{Endpoint: "://nope", APIKey: "k"},
			contains: "invalid endpoint",
		},
		{
			name:     "unsupported scheme",
			cfg:      config.LLMConfig{Endpoint: "ftp://api.example.com", APIKey: "k"},
			contains: "invalid endpoint",
		},
		{
			name:     "relative endpoint",
			cfg:      config.LLMConfig{Endpoint: "/v1/chat/completions", APIKey: "k"},
			contains: "invalid endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg).Complete(context.Background(), "p", "m")
			require.Error(t, err)

			assert.Equal(t, KindRequestSetup, Classify(err))
			assert.True(t, strings.HasPrefix(err.Error(), "request setup error: "))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestCompleteRecordsMetrics(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	m := metrics.NewMetrics()
	g := newTestGateway(t, srv.URL, WithMetrics(m))

	_, err := g.Complete(context.Background(), "p", "deepseek-chat")
	require.NoError(t, err)

	status.Store(http.StatusInternalServerError)
	_, err = g.Complete(context.Background(), "p", "deepseek-chat")
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.GatewayRequests.WithLabelValues("deepseek-chat", "succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GatewayRequests.WithLabelValues("deepseek-chat", "failed_remote")))
}

func TestCompleteWithOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"overloaded"}`)
	}))
	defer srv.Close()

	cb, err := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:             "completion",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
		IsFailure:        BreakerFailure,
	}, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	g := newTestGateway(t, srv.URL, WithCircuitBreaker(cb))

	for i := 0; i < 2; i++ {
		_, err := g.Complete(context.Background(), "p", "m")
		assert.Equal(t, KindRemoteStatus, Classify(err))
	}

	_, err = g.Complete(context.Background(), "p", "m")
	require.Error(t, err)
	assert.Equal(t, KindRequestSetup, Classify(err))
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "open breaker must not contact the API")
}

func TestBreakerFailure(t *testing.T) {
	assert.False(t, BreakerFailure(nil))
	assert.False(t, BreakerFailure(&RemoteStatusError{Status: 400}))
	assert.False(t, BreakerFailure(&RemoteStatusError{Status: 429}))
	assert.True(t, BreakerFailure(&RemoteStatusError{Status: 503}))
	assert.True(t, BreakerFailure(&NoResponseError{}))
	assert.False(t, BreakerFailure(&NoResponseError{Canceled: true}))
	assert.False(t, BreakerFailure(fmt.Errorf("wrapped: %w", &NoResponseError{Canceled: true})))
	assert.False(t, BreakerFailure(&RequestSetupError{Message: "x"}))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindNone, Classify(nil))
	assert.Equal(t, KindRemoteStatus, Classify(fmt.Errorf("wrapped: %w", &RemoteStatusError{Status: 500})))
	assert.Equal(t, KindNoResponse, Classify(&NoResponseError{}))
	assert.Equal(t, KindRequestSetup, Classify(&RequestSetupError{}))
	assert.Equal(t, KindRequestSetup, Classify(errors.New("foreign")))

	assert.Equal(t, "succeeded", KindNone.String())
	assert.Equal(t, "failed_no_response", KindNoResponse.String())
}

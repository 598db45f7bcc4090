package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errIgnored = errors.New("client mistake")

func newTestBreaker(t *testing.T, state *prometheus.GaugeVec) *CircuitBreaker {
	t.Helper()
	cb, err := NewCircuitBreaker(Config{
		Name:             "test",
		MaxRequests:      1,
		Interval:         time.Second,
		Timeout:          50 * time.Millisecond,
		FailureThreshold: 2,
		IsFailure: func(err error) bool {
			return !errors.Is(err, errIgnored)
		},
	}, zaptest.NewLogger(t), state)
	require.NoError(t, err)
	return cb
}

func TestCircuitBreaker(t *testing.T) {
	t.Run("Initially Closed", func(t *testing.T) {
		cb := newTestBreaker(t, nil)
		assert.Equal(t, gobreaker.StateClosed, cb.State())
		assert.Equal(t, "test", cb.Name())
	})

	t.Run("Opens After Failures", func(t *testing.T) {
		cb := newTestBreaker(t, nil)

		err := cb.Execute(func() error { return errors.New("error 1") })
		assert.EqualError(t, err, "error 1")
		assert.Equal(t, gobreaker.StateClosed, cb.State())

		err = cb.Execute(func() error { return errors.New("error 2") })
		assert.EqualError(t, err, "error 2")
		assert.Equal(t, gobreaker.StateOpen, cb.State())

		called := false
		err = cb.Execute(func() error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.False(t, called, "open breaker must not run the call")
	})

	t.Run("Ignored Errors Do Not Trip", func(t *testing.T) {
		cb := newTestBreaker(t, nil)

		for i := 0; i < 5; i++ {
			err := cb.Execute(func() error { return errIgnored })
			assert.ErrorIs(t, err, errIgnored)
		}
		assert.Equal(t, gobreaker.StateClosed, cb.State())
	})

	t.Run("Recovers Through Half-Open", func(t *testing.T) {
		cb := newTestBreaker(t, nil)

		for i := 0; i < 2; i++ {
			_ = cb.Execute(func() error { return errors.New("failure") })
		}
		require.Equal(t, gobreaker.StateOpen, cb.State())

		time.Sleep(80 * time.Millisecond)
		assert.Equal(t, gobreaker.StateHalfOpen, cb.State())

		require.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, gobreaker.StateClosed, cb.State())
	})
}

func TestCircuitBreakerStateGauge(t *testing.T) {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "test_breaker_state",
		Help: "test",
	}, []string{"name"})

	cb := newTestBreaker(t, gauge)
	assert.Equal(t, float64(gobreaker.StateClosed), testutil.ToFloat64(gauge.WithLabelValues("test")))

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errors.New("failure") })
	}
	assert.Equal(t, float64(gobreaker.StateOpen), testutil.ToFloat64(gauge.WithLabelValues("test")))
}

func TestNewCircuitBreakerValidation(t *testing.T) {
	_, err := NewCircuitBreaker(Config{FailureThreshold: 1}, nil, nil)
	assert.Error(t, err)

	_, err = NewCircuitBreaker(Config{Name: "x"}, nil, nil)
	assert.Error(t, err)
}

// Package circuitbreaker wraps sony/gobreaker with zap logging and a
// Prometheus state gauge. It only ever fails calls fast; it never retries.
package circuitbreaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned instead of running the call while the breaker
// is open, or when the half-open probe budget is used up.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds configuration for the circuit breaker
type Config struct {
	Name string

	// MaxRequests allowed through while half-open
	MaxRequests uint32

	// Interval after which closed-state counts are cleared
	Interval time.Duration

	// Timeout of the open state before probing again
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that trips it
	FailureThreshold uint32

	// IsFailure decides whether an error counts against the breaker.
	// Nil counts every non-nil error.
	IsFailure func(error) bool
}

// CircuitBreaker guards a single downstream dependency.
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewCircuitBreaker creates a breaker. state may be nil; when set, the
// breaker keeps the gauge labelled with its name in sync.
func NewCircuitBreaker(cfg Config, logger *zap.Logger, state *prometheus.GaugeVec) (*CircuitBreaker, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("circuit breaker name is required")
	}
	if cfg.FailureThreshold == 0 {
		return nil, fmt.Errorf("circuit breaker %s: failure threshold must be positive", cfg.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	isFailure := cfg.IsFailure
	if isFailure == nil {
		isFailure = func(err error) bool { return err != nil }
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if state != nil {
				state.WithLabelValues(name).Set(float64(to))
			}
		},
	}

	if state != nil {
		state.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))
	}

	return &CircuitBreaker{
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}, nil
}

// Execute runs f unless the breaker is open. The error returned by f is
// passed through unchanged.
func (c *CircuitBreaker) Execute(f func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, f()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns the current breaker state.
func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

// Name returns the breaker name.
func (c *CircuitBreaker) Name() string {
	return c.cb.Name()
}

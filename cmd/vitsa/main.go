package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/teilomillet/vitsa/config"
	"github.com/teilomillet/vitsa/errors"
	"github.com/teilomillet/vitsa/server"
	"github.com/teilomillet/vitsa/server/circuitbreaker"
	"github.com/teilomillet/vitsa/server/gateway"
	"github.com/teilomillet/vitsa/server/metrics"
	"github.com/teilomillet/vitsa/server/validation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is the release reported by -version and the startup log.
const Version = "v0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "vitsa: %v\n", err)
		os.Exit(1)
	}
}

// run parses args, builds the relay and serves until ctx is done.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("vitsa", flag.ContinueOnError)
	configFile := flags.String("config", "vitsa.yaml", "Path to configuration file")
	envFile := flags.String("env", ".env", "Path to dotenv file loaded before the configuration")
	validate := flags.Bool("validate", false, "Validate configuration and exit")
	version := flags.Bool("version", false, "Print version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *version {
		fmt.Fprintf(stdout, "vitsa %s\n", Version)
		return nil
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		return err
	}

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Just validate and exit if requested
	if *validate {
		fmt.Fprintln(stdout, "Configuration is valid")
		return nil
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()
	errors.SetLogger(logger)

	handler, err := buildHandler(cfg, logger)
	if err != nil {
		return err
	}

	srv := server.NewServer(cfg.Server, handler, logger)

	logger.Info("Starting vitsa",
		zap.String("version", Version),
		zap.Int("port", cfg.Server.Port),
		zap.String("endpoint", cfg.LLM.Endpoint),
		zap.Bool("api_key_set", cfg.LLM.APIKey != ""),
		zap.Bool("strict_history", cfg.Chat.StrictHistory),
		zap.Bool("circuit_breaker", cfg.CircuitBreaker.Enabled),
	)
	if cfg.LLM.APIKey == "" {
		logger.Warn("No API key configured; every chat request will fail until " + config.EnvAPIKey + " is set")
	}

	return srv.Start(ctx)
}

// buildHandler wires the gateway and its optional collaborators into the
// relay's HTTP handler.
func buildHandler(cfg *config.Config, logger *zap.Logger) (http.Handler, error) {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics()
	}

	opts := []gateway.Option{gateway.WithLogger(logger.Named("gateway"))}
	if m != nil {
		opts = append(opts, gateway.WithMetrics(m))
	}

	if cfg.CircuitBreaker.Enabled {
		var state *prometheus.GaugeVec
		if m != nil {
			state = m.BreakerState
		}
		cb, err := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
			Name:             "completion",
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
			Interval:         cfg.CircuitBreaker.Interval,
			Timeout:          cfg.CircuitBreaker.Timeout,
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			IsFailure:        gateway.BreakerFailure,
		}, logger.Named("circuitbreaker"), state)
		if err != nil {
			return nil, fmt.Errorf("failed to create circuit breaker: %w", err)
		}
		opts = append(opts, gateway.WithCircuitBreaker(cb))
	}

	deps := server.Dependencies{
		Completer: gateway.New(cfg.LLM, opts...),
		Metrics:   m,
		Logger:    logger,
	}

	if cfg.Metrics.CountPromptTokens {
		counter, err := validation.NewTokenCounter(cfg.Metrics.TokenizerModel)
		if err != nil {
			// Token counts are observational; serve without them.
			logger.Warn("Prompt token counting disabled", zap.Error(err))
		} else {
			deps.TokenCounter = counter
		}
	}

	return server.NewHandler(cfg, deps), nil
}

// newLogger builds a zap logger from the logging configuration.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "text" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

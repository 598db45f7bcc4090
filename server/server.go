// Package server assembles the relay's HTTP surface and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teilomillet/vitsa/config"
	"github.com/teilomillet/vitsa/server/gateway"
	"github.com/teilomillet/vitsa/server/handlers"
	"github.com/teilomillet/vitsa/server/metrics"
	"github.com/teilomillet/vitsa/server/routing"
	"github.com/teilomillet/vitsa/server/transcript"
	"github.com/teilomillet/vitsa/server/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// defaultShutdownTimeout applies when the configuration leaves it unset.
const defaultShutdownTimeout = 5 * time.Second

// Dependencies are the collaborators of the HTTP handlers. Only Completer
// is required.
type Dependencies struct {
	Completer    gateway.Completer
	Metrics      *metrics.Metrics
	TokenCounter handlers.TokenCounter
	Logger       *zap.Logger
}

// NewHandler builds the relay's handlers from cfg and deps and routes them.
func NewHandler(cfg *config.Config, deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts []handlers.ChatOption
	if cfg.Chat.StrictHistory {
		opts = append(opts, handlers.WithStrictHistory(validation.New()))
	}
	if deps.TokenCounter != nil {
		opts = append(opts, handlers.WithTokenCounter(deps.TokenCounter))
	}
	if deps.Metrics != nil {
		opts = append(opts, handlers.WithChatMetrics(deps.Metrics))
	}

	chat := handlers.NewChatHandler(
		deps.Completer,
		transcript.NewFormatter(cfg.Chat.AssistantLabel),
		cfg.LLM.DefaultModel,
		logger.Named("chat"),
		opts...,
	)

	return routing.NewRouter(cfg, map[string]http.Handler{
		routing.ChatHandler:   chat,
		routing.ModelsHandler: handlers.NewModelsHandler(logger),
		routing.HealthHandler: handlers.NewHealthHandler(logger),
	}, deps.Metrics, logger.Named("http"))
}

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

// NewServer creates a new server instance
func NewServer(cfg config.ServerConfig, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &Server{
		httpServer: &http.Server{
			Addr:           fmt.Sprintf(":%d", cfg.Port),
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully, giving in-flight requests up to the shutdown timeout. If the
// listener fails first, Serve shuts down and returns that error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Server started", zap.String("address", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			s.logger.Info("Received shutdown signal")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		s.logger.Info("Shutting down server", zap.Duration("timeout", s.shutdownTimeout))
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error during server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

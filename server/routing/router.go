// Package routing wires the relay's handlers into a chi router.
// The API routes are mounted twice, at the root and under /api, so both the
// bundled front-end and older clients reach the same handlers.
package routing

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/teilomillet/vitsa/config"
	"github.com/teilomillet/vitsa/errors"
	"github.com/teilomillet/vitsa/server/metrics"
	"github.com/teilomillet/vitsa/server/middleware"
	"go.uber.org/zap"
)

// Handler names used in the route table.
const (
	ChatHandler   = "chat"
	ModelsHandler = "models"
	HealthHandler = "health"
)

// APIPrefix is the second mount point of the API routes.
const APIPrefix = "/api"

// Route binds a method and path to a named handler.
type Route struct {
	Method  string
	Path    string
	Handler string
}

// Routes is the relay's API surface.
var Routes = []Route{
	{Method: http.MethodPost, Path: "/chat", Handler: ChatHandler},
	{Method: http.MethodGet, Path: "/models", Handler: ModelsHandler},
	{Method: http.MethodGet, Path: "/health", Handler: HealthHandler},
	{Method: http.MethodGet, Path: "/test", Handler: HealthHandler},
}

// Router handles HTTP routing for the relay.
type Router struct {
	router   chi.Router
	handlers map[string]http.Handler
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      *config.Config
}

// NewRouter creates a router with the global middleware stack and every
// route of the table. handlers must contain an entry for each name used in
// Routes; missing handlers are logged and their routes skipped. m may be nil
// to disable request metrics and the metrics endpoint.
func NewRouter(cfg *config.Config, handlers map[string]http.Handler, m *metrics.Metrics, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		router:   chi.NewRouter(),
		handlers: handlers,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}

	// Add global middleware stack
	r.router.Use(middleware.RequestID)
	r.router.Use(chimw.RealIP)
	r.router.Use(middleware.RequestTimer)
	r.router.Use(middleware.Logging(logger))
	if m != nil {
		r.router.Use(middleware.PrometheusMetrics(m))
	}
	r.router.Use(middleware.CORS)
	// Innermost, so logging and metrics see the 500 of a recovered panic.
	r.router.Use(errors.ErrorHandler(logger))

	r.router.NotFound(notFound)
	r.router.MethodNotAllowed(methodNotAllowed)

	r.setupRoutes()

	return r
}

// setupRoutes mounts the API at the root and under APIPrefix, then the
// metrics endpoint and the static front-end.
func (r *Router) setupRoutes() {
	api := func(router chi.Router) {
		for _, route := range Routes {
			handler, ok := r.handlers[route.Handler]
			if !ok {
				r.logger.Error("handler not found",
					zap.String("handler", route.Handler),
					zap.String("path", route.Path),
				)
				continue
			}
			router.Method(route.Method, route.Path, handler)
		}
	}

	r.router.Group(api)
	r.router.Route(APIPrefix, api)

	if r.metrics != nil && r.cfg.Metrics.Enabled {
		RegisterMetricsRoutes(r.router, r.metrics, r.cfg.Metrics.Path)
	}

	if dir := r.cfg.Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.logger.Info("Serving static files", zap.String("dir", dir))
			r.router.Handle("/*", staticFiles(dir))
		} else {
			r.logger.Debug("Static directory not found, not serving files", zap.String("dir", dir))
		}
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	errors.ErrorWithType(w, "route not found: "+r.Method+" "+r.URL.Path, errors.NotFoundError, http.StatusNotFound)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	errors.ErrorWithType(w, "method "+r.Method+" not allowed for "+r.URL.Path, errors.MethodNotAllowedError, http.StatusMethodNotAllowed)
}

// ServeHTTP implements the http.Handler interface.
// Delegates request handling to the underlying Chi router.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hongminglow/moviebox-be/internal/catalog"
	"github.com/hongminglow/moviebox-be/internal/config"
	"github.com/hongminglow/moviebox-be/internal/http/handlers"
	"github.com/hongminglow/moviebox-be/internal/middleware"
	"github.com/hongminglow/moviebox-be/internal/storage"
)

// Deps are the collaborators the routes need.
type Deps struct {
	Store    storage.UserStore
	DBState  func() string
	Fallback catalog.Fallback
	Logger   *zap.Logger
	Registry *prometheus.Registry
}

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, deps Deps) *Server {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           NewHandler(cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          zap.NewStdLog(deps.Logger.Named("http")),
	}

	return &Server{inner: httpServer}
}

// NewHandler builds the routing table wrapped in the middleware chain.
func NewHandler(cfg config.Config, deps Deps) http.Handler {
	logger := deps.Logger
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(time.Now(), deps.Store, deps.DBState, logger)
	health.Register(mux)
	users := handlers.NewUserHandler(deps.Store, logger)
	users.Register(mux)

	proxy := catalog.NewProxy(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, deps.Fallback,
		catalog.WithLogger(logger),
		catalog.WithMetrics(catalog.NewMetrics(deps.Registry)),
	)
	mux.Handle(catalog.MountPath, proxy)
	mux.Handle(catalog.MountPath+"/", proxy)

	mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))

	frontend := handlers.NewFrontendHandler(cfg.StaticDir)
	frontend.Register(mux)

	var handler http.Handler = middleware.NewHTTPMetrics(deps.Registry).Wrap(mux)
	handler = middleware.Logging(logger, handler)
	handler = middleware.CORS(cfg.CORSOrigins, handler)
	handler = middleware.RequestID(handler)
	return middleware.Recovery(logger, handler)
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}

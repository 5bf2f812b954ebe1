package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/desenyon/infiniteidea-sub000/internal/logging"
	"github.com/desenyon/infiniteidea-sub000/pkg/backend/handlers"
	"github.com/desenyon/infiniteidea-sub000/pkg/backend/middleware"
	"github.com/desenyon/infiniteidea-sub000/pkg/backendtypes"
)

// Dispatcher is what the server needs from the dispatcher.
type Dispatcher interface {
	handlers.Dispatcher
	handlers.StateReporter
}

// Deps are the components the server exposes.
type Deps struct {
	Dispatcher Dispatcher
	Blueprints handlers.BlueprintService

	// DefaultProvider serves raw generations that name no provider.
	DefaultProvider string

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   logging.Logger
}

// Server represents the backend HTTP server that ties all components together
type Server struct {
	config     backendtypes.ServerConfig
	deps       Deps
	logger     logging.Logger
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a server. Routes are registered immediately; nothing
// listens until Start.
func NewServer(config backendtypes.ServerConfig, deps Deps) (*Server, error) {
	if deps.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if deps.Blueprints == nil {
		return nil, errors.New("blueprint service is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger,
		mux:    http.NewServeMux(),
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes registers all HTTP routes with their corresponding handlers
func (s *Server) setupRoutes() {
	health := handlers.NewHealthHandler(s.deps.Dispatcher, s.config.Version)
	providers := handlers.NewProviderHandler(s.deps.Dispatcher)
	generate := handlers.NewGenerateHandler(s.deps.Dispatcher, s.deps.DefaultProvider, s.logger)
	blueprints := handlers.NewBlueprintHandler(s.deps.Blueprints)

	s.mux.HandleFunc("/health", health.Health)
	s.mux.HandleFunc("/status", health.Status)
	s.mux.HandleFunc("/version", health.Version)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	s.mux.HandleFunc("/api/providers", providers.ListProviders)

	s.mux.HandleFunc("/api/generate", generate.Generate)
	s.mux.HandleFunc("/api/generate/stream", generate.Stream)

	s.mux.HandleFunc("/api/blueprints", blueprints.Generate)
	s.mux.HandleFunc("/api/blueprints/regenerate", blueprints.Regenerate)
	s.mux.HandleFunc("/api/blueprints/optimize", blueprints.Optimize)
	s.mux.HandleFunc("/api/blueprints/validate", blueprints.Validate)
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.applyMiddleware(s.mux)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting server", logging.Fields{
		"addr":      s.Addr(),
		"version":   s.config.Version,
		"providers": len(s.deps.Dispatcher.Snapshot()),
	})
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server", nil)
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	s.logger.Info("server shutdown complete", nil)
	return nil
}

// applyMiddleware builds the middleware chain and applies it to the handler.
// Execution order: Recovery -> RequestID -> Logging -> CORS -> Handler
func (s *Server) applyMiddleware(h http.Handler) http.Handler {
	if s.config.CORS.Enabled {
		h = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: s.config.CORS.AllowedOrigins,
			AllowedMethods: s.config.CORS.AllowedMethods,
			AllowedHeaders: s.config.CORS.AllowedHeaders,
		})(h)
	}
	h = middleware.Logging(s.logger)(h)
	h = middleware.RequestID(h)
	h = middleware.Recovery(s.logger)(h)
	return h
}

// ListenAndServeWithGracefulShutdown starts the server and shuts it down
// once shutdownSignal closes.
func (s *Server) ListenAndServeWithGracefulShutdown(shutdownSignal <-chan struct{}) error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-shutdownSignal:
		timeout := s.config.ShutdownTimeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		return s.Shutdown(ctx)
	}
}

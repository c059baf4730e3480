package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/pagerender"
	"github.com/vango-dev/pagerender/pkg/middleware"
)

// Server serves the pages of an engine over HTTP.
type Server struct {
	engine *pagerender.Engine
	config *ServerConfig

	router chi.Router

	// Observability
	metrics  *middleware.Metrics
	gatherer prometheus.Gatherer
	otelOpts []middleware.OTelOption
	tracing  bool

	pageContext PageContextFunc

	httpServer *http.Server
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics counts requests with m and exposes g at the metrics path.
// A nil g exposes the default gatherer.
func WithMetrics(m *middleware.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithTracing starts a span per request.
func WithTracing(opts ...middleware.OTelOption) Option {
	return func(s *Server) {
		s.tracing = true
		s.otelOpts = opts
	}
}

// WithPageContext extends the initial page context of every request.
func WithPageContext(fn PageContextFunc) Option {
	return func(s *Server) {
		s.pageContext = fn
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server for engine. Routes registered with Handle take
// precedence over static files, which take precedence over pages.
func New(engine *pagerender.Engine, config *ServerConfig, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		config: config.withDefaults(),
		logger: slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if s.tracing {
		r.Use(middleware.OpenTelemetry(s.otelOpts...))
	}
	if s.metrics != nil {
		r.Use(s.metrics.Handler)
		gatherer := s.gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		if s.config.MetricsPath != "" {
			r.Handle(s.config.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		}
	}

	var pages http.Handler = PageHandler(engine, HandlerOptions{
		PageContext: s.pageContext,
		Logger:      s.logger,
	})
	if s.config.StaticDir != "" {
		pages = staticHandler(s.config.StaticDir, engine.BaseURL(), pages)
	}
	r.Handle("/*", pages)

	s.router = r
	return s
}

// Handle registers h for pattern, ahead of pages.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.router.Handle(pattern, h)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run starts the server and blocks until ctx is done or the process is
// interrupted, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address, "base_url", s.engine.BaseURL())
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Package server provides the ops HTTP server: health, Prometheus metrics
// and read-only JSON views of sources and dispatch state.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"snaptrigger/internal/dispatcher"
	"snaptrigger/internal/logging"
	"snaptrigger/internal/source"
)

// Version is set at build time.
var Version = "dev"

// Dispatcher is the view of the dispatcher the server reports on.
type Dispatcher interface {
	IsRunning() bool
	Stats() dispatcher.Stats
	IngestQueueDepth() int
	IngestQueueCapacity() int
}

// Config holds server configuration.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:9464".
	Addr string

	Registry   *source.Registry
	Dispatcher Dispatcher

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// APIRate and APIBurst bound /api requests per client IP.
	// Defaults: 5/s, burst 10.
	APIRate  rate.Limit
	APIBurst int

	// Logger for structured logging.
	Logger *slog.Logger
}

// Server serves the ops endpoints.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	startTime time.Time
	limiter   *rateLimiter
	router    chi.Router

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server. It does not listen until Run.
func New(cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.APIRate == 0 {
		cfg.APIRate = 5
	}
	if cfg.APIBurst == 0 {
		cfg.APIBurst = 10
	}
	s := &Server{
		cfg:       cfg,
		logger:    logging.Default(cfg.Logger).With("component", "server"),
		startTime: time.Now(),
		limiter:   newRateLimiter(cfg.APIRate, cfg.APIBurst),
	}
	s.router = s.routes()
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}))

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(rateLimitMiddleware(s.limiter))
		api.Get("/sources", s.handleSources)
		api.Get("/stats", s.handleStats)
	})
	return r
}

// Run listens and serves until ctx is cancelled, then shuts down with a
// 5 second grace period.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var wg sync.WaitGroup
	s.limiter.startCleanup(ctx, &wg, time.Minute, 10*time.Minute)
	defer wg.Wait()

	s.logger.Info("ops server starting", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("ops server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Addr returns the listener address. Only valid after Run has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

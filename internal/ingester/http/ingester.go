// Package http provides an HTTP ingester that accepts capture triggers as
// plain POST requests.
package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"snaptrigger/internal/logging"
	"snaptrigger/internal/trigger"
)

// Ingester accepts triggers over HTTP. It implements trigger.Ingester.
//
// Routes:
//   - POST /trigger/{source}: the path names the source, the body is ignored
//   - POST /trigger: the body is the source name, like an MQTT payload
//   - GET /ready: liveness for load balancers
//
// Accepted triggers answer 202; acceptance means handed to the dispatcher,
// not captured. When Token is set, requests must carry it as a bearer token.
type Ingester struct {
	id       string
	addr     string
	token    string
	out      chan<- trigger.Event
	logger   *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// Config holds HTTP ingester configuration.
type Config struct {
	// ID is the ingester's config identifier.
	ID string

	// Addr is the address to listen on (e.g., ":8089", "127.0.0.1:8089").
	Addr string

	// Token, if set, is required as "Authorization: Bearer <token>".
	Token string //nolint:gosec // G117: config field, not a hardcoded credential

	// Logger for structured logging.
	Logger *slog.Logger
}

// New creates a new HTTP ingester.
func New(cfg Config) *Ingester {
	return &Ingester{
		id:     cfg.ID,
		addr:   cfg.Addr,
		token:  cfg.Token,
		logger: logging.Default(cfg.Logger).With("component", "ingester", "type", "http", "ingester", cfg.ID),
	}
}

// handlerFor binds the output channel and returns the ingester's routes.
func (r *Ingester) handlerFor(out chan<- trigger.Event) http.Handler {
	r.out = out

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Group(func(g chi.Router) {
		g.Use(r.authenticate)
		g.Post("/trigger/{source}", r.handlePath)
		g.Post("/trigger", r.handleBody)
	})
	return mux
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (r *Ingester) Run(ctx context.Context, out chan<- trigger.Event) error {
	srv := &http.Server{
		Handler:           r.handlerFor(out),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.listener = ln
	r.mu.Unlock()

	r.logger.Info("http ingester starting", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("http ingester stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr returns the listener address, or nil until Run is listening.
func (r *Ingester) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

func (r *Ingester) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.token != "" {
			got, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(r.token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Ingester) handlePath(w http.ResponseWriter, req *http.Request) {
	r.accept(w, req, trigger.ParsePayload([]byte(chi.URLParam(req, "source"))))
}

func (r *Ingester) handleBody(w http.ResponseWriter, req *http.Request) {
	data, err := io.ReadAll(io.LimitReader(req.Body, trigger.MaxPayload+1))
	if err != nil {
		http.Error(w, "failed to read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	r.accept(w, req, trigger.ParsePayload(data))
}

func (r *Ingester) accept(w http.ResponseWriter, req *http.Request, name string) {
	if name == "" {
		http.Error(w, "source name is required", http.StatusBadRequest)
		return
	}
	if c := cap(r.out); c > 0 && len(r.out) >= c*9/10 {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "queue full, retry later", http.StatusTooManyRequests)
		return
	}

	ev := trigger.NewEvent(name, r.id, req.RemoteAddr, time.Now())
	if !trigger.Emit(req.Context(), r.out, ev) {
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Package dispatcher routes trigger events to per-source capture lanes.
//
// Pipeline:
//
//	ingesters → ingest channel → Handle → registry → rate limiter → serializer
//	  → capture pool → notifier
//
// Handle is bounded-time and never blocks on a source: every trigger is either
// queued on its source's lane or dropped with a log line and a metric. Drops
// are silent to the sender; there is no negative acknowledgement upstream.
//
// Logging:
//   - Logger is dependency-injected via Config.Logger
//   - Dispatcher owns its scoped logger (component="dispatcher")
//   - One line per trigger outcome and per capture result
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"snaptrigger/internal/capture"
	"snaptrigger/internal/logging"
	"snaptrigger/internal/metrics"
	"snaptrigger/internal/ratelimit"
	"snaptrigger/internal/serializer"
	"snaptrigger/internal/source"
	"snaptrigger/internal/trigger"
)

// DefaultIngestBuffer is the default capacity of the ingest channel.
const DefaultIngestBuffer = 64

var (
	// ErrAlreadyRunning is returned by Start on a running dispatcher.
	ErrAlreadyRunning = errors.New("dispatcher already running")
	// ErrNotRunning is returned by Stop on a dispatcher that is not running.
	ErrNotRunning = errors.New("dispatcher not running")
)

// Capturer runs one capture under the global concurrency bound.
// *capture.Pool implements it.
type Capturer interface {
	Capture(ctx context.Context, src source.Source) (capture.Result, error)
}

// Notifier accepts capture results for asynchronous delivery.
// *notifier.Notifier implements it.
type Notifier interface {
	Notify(r capture.Result) bool
}

// Config configures a Dispatcher.
type Config struct {
	Registry *source.Registry
	Limiter  *ratelimit.Limiter
	Pool     Capturer
	Notifier Notifier

	// QueueDepth is the per-source queue capacity. Defaults to 3.
	QueueDepth int

	// IngestBuffer is the ingest channel capacity. Defaults to 64.
	IngestBuffer int

	// Now returns the current time for rate limiting. Defaults to time.Now.
	Now func() time.Time

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Dispatcher owns the ingest loop and the per-source lanes.
type Dispatcher struct {
	registry   *source.Registry
	limiter    *ratelimit.Limiter
	pool       Capturer
	notifier   Notifier
	depth      int
	ingestSize int
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     *slog.Logger
	baseLogger *slog.Logger // unscoped, handed to the serializer

	serializer atomic.Pointer[serializer.Serializer]
	counts     [numOutcomes]atomic.Int64

	mu              sync.Mutex
	running         bool
	cancel          context.CancelFunc
	ingestCh        chan trigger.Event
	ingesters       map[string]trigger.Ingester
	ingesterOrder   []string
	ingesterCancels map[string]context.CancelFunc
	ingesterWg      sync.WaitGroup
	loopWg          sync.WaitGroup
}

// New creates a Dispatcher. Registry, Limiter, Pool and Notifier are required.
func New(cfg Config) *Dispatcher {
	if cfg.IngestBuffer <= 0 {
		cfg.IngestBuffer = DefaultIngestBuffer
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = serializer.DefaultDepth
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	base := logging.Default(cfg.Logger)
	return &Dispatcher{
		registry:        cfg.Registry,
		limiter:         cfg.Limiter,
		pool:            cfg.Pool,
		notifier:        cfg.Notifier,
		depth:           cfg.QueueDepth,
		ingestSize:      cfg.IngestBuffer,
		now:             cfg.Now,
		metrics:         cfg.Metrics,
		logger:          base.With("component", "dispatcher"),
		baseLogger:      base,
		ingesters:       make(map[string]trigger.Ingester),
		ingesterCancels: make(map[string]context.CancelFunc),
	}
}

// RegisterIngester adds an ingester to be launched by Start.
func (d *Dispatcher) RegisterIngester(id string, ing trigger.Ingester) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrAlreadyRunning
	}
	if _, dup := d.ingesters[id]; dup {
		return errors.New("duplicate ingester id: " + id)
	}
	d.ingesters[id] = ing
	d.ingesterOrder = append(d.ingesterOrder, id)
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// IngestQueueDepth returns the number of events waiting in the ingest channel.
func (d *Dispatcher) IngestQueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ingestCh)
}

// IngestQueueCapacity returns the ingest channel capacity.
func (d *Dispatcher) IngestQueueCapacity() int {
	return d.ingestSize
}

// Package notifier delivers capture results to a notification sink.
//
// Delivery is asynchronous and best-effort: Notify never blocks the capture
// pipeline. Results are buffered and handed to a small set of workers; when
// the buffer is full the result is dropped and logged. Sink failures are
// logged and counted, never retried or propagated.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"snaptrigger/internal/capture"
	"snaptrigger/internal/logging"
	"snaptrigger/internal/metrics"
)

// Defaults.
const (
	DefaultBuffer  = 32
	DefaultWorkers = 2
	DefaultTimeout = 15 * time.Second
)

// Sink is an outbound notification channel.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// SendImage delivers a JPEG with a caption.
	SendImage(ctx context.Context, image []byte, caption string) error

	// SendText delivers a plain text message.
	SendText(ctx context.Context, text string) error
}

// Config configures a Notifier.
type Config struct {
	// Sink receives deliveries. Required.
	Sink Sink

	// Buffer is the number of results that may wait for a worker. Defaults to 32.
	Buffer int

	// Workers is the number of concurrent deliveries. Defaults to 2.
	Workers int

	// Timeout bounds each delivery. Defaults to 15s.
	Timeout time.Duration

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Notifier turns capture results into sink deliveries.
type Notifier struct {
	sink    Sink
	workers int
	timeout time.Duration
	ch      chan capture.Result
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.RWMutex // guards closed and started against Notify/Close
	closed  bool
	started bool
	ctx     context.Context
	wg      sync.WaitGroup
}

// New creates a Notifier. Call Start to launch the workers.
func New(cfg Config) *Notifier {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Notifier{
		sink:    cfg.Sink,
		workers: cfg.Workers,
		timeout: cfg.Timeout,
		ch:      make(chan capture.Result, cfg.Buffer),
		metrics: cfg.Metrics,
		logger:  logging.Default(cfg.Logger).With("component", "notifier", "sink", cfg.Sink.Name()),
		ctx:     context.Background(),
	}
}

// Start launches the delivery workers. Deliveries inherit ctx's values but
// not its cancellation, so buffered results still go out during shutdown.
func (n *Notifier) Start(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started || n.closed {
		return
	}
	n.started = true
	n.ctx = context.WithoutCancel(ctx)

	for range n.workers {
		n.wg.Go(n.work)
	}
	n.logger.Info("notifier started", "workers", n.workers, "buffer", cap(n.ch))
}

// Notify queues r for delivery without blocking. It reports false when the
// result was dropped because the buffer is full or the notifier is closed.
func (n *Notifier) Notify(r capture.Result) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		n.logger.Warn("notifier closed, dropping result", "source", r.Source, "outcome", r.Outcome())
		n.metrics.Notification(n.sink.Name(), kindOf(r), "dropped")
		return false
	}
	select {
	case n.ch <- r:
		return true
	default:
		n.logger.Warn("notification buffer full, dropping result", "source", r.Source, "outcome", r.Outcome())
		n.metrics.Notification(n.sink.Name(), kindOf(r), "dropped")
		return false
	}
}

// Close stops accepting results and waits until every buffered result has
// been delivered (or has failed). Close is idempotent.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	started := n.started
	close(n.ch)
	n.mu.Unlock()

	if !started {
		// Never started: deliver what was buffered inline.
		n.work()
	}
	n.wg.Wait()
	n.logger.Info("notifier stopped")
}

func (n *Notifier) work() {
	for r := range n.ch {
		_ = n.Deliver(n.ctx, r)
	}
}

// Deliver sends r synchronously: the image with its caption on success, the
// alert text on failure. Errors are logged and counted as well as returned.
func (n *Notifier) Deliver(ctx context.Context, r capture.Result) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	kind := kindOf(r)
	var err error
	if r.OK() {
		err = n.sink.SendImage(ctx, r.Image, Caption(r))
	} else {
		err = n.sink.SendText(ctx, Alert(r))
	}
	if err != nil {
		n.metrics.Notification(n.sink.Name(), kind, "failed")
		n.logger.Error("notification delivery failed", "source", r.Source, "kind", kind, "error", err)
		return fmt.Errorf("deliver %s to %s: %w", kind, n.sink.Name(), err)
	}
	n.metrics.Notification(n.sink.Name(), kind, "ok")
	n.logger.Debug("notification delivered", "source", r.Source, "kind", kind)
	return nil
}

func kindOf(r capture.Result) string {
	if r.OK() {
		return "image"
	}
	return "text"
}

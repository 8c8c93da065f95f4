// Package serializer runs at most one capture at a time per source.
//
// Every configured source owns a lane: a bounded FIFO of pending triggers and
// a single worker goroutine that takes one trigger at a time and runs the
// handler for it. Lanes are independent; a slow or hung source only ever
// backs up its own queue.
//
// Concurrency model:
//   - Enqueue never blocks; a full queue is reported as QueueFull
//   - Each lane's busy flag is written only by that lane's worker
//   - Stop lets each worker finish its current handler call and discards
//     whatever is still queued
package serializer

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"snaptrigger/internal/logging"
	"snaptrigger/internal/trigger"
)

// DefaultDepth is the default per-source queue capacity.
const DefaultDepth = 3

// Status is the result of Enqueue.
type Status int

const (
	// Accepted means the trigger was queued.
	Accepted Status = iota
	// QueueFull means the source's queue was at capacity.
	QueueFull
	// UnknownSource means no lane exists for the trigger's source.
	UnknownSource
	// Closed means the serializer is stopping.
	Closed
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case QueueFull:
		return "queue_full"
	case UnknownSource:
		return "unknown_source"
	case Closed:
		return "closed"
	default:
		return "invalid"
	}
}

// Handler processes one trigger. ctx is cancelled when the serializer stops.
type Handler func(ctx context.Context, ev trigger.Event)

// Config configures a Serializer.
type Config struct {
	// Sources lists the lanes to create. Duplicates are ignored.
	Sources []string

	// Depth is the per-source queue capacity. Defaults to 3.
	Depth int

	// Handler runs for each dequeued trigger. Required.
	Handler Handler

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// LaneState is a point-in-time view of one lane.
type LaneState struct {
	Name      string
	Pending   int
	Busy      bool
	Processed int64
}

type lane struct {
	name      string
	queue     chan trigger.Event
	busy      atomic.Bool
	processed atomic.Int64
}

// Serializer owns one lane per source.
type Serializer struct {
	lanes   map[string]*lane
	names   []string
	depth   int
	handler Handler
	logger  *slog.Logger

	mu      sync.RWMutex // guards closed and started against Enqueue/Start/Stop
	closed  bool
	started bool
	cancel  context.CancelFunc
	stop    chan struct{}
	wg      sync.WaitGroup

	discarded atomic.Int64
}

// New creates a Serializer with an eager lane for every source.
func New(cfg Config) *Serializer {
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultDepth
	}
	s := &Serializer{
		lanes:   make(map[string]*lane, len(cfg.Sources)),
		depth:   cfg.Depth,
		handler: cfg.Handler,
		logger:  logging.Default(cfg.Logger).With("component", "serializer"),
		stop:    make(chan struct{}),
	}
	for _, name := range cfg.Sources {
		if _, ok := s.lanes[name]; ok {
			continue
		}
		s.lanes[name] = &lane{name: name, queue: make(chan trigger.Event, cfg.Depth)}
		s.names = append(s.names, name)
	}
	slices.Sort(s.names)
	return s
}

// Depth returns the per-source queue capacity.
func (s *Serializer) Depth() int { return s.depth }

// Start launches one worker per lane. Calling Start twice or after Stop is a
// no-op.
func (s *Serializer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, name := range s.names {
		l := s.lanes[name]
		s.wg.Go(func() { s.work(ctx, l) })
	}
	s.logger.Info("serializer started", "lanes", len(s.names), "depth", s.depth)
}

// Closed reports whether Stop has been called.
func (s *Serializer) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Enqueue appends ev to its source's queue without blocking.
func (s *Serializer) Enqueue(ev trigger.Event) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Closed
	}
	l, ok := s.lanes[ev.Source]
	if !ok {
		return UnknownSource
	}
	select {
	case l.queue <- ev:
		return Accepted
	default:
		return QueueFull
	}
}

// work is a lane's worker loop.
func (s *Serializer) work(ctx context.Context, l *lane) {
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case ev := <-l.queue:
			// Stop may have raced with the receive; queued work is discarded.
			select {
			case <-s.stop:
				s.discard(l, ev)
				return
			default:
			}
			l.busy.Store(true)
			s.handler(ctx, ev)
			l.busy.Store(false)
			l.processed.Add(1)
		}
	}
}

func (s *Serializer) discard(l *lane, ev trigger.Event) {
	s.discarded.Add(1)
	s.logger.Info("discarding queued trigger", "source", l.name, "event", ev.ID)
}

// Stop stops accepting triggers, waits for each lane's in-flight handler to
// return and discards everything still queued. It returns the number of
// triggers discarded by this call. Stop is idempotent.
func (s *Serializer) Stop() int {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	before := s.discarded.Load()
	close(s.stop)
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	for _, name := range s.names {
		s.drain(s.lanes[name])
	}

	n := int(s.discarded.Load() - before)
	s.logger.Info("serializer stopped", "discarded", n)
	return n
}

func (s *Serializer) drain(l *lane) {
	for {
		select {
		case ev := <-l.queue:
			s.discard(l, ev)
		default:
			return
		}
	}
}

// Discarded returns the total number of triggers discarded at shutdown.
func (s *Serializer) Discarded() int64 {
	return s.discarded.Load()
}

// Snapshot returns the state of every lane, ordered by source name.
func (s *Serializer) Snapshot() []LaneState {
	out := make([]LaneState, 0, len(s.names))
	for _, name := range s.names {
		l := s.lanes[name]
		out = append(out, LaneState{
			Name:      name,
			Pending:   len(l.queue),
			Busy:      l.busy.Load(),
			Processed: l.processed.Load(),
		})
	}
	return out
}

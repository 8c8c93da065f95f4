package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"snaptrigger/internal/logging"
	"snaptrigger/internal/source"
)

// DefaultPoolSize is the default number of concurrent captures.
const DefaultPoolSize = 3

// Config configures a Pool.
type Config struct {
	// Size is the maximum number of captures running at once. Defaults to 3.
	Size int

	// Capturers selects the frame grabber for each source kind.
	Capturers map[source.Kind]Capturer

	// Encoder post-processes successful frames. Optional.
	Encoder Encoder

	// Timeouts bound each capture. Zero fields default to 3s.
	Timeouts Timeouts

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Pool executes captures with a global concurrency bound.
type Pool struct {
	sem       *semaphore.Weighted
	size      int
	capturers map[source.Kind]Capturer
	encoder   Encoder
	timeouts  Timeouts
	now       func() time.Time
	inFlight  atomic.Int64
	logger    *slog.Logger
}

// NewPool creates a Pool.
func NewPool(cfg Config) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = DefaultPoolSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pool{
		sem:       semaphore.NewWeighted(int64(cfg.Size)),
		size:      cfg.Size,
		capturers: cfg.Capturers,
		encoder:   cfg.Encoder,
		timeouts:  cfg.Timeouts.withDefaults(),
		now:       cfg.Now,
		logger:    logging.Default(cfg.Logger).With("component", "capture-pool"),
	}
}

// Size returns the configured concurrency bound.
func (p *Pool) Size() int { return p.size }

// InFlight returns the number of captures currently holding a slot.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// Timeouts returns the effective capture timeouts.
func (p *Pool) Timeouts() Timeouts { return p.timeouts }

// Capture waits for a free slot and captures one frame from src.
//
// ctx only governs the wait for a slot: if it ends first, Capture returns an
// error wrapping ErrNoSlot and no Result. Once a slot is held the capture runs
// to completion or to its deadline regardless of ctx, and the returned Result
// carries either the image or the classified failure. The slot is released on
// every path.
func (p *Pool) Capture(ctx context.Context, src source.Source) (Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrNoSlot, err)
	}
	defer p.sem.Release(1)

	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	start := p.now()
	img, cerr := p.grab(ctx, src)
	if cerr == nil && p.encoder != nil {
		out, err := p.encoder.Encode(img)
		if err != nil {
			cerr = Encode(err)
		} else {
			img = out
		}
	}

	r := Result{
		Source:   src.Name,
		Started:  start,
		Duration: p.now().Sub(start),
	}
	if cerr != nil {
		r.Err = cerr
		p.logger.Debug("capture failed", "source", src.Name, "kind", cerr.Kind, "error", cerr.Err, "duration", r.Duration)
	} else {
		r.Image = img
		p.logger.Debug("capture done", "source", src.Name, "bytes", len(img), "duration", r.Duration)
	}
	return r, nil
}

// grab runs the source's capturer under the timeout budget. The capturer runs
// on its own goroutine so that one ignoring its context cannot hold the slot
// past the deadline.
func (p *Pool) grab(ctx context.Context, src source.Source) ([]byte, *Error) {
	c, ok := p.capturers[src.Kind]
	if !ok {
		return nil, Open(fmt.Errorf("no capturer for source kind %q", src.Kind))
	}

	budget := p.timeouts.Total()
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	type outcome struct {
		img []byte
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		img, err := c.Capture(runCtx, src, p.timeouts)
		done <- outcome{img: img, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, classify(runCtx, o.err, budget)
		}
		if len(o.img) == 0 {
			return nil, Read(errors.New("empty frame"))
		}
		return o.img, nil
	case <-runCtx.Done():
		p.logger.Warn("capture exceeded deadline", "source", src.Name, "budget", budget)
		return nil, timeoutError(budget)
	}
}

// classify maps a capturer error to a Kind. A fired deadline always wins,
// since capturers killed by it tend to report secondary errors.
func classify(ctx context.Context, err error, budget time.Duration) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(budget)
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return Read(err)
}

func timeoutError(budget time.Duration) *Error {
	return &Error{Kind: Timeout, Err: fmt.Errorf("no frame within %s", budget)}
}

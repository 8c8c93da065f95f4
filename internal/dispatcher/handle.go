package dispatcher

import (
	"context"
	"errors"

	"snaptrigger/internal/capture"
	"snaptrigger/internal/serializer"
	"snaptrigger/internal/trigger"
)

// Outcome is the dispatch result for one trigger.
type Outcome int

const (
	// Dispatched means the trigger was queued on its source's lane.
	Dispatched Outcome = iota
	// UnknownSource means the name is not configured.
	UnknownSource
	// RateLimited means the source's admission window was full.
	RateLimited
	// QueueFull means the source's lane had no room.
	QueueFull
	// Stopped means the dispatcher is not accepting triggers.
	Stopped

	numOutcomes
)

func (o Outcome) String() string {
	switch o {
	case Dispatched:
		return "dispatched"
	case UnknownSource:
		return "unknown_source"
	case RateLimited:
		return "rate_limited"
	case QueueFull:
		return "queue_full"
	case Stopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// Handle routes one trigger. It never blocks on a source.
func (d *Dispatcher) Handle(ev trigger.Event) Outcome {
	out := d.route(ev)
	d.counts[out].Add(1)
	d.metrics.Trigger(ev.Source, out.String())
	return out
}

func (d *Dispatcher) route(ev trigger.Event) Outcome {
	if _, err := d.registry.Lookup(ev.Source); err != nil {
		d.logger.Warn("trigger for unknown source", "source", ev.Source, "ingester", ev.IngesterID, "origin", ev.Origin)
		return UnknownSource
	}

	ser := d.serializer.Load()
	if ser == nil || ser.Closed() {
		return Stopped
	}

	if !d.limiter.Admit(ev.Source, d.now()) {
		d.logger.Info("trigger rate limited", "source", ev.Source, "event", ev.ID)
		return RateLimited
	}

	switch st := ser.Enqueue(ev); st {
	case serializer.Accepted:
		d.logger.Debug("trigger dispatched", "source", ev.Source, "event", ev.ID, "ingester", ev.IngesterID)
		return Dispatched
	case serializer.QueueFull:
		d.logger.Warn("source queue full, dropping trigger", "source", ev.Source, "event", ev.ID, "depth", d.depth)
		return QueueFull
	case serializer.UnknownSource:
		return UnknownSource
	default:
		// Stop raced the check above; the admission is not refunded.
		d.logger.Info("dispatcher stopping, dropping trigger", "source", ev.Source, "event", ev.ID)
		return Stopped
	}
}

// capture is the lane handler: one capture, then hand the result to the
// notifier.
func (d *Dispatcher) capture(ctx context.Context, ev trigger.Event) {
	src, err := d.registry.Lookup(ev.Source)
	if err != nil {
		return
	}

	r, err := d.pool.Capture(ctx, src)
	if err != nil {
		if errors.Is(err, capture.ErrNoSlot) {
			d.logger.Info("capture abandoned at shutdown", "source", src.Name, "event", ev.ID)
			d.metrics.Discarded(1)
			return
		}
		d.logger.Error("capture error", "source", src.Name, "event", ev.ID, "error", err)
		return
	}
	r.EventID = ev.ID
	d.metrics.Capture(src.Name, r.Outcome(), r.Duration)

	if r.OK() {
		d.logger.Info("capture succeeded", "source", src.Name, "event", ev.ID, "bytes", len(r.Image), "duration", r.Duration)
	} else {
		d.logger.Warn("capture failed", "source", src.Name, "event", ev.ID, "kind", r.Err.Kind, "error", r.Err.Err, "duration", r.Duration)
	}
	d.notifier.Notify(r)
}

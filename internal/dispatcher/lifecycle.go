package dispatcher

import (
	"context"
	"errors"

	"snaptrigger/internal/serializer"
	"snaptrigger/internal/trigger"
)

// Start creates the lanes, launches every registered ingester and starts the
// ingest loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.ingestCh = make(chan trigger.Event, d.ingestSize)

	ser := serializer.New(serializer.Config{
		Sources: d.registry.Names(),
		Depth:   d.depth,
		Handler: d.capture,
		Logger:  d.baseLogger,
	})
	ser.Start(ctx)
	d.serializer.Store(ser)

	d.logger.Info("starting dispatcher",
		"sources", d.registry.Len(),
		"ingesters", len(d.ingesters),
		"queue_depth", d.depth,
		"burst", d.limiter.Burst(),
		"window", d.limiter.Window())

	for _, id := range d.ingesterOrder {
		ing := d.ingesters[id]
		ingCtx, ingCancel := context.WithCancel(ctx)
		d.ingesterCancels[id] = ingCancel
		d.logger.Info("starting ingester", "id", id)
		d.ingesterWg.Go(func() {
			if err := ing.Run(ingCtx, d.ingestCh); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("ingester exited", "id", id, "error", err)
			}
		})
	}

	ingestCh := d.ingestCh
	d.loopWg.Go(func() { d.ingestLoop(ingestCh) })
	return nil
}

// Stop shuts the pipeline down in order and waits for it.
//
// Ordered shutdown:
//  1. Cancel ingester contexts so no new triggers arrive
//  2. Serializer.Stop(): lanes stop accepting, in-flight captures finish or
//     time out, queued triggers are discarded
//  3. ingesterWg.Wait() → close ingestCh → loopWg.Wait(); anything still in
//     the ingest channel is routed to Stopped
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrNotRunning
	}
	cancel := d.cancel
	ingestCh := d.ingestCh
	for _, ingCancel := range d.ingesterCancels {
		ingCancel()
	}
	d.mu.Unlock()

	// Stage 2: lanes.
	discarded := d.serializer.Load().Stop()
	d.metrics.Discarded(discarded)

	// Stage 3: ingesters, then the ingest loop.
	d.ingesterWg.Wait()
	close(ingestCh)
	d.loopWg.Wait()
	cancel()

	d.mu.Lock()
	d.running = false
	d.cancel = nil
	d.ingestCh = nil
	d.ingesterCancels = make(map[string]context.CancelFunc)
	d.mu.Unlock()

	d.logger.Info("dispatcher stopped", "discarded", discarded)
	return nil
}

// ingestLoop routes events until the ingest channel is closed.
func (d *Dispatcher) ingestLoop(in <-chan trigger.Event) {
	for ev := range in {
		d.metrics.Ingested(ev.IngesterID)
		d.Handle(ev)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"snaptrigger/internal/dispatcher"
	"snaptrigger/internal/metrics"
	"snaptrigger/internal/notifier"
	"snaptrigger/internal/ratelimit"
	"snaptrigger/internal/server"
)

// shutdownGrace is added to the capture and delivery budgets to bound how
// long shutdown may take.
const shutdownGrace = 5 * time.Second

// serve runs the dispatcher until ctx is cancelled, then shuts down in
// order: ingesters, lanes and in-flight captures, pending notifications.
func serve(ctx context.Context, env *environment) error {
	cfg, logger := env.cfg, env.logger
	server.Version = version

	reg, err := cfg.Registry()
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg, version, reg.Names())

	pool := buildPool(cfg.Capture, logger)

	sink, err := buildSink(cfg.Notify, logger)
	if err != nil {
		return err
	}
	notif := notifier.New(notifier.Config{
		Sink:    sink,
		Buffer:  cfg.Notify.Buffer,
		Workers: cfg.Notify.Workers,
		Timeout: cfg.Notify.Timeout,
		Metrics: m,
		Logger:  logger,
	})

	disp := dispatcher.New(dispatcher.Config{
		Registry: reg,
		Limiter: ratelimit.New(ratelimit.Config{
			Burst:  cfg.RateLimit.Burst,
			Window: cfg.RateLimit.Window,
		}),
		Pool:         pool,
		Notifier:     notif,
		QueueDepth:   cfg.Dispatch.QueueDepth,
		IngestBuffer: cfg.Dispatch.IngestBuffer,
		Metrics:      m,
		Logger:       logger,
	})

	ingesters, err := buildIngesters(cfg, env.home, logger)
	if err != nil {
		return err
	}
	if len(ingesters) == 0 {
		logger.Warn("no ingesters configured, nothing will trigger captures")
	}
	for _, spec := range ingesters {
		if err := disp.RegisterIngester(spec.name, spec.ing); err != nil {
			return err
		}
	}

	m.WatchGauge("captures_in_flight", "Captures currently holding a pool slot.", func() float64 {
		return float64(pool.InFlight())
	})
	m.WatchGauge("ingest_queue_depth", "Triggers waiting in the ingest queue.", func() float64 {
		return float64(disp.IngestQueueDepth())
	})
	m.WatchGauge("ingest_queue_capacity", "Capacity of the ingest queue.", func() float64 {
		return float64(disp.IngestQueueCapacity())
	})
	m.WatchLanes(func() []metrics.Lane {
		lanes := disp.Stats().Lanes
		out := make([]metrics.Lane, len(lanes))
		for i, l := range lanes {
			out[i] = metrics.Lane{Source: l.Name, Pending: l.Pending, Busy: l.Busy}
		}
		return out
	})

	notif.Start(ctx)
	if err := disp.Start(ctx); err != nil {
		notif.Close()
		return err
	}
	logger.Info("snaptrigger started",
		"version", version,
		"sources", reg.Names(),
		"ingesters", len(ingesters),
		"pool_size", pool.Size())

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.Addr != "" {
		srv := server.New(server.Config{
			Addr:       cfg.Server.Addr,
			Registry:   reg,
			Dispatcher: disp,
			Gatherer:   promReg,
			Logger:     logger,
		})
		g.Go(func() error {
			if err := srv.Run(gctx); err != nil {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	runErr := g.Wait()
	if runErr != nil {
		logger.Error("shutting down after error", "error", runErr)
	} else {
		logger.Info("shutdown signal received")
	}

	deadline := pool.Timeouts().Total() + cfg.Notify.Timeout + shutdownGrace
	if err := shutdown(disp, notif, deadline); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		return errors.Join(runErr, err)
	}
	st := disp.Stats()
	logger.Info("shutdown complete", "outcomes", st.Outcomes, "discarded", st.Discarded)
	return runErr
}

// shutdown stops the dispatcher, then drains the notifier, giving up after
// deadline. The process exits anyway; abandoned work is only logged.
func shutdown(disp *dispatcher.Dispatcher, notif *notifier.Notifier, deadline time.Duration) error {
	done := make(chan error, 1)
	go func() {
		err := disp.Stop()
		notif.Close()
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(deadline):
		return fmt.Errorf("shutdown did not finish within %s", deadline)
	}
}

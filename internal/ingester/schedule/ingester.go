// Package schedule provides an ingester that triggers captures on a cron
// schedule, for periodic snapshots without an external event.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"snaptrigger/internal/logging"
	"snaptrigger/internal/trigger"
)

// Config holds schedule ingester configuration.
type Config struct {
	ID       string
	Cron     string
	Sources  []string
	Location *time.Location
	Logger   *slog.Logger
}

// Ingester emits one trigger per configured source on every tick.
type Ingester struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new schedule ingester.
func New(cfg Config) *Ingester {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Ingester{
		cfg:    cfg,
		logger: logging.Default(cfg.Logger).With("component", "ingester", "type", "schedule", "ingester", cfg.ID),
		now:    time.Now,
	}
}

// Run schedules the job and blocks until ctx is cancelled.
func (ing *Ingester) Run(ctx context.Context, out chan<- trigger.Event) error {
	s, err := gocron.NewScheduler(gocron.WithLocation(ing.cfg.Location))
	if err != nil {
		return fmt.Errorf("create cron scheduler: %w", err)
	}

	j, err := s.NewJob(
		gocron.CronJob(ing.cfg.Cron, true),
		gocron.NewTask(ing.tick, ctx, out),
		gocron.WithName("schedule:"+ing.cfg.ID),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("create scheduled job: %w", err)
	}

	s.Start()
	next, _ := j.NextRun()
	ing.logger.Info("schedule ingester started", "cron", ing.cfg.Cron, "sources", ing.cfg.Sources, "next_run", next)

	<-ctx.Done()
	ing.logger.Info("schedule ingester stopping")
	if err := s.Shutdown(); err != nil {
		ing.logger.Warn("scheduler shutdown", "error", err)
	}
	return nil
}

// tick emits a trigger for each source in order.
func (ing *Ingester) tick(ctx context.Context, out chan<- trigger.Event) {
	at := ing.now()
	for _, src := range ing.cfg.Sources {
		if !trigger.Emit(ctx, out, trigger.NewEvent(src, ing.cfg.ID, ing.cfg.Cron, at)) {
			return
		}
	}
}

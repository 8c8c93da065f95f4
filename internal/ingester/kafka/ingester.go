// Package kafka provides a Kafka consumer ingester using franz-go.
// Each record value is a source name.
package kafka

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"

	"snaptrigger/internal/logging"
	"snaptrigger/internal/trigger"
)

// Config holds Kafka ingester configuration.
type Config struct {
	ID      string
	Brokers []string
	Topic   string
	Group   string
	TLS     bool
	Auth    sasl.Mechanism // nil for no SASL
	Logger  *slog.Logger
}

// Ingester consumes trigger records from a Kafka topic. Offsets are committed
// by the group as records are polled; a trigger lost to a crash is not
// replayed.
type Ingester struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new Kafka ingester.
func New(cfg Config) *Ingester {
	return &Ingester{
		cfg:    cfg,
		logger: logging.Default(cfg.Logger).With("component", "ingester", "type", "kafka", "ingester", cfg.ID),
		now:    time.Now,
	}
}

// clientOpts translates the config into franz-go options. A new group starts
// at the end of the topic: triggers published while snaptrigger was down are
// stale.
func (ing *Ingester) clientOpts() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(ing.cfg.Brokers...),
		kgo.ConsumeTopics(ing.cfg.Topic),
		kgo.ConsumerGroup(ing.cfg.Group),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.ClientID("snaptrigger-" + ing.cfg.ID),
	}
	if ing.cfg.TLS {
		opts = append(opts, kgo.DialTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	if ing.cfg.Auth != nil {
		opts = append(opts, kgo.SASL(ing.cfg.Auth))
	}
	return opts
}

// Run joins the consumer group and turns records into triggers until ctx is
// cancelled.
func (ing *Ingester) Run(ctx context.Context, out chan<- trigger.Event) error {
	client, err := kgo.NewClient(ing.clientOpts()...)
	if err != nil {
		return fmt.Errorf("kafka client: %w", err)
	}
	defer client.Close()

	ing.logger.Info("kafka consumer started", "brokers", ing.cfg.Brokers, "topic", ing.cfg.Topic, "group", ing.cfg.Group)

	for ctx.Err() == nil {
		ing.deliver(ctx, client.PollFetches(ctx), out)
	}

	ing.logger.Info("kafka consumer stopping")
	if err := client.CommitUncommittedOffsets(context.WithoutCancel(ctx)); err != nil {
		ing.logger.Warn("kafka offset commit failed", "error", err)
	}
	return nil
}

// deliver emits a trigger per usable record and returns how many were
// handed off. Partition errors are logged; a cancelled poll yields nothing.
func (ing *Ingester) deliver(ctx context.Context, fetches kgo.Fetches, out chan<- trigger.Event) int {
	if ctx.Err() != nil {
		return 0
	}
	fetches.EachError(func(topic string, partition int32, err error) {
		ing.logger.Warn("kafka fetch error", "topic", topic, "partition", partition, "error", err)
	})

	var n int
	for iter := fetches.RecordIter(); !iter.Done(); {
		ev, ok := ing.event(iter.Next())
		if !ok {
			continue
		}
		if !trigger.Emit(ctx, out, ev) {
			break
		}
		n++
	}
	return n
}

// event converts a record to a trigger event. Empty payloads are skipped.
func (ing *Ingester) event(rec *kgo.Record) (trigger.Event, bool) {
	name := trigger.ParsePayload(rec.Value)
	if name == "" {
		ing.logger.Debug("empty kafka trigger ignored", "partition", rec.Partition, "offset", rec.Offset)
		return trigger.Event{}, false
	}
	origin := rec.Topic + "/" + strconv.Itoa(int(rec.Partition)) + "@" + strconv.FormatInt(rec.Offset, 10)
	return trigger.NewEvent(name, ing.cfg.ID, origin, ing.now()), true
}

// Package amqp provides a RabbitMQ consumer ingester. Each delivery body is
// a source name.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"snaptrigger/internal/logging"
	"snaptrigger/internal/trigger"
)

// Reconnect backoff bounds.
const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Config holds AMQP ingester configuration.
type Config struct {
	ID         string
	URL        string
	Queue      string
	Declare    bool
	Exchange   string
	RoutingKey string
	Prefetch   int
	Logger     *slog.Logger
}

// Ingester consumes trigger deliveries from a queue. Deliveries are acked
// once handed to the dispatcher; the dispatcher's own drops are not
// reported back to the broker.
type Ingester struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new AMQP ingester.
func New(cfg Config) *Ingester {
	return &Ingester{
		cfg:    cfg,
		logger: logging.Default(cfg.Logger).With("component", "ingester", "type", "amqp", "ingester", cfg.ID),
		now:    time.Now,
	}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff
// whenever the connection or channel closes.
func (ing *Ingester) Run(ctx context.Context, out chan<- trigger.Event) error {
	backoff := minBackoff
	for {
		started := time.Now()
		err := ing.consume(ctx, out)
		if ctx.Err() != nil {
			ing.logger.Info("amqp consumer stopping")
			return nil
		}
		// A session that stayed up for a while resets the backoff.
		if time.Since(started) > maxBackoff {
			backoff = minBackoff
		}
		ing.logger.Warn("amqp consumer disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// consume runs one connection session.
func (ing *Ingester) consume(ctx context.Context, out chan<- trigger.Event) error {
	conn, err := amqp.DialConfig(ing.cfg.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": "snaptrigger-" + ing.cfg.ID,
		},
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", redact(ing.cfg.URL), err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(ing.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if ing.cfg.Declare {
		if _, err := ch.QueueDeclare(ing.cfg.Queue, false, true, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", ing.cfg.Queue, err)
		}
	}
	if ing.cfg.Exchange != "" {
		if err := ch.QueueBind(ing.cfg.Queue, ing.cfg.RoutingKey, ing.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", ing.cfg.Queue, ing.cfg.Exchange, err)
		}
	}

	deliveries, err := ch.Consume(ing.cfg.Queue, "snaptrigger-"+ing.cfg.ID, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", ing.cfg.Queue, err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	ing.logger.Info("amqp consumer started",
		"url", redact(ing.cfg.URL),
		"queue", ing.cfg.Queue,
		"exchange", ing.cfg.Exchange,
		"prefetch", ing.cfg.Prefetch,
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			ing.handle(ctx, out, d)
		}
	}
}

// handle emits one delivery. Empty bodies are rejected; deliveries that
// cannot be handed off before ctx ends are requeued.
func (ing *Ingester) handle(ctx context.Context, out chan<- trigger.Event, d amqp.Delivery) {
	name := trigger.ParsePayload(d.Body)
	if name == "" {
		ing.logger.Debug("empty amqp trigger rejected", "routing_key", d.RoutingKey)
		if err := d.Reject(false); err != nil {
			ing.logger.Warn("amqp reject failed", "error", err)
		}
		return
	}

	origin := d.Exchange + "/" + d.RoutingKey
	if !trigger.Emit(ctx, out, trigger.NewEvent(name, ing.cfg.ID, origin, ing.now())) {
		if err := d.Nack(false, true); err != nil {
			ing.logger.Warn("amqp nack failed", "error", err)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		ing.logger.Warn("amqp ack failed", "error", err)
	}
}

// redact hides the password in an AMQP URL.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}

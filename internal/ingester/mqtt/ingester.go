// Package mqtt provides an MQTT 3.1.1 subscriber ingester using the Eclipse
// Paho client. Each message payload is a source name.
package mqtt

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"snaptrigger/internal/logging"
	"snaptrigger/internal/trigger"
)

// Config holds MQTT ingester configuration.
type Config struct {
	ID             string
	Broker         string
	Topic          string
	QoS            byte
	ClientID       string
	Username       string
	Password       string //nolint:gosec // G117: config field, not a hardcoded credential
	Retained       bool
	MaxReconnect   time.Duration
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// Ingester subscribes to a topic and emits one trigger per message.
type Ingester struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new MQTT ingester.
func New(cfg Config) *Ingester {
	return &Ingester{
		cfg:    cfg,
		logger: logging.Default(cfg.Logger).With("component", "ingester", "type", "mqtt", "ingester", cfg.ID),
		now:    time.Now,
	}
}

// Run connects to the broker and blocks until ctx is cancelled. Connection
// loss is retried by the client; the subscription is renewed on every
// connect.
func (ing *Ingester) Run(ctx context.Context, out chan<- trigger.Event) error {
	handler := ing.handler(ctx, out)

	opts := paho.NewClientOptions().
		AddBroker(ing.cfg.Broker).
		SetClientID(ing.cfg.ClientID).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetMaxReconnectInterval(ing.cfg.MaxReconnect).
		SetConnectTimeout(ing.cfg.ConnectTimeout).
		SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	if ing.cfg.Username != "" {
		opts.SetUsername(ing.cfg.Username)
		opts.SetPassword(ing.cfg.Password)
	}
	opts.SetOnConnectHandler(func(c paho.Client) {
		ing.logger.Info("mqtt connected", "broker", ing.cfg.Broker, "topic", ing.cfg.Topic)
		tok := c.Subscribe(ing.cfg.Topic, ing.cfg.QoS, handler)
		go func() {
			if tok.WaitTimeout(ing.cfg.ConnectTimeout) && tok.Error() != nil {
				ing.logger.Error("mqtt subscribe failed", "topic", ing.cfg.Topic, "error", tok.Error())
			}
		}()
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		ing.logger.Warn("mqtt connection lost", "error", err)
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		ing.logger.Debug("mqtt reconnecting")
	})

	client := paho.NewClient(opts)
	// With ConnectRetry the token completes only once connected; retries
	// continue in the background.
	client.Connect()

	ing.logger.Info("mqtt ingester started", "broker", ing.cfg.Broker, "client_id", ing.cfg.ClientID)

	<-ctx.Done()
	ing.logger.Info("mqtt ingester stopping")
	if client.IsConnected() {
		client.Unsubscribe(ing.cfg.Topic).WaitTimeout(time.Second)
	}
	client.Disconnect(250)
	return nil
}

// handler returns the subscription callback. Messages arriving after ctx
// ends are dropped.
func (ing *Ingester) handler(ctx context.Context, out chan<- trigger.Event) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		if msg.Retained() && !ing.cfg.Retained {
			ing.logger.Debug("retained mqtt trigger ignored", "topic", msg.Topic())
			return
		}
		name := trigger.ParsePayload(msg.Payload())
		if name == "" {
			ing.logger.Debug("empty mqtt trigger ignored", "topic", msg.Topic())
			return
		}
		ev := trigger.NewEvent(name, ing.cfg.ID, msg.Topic(), ing.now())
		trigger.Emit(ctx, out, ev)
	}
}

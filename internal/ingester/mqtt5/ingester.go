// Package mqtt5 provides an MQTT v5 subscriber ingester built on the Paho
// autopaho connection manager.
package mqtt5

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"snaptrigger/internal/logging"
	"snaptrigger/internal/trigger"
)

// Config holds MQTT v5 ingester configuration.
type Config struct {
	ID        string
	Broker    *url.URL
	Topic     string
	QoS       byte
	ClientID  string
	Username  string
	Password  string //nolint:gosec // G117: config field, not a hardcoded credential
	Retained  bool
	KeepAlive uint16
	Logger    *slog.Logger
}

// Ingester subscribes to a topic and emits one trigger per publish.
type Ingester struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new MQTT v5 ingester.
func New(cfg Config) *Ingester {
	return &Ingester{
		cfg:    cfg,
		logger: logging.Default(cfg.Logger).With("component", "ingester", "type", "mqtt5", "ingester", cfg.ID),
		now:    time.Now,
	}
}

// Run maintains the broker connection until ctx is cancelled.
func (ing *Ingester) Run(ctx context.Context, out chan<- trigger.Event) error {
	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{ing.cfg.Broker},
		KeepAlive:                     ing.cfg.KeepAlive,
		CleanStartOnInitialConnection: true,
		ConnectUsername:               ing.cfg.Username,
		ConnectPassword:               []byte(ing.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			ing.logger.Info("mqtt5 connected", "broker", ing.cfg.Broker.Redacted(), "topic", ing.cfg.Topic)
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: ing.cfg.Topic, QoS: ing.cfg.QoS}},
			}); err != nil && ctx.Err() == nil {
				ing.logger.Error("mqtt5 subscribe failed", "topic", ing.cfg.Topic, "error", err)
			}
		},
		OnConnectError: func(err error) {
			ing.logger.Warn("mqtt5 connect failed", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: ing.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					ing.handle(ctx, out, pr.Packet)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				ing.logger.Warn("mqtt5 client error", "error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				ing.logger.Warn("mqtt5 server disconnect", "reason", d.ReasonCode)
			},
		},
	}
	if ing.cfg.Username == "" {
		cliCfg.ConnectPassword = nil
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return fmt.Errorf("mqtt5 connection: %w", err)
	}
	ing.logger.Info("mqtt5 ingester started", "broker", ing.cfg.Broker.Redacted(), "client_id", ing.cfg.ClientID)

	<-ctx.Done()
	ing.logger.Info("mqtt5 ingester stopping")
	<-cm.Done()
	return nil
}

func (ing *Ingester) handle(ctx context.Context, out chan<- trigger.Event, p *paho.Publish) {
	if p == nil {
		return
	}
	if p.Retain && !ing.cfg.Retained {
		ing.logger.Debug("retained mqtt5 trigger ignored", "topic", p.Topic)
		return
	}
	name := trigger.ParsePayload(p.Payload)
	if name == "" {
		ing.logger.Debug("empty mqtt5 trigger ignored", "topic", p.Topic)
		return
	}
	trigger.Emit(ctx, out, trigger.NewEvent(name, ing.cfg.ID, p.Topic, ing.now()))
}

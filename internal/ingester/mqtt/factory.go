package mqtt

import (
	"cmp"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"

	"snaptrigger/internal/trigger"
)

// DefaultTopic matches the topic the home automation publishes to.
const DefaultTopic = "home/automation/camera_capture"

// NewFactory returns a trigger.Factory for MQTT 3.1.1 ingesters.
//
// Params:
//   - broker (required): tcp://host:1883, ssl://host:8883, ws://host/mqtt
//   - topic: subscription filter, default DefaultTopic
//   - qos: 0, 1 or 2, default 0
//   - client_id: default "snaptrigger-<petname>"
//   - username, password
//   - retained: "true" to act on retained messages, default false
//   - connect_retry: reconnect interval cap, default 30s
func NewFactory() trigger.Factory {
	return func(id uuid.UUID, params map[string]string, logger *slog.Logger) (trigger.Ingester, error) {
		broker := params["broker"]
		if broker == "" {
			return nil, fmt.Errorf("mqtt ingester: broker param is required")
		}
		u, err := url.Parse(broker)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("mqtt ingester: invalid broker %q: want scheme://host:port", broker)
		}
		switch u.Scheme {
		case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
		default:
			return nil, fmt.Errorf("mqtt ingester: unsupported broker scheme %q", u.Scheme)
		}

		qos, err := ParseQoS(params["qos"])
		if err != nil {
			return nil, fmt.Errorf("mqtt ingester: %w", err)
		}

		retry := 30 * time.Second
		if v := params["connect_retry"]; v != "" {
			retry, err = time.ParseDuration(v)
			if err != nil || retry <= 0 {
				return nil, fmt.Errorf("mqtt ingester: invalid connect_retry %q", v)
			}
		}

		return New(Config{
			ID:             trigger.IngesterName(id, params),
			Broker:         broker,
			Topic:          cmp.Or(params["topic"], DefaultTopic),
			QoS:            qos,
			ClientID:       cmp.Or(params["client_id"], ClientID()),
			Username:       params["username"],
			Password:       params["password"],
			Retained:       params["retained"] == "true",
			MaxReconnect:   retry,
			ConnectTimeout: 10 * time.Second,
			Logger:         logger,
		}), nil
	}
}

// ParseQoS parses an MQTT quality of service level. Empty means 0.
func ParseQoS(s string) (byte, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 2 {
		return 0, fmt.Errorf("invalid qos %q: must be 0, 1 or 2", s)
	}
	return byte(n), nil
}

// ClientID returns a readable, probably unique client identifier. Brokers
// disconnect the older session when two clients share an ID.
func ClientID() string {
	return "snaptrigger-" + petname.Generate(2, "-")
}

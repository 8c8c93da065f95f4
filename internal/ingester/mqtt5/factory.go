package mqtt5

import (
	"cmp"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"snaptrigger/internal/ingester/mqtt"
	"snaptrigger/internal/trigger"
)

// NewFactory returns a trigger.Factory for MQTT v5 ingesters. It accepts the
// same params as the mqtt ingester, plus keepalive in seconds.
func NewFactory() trigger.Factory {
	return func(id uuid.UUID, params map[string]string, logger *slog.Logger) (trigger.Ingester, error) {
		broker := params["broker"]
		if broker == "" {
			return nil, fmt.Errorf("mqtt5 ingester: broker param is required")
		}
		u, err := url.Parse(broker)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("mqtt5 ingester: invalid broker %q: want scheme://host:port", broker)
		}
		switch u.Scheme {
		case "mqtt", "tcp", "mqtts", "ssl", "tls", "ws", "wss":
		default:
			return nil, fmt.Errorf("mqtt5 ingester: unsupported broker scheme %q", u.Scheme)
		}

		qos, err := mqtt.ParseQoS(params["qos"])
		if err != nil {
			return nil, fmt.Errorf("mqtt5 ingester: %w", err)
		}

		keepAlive := uint16(20)
		if v := params["keepalive"]; v != "" {
			n, err := strconv.ParseUint(v, 10, 16)
			if err != nil || n == 0 {
				return nil, fmt.Errorf("mqtt5 ingester: invalid keepalive %q", v)
			}
			keepAlive = uint16(n)
		}

		return New(Config{
			ID:        trigger.IngesterName(id, params),
			Broker:    u,
			Topic:     cmp.Or(params["topic"], mqtt.DefaultTopic),
			QoS:       qos,
			ClientID:  cmp.Or(params["client_id"], mqtt.ClientID()),
			Username:  params["username"],
			Password:  params["password"],
			Retained:  params["retained"] == "true",
			KeepAlive: keepAlive,
			Logger:    logger,
		}), nil
	}
}

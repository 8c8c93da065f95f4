package kafka

import (
	"cmp"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	"snaptrigger/internal/trigger"
)

// DefaultGroup is the consumer group used when none is configured.
const DefaultGroup = "snaptrigger"

// NewFactory returns a trigger.Factory for Kafka ingesters.
//
// Params:
//   - brokers (required): comma-separated seed brokers
//   - topic (required): topic whose record values are source names
//   - group: consumer group, default "snaptrigger"
//   - tls: "true" to dial with TLS
//   - sasl_mechanism, sasl_user, sasl_password: plain, scram-sha-256 or
//     scram-sha-512
func NewFactory() trigger.Factory {
	return func(id uuid.UUID, params map[string]string, logger *slog.Logger) (trigger.Ingester, error) {
		name := trigger.IngesterName(id, params)

		var brokers []string
		for b := range strings.SplitSeq(params["brokers"], ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		if len(brokers) == 0 {
			return nil, fmt.Errorf("kafka ingester %q: brokers param is required", name)
		}
		topic := strings.TrimSpace(params["topic"])
		if topic == "" {
			return nil, fmt.Errorf("kafka ingester %q: topic param is required", name)
		}

		auth, err := saslMechanism(params["sasl_mechanism"], params["sasl_user"], params["sasl_password"])
		if err != nil {
			return nil, fmt.Errorf("kafka ingester %q: %w", name, err)
		}

		return New(Config{
			ID:      name,
			Brokers: brokers,
			Topic:   topic,
			Group:   cmp.Or(params["group"], DefaultGroup),
			TLS:     params["tls"] == "true",
			Auth:    auth,
			Logger:  logger,
		}), nil
	}
}

// saslMechanism returns nil when mech is empty.
func saslMechanism(mech, user, pass string) (sasl.Mechanism, error) {
	switch strings.ToLower(mech) {
	case "":
		return nil, nil
	case "plain":
		return plain.Auth{User: user, Pass: pass}.AsMechanism(), nil
	case "scram-sha-256":
		return scram.Auth{User: user, Pass: pass}.AsSha256Mechanism(), nil
	case "scram-sha-512":
		return scram.Auth{User: user, Pass: pass}.AsSha512Mechanism(), nil
	default:
		return nil, fmt.Errorf("unsupported sasl_mechanism %q (supported: plain, scram-sha-256, scram-sha-512)", mech)
	}
}

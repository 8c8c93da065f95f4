package http

import (
	"cmp"
	"fmt"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"snaptrigger/internal/trigger"
)

// DefaultAddr is the listen address used when the addr param is unset.
const DefaultAddr = ":8089"

// ParamDefaults returns the default parameter values for an HTTP ingester.
func ParamDefaults() map[string]string {
	return map[string]string{
		"addr": DefaultAddr,
	}
}

// NewFactory returns a trigger.Factory for HTTP ingesters.
func NewFactory() trigger.Factory {
	return func(id uuid.UUID, params map[string]string, logger *slog.Logger) (trigger.Ingester, error) {
		addr := cmp.Or(params["addr"], DefaultAddr)
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("invalid addr %q: must be :port or host:port", addr)
		}

		return New(Config{
			ID:     trigger.IngesterName(id, params),
			Addr:   addr,
			Token:  params["token"],
			Logger: logger,
		}), nil
	}
}

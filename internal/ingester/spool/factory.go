package spool

import (
	"cmp"
	"fmt"
	"log/slog"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"snaptrigger/internal/logging"
	"snaptrigger/internal/trigger"
)

// ParamSpoolDir is the reserved param carrying the default spool directory
// under the home directory.
const ParamSpoolDir = "_spool_dir"

// ParamDefaults returns the default parameter values for a spool ingester.
func ParamDefaults() map[string]string {
	return map[string]string{
		"pattern":       "*.trigger",
		"poll_interval": "5s",
		"max_age":       "30s",
	}
}

// NewFactory returns a trigger.Factory for spool directory ingesters.
func NewFactory() trigger.Factory {
	return func(id uuid.UUID, params map[string]string, logger *slog.Logger) (trigger.Ingester, error) {
		cfg, err := parseConfig(trigger.IngesterName(id, params), params, logger)
		if err != nil {
			return nil, err
		}
		return newIngester(cfg), nil
	}
}

// config holds parsed configuration for a spool ingester.
type config struct {
	ID           string
	Dir          string
	Pattern      string
	PollInterval time.Duration
	MaxAge       time.Duration
	Logger       *slog.Logger
}

func parseConfig(id string, params map[string]string, logger *slog.Logger) (config, error) {
	dir := cmp.Or(params["dir"], params[ParamSpoolDir])
	if dir == "" {
		return config{}, fmt.Errorf("spool ingester %q: dir param required", id)
	}

	pattern := cmp.Or(params["pattern"], "*.trigger")
	if !doublestar.ValidatePattern(pattern) {
		return config{}, fmt.Errorf("spool ingester %q: invalid pattern %q", id, pattern)
	}

	pollInterval, err := parseDuration(id, "poll_interval", params["poll_interval"], 5*time.Second)
	if err != nil {
		return config{}, err
	}
	maxAge, err := parseDuration(id, "max_age", params["max_age"], 30*time.Second)
	if err != nil {
		return config{}, err
	}

	return config{
		ID:           id,
		Dir:          dir,
		Pattern:      pattern,
		PollInterval: pollInterval,
		MaxAge:       maxAge,
		Logger:       logging.Default(logger).With("component", "ingester", "type", "spool", "ingester", id),
	}, nil
}

// parseDuration parses an optional non-negative duration param. Zero
// disables the feature it controls.
func parseDuration(id, name, v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("spool ingester %q: invalid %s %q: %w", id, name, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("spool ingester %q: %s must be non-negative", id, name)
	}
	return d, nil
}

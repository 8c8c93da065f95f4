package schedule

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"snaptrigger/internal/trigger"
)

// NewFactory returns a trigger.Factory for cron schedule ingesters.
//
// Params:
//   - cron (required): five- or six-field expression, seconds optional, e.g.
//     "*/5 * * * *" or "0 */15 * * * *"
//   - sources (required): comma-separated source names triggered on each tick
//   - timezone: IANA zone for the expression, default local time
func NewFactory() trigger.Factory {
	return func(id uuid.UUID, params map[string]string, logger *slog.Logger) (trigger.Ingester, error) {
		name := trigger.IngesterName(id, params)

		loc := time.Local
		if tz := params["timezone"]; tz != "" {
			l, err := time.LoadLocation(tz)
			if err != nil {
				return nil, fmt.Errorf("schedule ingester %q: invalid timezone %q: %w", name, tz, err)
			}
			loc = l
		}

		expr := strings.TrimSpace(params["cron"])
		if expr == "" {
			return nil, fmt.Errorf("schedule ingester %q: cron param is required", name)
		}
		if err := ValidateCron(expr, loc); err != nil {
			return nil, fmt.Errorf("schedule ingester %q: %w", name, err)
		}

		var sources []string
		for s := range strings.SplitSeq(params["sources"], ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
		if len(sources) == 0 {
			return nil, fmt.Errorf("schedule ingester %q: sources param is required", name)
		}

		return New(Config{
			ID:       name,
			Cron:     expr,
			Sources:  sources,
			Location: loc,
			Logger:   logger,
		}), nil
	}
}

// ValidateCron checks a five- or six-field cron expression. A six-field
// expression starts with seconds.
func ValidateCron(expr string, loc *time.Location) error {
	if err := gocron.NewDefaultCron(true).IsValid(expr, loc, time.Now()); err != nil {
		return fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return nil
}

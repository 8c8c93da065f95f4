// Package trigger defines capture trigger events and the ingester contract
// shared by every inbound transport.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxPayload is the largest payload accepted as a source name. Anything longer
// is not a plausible camera name and is truncated before lookup fails.
const MaxPayload = 256

// Event is a request to capture one frame from the named source.
// Events are ephemeral: they are created by an ingester, routed by the
// dispatcher and discarded once handled or dropped.
type Event struct {
	ID         uuid.UUID // UUIDv7, assigned on receipt
	Source     string    // trimmed source name from the payload
	ReceivedAt time.Time // when the ingester received the trigger
	IngesterID string    // config identifier of the ingester
	Origin     string    // transport detail for logs (topic, queue, remote addr)
}

// NewEvent builds an Event with a fresh ID.
func NewEvent(source, ingesterID, origin string, receivedAt time.Time) Event {
	return Event{
		ID:         uuid.Must(uuid.NewV7()),
		Source:     source,
		ReceivedAt: receivedAt,
		IngesterID: ingesterID,
		Origin:     origin,
	}
}

// ParsePayload converts a raw trigger payload to a source name: invalid UTF-8
// is replaced, surrounding whitespace trimmed and the result capped at
// MaxPayload bytes.
func ParsePayload(raw []byte) string {
	if len(raw) > MaxPayload {
		raw = raw[:MaxPayload]
	}
	s := string(raw)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return strings.TrimSpace(s)
}

// Emit sends ev on out unless ctx ends first. It reports whether the event
// was handed off.
func Emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Ingester is a source of trigger events.
// Implementations must respect context cancellation and exit promptly.
// Ingesters do not know about sources, rate limits or captures.
type Ingester interface {
	// Run starts the ingester and emits events to the output channel.
	// Run blocks until ctx is cancelled or an unrecoverable error occurs.
	Run(ctx context.Context, out chan<- Event) error
}

// Factory creates an Ingester from configuration parameters.
// Factories validate required params, apply defaults, and return a fully
// constructed ingester or a descriptive error.
// Factories must not start goroutines or perform I/O beyond validation.
//
// The logger parameter is optional. If nil, the ingester disables logging.
type Factory func(id uuid.UUID, params map[string]string, logger *slog.Logger) (Ingester, error)

// Factories maps an ingester type name to its factory.
type Factories map[string]Factory

// Build looks up the factory for typ and invokes it.
func (f Factories) Build(typ string, id uuid.UUID, params map[string]string, logger *slog.Logger) (Ingester, error) {
	factory, ok := f[typ]
	if !ok {
		return nil, fmt.Errorf("unknown ingester type %q (supported: %s)", typ, strings.Join(f.Types(), ", "))
	}
	if params == nil {
		params = map[string]string{}
	}
	return factory(id, params, logger)
}

// Types returns the registered type names, sorted.
func (f Factories) Types() []string {
	return slices.Sorted(maps.Keys(f))
}

// ParamName is the reserved factory param carrying the ingester's configured
// name. It is set by the caller, never by the operator.
const ParamName = "_name"

// IngesterName returns the configured name from params, falling back to id.
func IngesterName(id uuid.UUID, params map[string]string) string {
	if n := params[ParamName]; n != "" {
		return n
	}
	return id.String()
}

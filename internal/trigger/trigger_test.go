package trigger

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"plain", []byte("frontdoor"), "frontdoor"},
		{"whitespace", []byte("  garage\r\n"), "garage"},
		{"empty", nil, ""},
		{"invalid utf8", []byte{'c', 'a', 'm', 0xff}, "cam�"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePayload(tt.in); got != tt.want {
				t.Errorf("ParsePayload(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePayloadCapsLength(t *testing.T) {
	got := ParsePayload([]byte(strings.Repeat("a", 10*MaxPayload)))
	if len(got) != MaxPayload {
		t.Errorf("expected %d bytes, got %d", MaxPayload, len(got))
	}
}

func TestNewEvent(t *testing.T) {
	now := time.Now()
	ev := NewEvent("frontdoor", "mqtt-1", "home/automation/camera_capture", now)
	if ev.ID == uuid.Nil {
		t.Fatal("expected non-nil ID")
	}
	if ev.ID.Version() != 7 {
		t.Errorf("expected UUIDv7, got v%d", ev.ID.Version())
	}
	if ev.Source != "frontdoor" || ev.IngesterID != "mqtt-1" || !ev.ReceivedAt.Equal(now) {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestEmitRespectsContext(t *testing.T) {
	out := make(chan Event) // unbuffered, nobody reading
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if Emit(ctx, out, Event{Source: "garage"}) {
		t.Fatal("Emit should fail on cancelled context")
	}

	buffered := make(chan Event, 1)
	if !Emit(context.Background(), buffered, Event{Source: "garage"}) {
		t.Fatal("Emit should succeed with room in channel")
	}
	if ev := <-buffered; ev.Source != "garage" {
		t.Errorf("got %q", ev.Source)
	}
}

type nopIngester struct{}

func (nopIngester) Run(ctx context.Context, _ chan<- Event) error {
	<-ctx.Done()
	return nil
}

func TestFactoriesBuild(t *testing.T) {
	var gotParams map[string]string
	f := Factories{
		"nop": func(id uuid.UUID, params map[string]string, logger *slog.Logger) (Ingester, error) {
			gotParams = params
			return nopIngester{}, nil
		},
	}

	if _, err := f.Build("nop", uuid.New(), nil, nil); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if gotParams == nil {
		t.Error("nil params should be replaced with an empty map")
	}

	_, err := f.Build("carrier-pigeon", uuid.New(), nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if !strings.Contains(err.Error(), "nop") {
		t.Errorf("error should list supported types: %v", err)
	}
}

func TestIngesterName(t *testing.T) {
	id := uuid.New()
	if got := IngesterName(id, map[string]string{}); got != id.String() {
		t.Errorf("fallback = %q, want %q", got, id.String())
	}
	if got := IngesterName(id, map[string]string{ParamName: "bus"}); got != "bus" {
		t.Errorf("name = %q, want bus", got)
	}
}

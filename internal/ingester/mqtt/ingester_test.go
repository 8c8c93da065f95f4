package mqtt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"snaptrigger/internal/trigger"
)

// fakeMessage implements paho.Message.
type fakeMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return m.retained }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestHandlerEmitsTrigger(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ing := New(Config{ID: "bus"})
	ing.now = func() time.Time { return at }

	out := make(chan trigger.Event, 1)
	h := ing.handler(context.Background(), out)
	h(nil, fakeMessage{topic: DefaultTopic, payload: []byte("garage\r\n")})

	select {
	case ev := <-out:
		if ev.Source != "garage" {
			t.Errorf("Source = %q, want garage", ev.Source)
		}
		if ev.Origin != DefaultTopic {
			t.Errorf("Origin = %q", ev.Origin)
		}
		if ev.IngesterID != "bus" {
			t.Errorf("IngesterID = %q", ev.IngesterID)
		}
		if !ev.ReceivedAt.Equal(at) {
			t.Errorf("ReceivedAt = %v", ev.ReceivedAt)
		}
	default:
		t.Fatal("expected an event")
	}
}

func TestHandlerSkipsEmptyAndRetained(t *testing.T) {
	out := make(chan trigger.Event, 4)
	h := New(Config{}).handler(context.Background(), out)

	h(nil, fakeMessage{topic: "t", payload: []byte("   ")})
	h(nil, fakeMessage{topic: "t", payload: []byte("garage"), retained: true})
	if len(out) != 0 {
		t.Fatalf("expected no events, got %d", len(out))
	}

	h = New(Config{Retained: true}).handler(context.Background(), out)
	h(nil, fakeMessage{topic: "t", payload: []byte("garage"), retained: true})
	if len(out) != 1 {
		t.Fatalf("retained=true: expected 1 event, got %d", len(out))
	}
}

func TestHandlerDoesNotBlockAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan trigger.Event) // unbuffered, nobody reading
	h := New(Config{}).handler(ctx, out)

	done := make(chan struct{})
	go func() {
		h(nil, fakeMessage{topic: "t", payload: []byte("garage")})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler blocked after context cancel")
	}
}

func TestFactoryDefaults(t *testing.T) {
	ing, err := NewFactory()(uuid.New(), map[string]string{
		"broker":          "tcp://broker.lan:1883",
		trigger.ParamName: "bus",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := ing.(*Ingester)
	if m.cfg.Topic != DefaultTopic {
		t.Errorf("topic = %q", m.cfg.Topic)
	}
	if m.cfg.QoS != 0 {
		t.Errorf("qos = %d", m.cfg.QoS)
	}
	if !strings.HasPrefix(m.cfg.ClientID, "snaptrigger-") {
		t.Errorf("client id = %q", m.cfg.ClientID)
	}
	if m.cfg.ID != "bus" {
		t.Errorf("id = %q", m.cfg.ID)
	}
	if m.cfg.MaxReconnect != 30*time.Second {
		t.Errorf("max reconnect = %v", m.cfg.MaxReconnect)
	}
}

func TestFactoryAllParams(t *testing.T) {
	ing, err := NewFactory()(uuid.New(), map[string]string{
		"broker":        "ssl://broker.lan:8883",
		"topic":         "cams/+/snap",
		"qos":           "1",
		"client_id":     "front-desk",
		"username":      "cam",
		"password":      "secret",
		"retained":      "true",
		"connect_retry": "5s",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := ing.(*Ingester).cfg
	if c.Topic != "cams/+/snap" || c.QoS != 1 || c.ClientID != "front-desk" {
		t.Errorf("cfg = %+v", c)
	}
	if c.Username != "cam" || c.Password != "secret" || !c.Retained {
		t.Errorf("cfg = %+v", c)
	}
	if c.MaxReconnect != 5*time.Second {
		t.Errorf("max reconnect = %v", c.MaxReconnect)
	}
}

func TestFactoryErrors(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
	}{
		{"missing broker", map[string]string{}},
		{"no scheme", map[string]string{"broker": "broker.lan:1883"}},
		{"bad scheme", map[string]string{"broker": "http://broker.lan"}},
		{"bad qos", map[string]string{"broker": "tcp://b:1883", "qos": "3"}},
		{"bad retry", map[string]string{"broker": "tcp://b:1883", "connect_retry": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFactory()(uuid.New(), tt.params, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestClientIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 5 {
		seen[ClientID()] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected varied client ids, got %v", seen)
	}
}

package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"snaptrigger/internal/capture"
)

// fakeSink records deliveries. If gate is non-nil every send waits on it.
type fakeSink struct {
	mu     sync.Mutex
	images []string
	texts  []string
	err    error
	gate   chan struct{}
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) SendImage(ctx context.Context, image []byte, caption string) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, caption)
	return f.err
}

func (f *fakeSink) SendText(ctx context.Context, text string) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.err
}

func (f *fakeSink) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.images), len(f.texts)
}

func okResult(source string) capture.Result {
	return capture.Result{Source: source, Image: []byte{0xff, 0xd8}, Duration: 1420 * time.Millisecond}
}

func failResult(source string, kind capture.Kind) capture.Result {
	return capture.Result{Source: source, Err: &capture.Error{Kind: kind, Err: errors.New("x")}, Duration: 6 * time.Second}
}

func TestCaption(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1420 * time.Millisecond, "📷 frontdoor captured in 1.42 secs"},
		{1500 * time.Millisecond, "📷 frontdoor captured in 1.5 secs"},
		{2 * time.Second, "📷 frontdoor captured in 2 secs"},
		{1234567 * time.Microsecond, "📷 frontdoor captured in 1.23 secs"},
	}
	for _, tt := range tests {
		r := capture.Result{Source: "frontdoor", Duration: tt.d}
		if got := Caption(r); got != tt.want {
			t.Errorf("Caption(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestAlertNamesSourceAndKind(t *testing.T) {
	tests := []struct {
		kind capture.Kind
		want string
	}{
		{capture.OpenFailed, "🚨 CAPTURE ERROR: garage failed to open stream [OpenFailed]"},
		{capture.ReadFailed, "🚨 CAPTURE ERROR: garage failed to grab frame [ReadFailed]"},
		{capture.EncodeFailed, "🚨 ERROR: garage failed to encode frame [EncodeFailed]"},
		{capture.Timeout, "🚨 CAPTURE ERROR: garage timed out [Timeout]"},
	}
	for _, tt := range tests {
		if got := Alert(failResult("garage", tt.kind)); got != tt.want {
			t.Errorf("Alert(%v) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestNotifyRoutesByOutcome(t *testing.T) {
	sink := &fakeSink{}
	n := New(Config{Sink: sink})
	n.Start(context.Background())

	n.Notify(okResult("frontdoor"))
	n.Notify(failResult("garage", capture.Timeout))
	n.Close()

	images, texts := sink.counts()
	if images != 1 || texts != 1 {
		t.Fatalf("expected 1 image and 1 text, got %d/%d", images, texts)
	}
	if !strings.Contains(sink.texts[0], "garage") || !strings.Contains(sink.texts[0], "Timeout") {
		t.Errorf("alert should name garage and Timeout: %q", sink.texts[0])
	}
}

func TestNotifyDropsWhenBufferFull(t *testing.T) {
	sink := &fakeSink{gate: make(chan struct{})}
	n := New(Config{Sink: sink, Buffer: 1, Workers: 1})
	n.Start(context.Background())

	// First is picked up by the worker (blocked on gate), second fills the
	// buffer; eventually one must be rejected without blocking.
	dropped := false
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 5 {
			if !n.Notify(okResult("frontdoor")) {
				dropped = true
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked")
	}
	if !dropped {
		t.Error("expected at least one dropped result")
	}

	close(sink.gate)
	n.Close()
}

func TestCloseDrainsBuffered(t *testing.T) {
	sink := &fakeSink{}
	n := New(Config{Sink: sink, Buffer: 8})
	for range 3 {
		n.Notify(okResult("carport"))
	}
	// Not started: Close delivers inline.
	n.Close()

	if images, _ := sink.counts(); images != 3 {
		t.Errorf("expected 3 delivered on close, got %d", images)
	}
	if n.Notify(okResult("carport")) {
		t.Error("Notify after Close should drop")
	}
	n.Close() // idempotent
}

func TestDeliveryFailureIsReported(t *testing.T) {
	sink := &fakeSink{err: errors.New("telegram 502")}
	n := New(Config{Sink: sink})

	err := n.Deliver(context.Background(), okResult("frontdoor"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "telegram 502") {
		t.Errorf("error should wrap sink error: %v", err)
	}
}

func TestLogSink(t *testing.T) {
	s := NewLogSink(nil)
	if s.Name() != "log" {
		t.Errorf("name: %q", s.Name())
	}
	if err := s.SendImage(context.Background(), []byte{1}, "c"); err != nil {
		t.Error(err)
	}
	if err := s.SendText(context.Background(), "t"); err != nil {
		t.Error(err)
	}
}

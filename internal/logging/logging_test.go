package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestDiscardAndDefault(t *testing.T) {
	if Default(nil).Enabled(context.Background(), slog.LevelError) {
		t.Error("Default(nil) should discard")
	}
	Discard().Error("dropped", "component", "dispatcher")

	given := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if Default(given) != given {
		t.Error("Default should return a non-nil logger unchanged")
	}
}

// pipeline builds the logger main builds: a text handler behind the
// component filter, with levels as they would come from log.components.
func pipeline(def slog.Level, levels map[string]slog.Level) (*slog.Logger, *ComponentFilterHandler, *bytes.Buffer) {
	var buf bytes.Buffer
	base, _ := NewHandler(&buf, "text")
	filter := NewComponentFilterHandler(base, def)
	for c, l := range levels {
		filter.SetLevel(c, l)
	}
	return slog.New(filter), filter, &buf
}

func TestComponentLevels(t *testing.T) {
	levels := map[string]slog.Level{
		"serializer": slog.LevelDebug,
		"notifier":   slog.LevelWarn,
	}
	tests := []struct {
		name      string
		component string
		level     slog.Level
		want      bool
	}{
		{"dispatcher info at default", "dispatcher", slog.LevelInfo, true},
		{"dispatcher debug below default", "dispatcher", slog.LevelDebug, false},
		{"serializer debug raised", "serializer", slog.LevelDebug, true},
		{"notifier info lowered", "notifier", slog.LevelInfo, false},
		{"notifier warn", "notifier", slog.LevelWarn, true},
		{"unscoped info", "", slog.LevelInfo, true},
		{"unscoped debug", "", slog.LevelDebug, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _, buf := pipeline(slog.LevelInfo, levels)
			if tt.component != "" {
				logger = logger.With("component", tt.component)
			}
			logger.Log(context.Background(), tt.level, "trigger dispatched", "source", "garage")
			if got := buf.Len() > 0; got != tt.want {
				t.Errorf("emitted = %v, want %v (output %q)", got, tt.want, buf.String())
			}
		})
	}
}

func TestComponentOnRecord(t *testing.T) {
	logger, _, buf := pipeline(slog.LevelWarn, map[string]slog.Level{"capture": slog.LevelDebug})

	logger.Debug("frame grabbed", "component", "capture", "source", "porch")
	logger.Debug("lane idle", "component", "serializer", "source", "porch")

	out := buf.String()
	if !strings.Contains(out, "frame grabbed") {
		t.Errorf("capture debug missing: %s", out)
	}
	if strings.Contains(out, "lane idle") {
		t.Errorf("serializer debug leaked: %s", out)
	}
}

func TestIngesterScopeUsesItsComponent(t *testing.T) {
	logger, _, buf := pipeline(slog.LevelInfo, map[string]slog.Level{"ingester": slog.LevelDebug})

	mqtt := logger.With("component", "ingester", "type", "mqtt", "ingester", "bus")
	mqtt.Debug("empty payload ignored")
	logger.With("component", "dispatcher").Debug("trigger dispatched")

	out := buf.String()
	if !strings.Contains(out, "empty payload ignored") || !strings.Contains(out, "type=mqtt") {
		t.Errorf("ingester debug missing: %s", out)
	}
	if strings.Contains(out, "trigger dispatched") {
		t.Errorf("dispatcher debug leaked: %s", out)
	}
}

func TestLevelChangesApplyToExistingLoggers(t *testing.T) {
	logger, filter, buf := pipeline(slog.LevelInfo, nil)
	notifier := logger.With("component", "notifier")

	notifier.Debug("delivery queued")
	filter.SetLevel("notifier", slog.LevelDebug)
	notifier.Debug("delivery sent")
	filter.ClearLevel("notifier")
	notifier.Debug("delivery retried")

	out := buf.String()
	if strings.Contains(out, "queued") || strings.Contains(out, "retried") {
		t.Errorf("debug logged at default level: %s", out)
	}
	if !strings.Contains(out, "delivery sent") {
		t.Errorf("debug missing while raised: %s", out)
	}
	if filter.Level("notifier") != slog.LevelInfo || filter.DefaultLevel() != slog.LevelInfo {
		t.Errorf("levels after clear: %v / %v", filter.Level("notifier"), filter.DefaultLevel())
	}
	filter.ClearLevel("never-set")
}

func TestFilterWithGroupKeepsComponent(t *testing.T) {
	logger, filter, buf := pipeline(slog.LevelInfo, nil)
	filter.SetLevel("server", slog.LevelDebug)

	logger.With("component", "server").WithGroup("http").Debug("request", "path", "/healthz")
	if !strings.Contains(buf.String(), "http.path=/healthz") {
		t.Errorf("grouped debug missing: %s", buf.String())
	}
}

func TestFilterNilNext(t *testing.T) {
	filter := NewComponentFilterHandler(nil, slog.LevelDebug)
	slog.New(filter).With("component", "dispatcher").WithGroup("g").Info("dropped")
}

func TestFilterConcurrentLevelChanges(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	base := slog.NewTextHandler(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}), nil)
	filter := NewComponentFilterHandler(base, slog.LevelInfo)
	lane := slog.New(filter).With("component", "serializer")

	const n = 200
	var wg sync.WaitGroup
	wg.Go(func() {
		for range n {
			lane.Info("capture finished", "source", "garage")
		}
	})
	wg.Go(func() {
		for range n {
			filter.SetLevel("serializer", slog.LevelDebug)
			filter.ClearLevel("serializer")
		}
	})
	wg.Wait()

	if got := strings.Count(buf.String(), "capture finished"); got != n {
		t.Errorf("expected %d info records, got %d", n, got)
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(&buf, "json")
	if err != nil {
		t.Fatalf("NewHandler(json): %v", err)
	}
	slog.New(h).Debug("hello", "component", "dispatcher")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("expected json output, got: %s", buf.String())
	}

	if _, err := NewHandler(&buf, "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTriggerUnknownSourceLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test", []string{"frontdoor"})

	m.Trigger("frontdoor", "dispatched")
	m.Trigger("driveway", "unknown_source")
	m.Trigger("'; DROP TABLE cameras", "unknown_source")

	if got := testutil.ToFloat64(m.triggers.WithLabelValues("frontdoor", "dispatched")); got != 1 {
		t.Errorf("frontdoor dispatched: got %v", got)
	}
	if got := testutil.ToFloat64(m.triggers.WithLabelValues(unknownLabel, "unknown_source")); got != 2 {
		t.Errorf("unknown source: got %v", got)
	}
	if n := testutil.CollectAndCount(m.triggers); n != 2 {
		t.Errorf("expected 2 label sets, got %d", n)
	}
}

func TestCaptureAndNotification(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test", []string{"garage"})

	m.Capture("garage", "Timeout", 6*time.Second)
	m.Notification("telegram", "text", "ok")
	m.Discarded(2)
	m.Discarded(0)

	if got := testutil.ToFloat64(m.captures.WithLabelValues("garage", "Timeout")); got != 1 {
		t.Errorf("captures: got %v", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("telegram", "text", "ok")); got != 1 {
		t.Errorf("notifications: got %v", got)
	}
	if got := testutil.ToFloat64(m.discarded); got != 2 {
		t.Errorf("discarded: got %v", got)
	}
}

func TestWatchLanes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test", []string{"carport", "garage"})
	m.WatchLanes(func() []Lane {
		return []Lane{
			{Source: "garage", Pending: 2},
			{Source: "carport", Busy: true},
		}
	})

	expected := `
# HELP snaptrigger_lane_busy 1 while a capture for the source is executing.
# TYPE snaptrigger_lane_busy gauge
snaptrigger_lane_busy{source="carport"} 1
snaptrigger_lane_busy{source="garage"} 0
# HELP snaptrigger_lane_pending Triggers queued per source.
# TYPE snaptrigger_lane_pending gauge
snaptrigger_lane_pending{source="carport"} 0
snaptrigger_lane_pending{source="garage"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "snaptrigger_lane_busy", "snaptrigger_lane_pending"); err != nil {
		t.Error(err)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Trigger("x", "y")
	m.Ingested("mqtt")
	m.Capture("x", "ok", time.Second)
	m.Notification("log", "text", "ok")
	m.Discarded(1)
	m.WatchGauge("x", "y", func() float64 { return 0 })
	m.WatchLanes(func() []Lane { return nil })
}

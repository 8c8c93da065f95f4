// Package metrics exposes snaptrigger's Prometheus metrics.
//
// All methods are safe on a nil *Metrics so components can take an optional
// metrics handle without guarding every call site.
package metrics

import (
	"cmp"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "snaptrigger"

// unknownLabel replaces source names that are not configured, so arbitrary
// trigger payloads cannot create unbounded label sets.
const unknownLabel = "unknown"

// Metrics holds every metric family.
type Metrics struct {
	reg     prometheus.Registerer
	sources map[string]bool

	triggers        *prometheus.CounterVec
	ingested        *prometheus.CounterVec
	captures        *prometheus.CounterVec
	captureDuration *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
	discarded       prometheus.Counter
}

// New registers all metric families with reg. sources is the configured source
// set used to bound the "source" label.
func New(reg prometheus.Registerer, version string, sources []string) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		reg:     reg,
		sources: make(map[string]bool, len(sources)),

		triggers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Trigger events by source and dispatch outcome.",
		}, []string{"source", "outcome"}),

		ingested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingester_events_total",
			Help:      "Trigger events received per ingester.",
		}, []string{"ingester"}),

		captures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Completed captures by source and result.",
		}, []string{"source", "result"}),

		captureDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Wall time of captures, including failures.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 4, 6, 10},
		}, []string{"source"}),

		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by sink, kind (image, text) and status.",
		}, []string{"sink", "kind", "status"}),

		discarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discarded_total",
			Help:      "Queued triggers discarded at shutdown.",
		}),
	}
	for _, s := range sources {
		m.sources[s] = true
	}

	f.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "info",
		Help:        "Build version.",
		ConstLabels: prometheus.Labels{"version": version},
	}).Set(1)

	start := time.Now()
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since process start.",
	}, func() float64 { return time.Since(start).Seconds() })

	return m
}

func (m *Metrics) sourceLabel(source string) string {
	if m.sources[source] {
		return source
	}
	return unknownLabel
}

// Trigger counts one dispatch outcome.
func (m *Metrics) Trigger(source, outcome string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(m.sourceLabel(source), outcome).Inc()
}

// Ingested counts one event received by an ingester.
func (m *Metrics) Ingested(ingester string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(ingester).Inc()
}

// Capture records a finished capture.
func (m *Metrics) Capture(source, result string, d time.Duration) {
	if m == nil {
		return
	}
	s := m.sourceLabel(source)
	m.captures.WithLabelValues(s, result).Inc()
	m.captureDuration.WithLabelValues(s).Observe(d.Seconds())
}

// Notification counts one delivery attempt.
func (m *Metrics) Notification(sink, kind, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(sink, kind, status).Inc()
}

// Discarded adds n triggers discarded at shutdown.
func (m *Metrics) Discarded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.discarded.Add(float64(n))
}

// WatchGauge registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) WatchGauge(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

// Lane is the per-source queue state exported as gauges.
type Lane struct {
	Source  string
	Pending int
	Busy    bool
}

// WatchLanes registers a collector that reads lane state at scrape time.
func (m *Metrics) WatchLanes(fn func() []Lane) {
	if m == nil {
		return
	}
	m.reg.MustRegister(&laneCollector{
		fn: fn,
		pending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "lane", "pending"),
			"Triggers queued per source.",
			[]string{"source"}, nil,
		),
		busy: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "lane", "busy"),
			"1 while a capture for the source is executing.",
			[]string{"source"}, nil,
		),
	})
}

type laneCollector struct {
	fn      func() []Lane
	pending *prometheus.Desc
	busy    *prometheus.Desc
}

func (c *laneCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pending
	ch <- c.busy
}

func (c *laneCollector) Collect(ch chan<- prometheus.Metric) {
	lanes := c.fn()
	slices.SortFunc(lanes, func(a, b Lane) int { return cmp.Compare(a.Source, b.Source) })
	for _, l := range lanes {
		busy := 0.0
		if l.Busy {
			busy = 1
		}
		ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(l.Pending), l.Source)
		ch <- prometheus.MustNewConstMetric(c.busy, prometheus.GaugeValue, busy, l.Source)
	}
}

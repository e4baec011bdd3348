// Package metrics exposes sync counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meshbridge"

// Pass outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeEmpty   = "empty"
	OutcomeBusy    = "busy"
	OutcomeFailed  = "failed"
	OutcomeAborted = "aborted"
)

// Metrics holds the collectors of one process. A nil *Metrics records
// nothing, so components can take one unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	passes       *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	busy         prometheus.Counter
	bytesSent    prometheus.Counter
	entities     *prometheus.CounterVec
	deletions    prometheus.Counter
	cacheFrames  prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Sync passes by mode and outcome.",
		}, []string{"mode", "outcome"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Time from pass start to the receiver's acknowledgement.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"mode"}),
		busy: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "busy_rejections_total",
			Help:      "Export requests rejected because a pass was in flight.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Encoded bytes handed to the transport.",
		}),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_emitted_total",
			Help:      "Entity records emitted, by kind.",
		}, []string{"kind"}),
		deletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletions_emitted_total",
			Help:      "Entity deletion records emitted.",
		}),
		cacheFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_frames_total",
			Help:      "Frames written to scene cache files.",
		}),
	}
	m.registry.MustRegister(m.passes, m.passDuration, m.busy, m.bytesSent,
		m.entities, m.deletions, m.cacheFrames)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Pass records the outcome of one pass.
func (m *Metrics) Pass(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(mode, outcome).Inc()
	if outcome == OutcomeSent {
		m.passDuration.WithLabelValues(mode).Observe(d.Seconds())
	}
}

// Busy counts a rejected export.
func (m *Metrics) Busy() {
	if m == nil {
		return
	}
	m.busy.Inc()
}

// Sent counts encoded bytes.
func (m *Metrics) Sent(batch [][]byte) {
	if m == nil {
		return
	}
	n := 0
	for _, b := range batch {
		n += len(b)
	}
	m.bytesSent.Add(float64(n))
}

// Emitted counts entity records of one kind.
func (m *Metrics) Emitted(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.entities.WithLabelValues(kind).Add(float64(n))
}

// Deleted counts deletion records.
func (m *Metrics) Deleted(n int) {
	if m == nil {
		return
	}
	m.deletions.Add(float64(n))
}

// CacheFrame counts one written cache frame.
func (m *Metrics) CacheFrame() {
	if m == nil {
		return
	}
	m.cacheFrames.Inc()
}

// Package metrics holds the prometheus collectors for ingestion and presence.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a set of collectors bound to one registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsReceived  *prometheus.CounterVec
	eventsRejected  *prometheus.CounterVec
	writeFailures   *prometheus.CounterVec
	geoFailures     prometheus.Counter
	liveDropped     *prometheus.CounterVec
	onlineVisitors  *prometheus.GaugeVec
	ingestDurations prometheus.Histogram
}

// New registers the collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "footprint",
			Name:      "events_received_total",
			Help:      "Normalized events by type.",
		}, []string{"type"}),
		eventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "footprint",
			Name:      "events_rejected_total",
			Help:      "Malformed events dropped by the normalizer, by missing field.",
		}, []string{"field"}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "footprint",
			Name:      "repository_write_failures_total",
			Help:      "Failed repository writes by operation.",
		}, []string{"op"}),
		geoFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "footprint",
			Name:      "geo_lookup_failures_total",
			Help:      "Geo lookups that failed or timed out.",
		}),
		liveDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "footprint",
			Name:      "live_events_dropped_total",
			Help:      "Events not delivered to a slow live subscriber.",
		}, []string{"domain"}),
		onlineVisitors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "footprint",
			Name:      "online_visitors",
			Help:      "Visitors online at the last presence query, by domain.",
		}, []string{"domain"}),
		ingestDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "footprint",
			Name:      "ingest_duration_seconds",
			Help:      "Time spent ingesting one event.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsReceived,
		m.eventsRejected,
		m.writeFailures,
		m.geoFailures,
		m.liveDropped,
		m.onlineVisitors,
		m.ingestDurations,
	)
	return m
}

func (m *Metrics) EventReceived(eventType string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(eventType).Inc()
}

func (m *Metrics) EventRejected(field string) {
	if m == nil {
		return
	}
	m.eventsRejected.WithLabelValues(field).Inc()
}

func (m *Metrics) WriteFailed(op string) {
	if m == nil {
		return
	}
	m.writeFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) GeoLookupFailed() {
	if m == nil {
		return
	}
	m.geoFailures.Inc()
}

func (m *Metrics) LiveDropped(domain string) {
	if m == nil {
		return
	}
	m.liveDropped.WithLabelValues(domain).Inc()
}

func (m *Metrics) SetOnline(domain string, count int) {
	if m == nil {
		return
	}
	m.onlineVisitors.WithLabelValues(domain).Set(float64(count))
}

func (m *Metrics) ObserveIngest(seconds float64) {
	if m == nil {
		return
	}
	m.ingestDurations.Observe(seconds)
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

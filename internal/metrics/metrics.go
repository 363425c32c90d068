// Package metrics exposes the service's prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	connections prometheus.Gauge
	broadcasts  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	feedReads   *prometheus.CounterVec
	cacheErrors prometheus.Counter
	dropped     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Active websocket connections",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_broadcasts_total",
			Help: "Events emitted to connection rooms, by event name",
		}, []string{"event"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_delivery_transitions_total",
			Help: "Message status transitions applied, by target status",
		}, []string{"status"}),
		feedReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_notification_feed_reads_total",
			Help: "Notification feed reads, by the source that served them",
		}, []string{"source"}),
		cacheErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_notification_cache_errors_total",
			Help: "Notification cache operations that fell back to the store",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_dropped_events_total",
			Help: "Outbound events dropped because a connection buffer was full",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections, m.broadcasts, m.transitions, m.feedReads, m.cacheErrors, m.dropped,
	)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) Broadcast(event string) {
	if m != nil {
		m.broadcasts.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Transition(status string, n int64) {
	if m != nil && n > 0 {
		m.transitions.WithLabelValues(status).Add(float64(n))
	}
}

func (m *Metrics) FeedRead(source string) {
	if m != nil {
		m.feedReads.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) CacheError() {
	if m != nil {
		m.cacheErrors.Inc()
	}
}

func (m *Metrics) Dropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

// Package metrics holds the Prometheus collectors for the bridge. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "launch_bridge"

// Refresh outcomes
const (
	OutcomeSuccess    = "success"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
)

// Metrics groups every collector the service exports
type Metrics struct {
	registry        *prometheus.Registry
	refreshes       *prometheus.CounterVec
	acquireDuration prometheus.Histogram
	launches        prometheus.Counter
	notifications   *prometheus.CounterVec
	activeNotices   prometheus.Gauge
	activeBridges   prometheus.Gauge
}

// New creates the collectors on a dedicated registry, together with the Go and
// process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Bridge refreshes by outcome.",
		}, []string{"outcome"}),
		acquireDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_acquire_duration_seconds",
			Help:      "Time spent waiting for the identity provider to issue a token.",
			Buckets:   prometheus.DefBuckets,
		}),
		launches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Redirects to the destination application.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications pushed, by severity.",
		}, []string{"severity"}),
		activeNotices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_notifications",
			Help:      "Notifications not yet expired, across all users.",
		}),
		activeBridges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_bridges",
			Help:      "Bridge controllers currently held in memory.",
		}),
	}
	m.registry.MustRegister(
		m.refreshes,
		m.acquireDuration,
		m.launches,
		m.notifications,
		m.activeNotices,
		m.activeBridges,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and embedding
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAcquire(d time.Duration) {
	if m == nil {
		return
	}
	m.acquireDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveLaunch() {
	if m == nil {
		return
	}
	m.launches.Inc()
}

func (m *Metrics) ObserveNotification(severity string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(severity).Inc()
	m.activeNotices.Inc()
}

// ObserveNotificationsExpired removes n notifications from the active gauge
func (m *Metrics) ObserveNotificationsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.activeNotices.Sub(float64(n))
}

func (m *Metrics) SetActiveBridges(n int) {
	if m == nil {
		return
	}
	m.activeBridges.Set(float64(n))
}

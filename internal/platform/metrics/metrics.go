package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP-level Prometheus metrics shared by every router.
type Metrics struct {
	RequestLatency  *prometheus.HistogramVec
	PanicsRecovered prometheus.Counter
	OutboxPublished *prometheus.CounterVec
	Revalidations   *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "raceday_http_request_duration_seconds",
			Help:    "Latency of HTTP requests by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		PanicsRecovered: f.NewCounter(prometheus.CounterOpts{
			Name: "raceday_http_panics_recovered_total",
			Help: "Total number of handler panics recovered",
		}),
		OutboxPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "raceday_outbox_published_total",
			Help: "Outbox rows relayed to Kafka by topic and outcome",
		}, []string{"topic", "outcome"}),
		Revalidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "raceday_cache_revalidations_total",
			Help: "Cache tag revalidations by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveRequest records one request's latency.
func (m *Metrics) ObserveRequest(method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(method, route, statusClass(status)).Observe(time.Since(start).Seconds())
}

// IncrementPanics counts a recovered panic.
func (m *Metrics) IncrementPanics() {
	if m == nil {
		return
	}
	m.PanicsRecovered.Inc()
}

// AddOutboxPublished counts relayed outbox rows.
func (m *Metrics) AddOutboxPublished(topic, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.OutboxPublished.WithLabelValues(topic, outcome).Add(float64(n))
}

// IncrementRevalidation counts a revalidation attempt.
func (m *Metrics) IncrementRevalidation(outcome string) {
	if m == nil {
		return
	}
	m.Revalidations.WithLabelValues(outcome).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	}
	return "2xx"
}

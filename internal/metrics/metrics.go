package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one process. A private registry keeps
// tests independent of the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	PollsWaiting  prometheus.Gauge
	PollOutcomes  *prometheus.CounterVec
	Penalties     prometheus.Counter
	PushSent      *prometheus.CounterVec
	JobsProcessed *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antimat",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "antimat",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60},
		}, []string{"route"}),
		PollsWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "antimat",
			Name:      "chat_polls_waiting",
			Help:      "Long-poll requests currently parked.",
		}),
		PollOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antimat",
			Name:      "chat_poll_outcomes_total",
			Help:      "Long-poll results: messages, timeout, cancelled or error.",
		}, []string{"outcome"}),
		Penalties: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "antimat",
			Name:      "penalties_recorded_total",
			Help:      "Violations recorded.",
		}),
		PushSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antimat",
			Name:      "push_notifications_total",
			Help:      "Push deliveries by kind and result.",
		}, []string{"kind", "result"}),
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antimat",
			Name:      "jobs_processed_total",
			Help:      "Worker jobs by type and result.",
		}, []string{"type", "result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.PollsWaiting,
		m.PollOutcomes,
		m.Penalties,
		m.PushSent,
		m.JobsProcessed,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

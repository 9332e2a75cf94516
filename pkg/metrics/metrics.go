package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mockfleet"

// Metrics holds the mockfleet collectors.
type Metrics struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	running    prometheus.Gauge
	reconciles *prometheus.CounterVec
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh registry without runtime collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests answered by mock services.",
		}, []string{"service", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time taken to answer mock requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "services_running",
			Help:      "Mock services currently serving.",
		}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciles_total",
			Help:      "Reconciliation passes by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.requests, m.duration, m.running, m.reconciles)
	return m
}

// ObserveRequest records one answered request.
func (m *Metrics) ObserveRequest(service, method string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(service, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(service).Observe(elapsed.Seconds())
}

// SetServicesRunning sets the running services gauge.
func (m *Metrics) SetServicesRunning(n int) {
	m.running.Set(float64(n))
}

// ObserveReconcile counts a reconciliation pass. A nil err is "ok".
func (m *Metrics) ObserveReconcile(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reconciles.WithLabelValues(result).Inc()
}

// Gatherer returns the registry the collectors live on.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

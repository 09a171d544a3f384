// Package metrics holds the service's Prometheus collectors on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "merchantrisk"

// Metrics groups every collector the service exports.
// All record methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	Assessments   *prometheus.CounterVec   // level, override
	Alerts        *prometheus.CounterVec   // severity
	ConfigChanges *prometheus.CounterVec   // key
	Reassessments *prometheus.CounterVec   // result
	BreakerState  *prometheus.GaugeVec     // name
	HTTPRequests  *prometheus.CounterVec   // method, route, status
	HTTPDuration  *prometheus.HistogramVec // method, route
}

// New registers the collectors on a fresh registry, together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.Assessments = m.counterVec("assessments_total", "Risk assessments recorded.", "level", "override")
	m.Alerts = m.counterVec("alerts_total", "Alerts raised.", "severity")
	m.ConfigChanges = m.counterVec("config_changes_total", "Risk configuration writes.", "key")
	m.Reassessments = m.counterVec("reassessments_total", "Queued reassessments handled by the worker.", "result")

	m.BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"name"})
	reg.MustRegister(m.BreakerState)

	m.HTTPRequests = m.counterVec("http_requests_total", "HTTP requests served.", "method", "route", "status")
	m.HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	reg.MustRegister(m.HTTPDuration)

	return m
}

func (m *Metrics) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
	m.registry.MustRegister(cv)
	return cv
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAssessment(level string, override bool) {
	if m == nil {
		return
	}
	m.Assessments.WithLabelValues(level, strconv.FormatBool(override)).Inc()
}

func (m *Metrics) ObserveAlert(severity string) {
	if m == nil {
		return
	}
	m.Alerts.WithLabelValues(severity).Inc()
}

func (m *Metrics) ObserveConfigChange(key string) {
	if m == nil {
		return
	}
	m.ConfigChanges.WithLabelValues(key).Inc()
}

func (m *Metrics) ObserveReassessment(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Reassessments.WithLabelValues(result).Inc()
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

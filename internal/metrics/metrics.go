// Package metrics provides Prometheus metrics for the SLA service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	versionsRecorded  prometheus.Counter
	versionConflicts  prometheus.Counter
	evaluationsTotal  *prometheus.CounterVec
	idempotentReplays prometheus.Counter
}

// New creates metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_sla_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aegis_sla_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		versionsRecorded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_sla_config_versions_recorded_total",
				Help: "Total number of config versions recorded",
			},
		),
		versionConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_sla_config_version_conflicts_total",
				Help: "Total number of version conflicts observed while recording changes",
			},
		),
		evaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_sla_evaluations_total",
				Help: "Total number of SLA evaluations by decision branch",
			},
			[]string{"branch", "breached"},
		),
		idempotentReplays: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_sla_idempotent_replays_total",
				Help: "Total number of responses replayed from the idempotency store",
			},
		),
	}
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// VersionRecorded counts a stored config version
func (m *Metrics) VersionRecorded() {
	if m == nil {
		return
	}
	m.versionsRecorded.Inc()
}

// VersionConflict counts a version conflict, retried or not
func (m *Metrics) VersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}

// Evaluation counts an SLA evaluation
func (m *Metrics) Evaluation(branch string, breached bool) {
	if m == nil {
		return
	}
	m.evaluationsTotal.WithLabelValues(branch, strconv.FormatBool(breached)).Inc()
}

// IdempotentReplay counts a replayed response
func (m *Metrics) IdempotentReplay() {
	if m == nil {
		return
	}
	m.idempotentReplays.Inc()
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

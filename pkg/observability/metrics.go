package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Hook metrics
	HookInvocationsTotal *prometheus.CounterVec
	HookDuration         *prometheus.HistogramVec
	HookErrorsTotal      *prometheus.CounterVec

	// Cascade metrics
	CascadeDeletesTotal *prometheus.CounterVec
	CascadeSkippedTotal *prometheus.CounterVec
	CascadeDuration     *prometheus.HistogramVec

	// Propagation metrics
	PropagationRunsTotal   *prometheus.CounterVec
	PropagationWritesTotal *prometheus.CounterVec
	BackgroundErrorsTotal  *prometheus.CounterVec

	// Schema gateway metrics
	SchemaRequestsTotal *prometheus.CounterVec
	SchemaCacheHits     prometheus.Counter
	SchemaCacheMisses   prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HookInvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudcode_hook_invocations_total",
				Help: "Total number of hook invocations",
			},
			[]string{"class", "trigger"},
		),
		HookDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cloudcode_hook_duration_seconds",
				Help:    "Hook handling duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"class", "trigger"},
		),
		HookErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudcode_hook_errors_total",
				Help: "Total number of hook failures",
			},
			[]string{"class", "trigger", "reason"},
		),
		CascadeDeletesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudcode_cascade_deletes_total",
				Help: "Total number of records destroyed by cascading deletes",
			},
			[]string{"entity"},
		),
		CascadeSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudcode_cascade_skipped_total",
				Help: "Total number of records skipped by rights checks during cascades",
			},
			[]string{"entity"},
		),
		CascadeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cloudcode_cascade_duration_seconds",
				Help:    "Cascade operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		PropagationRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudcode_propagation_runs_total",
				Help: "Total number of collaboration propagation runs",
			},
			[]string{"mode"},
		),
		PropagationWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudcode_propagation_writes_total",
				Help: "Total number of ACL and permission writes fanned out",
			},
			[]string{"entity"},
		),
		BackgroundErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudcode_background_errors_total",
				Help: "Total number of failed fire-and-forget operations",
			},
			[]string{"task"},
		),
		SchemaRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudcode_schema_requests_total",
				Help: "Total number of schema administration requests",
			},
			[]string{"method", "status"},
		),
		SchemaCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cloudcode_schema_cache_hits_total",
				Help: "Total number of schema cache hits",
			},
		),
		SchemaCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cloudcode_schema_cache_misses_total",
				Help: "Total number of schema cache misses",
			},
		),
	}

	registry.MustRegister(
		m.HookInvocationsTotal,
		m.HookDuration,
		m.HookErrorsTotal,
		m.CascadeDeletesTotal,
		m.CascadeSkippedTotal,
		m.CascadeDuration,
		m.PropagationRunsTotal,
		m.PropagationWritesTotal,
		m.BackgroundErrorsTotal,
		m.SchemaRequestsTotal,
		m.SchemaCacheHits,
		m.SchemaCacheMisses,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for sitesync. A disabled config
// yields a no-op instance; every record method is nil-safe.
type Metrics struct {
	config MetricsConfig

	// Restore / apply metrics
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	retriesTotal      *prometheus.CounterVec

	// Provider metrics
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec

	// Rate budget metrics
	rateGateWait prometheus.Histogram

	// Run metrics
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeSites   prometheus.Gauge

	// Drift metrics
	driftDetections *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of restore operations executed",
			},
			[]string{"kind", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of restore operation execution in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "entity_type"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_retries_total",
				Help:      "Total number of operation retries by error class",
			},
			[]string{"class"},
		),

		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of provider calls",
			},
			[]string{"operation"},
		),
		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Duration of provider calls in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of provider errors by class",
			},
			[]string{"operation", "class"},
		),

		rateGateWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rate_gate_wait_seconds",
				Help:      "Time spent waiting on the shared rate budget",
				Buckets:   buckets,
			},
		),

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "site_runs_completed_total",
				Help:      "Total number of per-site runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "site_run_duration_seconds",
				Help:      "Duration of per-site runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		activeSites: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sites",
				Help:      "Current number of sites being executed",
			},
		),

		driftDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_detections_total",
				Help:      "Total number of drift verification results",
			},
			[]string{"section", "status"},
		),
	}

	registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.retriesTotal,
		m.providerCalls,
		m.providerDuration,
		m.providerErrors,
		m.rateGateWait,
		m.runsCompleted,
		m.runDuration,
		m.activeSites,
		m.driftDetections,
	)

	return m, nil
}

// RecordOperation records an executed restore operation.
func (m *Metrics) RecordOperation(kind, status, entityType string, duration time.Duration) {
	if m == nil || m.operationsTotal == nil {
		return
	}
	m.operationsTotal.WithLabelValues(kind, status).Inc()
	m.operationDuration.WithLabelValues(kind, entityType).Observe(duration.Seconds())
}

// RecordRetry records an operation retry with its triggering error class.
func (m *Metrics) RecordRetry(class string) {
	if m == nil || m.retriesTotal == nil {
		return
	}
	m.retriesTotal.WithLabelValues(class).Inc()
}

// RecordProviderCall records a provider call with its duration.
func (m *Metrics) RecordProviderCall(operation string, duration time.Duration) {
	if m == nil || m.providerCalls == nil {
		return
	}
	m.providerCalls.WithLabelValues(operation).Inc()
	m.providerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(operation, class string) {
	if m == nil || m.providerErrors == nil {
		return
	}
	m.providerErrors.WithLabelValues(operation, class).Inc()
}

// ObserveRateGateWait records time spent waiting on the rate budget.
func (m *Metrics) ObserveRateGateWait(d time.Duration) {
	if m == nil || m.rateGateWait == nil {
		return
	}
	m.rateGateWait.Observe(d.Seconds())
}

// RecordSiteRunStarted marks a per-site run as active.
func (m *Metrics) RecordSiteRunStarted() {
	if m == nil || m.activeSites == nil {
		return
	}
	m.activeSites.Inc()
}

// RecordSiteRunCompleted records a completed per-site run.
func (m *Metrics) RecordSiteRunCompleted(status string, duration time.Duration) {
	if m == nil || m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeSites.Dec()
}

// RecordDriftDetection records a drift verification result for a section.
func (m *Metrics) RecordDriftDetection(section, status string) {
	if m == nil || m.driftDetections == nil {
		return
	}
	m.driftDetections.WithLabelValues(section, status).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		_ = server.ListenAndServe()
	}()

	return nil
}

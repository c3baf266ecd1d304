// Package metrics exposes Prometheus metrics for claim imports and the HTTP
// API.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every collector the service exports.
type Manager struct {
	namespace         string
	histogramBuckets  []float64
	registry          *prometheus.Registry
	runtimeCollectors bool

	importsTotal      *prometheus.CounterVec
	importRows        *prometheus.CounterVec
	importDuration    prometheus.Histogram
	importsInProgress prometheus.Gauge

	exportsTotal prometheus.Counter
	exportedRows prometheus.Counter

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a manager on its own registry unless WithRegistry is
// given, so tests can build as many as they like.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "claims",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	if m.runtimeCollectors {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.importsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "import",
		Name:      "jobs_total",
		Help:      "Claim import jobs by final status",
	}, []string{"status"})

	m.importRows = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Import rows by outcome",
	}, []string{"outcome"})

	m.importDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Wall time of a claim import job",
		Buckets:   m.histogramBuckets,
	})

	m.importsInProgress = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "import",
		Name:      "in_progress",
		Help:      "Claim imports currently running",
	})

	m.exportsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "export",
		Name:      "files_total",
		Help:      "Claim export files generated",
	})

	m.exportedRows = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "export",
		Name:      "rows_total",
		Help:      "Claims written to export files",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and method",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})
}

// Registry returns the registry backing this manager.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// ImportStarted marks an import as running. Call the returned func with the
// final status once the job is finalized.
func (m *Manager) ImportStarted() func(status string) {
	start := time.Now()
	m.importsInProgress.Inc()
	return func(status string) {
		m.importsInProgress.Dec()
		m.importsTotal.WithLabelValues(status).Inc()
		m.importDuration.Observe(time.Since(start).Seconds())
	}
}

// ImportRow counts one row outcome (processed, invalid, failed, fault).
func (m *Manager) ImportRow(outcome string) {
	m.importRows.WithLabelValues(outcome).Inc()
}

// ExportGenerated counts an export file with rows claims.
func (m *Manager) ExportGenerated(rows int) {
	m.exportsTotal.Inc()
	m.exportedRows.Add(float64(rows))
}

// Middleware records request counts and latency per matched route.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.httpRequests.WithLabelValues(route, method, strconv.Itoa(statusOf(c, err))).Inc()
			m.httpRequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// statusOf resolves the status echo will write for err, which has not been
// handled yet at this point in the chain.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

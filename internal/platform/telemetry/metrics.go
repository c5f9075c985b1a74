// Package telemetry exposes Prometheus metrics for the sandbox server: HTTP
// request counts and latencies, plus dataset generation activity.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsPath is the route the exposition handler is mounted on.
const MetricsPath = "/metrics"

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Metrics holds the collectors for one server. Each Metrics owns its
// registry, so tests and multiple servers in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	inFlight       prometheus.Gauge
	access         *prometheus.CounterVec

	generations        *prometheus.CounterVec
	generationDuration prometheus.Histogram
	tableRows          *prometheus.GaugeVec
}

// NewMetrics registers the server collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   durationBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		access: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_access_total",
			Help:      "Audited API calls by resource, action and outcome.",
		}, []string{"resource", "action", "outcome"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_generated_total",
			Help:      "Sandbox datasets generated by outcome mode.",
		}, []string{"mode"}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_generation_duration_seconds",
			Help:      "Time spent generating a sandbox dataset.",
			Buckets:   durationBuckets,
		}),
		tableRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_table_rows",
			Help:      "Rows per table in the dataset currently served.",
		}, []string{"table"}),
	}
	reg.MustRegister(
		m.requests,
		m.requestLatency,
		m.inFlight,
		m.access,
		m.generations,
		m.generationDuration,
		m.tableRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request metrics. Routes are labelled by their pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == MetricsPath {
				return next(c)
			}
			m.inFlight.Inc()
			defer m.inFlight.Dec()

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.requestLatency.WithLabelValues(method, route).Observe(elapsed)
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	}))
}

// ObserveAccess counts one audited API call. The outcome is allowed, denied
// (401 or 403) or failed (any other status of 400 and above).
func (m *Metrics) ObserveAccess(resource, action string, status int) {
	m.access.WithLabelValues(resource, action, accessOutcome(status)).Inc()
}

func accessOutcome(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "denied"
	case status >= http.StatusBadRequest:
		return "failed"
	default:
		return "allowed"
	}
}

// ObserveGeneration records one generated dataset. rows maps table name to
// row count and replaces the previous dataset's counts.
func (m *Metrics) ObserveGeneration(mode string, took time.Duration, rows map[string]int) {
	m.generations.WithLabelValues(mode).Inc()
	m.generationDuration.Observe(took.Seconds())
	m.tableRows.Reset()
	for table, n := range rows {
		m.tableRows.WithLabelValues(table).Set(float64(n))
	}
}

// ObserveReset clears the served dataset's row counts.
func (m *Metrics) ObserveReset() {
	m.tableRows.Reset()
}

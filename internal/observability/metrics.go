package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics for the application.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	postingsTotal     *prometheus.CounterVec
	clampedDecrements prometheus.Counter
	jobsTotal         *prometheus.CounterVec
}

// NewMetrics initializes the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hisaab_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hisaab_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hisaab_ledger_postings_total",
		Help: "Committed ledger postings by source module.",
	}, []string{"source"})
	clamped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hisaab_inventory_clamped_decrements_total",
		Help: "Stock decrements clamped at zero instead of going negative.",
	})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hisaab_jobs_total",
		Help: "Background job executions by task and outcome.",
	}, []string{"task", "status"})
	registry.MustRegister(requests, duration, postings, clamped, jobs)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		postingsTotal:     postings,
		clampedDecrements: clamped,
		jobsTotal:         jobs,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RecordPosting counts a committed ledger posting for its source module.
// Nil-safe so services can run without metrics wired.
func (m *Metrics) RecordPosting(source string) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(source).Inc()
}

// RecordClampedDecrement counts a stock decrement that was clamped at
// zero.
func (m *Metrics) RecordClampedDecrement() {
	if m == nil {
		return
	}
	m.clampedDecrements.Inc()
}

// RecordJob counts one background job execution.
func (m *Metrics) RecordJob(task string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.jobsTotal.WithLabelValues(task, status).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

// Package metrics exposes tracegen activity as Prometheus metrics.
package metrics

import (
	gocontext "context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cgast/tracegen/pkg/events"
)

const namespace = "tracegen"

// Metrics owns a private registry so tests and multiple servers never share
// collectors.
type Metrics struct {
	registry *prometheus.Registry

	contextEvents  *prometheus.CounterVec
	exports        *prometheus.CounterVec
	exportedCases  prometheus.Counter
	matrixBuilds   prometheus.Counter
	matrixCoverage prometheus.Gauge
	pipelineSteps  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		contextEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_events_total",
			Help:      "Context store lifecycle events by type.",
		}, []string{"type"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Export artifacts written, by format.",
		}, []string{"format"}),
		exportedCases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exported_test_cases_total",
			Help:      "Test cases written to export artifacts.",
		}),
		matrixBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matrix_builds_total",
			Help:      "Traceability matrices built.",
		}),
		matrixCoverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "matrix_coverage_ratio",
			Help:      "Covered requirement ratio of the most recent matrix.",
		}),
		pipelineSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_steps_total",
			Help:      "Pipeline steps by name and status.",
		}, []string{"step", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.contextEvents, m.exports, m.exportedCases,
		m.matrixBuilds, m.matrixCoverage, m.pipelineSteps,
		m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Record updates the collectors for a single event.
func (m *Metrics) Record(e events.Event) {
	switch e.Type {
	case events.EventContextCreated, events.EventContextUpdated, events.EventContextFeedback:
		m.contextEvents.WithLabelValues(string(e.Type)).Inc()
	case events.EventExportWritten:
		if d, ok := e.Data.(events.ExportData); ok {
			m.exports.WithLabelValues(d.Format).Inc()
			m.exportedCases.Add(float64(d.TestCases))
		}
	case events.EventMatrixBuilt:
		m.matrixBuilds.Inc()
		if d, ok := e.Data.(events.MatrixData); ok && d.Requirements > 0 {
			m.matrixCoverage.Set(float64(d.Covered) / float64(d.Requirements))
		}
	case events.EventPipelineStep:
		if d, ok := e.Data.(events.PipelineData); ok {
			m.pipelineSteps.WithLabelValues(d.Step, d.Status).Inc()
		}
	}
}

// DropCounter reports events a bus failed to deliver to slow subscribers.
type DropCounter interface {
	Dropped() int64
}

// TrackDrops exposes bus's undelivered event count. Call it once per bus.
func (m *Metrics) TrackDrops(bus DropCounter) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Events not delivered because a subscriber fell behind.",
	}, func() float64 { return float64(bus.Dropped()) }))
}

// Watch records events from bus until ctx is done.
func (m *Metrics) Watch(ctx gocontext.Context, bus events.EventBus) {
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			m.Record(e)
		}
	}
}

// Middleware counts requests by the matched chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

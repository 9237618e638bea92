// Package metrics holds the Prometheus collectors of the server.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/marknest/internal/apperr"
)

const namespace = "marknest"

// Metrics owns a private registry so several servers can coexist in one
// process (tests included).
type Metrics struct {
	reg *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	FileOps         *prometheus.CounterVec
	Reconciled      *prometheus.CounterVec
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		FileOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "file_operations_total",
				Help:      "File tree operations by outcome",
			},
			[]string{"op", "result"},
		),
		Reconciled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciled_records_total",
				Help:      "Metadata records touched by reconciliation",
			},
			[]string{"action"},
		),
	}
}

// ObserveOp counts one file tree operation. It satisfies filetree.OpRecorder.
func (m *Metrics) ObserveOp(op string, err error) {
	m.FileOps.WithLabelValues(op, Result(err)).Inc()
}

// ObserveReconcile counts records indexed and removed by a reconcile pass.
func (m *Metrics) ObserveReconcile(indexed, removed int) {
	m.Reconciled.WithLabelValues("indexed").Add(float64(indexed))
	m.Reconciled.WithLabelValues("removed").Add(float64(removed))
}

// Result reduces err to a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrInvalidPath):
		return "invalid_path"
	case errors.Is(err, apperr.ErrInvalidExtension):
		return "invalid_extension"
	case errors.Is(err, apperr.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, apperr.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, apperr.ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, apperr.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "error"
	}
}

// Middleware records request counts and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkblock_http_requests_total",
		Help: "HTTP requests by route pattern, method and status",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thinkblock_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	aiCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkblock_ai_calls_total",
		Help: "Model calls by operation and result",
	}, []string{"operation", "result"})

	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thinkblock_ai_call_duration_seconds",
		Help:    "Model call latency by operation",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~2min
	}, []string{"operation"})

	storageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkblock_storage_errors_total",
		Help: "Backend errors by backend and operation, including swallowed ones",
	}, []string{"backend", "operation"})

	sseClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thinkblock_sse_clients",
		Help: "Connected event-stream clients",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency keyed by the chi route
// pattern, so ids in the path do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveAI records one model call.
func ObserveAI(operation string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	aiCalls.WithLabelValues(operation, result).Inc()
	aiDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// StorageError counts a backend failure.
func StorageError(backend, operation string) {
	storageErrors.WithLabelValues(backend, operation).Inc()
}

// SSEClientConnected and SSEClientDisconnected track the live subscriber count.
func SSEClientConnected()    { sseClients.Inc() }
func SSEClientDisconnected() { sseClients.Dec() }

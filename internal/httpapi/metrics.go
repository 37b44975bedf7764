package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	backendRequests   *prometheus.CounterVec
	backendDuration   *prometheus.HistogramVec
	allocationActions *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "console",
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the console.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "console",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of console HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "console",
			Name:      "backend_requests_total",
			Help:      "Requests sent to the rental backend.",
		}, []string{"method", "status"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "console",
			Name:      "backend_request_duration_seconds",
			Help:      "Duration of requests to the rental backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		allocationActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "console",
			Name:      "allocation_actions_total",
			Help:      "Payment allocation steps applied.",
		}, []string{"action"}),
	}
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.backendRequests,
		m.backendDuration,
		m.allocationActions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBackend matches upstream.Observer. Status 0 means no response.
func (m *Metrics) ObserveBackend(method string, status int, elapsed time.Duration) {
	m.backendRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.backendDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAllocation(action string) {
	m.allocationActions.WithLabelValues(action).Inc()
}

// Middleware labels requests by route template so ids do not blow up the
// label space.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		path := "unmatched"
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		m.requestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/floraqa/internal/core/domain"
)

const namespace = "floraqa"

type HTTPServerMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	answerRoutesTotal      *prometheus.CounterVec
	retrievedChunks        *prometheus.HistogramVec
	generationFailures     *prometheus.CounterVec
	activeSessions         prometheus.Gauge
	sessionEvictionsTotal  prometheus.Counter
	breakerTransitionTotal *prometheus.CounterVec
	indexReloadsTotal      *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	serviceLabel := prometheus.Labels{"service": service}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: serviceLabel,
		},
	)
	answerRoutesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "routes_total",
			Help:      "Total answered questions by route.",
		},
		[]string{"service", "route"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "retrieved_chunks",
			Help:      "Distribution of fused chunks used as generation context.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8, 13},
		},
		[]string{"service"},
	)
	generationFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "generation_failures_total",
			Help:      "Total generation calls replaced by the apology reply.",
		},
		[]string{"service", "route"},
	)
	activeSessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "session",
			Name:        "active",
			Help:        "Number of live sessions after the last sweep.",
			ConstLabels: serviceLabel,
		},
	)
	sessionEvictionsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "session",
			Name:        "evictions_total",
			Help:        "Total sessions evicted by the idle sweep.",
			ConstLabels: serviceLabel,
		},
	)
	breakerTransitionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dependency",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions by dependency and operation.",
		},
		[]string{"service", "dependency", "operation", "to"},
	)
	indexReloadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "reloads_total",
			Help:      "Index reloads by trigger and status.",
		},
		[]string{"service", "trigger", "status"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		answerRoutesTotal,
		retrievedChunks,
		generationFailures,
		activeSessions,
		sessionEvictionsTotal,
		breakerTransitionTotal,
		indexReloadsTotal,
	)

	return &HTTPServerMetrics{
		service:                service,
		registry:               registry,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		answerRoutesTotal:      answerRoutesTotal,
		retrievedChunks:        retrievedChunks,
		generationFailures:     generationFailures,
		activeSessions:         activeSessions,
		sessionEvictionsTotal:  sessionEvictionsTotal,
		breakerTransitionTotal: breakerTransitionTotal,
		indexReloadsTotal:      indexReloadsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := requestPath(r)
		m.requestTotal.WithLabelValues(m.service, r.Method, path, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// requestPath prefers the matched chi pattern so unknown paths do not grow
// the label set.
func requestPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// RecordAnswer implements ports.AnswerObserver.
func (m *HTTPServerMetrics) RecordAnswer(route domain.Route, retrievedChunks int, generationFailed bool) {
	label := string(route)
	if label == "" {
		label = "unknown"
	}
	m.answerRoutesTotal.WithLabelValues(m.service, label).Inc()
	if route == domain.RouteRetrieval {
		m.retrievedChunks.WithLabelValues(m.service).Observe(float64(retrievedChunks))
	}
	if generationFailed {
		m.generationFailures.WithLabelValues(m.service, label).Inc()
	}
}

// ObserveSweep matches the session manager's sweep callback.
func (m *HTTPServerMetrics) ObserveSweep(evicted, remaining int) {
	if evicted > 0 {
		m.sessionEvictionsTotal.Add(float64(evicted))
	}
	m.activeSessions.Set(float64(remaining))
}

func (m *HTTPServerMetrics) ObserveBreaker(dependency, operation string, _, to gobreaker.State) {
	m.breakerTransitionTotal.WithLabelValues(m.service, dependency, operation, to.String()).Inc()
}

func (m *HTTPServerMetrics) RecordIndexReload(trigger string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.indexReloadsTotal.WithLabelValues(m.service, trigger, status).Inc()
}

package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kirillkom/floraqa/internal/core/ports"
)

// ReadinessChecker reports whether the corpus index is loaded.
type ReadinessChecker interface {
	Ready() bool
}

type Options struct {
	RateLimitRPS            float64
	RateLimitBurst          int
	BackpressureMaxInFlight int
	BackpressureWait        time.Duration
	// Metrics wraps every request and is served on /metrics when set.
	Metrics MetricsProvider
}

type MetricsProvider interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

type Router struct {
	answers   ports.AnswerService
	records   ports.RecordReader
	readiness ReadinessChecker
	opts      Options
}

func NewRouter(answers ports.AnswerService, records ports.RecordReader, readiness ReadinessChecker, opts Options) *Router {
	return &Router{
		answers:   answers,
		records:   records,
		readiness: readiness,
		opts:      opts,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(middleware.Recoverer)
	if rt.opts.Metrics != nil {
		r.Use(rt.opts.Metrics.Middleware)
	}

	r.Get("/healthz", rt.healthz)
	r.Get("/readyz", rt.readyz)
	if rt.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.opts.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
		})
		api.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.opts.BackpressureMaxInFlight, rt.opts.BackpressureWait)
		})

		api.Post("/qa", rt.answer)
		api.Post("/reset-conversation", rt.resetConversation)
		api.Get("/session-stats", rt.sessionStats)
		api.Get("/plants", rt.listPlants)
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, _ *http.Request) {
	if rt.readiness != nil && !rt.readiness.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "index_unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{
		"error":      publicErrorMessage(err),
		"request_id": requestIDFromContext(r.Context()),
	})
}

package server

import (
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"milecal/internal/pathset"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authzDecisions  *prometheus.CounterVec

	public *pathset.PublicPaths
}

// NewMetrics registers the gateway collectors with the given registerer.
func NewMetrics(reg prometheus.Registerer, public *pathset.PublicPaths) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "milecal",
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, by method, path class, and status.",
		}, []string{"method", "class", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "milecal",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method and path class.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "class"}),
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "milecal",
			Name:      "authz_decisions_total",
			Help:      "Authorization decisions, by outcome.",
		}, []string{"decision"}),
		public: public,
	}

	reg.MustRegister(m.requestsTotal, m.requestDuration, m.authzDecisions)
	return m
}

// ObserveDecision counts one authorization decision. Wired into the
// middleware chain's decision hook.
func (m *Metrics) ObserveDecision(allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.authzDecisions.WithLabelValues(decision).Inc()
}

// Instrument wraps a handler with request counting and latency
// observation. Paths are labeled by class rather than value to keep
// cardinality bounded.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := "protected"
		if m.public.IsPublic(r.URL.Path) {
			class = "public"
		}

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		m.requestsTotal.WithLabelValues(r.Method, class, strconv.Itoa(ww.Status())).Inc()
		m.requestDuration.WithLabelValues(r.Method, class).Observe(time.Since(start).Seconds())
	})
}

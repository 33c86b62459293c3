// internal/app/system/metrics/metrics.go

// Package metrics registers the Prometheus collectors the portal exposes on
// /metrics and provides small helpers so features never touch collector
// plumbing directly.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ivrhub_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivrhub_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ivrhub_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	guardDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivrhub_guard_decisions_total",
			Help: "Access guard decisions by outcome.",
		},
		[]string{"outcome"},
	)

	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivrhub_login_attempts_total",
			Help: "Login attempts by method and result.",
		},
		[]string{"method", "result"},
	)

	ordersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivrhub_orders_created_total",
			Help: "Orders created by source.",
		},
		[]string{"source"},
	)

	callsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ivrhub_calls_recorded_total",
			Help: "IVR calls recorded by outcome.",
		},
		[]string{"outcome"},
	)
)

var registerOnce sync.Once

// Init registers the collectors in the default registry. Safe to call more
// than once; only the first call registers.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight,
			httpRequestsTotal,
			httpRequestDuration,
			guardDecisions,
			loginAttempts,
			ordersCreated,
			callsRecorded,
		)
	})
}

// Handler returns the Prometheus scrape handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps a handler with request counting and latency observation.
// The route label uses chi's route pattern so path parameters don't explode
// label cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpInFlight.Dec()
	})
}

// GuardDecision counts an access guard outcome ("authorized" or a denial
// reason slug).
func GuardDecision(outcome string) {
	guardDecisions.WithLabelValues(outcome).Inc()
}

// LoginAttempt counts a login attempt. method is "password", "google", or
// "mfa"; result is "success", "failure", or "locked".
func LoginAttempt(method, result string) {
	loginAttempts.WithLabelValues(method, result).Inc()
}

// OrderCreated counts a new order by source ("ivr" or "portal").
func OrderCreated(source string) {
	ordersCreated.WithLabelValues(source).Inc()
}

// CallRecorded counts an ingested IVR call record by outcome.
func CallRecorded(outcome string) {
	callsRecorded.WithLabelValues(outcome).Inc()
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

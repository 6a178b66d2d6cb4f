// ABOUTME: Prometheus instrumentation for the gateway
// ABOUTME: Owns a private registry with request, auth outcome, rate limit, and newsletter series

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "identity_gateway"

var histogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

// Auth outcomes recorded by RecordAuth.
const (
	OutcomeSuccess            = "success"
	OutcomeConflict           = "conflict"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeInvalid            = "invalid_request"
	OutcomeError              = "error"
)

// Recorder collects gateway metrics. A nil *Recorder records nothing, so
// callers never need to check whether metrics are enabled.
type Recorder struct {
	registry       *prometheus.Registry
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	authAttempts   *prometheus.CounterVec
	rateLimitHits  *prometheus.CounterVec
	subscriptions  *prometheus.CounterVec
	mailFailures   *prometheus.CounterVec
}

// New creates a Recorder registered on its own registry, including Go runtime
// and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Authentication attempts by method and outcome",
		}, []string{"method", "outcome"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route"}),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "newsletter",
			Name:      "subscriptions_total",
			Help:      "Newsletter subscription attempts by outcome",
		}, []string{"outcome"}),
		mailFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "newsletter",
			Name:      "provider_failures_total",
			Help:      "Failed calls to the email provider by operation",
		}, []string{"operation"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requestTotal,
		r.requestLatency,
		r.authAttempts,
		r.rateLimitHits,
		r.subscriptions,
		r.mailFailures,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// methodOther labels request methods outside the standard set, which would
// otherwise let clients mint unbounded series.
const methodOther = "OTHER"

func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return method
	default:
		return methodOther
	}
}

// RecordRequest records one served HTTP request.
func (r *Recorder) RecordRequest(method, route string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	method = methodLabel(method)
	r.requestTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.requestLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAuth records an authentication attempt. method is signup, login, or a
// federated provider name.
func (r *Recorder) RecordAuth(method, outcome string) {
	if r == nil {
		return
	}
	r.authAttempts.WithLabelValues(method, outcome).Inc()
}

// RecordRateLimitHit records a rejected request.
func (r *Recorder) RecordRateLimitHit(route string) {
	if r == nil {
		return
	}
	r.rateLimitHits.WithLabelValues(route).Inc()
}

// RecordSubscription records a newsletter subscription attempt.
func (r *Recorder) RecordSubscription(outcome string) {
	if r == nil {
		return
	}
	r.subscriptions.WithLabelValues(outcome).Inc()
}

// RecordMailFailure records a failed email provider call.
func (r *Recorder) RecordMailFailure(operation string) {
	if r == nil {
		return
	}
	r.mailFailures.WithLabelValues(operation).Inc()
}

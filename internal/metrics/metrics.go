// Package metrics holds the Prometheus metrics for the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	violationsCreated prometheus.Counter
	suspensions       prometheus.Counter
	paymentOutcomes   *prometheus.CounterVec
	refunds           *prometheus.CounterVec
	gatewayErrors     *prometheus.CounterVec
	signatureFailures *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
}

// New creates a dedicated Prometheus registry and registers all
// application metrics in it, so New can be called once per test.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "roadwarden_http_request_duration_seconds",
				Help:    "Duration of HTTP requests by route and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		violationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "roadwarden_violations_created_total",
			Help: "Total violations recorded.",
		}),
		suspensions: factory.NewCounter(prometheus.CounterOpts{
			Name: "roadwarden_suspensions_total",
			Help: "Total vehicles suspended by the point threshold.",
		}),
		paymentOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roadwarden_payment_verifications_total",
				Help: "Payment references resolved, by gateway and outcome.",
			},
			[]string{"gateway", "status"},
		),
		refunds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roadwarden_refunds_total",
				Help: "Refunds processed, by gateway and kind.",
			},
			[]string{"gateway", "kind"},
		),
		gatewayErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roadwarden_gateway_errors_total",
				Help: "Failed calls to payment gateways.",
			},
			[]string{"gateway", "op"},
		),
		signatureFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roadwarden_webhook_signature_failures_total",
				Help: "Webhooks rejected for an invalid signature.",
			},
			[]string{"gateway"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "roadwarden_gateway_circuit_state",
				Help: "Circuit breaker state per gateway (0 closed, 1 half-open, 2 open).",
			},
			[]string{"gateway"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roadwarden_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roadwarden_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// RecordRequest records the duration of an HTTP request.
func (m *Metrics) RecordRequest(method, route, status string, d time.Duration) {
	m.requestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// ViolationsCreated adds n recorded violations.
func (m *Metrics) ViolationsCreated(n int) {
	m.violationsCreated.Add(float64(n))
}

// SuspensionTriggered counts a vehicle crossing the point threshold.
func (m *Metrics) SuspensionTriggered() {
	m.suspensions.Inc()
}

// PaymentResolved counts a payment reference reaching a terminal status.
func (m *Metrics) PaymentResolved(gateway, status string) {
	m.paymentOutcomes.WithLabelValues(gateway, status).Inc()
}

// RefundProcessed counts a refund; kind is "full" or "partial".
func (m *Metrics) RefundProcessed(gateway, kind string) {
	m.refunds.WithLabelValues(gateway, kind).Inc()
}

// GatewayError counts a failed gateway call.
func (m *Metrics) GatewayError(gateway, op string) {
	m.gatewayErrors.WithLabelValues(gateway, op).Inc()
}

// SignatureFailure counts a webhook rejected for its signature.
func (m *Metrics) SignatureFailure(gateway string) {
	m.signatureFailures.WithLabelValues(gateway).Inc()
}

// BreakerStateChanged tracks a gateway circuit breaker transition.
func (m *Metrics) BreakerStateChanged(name string, _, to gobreaker.State) {
	m.breakerState.WithLabelValues(name).Set(float64(to))
}

// CacheHit increments the cache hit counter.
func (m *Metrics) CacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// CacheMiss increments the cache miss counter.
func (m *Metrics) CacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Telephony provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec

	// Billing metrics
	DialsTotal             *prometheus.CounterVec
	SettlementsTotal       *prometheus.CounterVec
	DuplicateWebhooksTotal prometheus.Counter
	UnmatchedWebhooksTotal prometheus.Counter
	DebitsSkippedTotal     prometheus.Counter
	PendingCallsExpired    prometheus.Counter
}

var metrics *Metrics

// Init initializes all Prometheus metrics
func Init() *Metrics {
	if metrics != nil {
		return metrics
	}

	metrics = &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ProviderRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telephony_provider_requests_total",
				Help: "Total number of requests to the telephony provider",
			},
			[]string{"provider", "operation", "status"},
		),
		ProviderLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "telephony_provider_latency_seconds",
				Help:    "Telephony provider response latency in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"provider", "operation"},
		),

		DialsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dials_total",
				Help: "Total number of dial attempts by outcome",
			},
			[]string{"outcome"},
		),
		SettlementsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "call_settlements_total",
				Help: "Total number of call settlements by outcome",
			},
			[]string{"outcome"},
		),
		DuplicateWebhooksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "duplicate_webhooks_total",
				Help: "Status callbacks matched to an already settled call",
			},
		),
		UnmatchedWebhooksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "unmatched_webhooks_total",
				Help: "Status callbacks that matched no call session",
			},
		),
		DebitsSkippedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "settlement_debits_skipped_total",
				Help: "Settlements whose ledger debit was skipped for insufficient funds",
			},
		),
		PendingCallsExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pending_calls_expired_total",
				Help: "Pending calls marked failed by the reaper",
			},
		),
	}

	return metrics
}

// Get returns the global metrics instance
func Get() *Metrics {
	if metrics == nil {
		return Init()
	}
	return metrics
}

// GinHandler returns a Gin-compatible handler for Prometheus metrics
func GinHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware is a Gin middleware for collecting HTTP metrics
func Middleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordProviderRequest records one telephony provider round trip.
func RecordProviderRequest(provider, operation, status string, duration time.Duration) {
	m := Get()
	m.ProviderRequests.WithLabelValues(provider, operation, status).Inc()
	m.ProviderLatency.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordDial records a dial attempt outcome.
func RecordDial(outcome string) {
	Get().DialsTotal.WithLabelValues(outcome).Inc()
}

// RecordSettlement records a settlement outcome.
func RecordSettlement(outcome string) {
	Get().SettlementsTotal.WithLabelValues(outcome).Inc()
}

// RecordDuplicateWebhook records a redelivered callback for a settled call.
func RecordDuplicateWebhook() {
	Get().DuplicateWebhooksTotal.Inc()
}

// RecordUnmatchedWebhook records a callback that matched nothing.
func RecordUnmatchedWebhook() {
	Get().UnmatchedWebhooksTotal.Inc()
}

// RecordDebitSkipped records an insufficient-funds settlement.
func RecordDebitSkipped() {
	Get().DebitsSkippedTotal.Inc()
}

// RecordExpiredPending adds reaper-swept pending calls.
func RecordExpiredPending(n int64) {
	Get().PendingCallsExpired.Add(float64(n))
}

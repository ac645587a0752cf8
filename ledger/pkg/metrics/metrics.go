package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "racevault_build_info",
			Help: "Build information of the race vault ledger",
		},
		[]string{"version", "commit", "date"},
	)

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racevault_operations_total",
			Help: "Total number of ledger operations by outcome",
		},
		[]string{"operation", "code"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "racevault_operation_duration_seconds",
			Help:    "Duration of ledger operations including the store transaction",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"operation"},
	)

	RegisteredAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racevault_registered_amount_total",
			Help: "Total base units registered as pending, by benefit class",
		},
		[]string{"class"},
	)

	ClaimedAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racevault_claimed_amount_total",
			Help: "Total base units transferred out of custody by claims, by benefit class",
		},
		[]string{"class"},
	)

	DepositedAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "racevault_deposited_amount_total",
			Help: "Total base units deposited into custody",
		},
	)

	OutboxPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racevault_outbox_published_total",
			Help: "Total number of events published by the outbox relay",
		},
		[]string{"type"},
	)

	OutboxPublishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "racevault_outbox_publish_failures_total",
			Help: "Total number of outbox batches that failed to publish after retries",
		},
	)

	OutboxLagSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "racevault_outbox_lag_seconds",
			Help: "Age of the oldest event published in the last relay batch",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racevault_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "racevault_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "racevault_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// ObserveOperation records the outcome and duration of a ledger operation.
func ObserveOperation(operation, code string, started time.Time) {
	OperationsTotal.WithLabelValues(operation, code).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Route pattern keeps label cardinality bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tracks the number of outbound quote calls per provider.
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_provider_requests_total",
			Help: "Total number of provider quote requests made (by provider and outcome).",
		},
		[]string{"provider", "outcome"},
	)

	// Measures duration of provider quote calls.
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_provider_request_duration_seconds",
			Help:    "Duration of provider quote requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"provider"},
	)

	QuoteCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_quote_cache_total",
			Help: "Quote cache lookups by result (hit/miss).",
		},
		[]string{"result"},
	)

	TransactionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transaction_transitions_total",
			Help: "Transaction state transitions by target status.",
		},
		[]string{"status"},
	)

	NATSPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Number of NATS publish failures",
		},
		[]string{"subject"},
	)
)

// ObserveDuration records the time taken since start on the given histogram.
func ObserveDuration(h *prometheus.HistogramVec, start time.Time, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}

func IncProviderRequest(provider, outcome string) {
	ProviderRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

func IncCache(result string) {
	QuoteCacheHits.WithLabelValues(result).Inc()
}

func IncTransition(status string) {
	TransactionTransitions.WithLabelValues(status).Inc()
}

func StartServer(addr string) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		http.ListenAndServe(addr, nil) //nolint:errcheck
	}()
}

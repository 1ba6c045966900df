package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RideTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridehail", Name: "ride_transitions_total", Help: "Lifecycle transitions by operation and outcome"},
		[]string{"op", "outcome"},
	)
	BroadcastsTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridehail", Name: "broadcasts_total", Help: "Messages fanned out to ride subscribers"})
	SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ridehail", Name: "subscriptions_active", Help: "Live ride subscriptions"})
	WSConnections       = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ridehail", Name: "ws_connections", Help: "Open live-channel connections"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridehail", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ridehail",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

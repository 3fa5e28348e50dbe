package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors for checkout, reconciliation and indexing.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	WebhookOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_outcomes_total",
			Help: "Payment webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	PaymentAnomaliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_amount_anomalies_total",
			Help: "Completed payments whose amount or currency differs from the order",
		},
	)

	InitiationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_initiations_total",
			Help: "Payment initiation attempts by result",
		},
		[]string{"result"},
	)

	GatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_call_duration_seconds",
			Help:    "Duration of outbound payment gateway calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"call"},
	)

	TokenCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_token_cache_total",
			Help: "Gateway token cache lookups by result",
		},
		[]string{"result"},
	)

	IndexOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_index_operations_total",
			Help: "Search index operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	StockMovementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_movements_total",
			Help: "Stock movements applied for paid orders",
		},
		[]string{"result"},
	)
)

var once sync.Once

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			WebhookOutcomesTotal,
			PaymentAnomaliesTotal,
			InitiationsTotal,
			GatewayCallDuration,
			TokenCacheTotal,
			IndexOperationsTotal,
			StockMovementsTotal,
		)
	})
}

package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsInitiatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transactions_initiated_total",
		Help: "Total number of transactions accepted by the payment authority",
	})

	TransactionsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transactions_completed_total",
		Help: "Total number of transactions finalized and fully delivered",
	})

	TransactionsAbortedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transactions_aborted_total",
		Help: "Total number of transactions aborted by the payer",
	})

	TransactionsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_failed_total",
		Help: "Total number of failed transactions",
	}, []string{"stage"})

	ItemsDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "items_delivered_total",
		Help: "Total number of purchased product units delivered",
	})

	FulfillmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fulfillment_latency_seconds",
		Help:    "Latency of delivering all items of a transaction",
		Buckets: prometheus.DefBuckets,
	})

	AuthorityRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authority_request_latency_seconds",
		Help:    "Latency of payment authority requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

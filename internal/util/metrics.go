package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations",
	}, []string{"op"})

	CheckoutAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Total number of checkout attempts",
	})

	CheckoutStateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_state_transitions_total",
		Help: "Total number of checkout state transitions by target state",
	}, []string{"state"})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failed_total",
		Help: "Total number of checkout attempts that did not complete",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of checkout from validation to completion",
		Buckets: prometheus.DefBuckets,
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders successfully paid",
	})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of admin order status transitions",
	}, []string{"to"})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of payment attempts",
	})

	PaymentSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_success_total",
		Help: "Total number of successful payments",
	})

	PaymentFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_failed_total",
		Help: "Total number of failed payments",
	})

	PaymentProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_processing_latency_seconds",
		Help:    "Latency of payment processing",
		Buckets: prometheus.DefBuckets,
	})

	ProductChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_changes_total",
		Help: "Total number of admin catalog changes",
	}, []string{"op"})

	SearchIndexOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "search_index_ops_total",
		Help: "Total number of search index operations",
	}, []string{"op", "result"})

	AuthEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_events_total",
		Help: "Total number of login and logout events",
	}, []string{"kind"})

	APIErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_errors_total",
		Help: "Total number of API error responses by error kind",
	}, []string{"kind"})

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

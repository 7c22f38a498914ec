package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrdersArchivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_archived_total",
		Help: "Total number of orders moved to history",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_order_transitions_total",
		Help: "Order status changes by source and target status",
	}, []string{"from", "to"})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_failed_total",
		Help: "Total number of rejected checkouts",
	}, []string{"reason"})

	StockReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_stock_reserve_latency_seconds",
		Help:    "Latency of the order placement transaction",
		Buckets: prometheus.DefBuckets,
	})

	MessagesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_messages_received_total",
		Help: "Total number of contact messages received",
	})

	MessagesArchivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_messages_archived_total",
		Help: "Total number of messages moved to history",
	})

	ContactRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_contact_rate_limited_total",
		Help: "Contact submissions rejected by the rate limiter",
	})

	CatalogCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_catalog_cache_total",
		Help: "Catalog cache lookups by result",
	}, []string{"result"})

	LowStockAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_low_stock_alerts_total",
		Help: "Low stock warnings raised by the catalog worker",
	}, []string{"product_id"})

	EventsPublishFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_events_publish_failed_total",
		Help: "Domain events that could not be published",
	}, []string{"event_type"})

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

package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registrations_total",
		Help: "Total number of registered accounts",
	}, []string{"role"})

	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logins_total",
		Help: "Total number of login attempts by result",
	}, []string{"result"})

	PurchasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchases_total",
		Help: "Total number of keys sold",
	})

	PurchasesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchases_failed_total",
		Help: "Total number of failed purchases",
	}, []string{"reason"})

	PurchaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "purchase_latency_seconds",
		Help:    "Latency of the key purchase transaction",
		Buckets: prometheus.DefBuckets,
	})

	ShopsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shops_created_total",
		Help: "Total number of shops opened",
	})

	KeysListedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keys_listed_total",
		Help: "Total number of keys put on sale",
	})

	UsersDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "users_deleted_total",
		Help: "Total number of accounts removed by admins",
	})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Total number of domain events handled by the worker",
	}, []string{"type"})

	StockSyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_sync_duration_seconds",
		Help:    "Duration of the stock cache rebuild",
		Buckets: prometheus.DefBuckets,
	})

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

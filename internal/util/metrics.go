package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_sync_runs_total",
		Help: "Total number of entity sync runs by outcome",
	}, []string{"entity", "status"})

	SyncRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_sync_records_total",
		Help: "Total number of records attempted during entity syncs",
	}, []string{"entity", "result"})

	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commerce_sync_duration_seconds",
		Help:    "Duration of entity sync runs",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"entity"})

	FetchPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_sync_fetch_pages_total",
		Help: "Total number of pages fetched from the storefront API",
	}, []string{"endpoint"})

	FetchTruncatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_sync_fetch_truncated_total",
		Help: "Total number of fetches stopped at the page ceiling with more pages available",
	}, []string{"endpoint"})

	FetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_sync_fetch_retries_total",
		Help: "Total number of retried storefront API requests",
	}, []string{"endpoint", "reason"})

	SchedulerTenantRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_sync_scheduler_tenant_runs_total",
		Help: "Total number of tenant runs dispatched by scheduler ticks",
	}, []string{"trigger", "outcome"})

	SchedulerTickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commerce_sync_scheduler_tick_duration_seconds",
		Help:    "Duration of scheduler ticks across all tenants",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"trigger"})

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

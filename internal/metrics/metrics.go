// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides comprehensive instrumentation for:
// - AWS fetch outcomes, pagination and throttling
// - Credential session lifecycle
// - Resource cache efficiency
// - Aggregation scheduling
// - API endpoint latency and throughput

var (
	// Fetch Metrics
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aws_fetch_duration_seconds",
			Help:    "Duration of per-unit resource fetches in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"resource_type"},
	)

	FetchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aws_fetch_outcomes_total",
			Help: "Total number of fetch units by final outcome",
		},
		[]string{"resource_type", "outcome"}, // outcome: "success", "throttled", "not_authorized", "auth_expired", "unreachable", "timeout", "partial_page", "internal"
	)

	FetchPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aws_fetch_pages_total",
			Help: "Total number of list API pages drained",
		},
	)

	FetchPageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aws_fetch_page_retries_total",
			Help: "Total number of page-level retry attempts",
		},
		[]string{"resource_type"},
	)

	FetchRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aws_fetch_records_total",
			Help: "Total number of resource records fetched from AWS",
		},
		[]string{"resource_type"},
	)

	ThrottleWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aws_throttle_wait_seconds",
			Help:    "Time spent waiting on rate limiter tokens before API calls",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"service"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aws_rate_limit_rejections_total",
			Help: "Total number of fetches rejected because the token wait exceeded the cap",
		},
		[]string{"service"},
	)

	// Scheduler Metrics
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregation_duration_seconds",
			Help:    "Duration of complete aggregation runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	AggregationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregation_runs_total",
			Help: "Total number of aggregation runs by final status",
		},
		[]string{"status"}, // "complete", "partial", "degraded"
	)

	AggregationUnitsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aggregation_units_in_flight",
			Help: "Current number of fetch units being executed",
		},
	)

	AggregationUnitRequeues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregation_unit_requeues_total",
			Help: "Total number of fetch units requeued after a retryable failure",
		},
		[]string{"reason"}, // "throttled", "unreachable", "auth_expired"
	)

	// Session Metrics
	SessionRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_session_refreshes_total",
			Help: "Total number of credential session refreshes",
		},
		[]string{"profile_type", "result"}, // result: "success", "failure"
	)

	SessionRefreshCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credential_session_refresh_coalesced_total",
			Help: "Total number of refresh callers coalesced into an in-flight refresh",
		},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "credential_sessions_active",
			Help: "Current number of live credential sessions",
		},
	)

	CredentialValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_validations_total",
			Help: "Total number of credential validation attempts",
		},
		[]string{"result"}, // "valid", "invalid", "assume_role_denied", "unreachable"
	)

	// Client Factory Metrics
	ClientCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "client_factory_cache_hits_total",
			Help: "Total number of service client cache hits",
		},
	)

	ClientCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "client_factory_cache_misses_total",
			Help: "Total number of service client cache misses (client constructed)",
		},
	)

	ClientCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "client_factory_cache_entries",
			Help: "Current number of cached service clients",
		},
	)

	// Resource Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resource_cache_hits_total",
			Help: "Total number of resource cache hits",
		},
		[]string{"resource_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resource_cache_misses_total",
			Help: "Total number of resource cache misses",
		},
		[]string{"resource_type"},
	)

	CacheStaleServes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resource_cache_stale_serves_total",
			Help: "Total number of expired entries served while revalidating",
		},
		[]string{"resource_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resource_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"reason"}, // "ttl", "invalidation", "janitor"
	)

	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resource_cache_entries",
			Help: "Current number of cached fetch-unit entries",
		},
	)

	CacheSingleflightCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resource_cache_singleflight_coalesced_total",
			Help: "Total number of loads coalesced into an in-flight fetch for the same key",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"account"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"account", "from_state", "to_state"},
	)

	CircuitBreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_rejections_total",
			Help: "Total number of fetches rejected by an open circuit breaker",
		},
		[]string{"account"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordFetch records the duration and final outcome of one fetch unit.
func RecordFetch(resourceType string, duration time.Duration, outcome string, records int) {
	FetchDuration.WithLabelValues(resourceType).Observe(duration.Seconds())
	FetchOutcomes.WithLabelValues(resourceType, outcome).Inc()
	if records > 0 {
		FetchRecords.WithLabelValues(resourceType).Add(float64(records))
	}
}

// RecordThrottleWait records time spent blocked on a service token bucket.
func RecordThrottleWait(service string, wait time.Duration) {
	ThrottleWaitDuration.WithLabelValues(service).Observe(wait.Seconds())
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordAggregation records a completed aggregation run.
func RecordAggregation(status string, duration time.Duration) {
	AggregationRuns.WithLabelValues(status).Inc()
	AggregationDuration.Observe(duration.Seconds())
}

// RecordSessionRefresh records a credential session refresh attempt.
func RecordSessionRefresh(profileType string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	SessionRefreshes.WithLabelValues(profileType, result).Inc()
}

// RecordCacheHit records a resource cache hit, optionally stale.
func RecordCacheHit(resourceType string, stale bool) {
	CacheHits.WithLabelValues(resourceType).Inc()
	if stale {
		CacheStaleServes.WithLabelValues(resourceType).Inc()
	}
}

// SetBreakerState maps gobreaker state names onto the numeric gauge.
func SetBreakerState(account, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	CircuitBreakerState.WithLabelValues(account).Set(v)
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package implements application instrumentation using the Prometheus client
library, exposing metrics for monitoring fetch performance, credential health,
cache efficiency, and API throughput.

# Overview

The package provides metrics for:
  - Per-unit AWS fetch latency, outcome taxonomy, and pagination
  - Rate limiter waits and rejections per AWS service
  - Aggregation run duration and final status (complete/partial/degraded)
  - Credential session refreshes and validation results
  - Service client and resource cache hit/miss/stale-serve rates
  - Per-account circuit breaker state transitions
  - HTTP request latency and throughput

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:4326/metrics

# Usage Example

	import "github.com/tomtom215/stratus/internal/metrics"

	start := time.Now()
	records, err := lister.List(ctx)
	outcome := "success"
	if err != nil {
	    outcome = classify(err)
	}
	metrics.RecordFetch("ec2:instance", time.Since(start), outcome, len(records))

# Cardinality Management

To prevent high cardinality issues:

  - Resource type labels are drawn from the fixed supported-type set
  - Endpoint labels use chi route patterns, not raw URL paths
  - Outcome and reason labels are limited to predefined constants
  - Account IDs appear only on circuit breaker metrics, bounded by the
    number of configured profiles

# Thread Safety

All metric recording functions are thread-safe and designed for concurrent use
from multiple goroutines. The Prometheus client library handles synchronization
internally.

# See Also

  - internal/middleware: HTTP middleware with metrics integration
  - internal/fetch: fetch and scheduler instrumentation
  - internal/cache: resource cache instrumentation
  - https://prometheus.io/docs/practices/naming/: Metric naming conventions
*/
package metrics

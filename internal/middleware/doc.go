// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

// Package middleware provides the HTTP cross-cutting concerns of the
// API: request ID propagation into the logging context, Prometheus
// instrumentation keyed by chi route pattern, and gzip compression.
// Authentication lives in the auth package; rate limiting and CORS use
// the go-chi ecosystem middlewares directly in the router.
package middleware

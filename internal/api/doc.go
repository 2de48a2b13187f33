// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

// Package api exposes the aggregation engine over HTTP with a chi
// router.
//
// # Routes
//
//	POST /api/v1/auth/login                       issue a JWT (rate limited per IP)
//	GET  /api/v1/accounts                         list profiles (?validate=true checks STS)
//	GET  /api/v1/accounts/{profile}/validate      validate one profile
//	GET  /api/v1/resources/types                  supported resource types
//	POST /api/v1/resources                        run an aggregation request
//	POST /api/v1/cache/invalidate                 drop cached units (admin role)
//	GET  /api/v1/health, /health/live, /health/ready
//	GET  /metrics                                 Prometheus exposition
//
// Every response is wrapped in models.APIResponse with a status, the
// payload and metadata (timestamp, elapsed time, request ID). Errors
// carry a machine-readable code next to the human message.
package api

// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

// Package fetch executes resource inventory fetches against AWS, from a
// single page call up to a full multi-account fan-out.
//
// # Layers
//
// The package is built in three layers, each owning one concern:
//
//   - Limiter: per-(account, resource type) token buckets. Every page
//     call consumes one token; callers that cannot be admitted within
//     the configured wait fail as throttled instead of queueing.
//
//   - Fetcher: drains all pages of one unit. Each page gets bounded
//     retries with exponential backoff and jitter; a later page failing
//     after earlier pages succeeded surfaces as a partial_page error
//     carrying what was collected. A per-account circuit breaker
//     short-circuits fetches against accounts that keep failing with
//     connectivity errors, without consuming rate limit tokens.
//
//   - Scheduler: fans units out with a bounded worker pool per account.
//     Throttled and unreachable units are requeued once with a jittered
//     delay, an expired session gets one refresh and retry, and units
//     still in flight when the run deadline passes are reported as
//     timed out while their fetches finish on a detached context so the
//     cache still benefits.
//
// # Error taxonomy
//
// All failures surface as *Error with a Kind drawn from a small closed
// set (throttled, auth_expired, not_authorized, unreachable,
// unsupported, partial_page, timeout, internal). The scheduler's retry
// policy and the API's presentation both key off the Kind, never off
// provider error strings.
//
// # Usage
//
//	fetcher := fetch.NewFetcher(cfg.RateLimit, cfg.Scheduler)
//	sched := fetch.NewScheduler(cfg.Scheduler, fetcher, sessions, factory)
//	result := sched.Run(ctx, units, 30*time.Second)
package fetch

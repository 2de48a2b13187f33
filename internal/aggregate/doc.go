// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

// Package aggregate is the orchestration layer between the HTTP API and
// the fetch machinery. It decomposes a request into (account, region,
// type) units, answers what it can from the cache (optionally serving
// stale entries while revalidating in the background), fans the misses
// out through the scheduler and merges everything into one result.
package aggregate

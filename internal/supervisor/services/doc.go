// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

// Package services wraps Stratus components as suture services: the
// HTTP server, the periodic sweepers for the resource cache and the
// session store, and the cache revalidation worker.
package services

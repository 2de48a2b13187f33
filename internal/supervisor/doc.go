// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

// Package supervisor builds the suture supervision tree that runs
// Stratus: an engine layer for the background workers (cache janitor,
// session sweeper, revalidation worker) and an api layer for the HTTP
// server. Supervisor events are logged through sutureslog into the
// process-wide zerolog sink.
//
// Wiring happens in cmd/server; this package only owns the tree shape
// and restart policy.
package supervisor

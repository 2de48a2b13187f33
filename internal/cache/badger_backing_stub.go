// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

//go:build !persist

package cache

// OpenBacking is a no-op without the persist build tag: the cache runs
// memory-only and restarts cold.
func OpenBacking(path string) (Backing, error) {
	return nil, nil
}

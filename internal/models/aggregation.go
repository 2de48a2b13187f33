// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package models

import (
	"fmt"
	"time"
)

// FetchUnit is the atomic work item of an aggregation request: one
// (account, region, resource type) triple. Units are unique within a
// request and carry their own outcome.
type FetchUnit struct {
	AccountID string       `json:"account_id"`
	Profile   string       `json:"profile"`
	Region    string       `json:"region"`
	Type      ResourceType `json:"type"`
}

// Key returns the canonical "account/region/type" identity of the unit.
// AggregationResult maps are keyed by this string.
func (u FetchUnit) Key() string {
	return fmt.Sprintf("%s/%s/%s", u.AccountID, u.Region, u.Type)
}

// UnitOutcome is the per-unit result inside an AggregationResult:
// either a record list or a classified error, never both.
type UnitOutcome struct {
	Records   []ResourceRecord `json:"records,omitempty"`
	Error     *UnitError       `json:"error,omitempty"`
	FromCache bool             `json:"from_cache,omitempty"`
	Stale     bool             `json:"stale,omitempty"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// Succeeded reports whether the unit produced records.
func (o UnitOutcome) Succeeded() bool {
	return o.Error == nil
}

// UnitError carries the classified failure of one fetch unit in
// non-sensitive terms suitable for presentation.
type UnitError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// AggregationStatus summarizes an AggregationResult.
type AggregationStatus string

const (
	// StatusComplete means every unit succeeded.
	StatusComplete AggregationStatus = "complete"

	// StatusPartial means some units failed but at least one succeeded.
	StatusPartial AggregationStatus = "partial"

	// StatusDegraded means every unit failed.
	StatusDegraded AggregationStatus = "degraded"
)

// AggregationResult is the unit returned to callers: per-unit outcomes
// keyed by FetchUnit.Key plus a top-level status. Iteration order of Units
// is not meaningful; consumers must treat it as a mapping.
type AggregationResult struct {
	Status   AggregationStatus      `json:"status"`
	Units    map[string]UnitOutcome `json:"units"`
	Duration time.Duration          `json:"duration_ms"`
}

// Summarize derives the top-level status from the unit outcomes.
// An empty result is complete: nothing was asked for, nothing failed.
func (r *AggregationResult) Summarize() {
	succeeded, failed := 0, 0
	for _, outcome := range r.Units {
		if outcome.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}

	switch {
	case failed == 0:
		r.Status = StatusComplete
	case succeeded == 0:
		r.Status = StatusDegraded
	default:
		r.Status = StatusPartial
	}
}

// FetchOptions control a single aggregation request.
type FetchOptions struct {
	// ForceRefresh bypasses the cache and refetches every unit.
	ForceRefresh bool `json:"force_refresh,omitempty"`

	// StaleOK opts into stale-while-revalidate: expired cache entries are
	// returned immediately and refreshed in the background.
	StaleOK bool `json:"stale_ok,omitempty"`

	// Deadline bounds the whole aggregation. Zero means the configured
	// default deadline.
	Deadline time.Duration `json:"deadline,omitempty"`
}

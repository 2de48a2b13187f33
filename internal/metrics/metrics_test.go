// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestRecordFetch verifies outcome counters and record totals advance together.
func TestRecordFetch(t *testing.T) {
	tests := []struct {
		name         string
		resourceType string
		outcome      string
		records      int
	}{
		{
			name:         "successful fetch with records",
			resourceType: "ec2:instance",
			outcome:      "success",
			records:      12,
		},
		{
			name:         "successful fetch with zero records",
			resourceType: "s3:bucket",
			outcome:      "success",
			records:      0,
		},
		{
			name:         "throttled fetch",
			resourceType: "rds:instance",
			outcome:      "throttled",
			records:      0,
		},
		{
			name:         "not authorized",
			resourceType: "lambda:function",
			outcome:      "not_authorized",
			records:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(FetchOutcomes.WithLabelValues(tt.resourceType, tt.outcome))
			recBefore := testutil.ToFloat64(FetchRecords.WithLabelValues(tt.resourceType))

			RecordFetch(tt.resourceType, 25*time.Millisecond, tt.outcome, tt.records)

			after := testutil.ToFloat64(FetchOutcomes.WithLabelValues(tt.resourceType, tt.outcome))
			if after != before+1 {
				t.Errorf("outcome counter = %v, want %v", after, before+1)
			}

			recAfter := testutil.ToFloat64(FetchRecords.WithLabelValues(tt.resourceType))
			if recAfter != recBefore+float64(tt.records) {
				t.Errorf("records counter = %v, want %v", recAfter, recBefore+float64(tt.records))
			}
		})
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/accounts", "200"))

	RecordAPIRequest("GET", "/api/v1/accounts", "200", 15*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/accounts", "200"))
	if after != before+1 {
		t.Errorf("API request counter = %v, want %v", after, before+1)
	}
}

func TestRecordSessionRefresh(t *testing.T) {
	successBefore := testutil.ToFloat64(SessionRefreshes.WithLabelValues("role", "success"))
	failureBefore := testutil.ToFloat64(SessionRefreshes.WithLabelValues("sso", "failure"))

	RecordSessionRefresh("role", true)
	RecordSessionRefresh("sso", false)

	if got := testutil.ToFloat64(SessionRefreshes.WithLabelValues("role", "success")); got != successBefore+1 {
		t.Errorf("success counter = %v, want %v", got, successBefore+1)
	}
	if got := testutil.ToFloat64(SessionRefreshes.WithLabelValues("sso", "failure")); got != failureBefore+1 {
		t.Errorf("failure counter = %v, want %v", got, failureBefore+1)
	}
}

func TestRecordCacheHitStale(t *testing.T) {
	hitBefore := testutil.ToFloat64(CacheHits.WithLabelValues("ec2:vpc"))
	staleBefore := testutil.ToFloat64(CacheStaleServes.WithLabelValues("ec2:vpc"))

	RecordCacheHit("ec2:vpc", false)
	RecordCacheHit("ec2:vpc", true)

	if got := testutil.ToFloat64(CacheHits.WithLabelValues("ec2:vpc")); got != hitBefore+2 {
		t.Errorf("hit counter = %v, want %v", got, hitBefore+2)
	}
	if got := testutil.ToFloat64(CacheStaleServes.WithLabelValues("ec2:vpc")); got != staleBefore+1 {
		t.Errorf("stale counter = %v, want %v", got, staleBefore+1)
	}
}

func TestSetBreakerState(t *testing.T) {
	tests := []struct {
		state string
		want  float64
	}{
		{"closed", 0},
		{"half-open", 1},
		{"open", 2},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			SetBreakerState("111111111111", tt.state)
			got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("111111111111"))
			if got != tt.want {
				t.Errorf("gauge = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrackActiveRequest(t *testing.T) {
	base := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != base+2 {
		t.Errorf("gauge after two increments = %v, want %v", got, base+2)
	}

	TrackActiveRequest(false)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != base {
		t.Errorf("gauge after decrements = %v, want %v", got, base)
	}
}

// TestConcurrentRecording exercises the recorders from many goroutines; the
// Prometheus client handles its own synchronization so this only needs to not
// race under -race.
func TestConcurrentRecording(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				RecordFetch("ec2:subnet", time.Millisecond, "success", 1)
				RecordThrottleWait("ec2", time.Millisecond)
				RecordCacheHit("ec2:subnet", false)
				TrackActiveRequest(true)
				TrackActiveRequest(false)
			}
		}()
	}
	wg.Wait()
}

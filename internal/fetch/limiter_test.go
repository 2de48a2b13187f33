// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/stratus/internal/config"
	"github.com/tomtom215/stratus/internal/models"
)

func TestLimiterAdmitsWithinBurst(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             3,
		MaxWait:           10 * time.Millisecond,
	})

	unit := testUnit("111111111111")
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background(), unit); err != nil {
			t.Fatalf("Wait() %d within burst: %v", i, err)
		}
	}
}

func TestLimiterThrottlesBeyondMaxWait(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{
		RequestsPerSecond: 0.1,
		Burst:             1,
		MaxWait:           10 * time.Millisecond,
	})

	unit := testUnit("111111111111")
	if err := l.Wait(context.Background(), unit); err != nil {
		t.Fatalf("first Wait(): %v", err)
	}

	err := l.Wait(context.Background(), unit)
	if err == nil {
		t.Fatal("second Wait() = nil, want throttled")
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindThrottled {
		t.Errorf("error = %v, want throttled *Error", err)
	}
}

func TestLimiterIsolatesBuckets(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{
		RequestsPerSecond: 0.1,
		Burst:             1,
		MaxWait:           10 * time.Millisecond,
	})

	a := testUnit("111111111111")
	if err := l.Wait(context.Background(), a); err != nil {
		t.Fatalf("account a: %v", err)
	}

	// A drained bucket for one account must not affect another account,
	// nor another resource type of the same account.
	b := testUnit("222222222222")
	if err := l.Wait(context.Background(), b); err != nil {
		t.Errorf("account b got throttled by account a's bucket: %v", err)
	}

	rds := a
	rds.Type = models.ResourceRDSInstance
	if err := l.Wait(context.Background(), rds); err != nil {
		t.Errorf("rds bucket drained by ec2 calls: %v", err)
	}

	if got := l.Buckets(); got != 3 {
		t.Errorf("Buckets() = %d, want 3", got)
	}
}

func TestLimiterReturnsCallerCancellation(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{
		RequestsPerSecond: 0.1,
		Burst:             1,
		MaxWait:           time.Second,
	})

	unit := testUnit("111111111111")
	if err := l.Wait(context.Background(), unit); err != nil {
		t.Fatalf("first Wait(): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx, unit)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	var fe *Error
	if errors.As(err, &fe) {
		t.Error("caller cancellation was reported as throttled")
	}
}

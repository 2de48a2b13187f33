// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/stratus/internal/config"
	"github.com/tomtom215/stratus/internal/models"
)

func testUnit(account, region string, rt models.ResourceType) models.FetchUnit {
	return models.FetchUnit{
		AccountID: account,
		Profile:   "prod",
		Region:    region,
		Type:      rt,
	}
}

func testRecords(n int) []models.ResourceRecord {
	records := make([]models.ResourceRecord, n)
	for i := range records {
		records[i] = models.ResourceRecord{
			Type:      models.ResourceEC2Instance,
			ID:        "i-" + string(rune('a'+i)),
			State:     models.StateRunning,
			Region:    "us-west-2",
			AccountID: "111111111111",
		}
	}
	return records
}

// newTestStore returns a store with a controllable clock.
func newTestStore(ttl time.Duration) (*Store, *time.Time) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := New(config.CacheConfig{
		DefaultTTL: ttl,
		TTLOverrides: map[string]time.Duration{
			"ec2:vpc": 30 * time.Minute,
		},
	}, nil)
	s.nowFn = func() time.Time { return now }
	return s, &now
}

func TestGetMissThenHit(t *testing.T) {
	s, now := newTestStore(5 * time.Minute)
	unit := testUnit("111111111111", "us-west-2", models.ResourceEC2Instance)

	if _, ok := s.Get(unit); ok {
		t.Fatal("expected miss on empty cache")
	}

	s.Put(unit, testRecords(3), *now)
	entry, ok := s.Get(unit)
	if !ok {
		t.Fatal("expected hit after put")
	}
	if len(entry.Records) != 3 {
		t.Errorf("records = %d, want 3", len(entry.Records))
	}

	stats := s.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss", stats)
	}
}

// TestTTLBoundaryIsExpired pins the exact-boundary semantics: an entry
// expires AT fetchedAt+TTL, not after it.
func TestTTLBoundaryIsExpired(t *testing.T) {
	s, now := newTestStore(5 * time.Minute)
	unit := testUnit("111111111111", "us-west-2", models.ResourceEC2Instance)
	s.Put(unit, testRecords(1), *now)

	*now = now.Add(5*time.Minute - time.Nanosecond)
	if _, ok := s.Get(unit); !ok {
		t.Error("entry should be fresh just before the boundary")
	}

	*now = now.Add(time.Nanosecond)
	if _, ok := s.Get(unit); ok {
		t.Error("entry should be expired exactly at the boundary")
	}
}

func TestPerTypeTTLOverride(t *testing.T) {
	s, now := newTestStore(5 * time.Minute)
	vpcUnit := testUnit("111111111111", "us-west-2", models.ResourceVPC)
	s.Put(vpcUnit, testRecords(1), *now)

	// Past the default TTL but inside the ec2:vpc override.
	*now = now.Add(20 * time.Minute)
	if _, ok := s.Get(vpcUnit); !ok {
		t.Error("vpc entry should honor its 30m override")
	}

	*now = now.Add(10 * time.Minute)
	if _, ok := s.Get(vpcUnit); ok {
		t.Error("vpc entry should expire at the override boundary")
	}
}

func TestGetAllowStaleServesExpired(t *testing.T) {
	s, now := newTestStore(5 * time.Minute)
	unit := testUnit("111111111111", "us-west-2", models.ResourceEC2Instance)
	s.Put(unit, testRecords(2), *now)

	*now = now.Add(6 * time.Minute)

	if _, ok := s.Get(unit); ok {
		t.Fatal("strict Get should miss on expired entry")
	}

	entry, fresh, ok := s.GetAllowStale(unit)
	if !ok {
		t.Fatal("stale read should find the expired entry")
	}
	if fresh {
		t.Error("entry should be reported stale")
	}
	if len(entry.Records) != 2 {
		t.Errorf("records = %d, want 2", len(entry.Records))
	}

	stats := s.GetStats()
	if stats.StaleServes != 1 {
		t.Errorf("StaleServes = %d, want 1", stats.StaleServes)
	}
}

// TestFillSingleFlight verifies the core coalescing property: N concurrent
// callers missing the same key trigger exactly one underlying fetch.
func TestFillSingleFlight(t *testing.T) {
	s, _ := newTestStore(5 * time.Minute)
	unit := testUnit("111111111111", "us-west-2", models.ResourceEC2Instance)

	var fetches atomic.Int64
	fetch := func(ctx context.Context) ([]models.ResourceRecord, error) {
		fetches.Add(1)
		time.Sleep(50 * time.Millisecond)
		return testRecords(4), nil
	}

	const callers = 20
	var wg sync.WaitGroup
	entries := make([]Entry, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i], errs[i] = s.Fill(context.Background(), unit, fetch)
		}(i)
	}
	wg.Wait()

	if got := fetches.Load(); got != 1 {
		t.Errorf("fetches = %d, want exactly 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if len(entries[i].Records) != 4 {
			t.Errorf("caller %d records = %d, want 4", i, len(entries[i].Records))
		}
	}
}

func TestFillPropagatesFetchError(t *testing.T) {
	s, _ := newTestStore(5 * time.Minute)
	unit := testUnit("111111111111", "us-west-2", models.ResourceEC2Instance)
	sentinel := errors.New("throttled")

	_, err := s.Fill(context.Background(), unit, func(context.Context) ([]models.ResourceRecord, error) {
		return nil, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want fetch error", err)
	}
	if s.Len() != 0 {
		t.Error("failed fill must not populate the cache")
	}
}

func TestInvalidateAccount(t *testing.T) {
	s, now := newTestStore(5 * time.Minute)

	s.Put(testUnit("111111111111", "us-west-2", models.ResourceEC2Instance), testRecords(1), *now)
	s.Put(testUnit("111111111111", "eu-west-1", models.ResourceVPC), testRecords(1), *now)
	s.Put(testUnit("222222222222", "us-west-2", models.ResourceEC2Instance), testRecords(1), *now)

	if removed := s.InvalidateAccount("111111111111"); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
	if _, ok := s.Get(testUnit("222222222222", "us-west-2", models.ResourceEC2Instance)); !ok {
		t.Error("other account's entry should survive")
	}
}

func TestInvalidateSingleUnit(t *testing.T) {
	s, now := newTestStore(5 * time.Minute)
	unit := testUnit("111111111111", "us-west-2", models.ResourceEC2Instance)
	s.Put(unit, testRecords(1), *now)

	if !s.Invalidate(unit) {
		t.Error("Invalidate should report the entry existed")
	}
	if s.Invalidate(unit) {
		t.Error("second Invalidate should report a no-op")
	}
}

func TestSweepRespectsGraceWindow(t *testing.T) {
	s, now := newTestStore(5 * time.Minute)
	unit := testUnit("111111111111", "us-west-2", models.ResourceEC2Instance)
	s.Put(unit, testRecords(1), *now)

	// Expired but inside the grace window: kept for stale readers.
	*now = now.Add(7 * time.Minute)
	if removed := s.Sweep(); removed != 0 {
		t.Errorf("removed = %d, want 0 inside grace window", removed)
	}
	if _, _, ok := s.GetAllowStale(unit); !ok {
		t.Error("stale entry should survive sweep inside grace window")
	}

	// Past fetchedAt + 2*TTL: gone.
	*now = now.Add(4 * time.Minute)
	if removed := s.Sweep(); removed != 1 {
		t.Errorf("removed = %d, want 1 past grace window", removed)
	}
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
}

// TestConcurrentReadersNeverSeePartialEntry hammers one key with a writer
// republishing entries and readers asserting they always see a complete
// record list.
func TestConcurrentReadersNeverSeePartialEntry(t *testing.T) {
	s := New(config.CacheConfig{DefaultTTL: time.Minute}, nil)
	unit := testUnit("111111111111", "us-west-2", models.ResourceEC2Instance)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.Put(unit, testRecords(5), time.Now())
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if entry, ok := s.Get(unit); ok && len(entry.Records) != 5 {
					t.Errorf("observed partial entry with %d records", len(entry.Records))
					return
				}
			}
		}()
	}
	wg.Wait()
}

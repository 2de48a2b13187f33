// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package fetch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/smithy-go"

	"github.com/tomtom215/stratus/internal/cache"
	"github.com/tomtom215/stratus/internal/clients"
	"github.com/tomtom215/stratus/internal/config"
	"github.com/tomtom215/stratus/internal/credentials"
	"github.com/tomtom215/stratus/internal/models"
)

// fakeSessions resolves every profile to a session whose account ID is
// the profile name, so units can key fakes by account.
type fakeSessions struct {
	refreshes  atomic.Int64
	resolveErr error
}

func (f *fakeSessions) Resolve(_ context.Context, profile string) (*credentials.Session, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &credentials.Session{Profile: profile, AccountID: profile}, nil
}

func (f *fakeSessions) Refresh(_ context.Context, profile string) (*credentials.Session, error) {
	f.refreshes.Add(1)
	return &credentials.Session{Profile: profile, AccountID: profile}, nil
}

// fakeListers hands out one scripted lister per unit key and a default
// single-page success lister for everything else.
type fakeListers struct {
	mu      sync.Mutex
	byKey   map[string]clients.PageLister
	handed  map[string]clients.PageLister
	buildAs func() clients.PageLister
}

func newFakeListers() *fakeListers {
	return &fakeListers{
		byKey:  make(map[string]clients.PageLister),
		handed: make(map[string]clients.PageLister),
		buildAs: func() clients.PageLister {
			return &fakeLister{pages: [][]models.ResourceRecord{testRecords(2)}}
		},
	}
}

func (f *fakeListers) set(unit models.FetchUnit, lister clients.PageLister) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byKey[unit.Key()] = lister
}

func (f *fakeListers) Client(sess *credentials.Session, region string, resType models.ResourceType) (clients.PageLister, error) {
	key := fmt.Sprintf("%s/%s/%s", sess.AccountID, region, resType)

	f.mu.Lock()
	defer f.mu.Unlock()
	if lister, ok := f.byKey[key]; ok {
		return lister, nil
	}
	if lister, ok := f.handed[key]; ok {
		return lister, nil
	}
	lister := f.buildAs()
	f.handed[key] = lister
	return lister, nil
}

// stateRecorder collects unit state transitions for assertions.
type stateRecorder struct {
	mu     sync.Mutex
	states map[string][]UnitState
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{states: make(map[string][]UnitState)}
}

func (r *stateRecorder) hook(unitKey string, state UnitState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[unitKey] = append(r.states[unitKey], state)
}

func (r *stateRecorder) saw(unitKey string, state UnitState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states[unitKey] {
		if s == state {
			return true
		}
	}
	return false
}

func newTestScheduler(listers *fakeListers, sessions *fakeSessions) *Scheduler {
	cfg := config.SchedulerConfig{
		WorkersPerAccount: 4,
		DefaultDeadline:   5 * time.Second,
		RetryDelay:        time.Millisecond,
		PageRetryAttempts: 1,
		PageRetryDelay:    time.Millisecond,
	}
	fetcher := NewFetcher(
		config.RateLimitConfig{RequestsPerSecond: 10000, Burst: 1000, MaxWait: time.Second},
		cfg,
	)
	return NewScheduler(cfg, fetcher, sessions, listers)
}

func unitsFor(accounts []string, regions []string, types []models.ResourceType) []models.FetchUnit {
	var units []models.FetchUnit
	for _, a := range accounts {
		for _, r := range regions {
			for _, rt := range types {
				units = append(units, models.FetchUnit{
					AccountID: a, Profile: a, Region: r, Type: rt,
				})
			}
		}
	}
	return units
}

func TestRunCompleteAggregation(t *testing.T) {
	listers := newFakeListers()
	sessions := &fakeSessions{}
	s := newTestScheduler(listers, sessions)

	recorder := newStateRecorder()
	s.StateHook = recorder.hook

	units := unitsFor(
		[]string{"111111111111", "222222222222", "333333333333"},
		[]string{"us-east-1", "eu-west-1"},
		[]models.ResourceType{models.ResourceEC2Instance},
	)

	result := s.Run(context.Background(), units, 0)
	if result.Status != models.StatusComplete {
		t.Fatalf("Status = %q, want complete", result.Status)
	}
	if len(result.Units) != 6 {
		t.Fatalf("len(Units) = %d, want 6", len(result.Units))
	}
	for key, outcome := range result.Units {
		if !outcome.Succeeded() {
			t.Errorf("unit %s failed: %v", key, outcome.Error)
		}
		if len(outcome.Records) != 2 {
			t.Errorf("unit %s records = %d, want 2", key, len(outcome.Records))
		}
		if !recorder.saw(key, UnitSucceeded) {
			t.Errorf("unit %s never reached succeeded", key)
		}
	}
}

func TestRunRequeuesThrottledUnitsOnce(t *testing.T) {
	listers := newFakeListers()
	sessions := &fakeSessions{}
	s := newTestScheduler(listers, sessions)

	recorder := newStateRecorder()
	s.StateHook = recorder.hook

	units := unitsFor(
		[]string{"111111111111"},
		[]string{"us-east-1", "us-west-2", "eu-west-1", "eu-central-1", "ap-south-1"},
		[]models.ResourceType{models.ResourceEC2Instance},
	)

	// Two units are throttled on their first fetch and recover on requeue.
	throttled := []*fakeLister{
		{
			pages: [][]models.ResourceRecord{testRecords(2)},
			errs:  []error{&smithy.GenericAPIError{Code: "Throttling"}, nil},
		},
		{
			pages: [][]models.ResourceRecord{testRecords(2)},
			errs:  []error{&smithy.GenericAPIError{Code: "RequestLimitExceeded"}, nil},
		},
	}
	listers.set(units[1], throttled[0])
	listers.set(units[3], throttled[1])

	result := s.Run(context.Background(), units, 0)
	if result.Status != models.StatusComplete {
		t.Fatalf("Status = %q, want complete after requeue", result.Status)
	}

	for i, lister := range throttled {
		if got := lister.calls.Load(); got != 2 {
			t.Errorf("throttled lister %d calls = %d, want 2", i, got)
		}
	}
	if !recorder.saw(units[1].Key(), UnitRetrying) {
		t.Errorf("unit %s never entered retrying", units[1].Key())
	}
	if recorder.saw(units[0].Key(), UnitRetrying) {
		t.Errorf("healthy unit %s was requeued", units[0].Key())
	}
}

func TestRunNotAuthorizedFailsWithoutRetry(t *testing.T) {
	listers := newFakeListers()
	sessions := &fakeSessions{}
	s := newTestScheduler(listers, sessions)

	units := unitsFor(
		[]string{"111111111111", "222222222222", "333333333333"},
		[]string{"us-east-1", "eu-west-1"},
		[]models.ResourceType{models.ResourceEC2Instance},
	)

	denied := &fakeLister{}
	for i := 0; i < 8; i++ {
		denied.errs = append(denied.errs,
			&smithy.GenericAPIError{Code: "AccessDeniedException"})
	}
	listers.set(units[2], denied)

	result := s.Run(context.Background(), units, 0)
	if result.Status != models.StatusPartial {
		t.Fatalf("Status = %q, want partial", result.Status)
	}

	outcome := result.Units[units[2].Key()]
	if outcome.Error == nil || outcome.Error.Kind != string(KindNotAuthorized) {
		t.Fatalf("outcome = %+v, want not_authorized error", outcome)
	}
	if got := denied.calls.Load(); got != 1 {
		t.Errorf("denied lister calls = %d, want 1 (never retried)", got)
	}
}

func TestRunRefreshesExpiredSessionOnce(t *testing.T) {
	listers := newFakeListers()
	sessions := &fakeSessions{}
	s := newTestScheduler(listers, sessions)

	units := unitsFor(
		[]string{"111111111111"},
		[]string{"us-east-1"},
		[]models.ResourceType{models.ResourceEC2Instance},
	)

	expiring := &fakeLister{
		pages: [][]models.ResourceRecord{testRecords(2)},
		errs:  []error{&smithy.GenericAPIError{Code: "ExpiredToken"}, nil},
	}
	listers.set(units[0], expiring)

	result := s.Run(context.Background(), units, 0)
	if result.Status != models.StatusComplete {
		t.Fatalf("Status = %q, want complete after refresh", result.Status)
	}
	if got := sessions.refreshes.Load(); got != 1 {
		t.Errorf("session refreshes = %d, want 1", got)
	}
	if got := expiring.calls.Load(); got != 2 {
		t.Errorf("lister calls = %d, want 2", got)
	}
}

// hangingLister blocks until its context ends.
type hangingLister struct {
	calls atomic.Int64
}

func (h *hangingLister) FetchPage(ctx context.Context, token string) ([]models.ResourceRecord, string, error) {
	h.calls.Add(1)
	<-ctx.Done()
	return nil, "", ctx.Err()
}

func TestRunDeadlineBoundsTheRun(t *testing.T) {
	listers := newFakeListers()
	listers.buildAs = func() clients.PageLister { return &hangingLister{} }
	sessions := &fakeSessions{}
	s := newTestScheduler(listers, sessions)

	units := unitsFor(
		[]string{"111111111111", "222222222222"},
		[]string{"us-east-1", "eu-west-1"},
		[]models.ResourceType{models.ResourceEC2Instance},
	)

	start := time.Now()
	result := s.Run(context.Background(), units, 50*time.Millisecond)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Run took %v, deadline did not bound it", elapsed)
	}

	if result.Status != models.StatusDegraded {
		t.Fatalf("Status = %q, want degraded", result.Status)
	}
	for key, outcome := range result.Units {
		if outcome.Error == nil || outcome.Error.Kind != string(KindTimeout) {
			t.Errorf("unit %s outcome = %+v, want timeout", key, outcome)
		}
	}
}

// slowLister succeeds after a fixed delay regardless of context.
type slowLister struct {
	delay time.Duration
}

func (s *slowLister) FetchPage(_ context.Context, _ string) ([]models.ResourceRecord, string, error) {
	time.Sleep(s.delay)
	return testRecords(3), "", nil
}

func TestRunLateCompletionStillDelivered(t *testing.T) {
	listers := newFakeListers()
	sessions := &fakeSessions{}
	s := newTestScheduler(listers, sessions)

	units := unitsFor(
		[]string{"111111111111"},
		[]string{"us-east-1"},
		[]models.ResourceType{models.ResourceEC2Instance},
	)
	listers.set(units[0], &slowLister{delay: 300 * time.Millisecond})

	completed := make(chan []models.ResourceRecord, 1)
	s.OnComplete = func(_ models.FetchUnit, records []models.ResourceRecord, _ time.Time) {
		completed <- records
	}

	result := s.Run(context.Background(), units, 100*time.Millisecond)

	// The run itself reports the unit as timed out.
	outcome := result.Units[units[0].Key()]
	if outcome.Error == nil || outcome.Error.Kind != string(KindTimeout) {
		t.Fatalf("outcome = %+v, want timeout", outcome)
	}

	// But the detached fetch finishes and its records are delivered.
	select {
	case records := <-completed:
		if len(records) != 3 {
			t.Errorf("late records = %d, want 3", len(records))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("late completion never delivered")
	}
}

// gaugedLister tracks its maximum concurrent callers.
type gaugedLister struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (g *gaugedLister) FetchPage(_ context.Context, _ string) ([]models.ResourceRecord, string, error) {
	g.mu.Lock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
	g.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	g.mu.Lock()
	g.current--
	g.mu.Unlock()
	return testRecords(1), "", nil
}

func TestRunBoundsWorkersPerAccount(t *testing.T) {
	gauge := &gaugedLister{}
	listers := newFakeListers()
	listers.buildAs = func() clients.PageLister { return gauge }
	sessions := &fakeSessions{}

	cfg := config.SchedulerConfig{
		WorkersPerAccount: 2,
		DefaultDeadline:   5 * time.Second,
		RetryDelay:        time.Millisecond,
		PageRetryAttempts: 1,
		PageRetryDelay:    time.Millisecond,
	}
	fetcher := NewFetcher(
		config.RateLimitConfig{RequestsPerSecond: 10000, Burst: 1000, MaxWait: time.Second},
		cfg,
	)
	s := NewScheduler(cfg, fetcher, sessions, listers)

	units := unitsFor(
		[]string{"111111111111"},
		[]string{"us-east-1", "us-west-2", "eu-west-1", "eu-central-1", "ap-south-1", "sa-east-1"},
		[]models.ResourceType{models.ResourceEC2Instance},
	)

	result := s.Run(context.Background(), units, 0)
	if result.Status != models.StatusComplete {
		t.Fatalf("Status = %q, want complete", result.Status)
	}
	if gauge.peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", gauge.peak)
	}
}

func TestRunCoalescesConcurrentFetchesOfOneUnit(t *testing.T) {
	listers := newFakeListers()
	sessions := &fakeSessions{}
	s := newTestScheduler(listers, sessions)

	store := cache.New(config.CacheConfig{DefaultTTL: 30 * time.Minute}, nil)
	s.Cache = store

	unit := models.FetchUnit{
		AccountID: "444444444444", Profile: "444444444444",
		Region: "us-east-1", Type: models.ResourceEC2Instance,
	}
	counting := &fakeLister{pages: [][]models.ResourceRecord{testRecords(2)}}
	listers.set(unit, counting)

	var wg sync.WaitGroup
	results := make([]*models.AggregationResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Run(context.Background(), []models.FetchUnit{unit}, 0)
		}(i)
	}
	wg.Wait()

	if got := counting.calls.Load(); got != 1 {
		t.Fatalf("lister calls = %d, want 1 (concurrent runs must share one fetch)", got)
	}
	for i, result := range results {
		outcome := result.Units[unit.Key()]
		if !outcome.Succeeded() {
			t.Errorf("run %d failed: %v", i, outcome.Error)
		}
		if len(outcome.Records) != 2 {
			t.Errorf("run %d records = %d, want 2", i, len(outcome.Records))
		}
	}
	if _, ok := store.Get(unit); !ok {
		t.Error("fetched entry missing from cache")
	}
}

func TestRunPartialPageSurfacesCollectedRecords(t *testing.T) {
	listers := newFakeListers()
	sessions := &fakeSessions{}
	s := newTestScheduler(listers, sessions)

	units := unitsFor(
		[]string{"555555555555"},
		[]string{"us-east-1", "us-west-2"},
		[]models.ResourceType{models.ResourceEC2Instance},
	)

	// Page one drains; page two is denied on every attempt.
	partial := &fakeLister{
		pages: [][]models.ResourceRecord{testRecords(4), testRecords(3)},
		errs:  []error{nil, &smithy.GenericAPIError{Code: "AccessDeniedException"}},
	}
	listers.set(units[0], partial)

	result := s.Run(context.Background(), units, 0)
	if result.Status != models.StatusPartial {
		t.Fatalf("Status = %q, want partial", result.Status)
	}

	outcome := result.Units[units[0].Key()]
	if outcome.Error == nil || outcome.Error.Kind != string(KindPartialPage) {
		t.Fatalf("outcome = %+v, want partial_page error", outcome)
	}
	if len(outcome.Records) != 4 {
		t.Errorf("records = %d, want the 4 collected before the failure", len(outcome.Records))
	}
}

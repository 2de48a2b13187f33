// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

// Package cache holds fetched resource records keyed by fetch unit, with
// per-resource-type TTLs, stale-while-revalidate reads, and per-key
// single-flight fills.
package cache

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/stratus/internal/config"
	"github.com/tomtom215/stratus/internal/logging"
	"github.com/tomtom215/stratus/internal/metrics"
	"github.com/tomtom215/stratus/internal/models"
)

// shardCount spreads the lock table so hot accounts do not serialize reads
// for unrelated keys. Power of two.
const shardCount = 32

// Entry is one cached fetch-unit result. Entries are immutable once
// published: readers see either a complete entry or a miss, never a
// half-written page list.
type Entry struct {
	Records   []models.ResourceRecord
	FetchedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry has expired at now. The boundary
// instant itself counts as expired.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	StaleServes int64
	Evictions   int64
	Entries     int
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// Store is the inventory cache. Keys are fetch-unit identities
// ("account/region/type"); values are complete record lists.
type Store struct {
	cfg    config.CacheConfig
	shards [shardCount]*shard
	group  singleflight.Group

	statsMu sync.Mutex
	stats   Stats

	backing Backing

	nowFn func() time.Time
}

// New builds a cache store. A nil backing disables persistence.
func New(cfg config.CacheConfig, backing Backing) *Store {
	s := &Store{
		cfg:     cfg,
		backing: backing,
		nowFn:   time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]Entry)}
	}
	s.restore()
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()&(shardCount-1)]
}

// Get returns a fresh entry for the unit. Expired entries are misses; they
// stay in place for stale-while-revalidate readers until swept.
func (s *Store) Get(unit models.FetchUnit) (Entry, bool) {
	entry, ok, fresh := s.lookup(unit)
	if !ok || !fresh {
		s.recordMiss()
		metrics.CacheMisses.WithLabelValues(string(unit.Type)).Inc()
		return Entry{}, false
	}
	s.recordHit(false)
	metrics.RecordCacheHit(string(unit.Type), false)
	return entry, true
}

// GetAllowStale returns an entry even when expired, reporting freshness.
// Callers opting in serve the stale data immediately and schedule a
// background revalidation.
func (s *Store) GetAllowStale(unit models.FetchUnit) (entry Entry, fresh, ok bool) {
	entry, ok, fresh = s.lookup(unit)
	if !ok {
		s.recordMiss()
		metrics.CacheMisses.WithLabelValues(string(unit.Type)).Inc()
		return Entry{}, false, false
	}
	s.recordHit(!fresh)
	metrics.RecordCacheHit(string(unit.Type), !fresh)
	return entry, fresh, true
}

func (s *Store) lookup(unit models.FetchUnit) (Entry, bool, bool) {
	key := unit.Key()
	sh := s.shardFor(key)
	sh.mu.RLock()
	entry, ok := sh.entries[key]
	sh.mu.RUnlock()
	if !ok {
		return Entry{}, false, false
	}
	return entry, true, !entry.Expired(s.nowFn())
}

// Put stores a complete record list for the unit under its type's TTL.
func (s *Store) Put(unit models.FetchUnit, records []models.ResourceRecord, fetchedAt time.Time) {
	ttl := s.cfg.TTLFor(string(unit.Type))
	entry := Entry{
		Records:   records,
		FetchedAt: fetchedAt,
		ExpiresAt: fetchedAt.Add(ttl),
	}

	key := unit.Key()
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.entries[key] = entry
	sh.mu.Unlock()

	if s.backing != nil {
		if err := s.backing.Put(key, entry); err != nil {
			// Backing failure degrades to memory-only, never fails the put.
			logging.Warn().Err(err).Str("key", key).Msg("Cache backing write failed")
		}
	}
	s.publishSize()
}

// Fill returns the fresh entry for the unit, running fetch on a miss.
// Concurrent fills for the same key coalesce: exactly one fetch runs and
// every caller receives its result.
func (s *Store) Fill(ctx context.Context, unit models.FetchUnit, fetch func(ctx context.Context) ([]models.ResourceRecord, error)) (Entry, error) {
	if entry, ok := s.Get(unit); ok {
		return entry, nil
	}
	return s.fill(ctx, unit, fetch)
}

func (s *Store) fill(ctx context.Context, unit models.FetchUnit, fetch func(ctx context.Context) ([]models.ResourceRecord, error)) (Entry, error) {
	key := unit.Key()
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		// A racing caller may have filled the entry while we queued.
		if entry, ok := s.Get(unit); ok {
			return entry, nil
		}
		records, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		fetchedAt := s.nowFn()
		s.Put(unit, records, fetchedAt)
		return Entry{
			Records:   records,
			FetchedAt: fetchedAt,
			ExpiresAt: fetchedAt.Add(s.cfg.TTLFor(string(unit.Type))),
		}, nil
	})
	if shared {
		metrics.CacheSingleflightCoalesced.Inc()
	}
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// Invalidate drops one unit's entry. Reports whether it existed.
func (s *Store) Invalidate(unit models.FetchUnit) bool {
	key := unit.Key()
	sh := s.shardFor(key)
	sh.mu.Lock()
	_, ok := sh.entries[key]
	delete(sh.entries, key)
	sh.mu.Unlock()

	if ok {
		s.recordEvictions(1)
		metrics.CacheEvictions.WithLabelValues("invalidation").Inc()
		s.deleteBacking(key)
	}
	s.publishSize()
	return ok
}

// InvalidateAccount drops every entry for an account. Used when the
// account's credentials change or on an explicit refresh request.
func (s *Store) InvalidateAccount(accountID string) int {
	prefix := accountID + "/"
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key := range sh.entries {
			if strings.HasPrefix(key, prefix) {
				delete(sh.entries, key)
				s.deleteBacking(key)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	if removed > 0 {
		s.recordEvictions(int64(removed))
		metrics.CacheEvictions.WithLabelValues("invalidation").Add(float64(removed))
		logging.Info().Str("account_id", accountID).Int("removed", removed).Msg("Invalidated account cache entries")
	}
	s.publishSize()
	return removed
}

// Sweep removes entries that have been expired for longer than their grace
// window (one extra TTL, kept for stale-while-revalidate readers). Called
// periodically by the janitor service.
func (s *Store) Sweep() int {
	now := s.nowFn()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, entry := range sh.entries {
			grace := entry.ExpiresAt.Sub(entry.FetchedAt)
			if now.Sub(entry.ExpiresAt) >= grace {
				delete(sh.entries, key)
				s.deleteBacking(key)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	if removed > 0 {
		s.recordEvictions(int64(removed))
		metrics.CacheEvictions.WithLabelValues("janitor").Add(float64(removed))
		logging.Debug().Int("removed", removed).Msg("Cache janitor swept expired entries")
	}
	s.publishSize()
	return removed
}

// Len returns the number of entries, fresh or stale.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// GetStats returns a snapshot of the cache counters.
func (s *Store) GetStats() Stats {
	s.statsMu.Lock()
	snapshot := s.stats
	s.statsMu.Unlock()
	snapshot.Entries = s.Len()
	return snapshot
}

// restore reloads surviving entries from the backing store. Entries that
// expired past their grace window while the process was down are skipped.
func (s *Store) restore() {
	if s.backing == nil {
		return
	}
	now := s.nowFn()
	restored := 0
	err := s.backing.Walk(func(key string, entry Entry) {
		grace := entry.ExpiresAt.Sub(entry.FetchedAt)
		if now.Sub(entry.ExpiresAt) >= grace {
			return
		}
		sh := s.shardFor(key)
		sh.mu.Lock()
		sh.entries[key] = entry
		sh.mu.Unlock()
		restored++
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Cache backing restore failed, starting cold")
		return
	}
	if restored > 0 {
		logging.Info().Int("restored", restored).Msg("Restored cache entries from backing store")
	}
	s.publishSize()
}

func (s *Store) deleteBacking(key string) {
	if s.backing == nil {
		return
	}
	if err := s.backing.Delete(key); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Cache backing delete failed")
	}
}

func (s *Store) publishSize() {
	metrics.CacheSize.Set(float64(s.Len()))
}

func (s *Store) recordHit(stale bool) {
	s.statsMu.Lock()
	s.stats.Hits++
	if stale {
		s.stats.StaleServes++
	}
	s.statsMu.Unlock()
}

func (s *Store) recordMiss() {
	s.statsMu.Lock()
	s.stats.Misses++
	s.statsMu.Unlock()
}

func (s *Store) recordEvictions(n int64) {
	s.statsMu.Lock()
	s.stats.Evictions += n
	s.statsMu.Unlock()
}

// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

// Package clients constructs and caches AWS service clients per
// (account, region, resource type) and exposes them behind the PageLister
// interface consumed by the fetcher.
package clients

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/stratus/internal/credentials"
	"github.com/tomtom215/stratus/internal/logging"
	"github.com/tomtom215/stratus/internal/metrics"
	"github.com/tomtom215/stratus/internal/models"
)

const (
	// defaultClientTTL bounds how long a constructed client is reused.
	defaultClientTTL = 60 * time.Minute

	// defaultMaxClients caps the cache; the oldest entry is evicted first.
	defaultMaxClients = 200
)

// ErrUnsupportedRegion is returned when a resource type has no presence in
// the requested region. Signalled before any network call.
var ErrUnsupportedRegion = errors.New("resource type not available in region")

// PageLister fetches one page of resources. An empty next token means the
// listing is exhausted. The first call passes an empty token.
type PageLister interface {
	FetchPage(ctx context.Context, token string) (records []models.ResourceRecord, next string, err error)
}

type clientKey struct {
	accountID string
	region    string
	resType   models.ResourceType
}

type cacheEntry struct {
	lister     PageLister
	builtAt    time.Time
	generation uint64
}

// Factory builds PageListers from credential sessions, caching them keyed
// by (account, region, resource type). Entries are dropped when they age
// out, when the cache is full, or when the backing session generation has
// moved on.
type Factory struct {
	ttl        time.Duration
	maxClients int

	mu    sync.Mutex
	cache map[clientKey]*cacheEntry

	nowFn func() time.Time

	// build is overridable in tests.
	build func(sess *credentials.Session, region string, rt models.ResourceType) (PageLister, error)
}

// NewFactory builds a factory with default TTL and capacity bounds.
func NewFactory() *Factory {
	f := &Factory{
		ttl:        defaultClientTTL,
		maxClients: defaultMaxClients,
		cache:      make(map[clientKey]*cacheEntry),
		nowFn:      time.Now,
	}
	f.build = buildLister
	return f
}

// Client returns a PageLister for the session's account in the given
// region. Unsupported (type, region) pairs fail fast with
// ErrUnsupportedRegion; global services are transparently pinned to their
// home region.
func (f *Factory) Client(sess *credentials.Session, region string, rt models.ResourceType) (PageLister, error) {
	if !SupportedInRegion(rt, region) {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnsupportedRegion, rt, region)
	}
	region = EffectiveServiceRegion(rt, region)

	key := clientKey{accountID: sess.AccountID, region: region, resType: rt}
	now := f.nowFn()

	f.mu.Lock()
	entry, ok := f.cache[key]
	if ok && entry.generation == sess.Generation && now.Sub(entry.builtAt) < f.ttl {
		f.mu.Unlock()
		metrics.ClientCacheHits.Inc()
		return entry.lister, nil
	}
	f.mu.Unlock()

	metrics.ClientCacheMisses.Inc()
	lister, err := f.build(sess, region, rt)
	if err != nil {
		return nil, fmt.Errorf("build %s client for account %s in %s: %w", rt, sess.AccountID, region, err)
	}

	f.mu.Lock()
	f.evictLocked(now)
	f.cache[key] = &cacheEntry{lister: lister, builtAt: now, generation: sess.Generation}
	size := len(f.cache)
	f.mu.Unlock()

	metrics.ClientCacheSize.Set(float64(size))
	logging.Debug().
		Str("account_id", sess.AccountID).
		Str("region", region).
		Str("resource_type", string(rt)).
		Uint64("generation", sess.Generation).
		Msg("Constructed service client")
	return lister, nil
}

// evictLocked drops expired entries, then the oldest entries until the cache
// is under capacity. Caller holds the lock.
func (f *Factory) evictLocked(now time.Time) {
	evicted := 0
	for key, entry := range f.cache {
		if now.Sub(entry.builtAt) >= f.ttl {
			delete(f.cache, key)
			evicted++
		}
	}

	for len(f.cache) >= f.maxClients {
		var oldestKey clientKey
		var oldest time.Time
		first := true
		for key, entry := range f.cache {
			if first || entry.builtAt.Before(oldest) {
				oldestKey, oldest, first = key, entry.builtAt, false
			}
		}
		delete(f.cache, oldestKey)
		evicted++
	}

	if evicted > 0 {
		logging.Debug().Int("evicted", evicted).Msg("Evicted cached service clients")
	}
}

// InvalidateAccount drops every cached client for an account. Used when
// credentials change.
func (f *Factory) InvalidateAccount(accountID string) int {
	f.mu.Lock()
	removed := 0
	for key := range f.cache {
		if key.accountID == accountID {
			delete(f.cache, key)
			removed++
		}
	}
	size := len(f.cache)
	f.mu.Unlock()

	metrics.ClientCacheSize.Set(float64(size))
	return removed
}

// Size returns the number of cached clients.
func (f *Factory) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cache)
}

// buildLister constructs the concrete SDK-backed lister for one resource
// type.
func buildLister(sess *credentials.Session, region string, rt models.ResourceType) (PageLister, error) {
	switch rt {
	case models.ResourceEC2Instance:
		return newEC2InstanceLister(sess, region), nil
	case models.ResourceVPC:
		return newVPCLister(sess, region), nil
	case models.ResourceSubnet:
		return newSubnetLister(sess, region), nil
	case models.ResourceEBSVolume:
		return newVolumeLister(sess, region), nil
	case models.ResourceS3Bucket:
		return newS3BucketLister(sess, region), nil
	case models.ResourceRDSInstance:
		return newRDSInstanceLister(sess, region), nil
	case models.ResourceLambda:
		return newLambdaLister(sess, region), nil
	case models.ResourceLoadBalancer:
		return newLoadBalancerLister(sess, region), nil
	default:
		return nil, fmt.Errorf("no lister for resource type %q", rt)
	}
}

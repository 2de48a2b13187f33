// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

//go:build persist

package cache

import (
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/stratus/internal/logging"
	"github.com/tomtom215/stratus/internal/models"
)

// persistedEntry is the wire form of an Entry in the backing store.
type persistedEntry struct {
	Records   []models.ResourceRecord `json:"records"`
	FetchedAt time.Time               `json:"fetched_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// BadgerBacking persists cache entries to a Badger database so a restart
// does not begin with a cold cache.
type BadgerBacking struct {
	db *badger.DB
}

// OpenBacking opens (or creates) the Badger store at path. Empty path
// disables persistence.
func OpenBacking(path string) (Backing, error) {
	if path == "" {
		return nil, nil
	}
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithCompactL0OnClose(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache backing at %s: %w", path, err)
	}
	logging.Info().Str("path", path).Msg("Opened persistent cache backing")
	return &BadgerBacking{db: db}, nil
}

func (b *BadgerBacking) Put(key string, entry Entry) error {
	data, err := json.Marshal(persistedEntry{
		Records:   entry.Records,
		FetchedAt: entry.FetchedAt,
		ExpiresAt: entry.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (b *BadgerBacking) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *BadgerBacking) Walk(fn func(key string, entry Entry)) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				var p persistedEntry
				if err := json.Unmarshal(val, &p); err != nil {
					// One corrupt entry must not abort the walk.
					logging.Warn().Str("key", key).Err(err).Msg("Skipping corrupt persisted cache entry")
					return nil
				}
				fn(key, Entry{Records: p.Records, FetchedAt: p.FetchedAt, ExpiresAt: p.ExpiresAt})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerBacking) Close() error {
	return b.db.Close()
}

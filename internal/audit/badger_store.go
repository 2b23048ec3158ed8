// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key layout for BadgerDB storage. Events are keyed by timestamp so a
// reverse iteration yields newest first; the event ID breaks ties.
const auditKeyPrefix = "audit:"

// keyTimeLayout is a fixed-width RFC 3339 rendering. RFC3339Nano trims
// trailing zeros, which breaks lexicographic ordering for sub-second
// timestamps; every key must encode the same number of digits.
const keyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// BadgerStore implements Store using BadgerDB for durable storage.
// Suitable for production use with persistence across restarts.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a new BadgerDB-backed audit store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens a BadgerDB at path and wraps it in a store.
// An empty path opens an in-memory database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	return NewBadgerStore(db), nil
}

func eventKey(event *Event) []byte {
	return []byte(auditKeyPrefix + event.Timestamp.UTC().Format(keyTimeLayout) + ":" + event.ID)
}

// Save persists an audit event.
func (s *BadgerStore) Save(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(eventKey(event), data); err != nil {
			return fmt.Errorf("set audit event: %w", err)
		}
		return nil
	})
}

// Query retrieves events matching the filter, newest first.
func (s *BadgerStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	results := make([]Event, 0)
	skipped := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(auditKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible key within the prefix so the
		// reverse scan starts at the newest event.
		seekKey := append([]byte(auditKeyPrefix), 0xFF)
		for it.Seek(seekKey); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var event Event
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				return fmt.Errorf("decode audit event: %w", err)
			}

			if !matchesFilter(&event, &filter) {
				continue
			}

			if skipped < filter.Offset {
				skipped++
				continue
			}

			results = append(results, event)
			if filter.Limit > 0 && len(results) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// Count returns the number of events matching the filter.
func (s *BadgerStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	var count int64

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(auditKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(auditKeyPrefix)); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var event Event
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				return fmt.Errorf("decode audit event: %w", err)
			}

			if matchesFilter(&event, &filter) {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Delete removes events older than the cutoff. The timestamp-ordered
// key layout lets the scan stop at the first event on or after the
// cutoff.
func (s *BadgerStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	cutoffKey := []byte(auditKeyPrefix + olderThan.UTC().Format(keyTimeLayout))

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(auditKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(auditKeyPrefix)); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(cutoffKey) {
				break
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var removed int64
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return removed, fmt.Errorf("delete audit event: %w", err)
		}
		removed++
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush audit deletes: %w", err)
	}

	return removed, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, badger.ErrDBClosed) {
		return fmt.Errorf("close audit database: %w", err)
	}
	return nil
}

// Package state holds the connector's small key/value state: settings,
// sync bookkeeping, the sync lock and the taxonomy registry.
package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("state key not found")

// Key names a persisted state entry.
type Key string

// Settings keys.
const (
	KeyAPIToken          Key = "api_token"
	KeyDataSource        Key = "data_source"
	KeyFilterKeyword     Key = "filter_keyword"
	KeyLanguageFilter    Key = "language_filter"
	KeySyncInterval      Key = "sync_interval"
	KeyEventStatusFilter Key = "event_status_filter"
	KeyImageProperty     Key = "image_property"
	KeyFieldMappings     Key = "field_mappings"
)

// Sync bookkeeping keys.
const (
	KeyLastSyncTime      Key = "last_sync_time"
	KeyLastSyncResult    Key = "last_sync_result"
	KeySyncLock          Key = "sync_lock"
	KeyStopRequested     Key = "sync_stop_requested"
	KeyDynamicTaxonomies Key = "dynamic_taxonomies"
	KeyEventTypes        Key = "event_types"
	KeyFirstSyncNotice   Key = "first_sync_notice"
)

const keyPrefix = "hsevents/"

// Store is a typed key/value store with compare-and-swap.
type Store interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	SetWithTTL(ctx context.Context, key Key, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...Key) error
	// CompareAndSwap writes next only if the current value equals prev. A nil
	// prev means the key must be absent.
	CompareAndSwap(ctx context.Context, key Key, prev, next []byte) (bool, error)
}

// BadgerStore implements Store on BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// Open opens a BadgerDB at dir. An empty dir keeps state in memory.
func Open(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already open BadgerDB.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func dbKey(key Key) []byte {
	return []byte(keyPrefix + string(key))
}

// Get returns the value for key or ErrNotFound.
func (s *BadgerStore) Get(ctx context.Context, key Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return out, nil
}

// Set stores value under key.
func (s *BadgerStore) Set(ctx context.Context, key Key, value []byte) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores value under key, expiring after ttl. Zero ttl never expires.
func (s *BadgerStore) SetWithTTL(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(dbKey(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (s *BadgerStore) Delete(ctx context.Context, keys ...Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(dbKey(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// CompareAndSwap implements Store. A transaction conflict with a concurrent
// writer is reported as a failed swap.
func (s *BadgerStore) CompareAndSwap(ctx context.Context, key Key, prev, next []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	swapped := false
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if prev != nil {
				return nil
			}
		case err != nil:
			return err
		default:
			if prev == nil {
				return nil
			}
			cur, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !bytes.Equal(cur, prev) {
				return nil
			}
		}
		if err := txn.Set(dbKey(key), next); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("compare and swap %s: %w", key, err)
	}
	return swapped, nil
}

// Load decodes the JSON value at key into a T. ok is false when the key is
// absent.
func Load[T any](ctx context.Context, s Store, key Key) (T, bool, error) {
	var v T
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

// Save encodes v as JSON under key.
func Save[T any](ctx context.Context, s Store, key Key, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// SaveWithTTL encodes v as JSON under key with an expiry.
func SaveWithTTL[T any](ctx context.Context, s Store, key Key, v T, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.SetWithTTL(ctx, key, raw, ttl)
}

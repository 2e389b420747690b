// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerBackend stores generations in an embedded BadgerDB.
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger opens or creates a BadgerDB at path.
func OpenBadger(path string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Suppress BadgerDB logs
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerBackend{db: db}, nil
}

// NewBadgerBackend wraps an open database.
func NewBadgerBackend(db *badger.DB) *BadgerBackend {
	return &BadgerBackend{db: db}
}

// Name implements Backend.
func (b *BadgerBackend) Name() string { return "badger" }

func badgerMarker(namespace string, gen int64) []byte {
	return []byte(registryKey(namespace) + ":" + formatGeneration(gen))
}

// CurrentGeneration implements Backend.
func (b *BadgerBackend) CurrentGeneration(_ context.Context, namespace string) (int64, error) {
	var gen int64
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(pointerKey(namespace)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			g, err := parseGeneration(string(val))
			gen = g
			return err
		})
	})
	return gen, err
}

// WriteGeneration implements Backend.
func (b *BadgerBackend) WriteGeneration(_ context.Context, namespace string, gen int64, entries map[string][]byte) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for k, v := range entries {
		if err := wb.Set([]byte(recordKey(namespace, gen, k)), v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	if err := wb.Set(badgerMarker(namespace, gen), nil); err != nil {
		return fmt.Errorf("set generation marker: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush generation %d: %w", gen, err)
	}
	return nil
}

// SwapCurrent implements Backend.
func (b *BadgerBackend) SwapCurrent(_ context.Context, namespace string, gen int64) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(pointerKey(namespace)), []byte(formatGeneration(gen)))
	})
}

// Get implements Backend.
func (b *BadgerBackend) Get(_ context.Context, namespace string, gen int64, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordKey(namespace, gen, key)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// Scan implements Backend.
func (b *BadgerBackend) Scan(ctx context.Context, namespace string, gen int64, fn func(key string, value []byte) error) error {
	prefix := []byte(generationPrefix(namespace, gen))
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), string(prefix))
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListGenerations implements Backend.
func (b *BadgerBackend) ListGenerations(_ context.Context, namespace string) ([]int64, error) {
	prefix := []byte(registryKey(namespace) + ":")
	var out []int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			gen, err := parseGeneration(strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
			if err != nil {
				return err
			}
			out = append(out, gen)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, err
}

// DropGeneration implements Backend.
func (b *BadgerBackend) DropGeneration(_ context.Context, namespace string, gen int64) error {
	prefix := []byte(generationPrefix(namespace, gen))
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("list generation %d: %w", gen, err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	if err := wb.Delete(badgerMarker(namespace, gen)); err != nil {
		return fmt.Errorf("delete generation marker: %w", err)
	}
	return wb.Flush()
}

// Ping implements Backend.
func (b *BadgerBackend) Ping(context.Context) error {
	if b.db.IsClosed() {
		return errClosed
	}
	return nil
}

// Close implements Backend.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

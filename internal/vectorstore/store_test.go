// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package vectorstore

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/recommend"
)

func setupTestBadger(t *testing.T) *BadgerBackend {
	t.Helper()
	dir, err := os.MkdirTemp("", "vectorstore-badger-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging for tests
	db, err := badger.Open(opts)
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.RemoveAll(dir)
	})
	return NewBadgerBackend(db)
}

// backends returns every backend that runs without external services.
func backends(t *testing.T) map[string]Backend {
	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"badger": setupTestBadger(t),
	}
}

func unit(values ...float64) []float64 {
	v, _ := recommend.Normalize(values)
	return v
}

func TestPublishAndGet(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(backend, DefaultConfig(), zerolog.Nop())
			variant := recommend.VariantCooccurrence

			if _, err := s.Get(ctx, "A", variant); !errors.Is(err, recommend.ErrNoEmbedding) {
				t.Fatalf("empty store err = %v, want ErrNoEmbedding", err)
			}

			gen, err := s.Publish(ctx, variant, map[string]Entry{
				"A": {Values: unit(1, 0), Metadata: map[string]string{"approach": "svd"}},
				"B": {Values: unit(1, 1)},
			})
			if err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if gen != 1 {
				t.Errorf("generation = %d, want 1", gen)
			}

			vec, err := s.Get(ctx, "A", variant)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if vec.Dimension != 2 || !vec.Normalized || vec.Metadata["approach"] != "svd" || vec.Variant != variant {
				t.Errorf("vector = %+v", vec)
			}
			if _, err := s.Get(ctx, "Z", variant); !errors.Is(err, recommend.ErrNoEmbedding) {
				t.Errorf("missing item err = %v", err)
			}

			snap, err := s.Scan(ctx, variant)
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if len(snap.Vectors) != 2 || snap.Generation != 1 || snap.Dimension != 2 || snap.Skipped != 0 {
				t.Errorf("snapshot = %+v", snap)
			}
		})
	}
}

func TestPublishReplacesGeneration(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(backend, Config{RetainGenerations: 2}, zerolog.Nop())
			v := recommend.TextVariant("all-minilm")

			for i := 0; i < 4; i++ {
				if _, err := s.Publish(ctx, v, map[string]Entry{"A": {Values: unit(1, float64(i))}}); err != nil {
					t.Fatalf("publish %d: %v", i, err)
				}
			}
			gen, err := s.Publish(ctx, v, map[string]Entry{"C": {Values: unit(0, 1)}})
			if err != nil {
				t.Fatal(err)
			}
			if gen != 5 {
				t.Errorf("generation = %d, want 5", gen)
			}

			snap, err := s.Scan(ctx, v)
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := snap.Vectors["A"]; ok || len(snap.Vectors) != 1 {
				t.Errorf("publish should replace the whole generation, got %v", snap.Vectors)
			}

			gens, err := backend.ListGenerations(ctx, v.KeyPrefix())
			if err != nil {
				t.Fatal(err)
			}
			if len(gens) != 2 || gens[0] != 4 || gens[1] != 5 {
				t.Errorf("retained generations = %v, want [4 5]", gens)
			}
			if _, err := backend.Get(ctx, v.KeyPrefix(), 3, "A"); !errors.Is(err, ErrNotFound) {
				t.Errorf("pruned record still readable: %v", err)
			}
		})
	}
}

func TestUpsertMerges(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend(), DefaultConfig(), zerolog.Nop())
	v := recommend.VariantCooccurrence

	if _, err := s.Publish(ctx, v, map[string]Entry{
		"A": {Values: unit(1, 0)},
		"B": {Values: unit(0, 1)},
	}); err != nil {
		t.Fatal(err)
	}
	gen, err := s.Upsert(ctx, v, map[string]Entry{
		"B": {Values: unit(1, 1)},
		"C": {Values: unit(1, -1)},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if gen != 2 {
		t.Errorf("generation = %d, want 2", gen)
	}

	snap, err := s.Scan(ctx, v)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Vectors) != 3 {
		t.Fatalf("vectors = %d, want 3", len(snap.Vectors))
	}
	if b := snap.Vectors["B"].Values; math.Abs(b[0]-b[1]) > 1e-12 {
		t.Errorf("B not updated: %v", b)
	}
}

func TestVariantsArePartitioned(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend(), DefaultConfig(), zerolog.Nop())
	text := recommend.TextVariant("all-mpnet")

	if _, err := s.Publish(ctx, recommend.VariantCooccurrence, map[string]Entry{"A": {Values: unit(1, 0)}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Publish(ctx, text, map[string]Entry{"A": {Values: unit(1, 0, 0)}}); err != nil {
		t.Fatal(err)
	}

	co, _ := s.Get(ctx, "A", recommend.VariantCooccurrence)
	tx, _ := s.Get(ctx, "A", text)
	if co.Dimension != 2 || tx.Dimension != 3 {
		t.Errorf("dimensions = %d, %d", co.Dimension, tx.Dimension)
	}
	if _, err := s.Publish(ctx, recommend.Variant("catalog"), map[string]Entry{"A": {Values: unit(1)}}); err == nil {
		t.Error("expected invalid variant to be rejected")
	}
}

func TestScanSkipsMalformedRecords(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := New(backend, DefaultConfig(), zerolog.Nop())
	v := recommend.VariantCooccurrence

	gen, err := s.Publish(ctx, v, map[string]Entry{
		"A": {Values: unit(1, 0)},
		"B": {Values: unit(0, 1)},
	})
	if err != nil {
		t.Fatal(err)
	}

	ns := v.KeyPrefix()
	backend.Put(ns, gen, "bad-json", []byte(`{"embedding": [1, 0`))
	backend.Put(ns, gen, "bad-dim", []byte(`{"embedding":[1,0],"dimension":3,"normalized":true}`))
	backend.Put(ns, gen, "bad-norm", []byte(`{"embedding":[3,4],"dimension":2,"normalized":true}`))
	backend.Put(ns, gen, "other-dim", []byte(`{"embedding":[1,0,0],"dimension":3,"normalized":true}`))
	backend.Put(ns, gen, "script", []byte(`__import__('os').system('true')`))
	backend.Put(ns, gen, "raw", []byte(`{"embedding":[3,4],"dimension":2,"normalized":false}`))

	snap, err := s.Scan(ctx, v)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if snap.Skipped != 5 {
		t.Errorf("skipped = %d, want 5", snap.Skipped)
	}
	if len(snap.Vectors) != 3 {
		t.Errorf("vectors = %v", snap.Vectors)
	}
	raw := snap.Vectors["raw"]
	if raw == nil || math.Abs(raw.Values[0]-0.6) > 1e-12 {
		t.Errorf("unnormalized record should be normalized on read: %+v", raw)
	}

	fresh := New(backend, DefaultConfig(), zerolog.Nop())
	if _, err := fresh.Get(ctx, "bad-json", v); !errors.Is(err, recommend.ErrMalformedRecord) {
		t.Errorf("Get malformed err = %v", err)
	}
}

func TestScanCachePerGeneration(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := New(backend, Config{RetainGenerations: 2, ScanCacheTTL: time.Minute}, zerolog.Nop())
	v := recommend.VariantCooccurrence

	gen, err := s.Publish(ctx, v, map[string]Entry{"A": {Values: unit(1, 0)}})
	if err != nil {
		t.Fatal(err)
	}
	first, err := s.Scan(ctx, v)
	if err != nil {
		t.Fatal(err)
	}

	// Generations are immutable, so a write behind the store's back is
	// not seen until the pointer moves.
	backend.Put(v.KeyPrefix(), gen, "B", []byte(`{"embedding":[0,1],"dimension":2,"normalized":true}`))
	second, _ := s.Scan(ctx, v)
	if second != first {
		t.Error("expected cached snapshot for unchanged generation")
	}

	if _, err := s.Publish(ctx, v, map[string]Entry{"C": {Values: unit(0, 1)}}); err != nil {
		t.Fatal(err)
	}
	third, _ := s.Scan(ctx, v)
	if third.Generation != gen+1 || third.Vectors["C"] == nil {
		t.Errorf("snapshot after publish = %+v", third)
	}

	now := time.Now()
	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	if got := s.cachedScan(v.KeyPrefix(), third.Generation); got != nil {
		t.Error("expected expired cache entry")
	}
}

func TestPublishIsAtomicForReaders(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend(), Config{RetainGenerations: 3}, zerolog.Nop())
	v := recommend.VariantCooccurrence

	batch := func(x float64) map[string]Entry {
		out := make(map[string]Entry, 50)
		for i := 0; i < 50; i++ {
			out[string(rune('a'+i%26))+string(rune('a'+i/26))] = Entry{Values: unit(x, 1)}
		}
		return out
	}
	if _, err := s.Publish(ctx, v, batch(1)); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap, err := s.Scan(ctx, v)
			if err != nil {
				continue
			}
			first := -1.0
			for _, vec := range snap.Vectors {
				if first < 0 {
					first = vec.Values[0]
				}
				if vec.Values[0] != first {
					select {
					case errs <- "reader saw vectors from two generations":
					default:
					}
					return
				}
			}
		}
	}()

	for i := 2; i < 20; i++ {
		if _, err := s.Publish(ctx, v, batch(float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()

	select {
	case msg := <-errs:
		t.Error(msg)
	default:
	}
}

func TestPublishRejectsBadEntries(t *testing.T) {
	s := New(NewMemoryBackend(), DefaultConfig(), zerolog.Nop())
	tests := map[string]map[string]Entry{
		"empty vector": {"A": {}},
		"nan":          {"A": {Values: []float64{math.NaN()}}},
		"empty id":     {"": {Values: unit(1)}},
	}
	for name, entries := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Publish(context.Background(), recommend.VariantCooccurrence, entries); err == nil {
				t.Error("expected error")
			}
		})
	}
	if gen, _ := s.Generation(context.Background(), recommend.VariantCooccurrence); gen != 0 {
		t.Errorf("failed publish moved generation to %d", gen)
	}
}

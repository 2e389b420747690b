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
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/metrics"
	"github.com/tomtom215/basketrec/internal/recommend"
)

// Config configures a Store.
type Config struct {
	// RetainGenerations is how many generations per namespace are kept,
	// the current one included.
	RetainGenerations int

	// ScanCacheTTL evicts cached scans that have not been refreshed for
	// this long. Zero keeps them until the generation changes.
	ScanCacheTTL time.Duration
}

// DefaultConfig returns the default store settings.
func DefaultConfig() Config {
	return Config{
		RetainGenerations: 2,
		ScanCacheTTL:      10 * time.Minute,
	}
}

// Store publishes and reads versioned vector and catalog snapshots. It
// implements recommend.SnapshotReader.
type Store struct {
	backend Backend
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time

	// writeMu serializes publishers.
	writeMu sync.Mutex

	cacheMu sync.Mutex
	scans   map[string]*cachedScan
	catalog *cachedCatalog
}

type cachedScan struct {
	snap *recommend.VariantSnapshot
	at   time.Time
}

type cachedCatalog struct {
	gen     int64
	meta    *recommend.CatalogMeta
	popular []recommend.PopularItem
}

var _ recommend.SnapshotReader = (*Store)(nil)

// New creates a store over backend.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(backend Backend, cfg Config, logger zerolog.Logger) *Store {
	if cfg.RetainGenerations < 1 {
		cfg.RetainGenerations = 1
	}
	return &Store{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With().Str("component", "vectorstore").Str("backend", backend.Name()).Logger(),
		now:     time.Now,
		scans:   make(map[string]*cachedScan),
	}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Generation returns the current generation of variant, 0 when nothing
// is published.
func (s *Store) Generation(ctx context.Context, variant recommend.Variant) (int64, error) {
	return s.backend.CurrentGeneration(ctx, variant.KeyPrefix())
}

// Publish replaces variant's vectors with entries as a new generation and
// returns it. Readers switch to the new generation all at once.
func (s *Store) Publish(ctx context.Context, variant recommend.Variant, entries map[string]Entry) (int64, error) {
	if !variant.Valid() {
		return 0, fmt.Errorf("publish: invalid variant %q", variant)
	}
	encoded, err := s.encodeEntries(entries)
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", variant, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.publishLocked(ctx, variant.KeyPrefix(), func(int64) (map[string][]byte, error) {
		return encoded, nil
	})
}

// Upsert merges entries into a copy of variant's current generation and
// publishes the copy. Items not named in entries keep their records.
func (s *Store) Upsert(ctx context.Context, variant recommend.Variant, entries map[string]Entry) (int64, error) {
	if !variant.Valid() {
		return 0, fmt.Errorf("upsert: invalid variant %q", variant)
	}
	encoded, err := s.encodeEntries(entries)
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", variant, err)
	}
	ns := variant.KeyPrefix()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur, err := s.backend.CurrentGeneration(ctx, ns)
	if err != nil {
		return 0, err
	}
	merged := make(map[string][]byte, len(encoded))
	if cur > 0 {
		err := s.backend.Scan(ctx, ns, cur, func(key string, value []byte) error {
			merged[key] = append([]byte(nil), value...)
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	for k, v := range encoded {
		merged[k] = v
	}

	return s.publishLocked(ctx, ns, func(int64) (map[string][]byte, error) {
		return merged, nil
	})
}

func (s *Store) encodeEntries(entries map[string]Entry) (map[string][]byte, error) {
	now := s.now()
	out := make(map[string][]byte, len(entries))
	for item, e := range entries {
		if item == "" {
			return nil, errors.New("empty item id")
		}
		data, err := encodeRecord(e, now)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", item, err)
		}
		out[item] = data
	}
	return out, nil
}

// publishLocked allocates the next generation, writes build(gen), swaps
// the pointer and prunes. The caller holds writeMu.
func (s *Store) publishLocked(ctx context.Context, ns string, build func(gen int64) (map[string][]byte, error)) (int64, error) {
	start := s.now()
	gen, err := s.nextGeneration(ctx, ns)
	if err != nil {
		return 0, err
	}
	entries, err := build(gen)
	if err != nil {
		return 0, err
	}

	if err := s.backend.WriteGeneration(ctx, ns, gen, entries); err != nil {
		s.discard(ctx, ns, gen)
		return 0, err
	}
	if err := s.backend.SwapCurrent(ctx, ns, gen); err != nil {
		s.discard(ctx, ns, gen)
		return 0, err
	}

	metrics.SetSnapshotGeneration(ns, gen)
	s.logger.Info().
		Str("namespace", ns).
		Int64("generation", gen).
		Int("records", len(entries)).
		Dur("duration", s.now().Sub(start)).
		Msg("Published generation")

	s.prune(ctx, ns, gen)
	return gen, nil
}

func (s *Store) nextGeneration(ctx context.Context, ns string) (int64, error) {
	cur, err := s.backend.CurrentGeneration(ctx, ns)
	if err != nil {
		return 0, err
	}
	gens, err := s.backend.ListGenerations(ctx, ns)
	if err != nil {
		return 0, err
	}
	highest := cur
	for _, g := range gens {
		if g > highest {
			highest = g
		}
	}
	return highest + 1, nil
}

// discard removes a generation that never became current.
func (s *Store) discard(ctx context.Context, ns string, gen int64) {
	if err := s.backend.DropGeneration(context.WithoutCancel(ctx), ns, gen); err != nil {
		s.logger.Warn().Err(err).Str("namespace", ns).Int64("generation", gen).Msg("Failed to discard unpublished generation")
	}
}

// prune drops every generation older than the newest RetainGenerations.
func (s *Store) prune(ctx context.Context, ns string, current int64) {
	gens, err := s.backend.ListGenerations(ctx, ns)
	if err != nil {
		s.logger.Warn().Err(err).Str("namespace", ns).Msg("Failed to list generations for pruning")
		return
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] > gens[j] })

	kept := 0
	for _, g := range gens {
		if g == current || (g < current && kept < s.cfg.RetainGenerations) {
			kept++
			continue
		}
		if g > current {
			continue
		}
		if err := s.backend.DropGeneration(ctx, ns, g); err != nil {
			s.logger.Warn().Err(err).Str("namespace", ns).Int64("generation", g).Msg("Failed to drop old generation")
			continue
		}
		s.logger.Debug().Str("namespace", ns).Int64("generation", g).Msg("Dropped old generation")
	}
}

// Get returns item's vector in variant. recommend.ErrNoEmbedding when the
// item has none; an error wrapping recommend.ErrMalformedRecord when the
// stored record is unusable.
func (s *Store) Get(ctx context.Context, item string, variant recommend.Variant) (*recommend.EmbeddingVector, error) {
	ns := variant.KeyPrefix()
	gen, err := s.backend.CurrentGeneration(ctx, ns)
	if err != nil {
		return nil, err
	}
	if gen == 0 {
		return nil, fmt.Errorf("%w: %s has no published vectors", recommend.ErrNoEmbedding, variant)
	}

	if snap := s.cachedScan(ns, gen); snap != nil {
		if v, ok := snap.Vectors[item]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("%w: %s in %s", recommend.ErrNoEmbedding, item, variant)
	}

	data, err := s.backend.Get(ctx, ns, gen, item)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s in %s", recommend.ErrNoEmbedding, item, variant)
	}
	if err != nil {
		return nil, err
	}
	vec, err := decodeRecord(item, variant, data)
	if err != nil {
		metrics.RecordMalformedRecords(ns, 1)
		s.logger.Warn().Err(err).Str("namespace", ns).Str("item", item).Msg("Skipping malformed record")
		return nil, err
	}
	return vec, nil
}

// Vector implements recommend.SnapshotReader.
func (s *Store) Vector(ctx context.Context, variant recommend.Variant, item string) (*recommend.EmbeddingVector, error) {
	return s.Get(ctx, item, variant)
}

// Scan returns every usable vector of variant's current generation.
// Malformed records are logged, counted and left out. Results are cached
// per generation.
func (s *Store) Scan(ctx context.Context, variant recommend.Variant) (*recommend.VariantSnapshot, error) {
	ns := variant.KeyPrefix()
	gen, err := s.backend.CurrentGeneration(ctx, ns)
	if err != nil {
		return nil, err
	}
	if gen == 0 {
		return &recommend.VariantSnapshot{Variant: variant, Vectors: map[string]*recommend.EmbeddingVector{}}, nil
	}
	if snap := s.cachedScan(ns, gen); snap != nil {
		metrics.RecordScanCache(true)
		return snap, nil
	}
	metrics.RecordScanCache(false)

	snap := &recommend.VariantSnapshot{
		Variant:    variant,
		Generation: gen,
		Vectors:    make(map[string]*recommend.EmbeddingVector),
	}
	malformed := make(map[string]struct{})
	err = s.backend.Scan(ctx, ns, gen, func(key string, value []byte) error {
		vec, err := decodeRecord(key, variant, value)
		if err == nil && snap.Dimension != 0 && vec.Dimension != snap.Dimension {
			err = fmt.Errorf("%w: %s: dimension %d, generation has %d",
				recommend.ErrMalformedRecord, key, vec.Dimension, snap.Dimension)
		}
		if err != nil {
			if _, seen := malformed[key]; !seen {
				malformed[key] = struct{}{}
				s.logger.Warn().Err(err).Str("namespace", ns).Str("item", key).Msg("Skipping malformed record")
			}
			return nil
		}
		if snap.Dimension == 0 {
			snap.Dimension = vec.Dimension
		}
		snap.Vectors[key] = vec
		return nil
	})
	if err != nil {
		return nil, err
	}
	snap.Skipped = len(malformed)
	if snap.Skipped > 0 {
		metrics.RecordMalformedRecords(ns, snap.Skipped)
	}

	s.storeScan(ns, snap)
	return snap, nil
}

// Vectors implements recommend.SnapshotReader.
func (s *Store) Vectors(ctx context.Context, variant recommend.Variant) (*recommend.VariantSnapshot, error) {
	return s.Scan(ctx, variant)
}

func (s *Store) cachedScan(ns string, gen int64) *recommend.VariantSnapshot {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	c, ok := s.scans[ns]
	if !ok || c.snap.Generation != gen {
		return nil
	}
	if s.cfg.ScanCacheTTL > 0 && s.now().Sub(c.at) > s.cfg.ScanCacheTTL {
		delete(s.scans, ns)
		return nil
	}
	return c.snap
}

func (s *Store) storeScan(ns string, snap *recommend.VariantSnapshot) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if c, ok := s.scans[ns]; ok && c.snap.Generation > snap.Generation {
		return
	}
	s.scans[ns] = &cachedScan{snap: snap, at: s.now()}
}

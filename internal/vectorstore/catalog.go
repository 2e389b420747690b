// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/basketrec/internal/metrics"
	"github.com/tomtom215/basketrec/internal/recommend"
)

// Catalog record keys within CatalogNamespace.
const (
	catalogMetaKey    = "meta"
	catalogPopularKey = "popular"
	catalogPartnerKey = "cooc:"
	catalogOrderKey   = "order:"
)

// Catalog is everything a batch run publishes besides vectors.
type Catalog struct {
	Meta     *recommend.CatalogMeta
	Popular  []recommend.PopularItem
	Partners map[string][]recommend.Partner
	Orders   map[string][]string
}

// PublishCatalog writes cat as the next catalog generation. Meta.Generation
// is set to the new generation.
func (s *Store) PublishCatalog(ctx context.Context, cat *Catalog) (int64, error) {
	if cat == nil || cat.Meta == nil {
		return 0, errors.New("publish catalog: missing metadata")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.publishLocked(ctx, CatalogNamespace, func(gen int64) (map[string][]byte, error) {
		cat.Meta.Generation = gen
		entries := make(map[string][]byte, 2+len(cat.Partners)+len(cat.Orders))

		put := func(key string, v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode %s: %w", key, err)
			}
			entries[key] = data
			return nil
		}

		if err := put(catalogMetaKey, cat.Meta); err != nil {
			return nil, err
		}
		popular := cat.Popular
		if popular == nil {
			popular = []recommend.PopularItem{}
		}
		if err := put(catalogPopularKey, popular); err != nil {
			return nil, err
		}
		for item, partners := range cat.Partners {
			if err := put(catalogPartnerKey+item, partners); err != nil {
				return nil, err
			}
		}
		for id, items := range cat.Orders {
			if err := put(catalogOrderKey+id, items); err != nil {
				return nil, err
			}
		}
		return entries, nil
	})
}

// CatalogGeneration returns the current catalog generation, 0 when none.
func (s *Store) CatalogGeneration(ctx context.Context) (int64, error) {
	return s.backend.CurrentGeneration(ctx, CatalogNamespace)
}

// getCatalog reads and decodes one catalog record from the current
// generation. recommend.ErrNotFound when absent.
func (s *Store) getCatalog(ctx context.Context, key string, dst interface{}) (int64, error) {
	gen, err := s.backend.CurrentGeneration(ctx, CatalogNamespace)
	if err != nil {
		return 0, err
	}
	if gen == 0 {
		return 0, fmt.Errorf("%w: no catalog published", recommend.ErrNotFound)
	}
	if err := s.getCatalogAt(ctx, gen, key, dst); err != nil {
		return gen, err
	}
	return gen, nil
}

func (s *Store) getCatalogAt(ctx context.Context, gen int64, key string, dst interface{}) error {
	data, err := s.backend.Get(ctx, CatalogNamespace, gen, key)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: catalog %s", recommend.ErrNotFound, key)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.RecordMalformedRecords(CatalogNamespace, 1)
		s.logger.Warn().Err(err).Str("key", key).Int64("generation", gen).Msg("Skipping malformed catalog record")
		return fmt.Errorf("%w: catalog %s: %v", recommend.ErrMalformedRecord, key, err)
	}
	return nil
}

// loadCatalog returns the cached meta and popularity list for the current
// generation, reading them on a generation change.
func (s *Store) loadCatalog(ctx context.Context) (*cachedCatalog, error) {
	gen, err := s.backend.CurrentGeneration(ctx, CatalogNamespace)
	if err != nil {
		return nil, err
	}
	if gen == 0 {
		return &cachedCatalog{}, nil
	}

	s.cacheMu.Lock()
	c := s.catalog
	s.cacheMu.Unlock()
	if c != nil && c.gen == gen {
		return c, nil
	}

	c = &cachedCatalog{gen: gen}
	var meta recommend.CatalogMeta
	if err := s.getCatalogAt(ctx, gen, catalogMetaKey, &meta); err != nil {
		return nil, err
	}
	c.meta = &meta
	if err := s.getCatalogAt(ctx, gen, catalogPopularKey, &c.popular); err != nil && !errors.Is(err, recommend.ErrNotFound) {
		return nil, err
	}

	s.cacheMu.Lock()
	if s.catalog == nil || s.catalog.gen <= gen {
		s.catalog = c
	}
	s.cacheMu.Unlock()
	return c, nil
}

// Meta implements recommend.SnapshotReader.
func (s *Store) Meta(ctx context.Context) (*recommend.CatalogMeta, error) {
	c, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if c.meta == nil {
		return nil, fmt.Errorf("%w: no catalog published", recommend.ErrNotFound)
	}
	meta := *c.meta
	return &meta, nil
}

// Popular implements recommend.SnapshotReader.
func (s *Store) Popular(ctx context.Context) ([]recommend.PopularItem, int64, error) {
	c, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]recommend.PopularItem, len(c.popular))
	copy(out, c.popular)
	return out, c.gen, nil
}

// Partners implements recommend.SnapshotReader.
func (s *Store) Partners(ctx context.Context, item string) ([]recommend.Partner, error) {
	var partners []recommend.Partner
	if _, err := s.getCatalog(ctx, catalogPartnerKey+item, &partners); err != nil {
		return nil, err
	}
	return partners, nil
}

// OrderItems implements recommend.SnapshotReader.
func (s *Store) OrderItems(ctx context.Context, orderID string) ([]string, error) {
	var items []string
	if _, err := s.getCatalog(ctx, catalogOrderKey+orderID, &items); err != nil {
		return nil, err
	}
	return items, nil
}

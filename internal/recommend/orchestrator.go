// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/metrics"
)

// Orchestrator answers recommendation queries against the current snapshot.
type Orchestrator struct {
	cfg    *Config
	reader SnapshotReader
	engine *SimilarityEngine
	logger zerolog.Logger
}

// NewOrchestrator creates an orchestrator over reader.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewOrchestrator(cfg *Config, reader SnapshotReader, logger zerolog.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Orchestrator{
		cfg:    cfg,
		reader: reader,
		engine: NewSimilarityEngine(reader),
		logger: logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Config returns the orchestrator's configuration.
func (o *Orchestrator) Config() *Config {
	return o.cfg
}

// Popular returns the most frequent items. Scores are frequency divided by
// the largest frequency in the current popularity snapshot.
func (o *Orchestrator) Popular(ctx context.Context, limit int) (*Result, error) {
	start := time.Now()
	res, err := o.popular(ctx, o.cfg.ClampLimit(limit))
	o.observe("popular", res, start)
	return res, err
}

func (o *Orchestrator) popular(ctx context.Context, limit int) (*Result, error) {
	items, gen, err := o.reader.Popular(ctx)
	if err != nil {
		return nil, fmt.Errorf("popular: %w", err)
	}
	return &Result{
		Items:      rankPopular(items, limit),
		Source:     SourcePopularity,
		Generation: gen,
	}, nil
}

// rankPopular scores the popularity snapshot against its own maximum.
func rankPopular(items []PopularItem, limit int) []SimilarityResult {
	sorted := make([]PopularItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Frequency != sorted[j].Frequency {
			return sorted[i].Frequency > sorted[j].Frequency
		}
		return sorted[i].Item < sorted[j].Item
	})

	maxFreq := 0
	if len(sorted) > 0 {
		maxFreq = sorted[0].Frequency
	}

	n := len(sorted)
	if limit < n {
		n = limit
	}
	out := make([]SimilarityResult, 0, n)
	for i := 0; i < n; i++ {
		it := sorted[i]
		score := 0.0
		if maxFreq > 0 {
			score = float64(it.Frequency) / float64(maxFreq)
			if score > 1 {
				score = 1
			}
		}
		out = append(out, SimilarityResult{
			Item:           it.Item,
			Score:          score,
			Reason:         fmt.Sprintf("Popular item (purchased %d times)", it.Frequency),
			PopularityRank: i + 1,
		})
	}
	return out
}

// SimilarToItem returns the nearest neighbours of item in variant. When
// the item has no vector the popularity ranking is returned instead. When
// the vector cannot be read the popularity ranking is returned and the
// result is marked Degraded.
func (o *Orchestrator) SimilarToItem(ctx context.Context, item string, limit int, variant Variant) (*Result, error) {
	start := time.Now()
	res, err := o.similarToItem(ctx, strings.TrimSpace(item), o.cfg.ClampLimit(limit), variant)
	o.observe("similar_item", res, start)
	return res, err
}

func (o *Orchestrator) similarToItem(ctx context.Context, item string, limit int, variant Variant) (*Result, error) {
	variant, qerr := o.resolveVariant(variant)
	if qerr != nil {
		return emptyResult(variant, qerr), nil
	}

	vec, err := o.reader.Vector(ctx, variant, item)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoEmbedding), errors.Is(err, ErrMalformedRecord):
		o.logger.Debug().Str("item", item).Str("variant", string(variant)).Err(err).Msg("No embedding for item, using popular items")
		return o.fallback(ctx, limit, nil, variant, &QueryError{Kind: QueryUnknownItem, Subject: item}, false, "no_embedding")
	default:
		o.logger.Warn().Err(err).Str("item", item).Str("variant", string(variant)).Msg("Embedding lookup failed, using popular items")
		return o.fallback(ctx, limit, nil, variant, nil, true, "store_unavailable")
	}

	results, gen, err := o.engine.Query(ctx, vec.Values, variant, limit, map[string]struct{}{item: {}})
	if err != nil {
		o.logger.Warn().Err(err).Str("variant", string(variant)).Msg("Vector scan failed, using popular items")
		return o.fallback(ctx, limit, nil, variant, nil, true, "store_unavailable")
	}
	annotate(results, "Similarity (%s): %.3f", variant)

	return &Result{
		Items:      results,
		Source:     SourceSimilarity,
		Variant:    variant,
		Generation: gen,
	}, nil
}

// SimilarToBasket ranks items against the centroid of the basket. Basket
// members are never returned. When no member has a vector the popularity
// ranking, minus the basket, is returned instead.
func (o *Orchestrator) SimilarToBasket(ctx context.Context, items []string, limit int, variant Variant) (*Result, error) {
	start := time.Now()
	res, err := o.similarToBasket(ctx, normalizeBasket(items), o.cfg.ClampLimit(limit), variant)
	o.observe("similar_basket", res, start)
	return res, err
}

func (o *Orchestrator) similarToBasket(ctx context.Context, basket []string, limit int, variant Variant) (*Result, error) {
	variant, qerr := o.resolveVariant(variant)
	if qerr != nil {
		return emptyResult(variant, qerr), nil
	}
	if len(basket) == 0 {
		return emptyResult(variant, &QueryError{Kind: QueryEmptyBasket}), nil
	}
	if maxItems := o.cfg.Limits.MaxBasketItems; len(basket) > maxItems {
		basket = basket[:maxItems]
	}

	exclude := make(map[string]struct{}, len(basket))
	for _, id := range basket {
		exclude[id] = struct{}{}
	}

	results, gen, err := o.engine.BasketNearest(ctx, basket, variant, limit)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoEmbedding):
		o.logger.Debug().Int("basket_size", len(basket)).Str("variant", string(variant)).Msg("No basket member has an embedding, using popular items")
		return o.fallback(ctx, limit, exclude, variant, nil, false, "no_embedding")
	default:
		o.logger.Warn().Err(err).Str("variant", string(variant)).Msg("Basket lookup failed, using popular items")
		return o.fallback(ctx, limit, exclude, variant, nil, true, "store_unavailable")
	}
	annotate(results, "Basket similarity (%s): %.3f", variant)

	return &Result{
		Items:      results,
		Source:     SourceSimilarity,
		Variant:    variant,
		Generation: gen,
	}, nil
}

// ForOrder resolves the order's items and returns the popularity ranking.
// No order-specific model exists yet.
func (o *Orchestrator) ForOrder(ctx context.Context, orderID string, limit int) (*Result, error) {
	start := time.Now()
	orderID = strings.TrimSpace(orderID)
	limit = o.cfg.ClampLimit(limit)

	var (
		qerr     *QueryError
		degraded bool
	)
	items, err := o.reader.OrderItems(ctx, orderID)
	switch {
	case err == nil:
		o.logger.Debug().Str("order_id", orderID).Int("items", len(items)).Msg("Resolved order")
	case errors.Is(err, ErrNotFound):
		qerr = &QueryError{Kind: QueryUnknownOrder, Subject: orderID}
	default:
		o.logger.Warn().Err(err).Str("order_id", orderID).Msg("Order lookup failed")
		degraded = true
	}

	res, err := o.fallback(ctx, limit, nil, "", qerr, degraded, "order")
	o.observe("for_order", res, start)
	return res, err
}

// GetEmbedding returns an item's stored vector. It returns a *QueryError
// for a variant that is not enabled, and ErrNoEmbedding when the item has
// no vector.
func (o *Orchestrator) GetEmbedding(ctx context.Context, item string, variant Variant) (*EmbeddingVector, error) {
	variant, qerr := o.resolveVariant(variant)
	if qerr != nil {
		return nil, qerr
	}
	vec, err := o.reader.Vector(ctx, variant, strings.TrimSpace(item))
	if err != nil {
		if errors.Is(err, ErrMalformedRecord) {
			return nil, fmt.Errorf("%w: %v", ErrNoEmbedding, err)
		}
		return nil, err
	}
	return vec, nil
}

// CoPurchased returns the item's stored co-occurrence partners, scored by
// count over the snapshot's largest pair count. Falls back to popular
// items when the item has no partners.
func (o *Orchestrator) CoPurchased(ctx context.Context, item string, limit int) (*Result, error) {
	start := time.Now()
	item = strings.TrimSpace(item)
	limit = o.cfg.ClampLimit(limit)

	res, err := o.coPurchased(ctx, item, limit)
	o.observe("co_purchased", res, start)
	return res, err
}

func (o *Orchestrator) coPurchased(ctx context.Context, item string, limit int) (*Result, error) {
	partners, err := o.reader.Partners(ctx, item)
	switch {
	case err == nil && len(partners) > 0:
	case err == nil, errors.Is(err, ErrNotFound):
		return o.fallback(ctx, limit, nil, "", &QueryError{Kind: QueryUnknownItem, Subject: item}, false, "no_partners")
	default:
		o.logger.Warn().Err(err).Str("item", item).Msg("Partner lookup failed, using popular items")
		return o.fallback(ctx, limit, nil, "", nil, true, "store_unavailable")
	}

	var gen int64
	maxCount := 0
	if meta, err := o.reader.Meta(ctx); err == nil {
		maxCount = meta.MaxCooccurrence
		gen = meta.Generation
	}
	for _, p := range partners {
		if p.Count > maxCount {
			maxCount = p.Count
		}
	}

	n := len(partners)
	if limit < n {
		n = limit
	}
	out := make([]SimilarityResult, 0, n)
	for _, p := range partners[:n] {
		score := 0.0
		if maxCount > 0 {
			score = float64(p.Count) / float64(maxCount)
		}
		out = append(out, SimilarityResult{
			Item:   p.Item,
			Score:  score,
			Reason: fmt.Sprintf("Co-occurrence similarity (%d times)", p.Count),
		})
	}
	return &Result{Items: out, Source: SourceCooccurrence, Generation: gen}, nil
}

// Snapshot returns the current catalog metadata.
func (o *Orchestrator) Snapshot(ctx context.Context) (*CatalogMeta, error) {
	return o.reader.Meta(ctx)
}

// fallback serves popular(limit+|exclude|) minus exclude, truncated to limit.
func (o *Orchestrator) fallback(ctx context.Context, limit int, exclude map[string]struct{}, variant Variant, qerr *QueryError, degraded bool, reason string) (*Result, error) {
	metrics.RecordFallback(reason)

	res, err := o.popular(ctx, limit+len(exclude))
	if err != nil {
		return nil, err
	}

	items := make([]SimilarityResult, 0, limit)
	for _, r := range res.Items {
		if _, skip := exclude[r.Item]; skip {
			continue
		}
		items = append(items, r)
		if len(items) == limit {
			break
		}
	}

	res.Items = items
	res.Source = SourceFallback
	res.Variant = variant
	res.Degraded = degraded
	res.QueryError = qerr
	return res, nil
}

func (o *Orchestrator) resolveVariant(v Variant) (Variant, *QueryError) {
	if v == "" {
		v = o.cfg.Variants.Default
	}
	if !o.cfg.VariantEnabled(v) {
		return v, &QueryError{Kind: QueryUnknownVariant, Subject: string(v)}
	}
	return v, nil
}

func (o *Orchestrator) observe(op string, res *Result, start time.Time) {
	source := "error"
	if res != nil {
		source = string(res.Source)
	}
	metrics.RecordQuery(op, source, time.Since(start))
}

func emptyResult(variant Variant, qerr *QueryError) *Result {
	return &Result{
		Items:      []SimilarityResult{},
		Source:     SourceNone,
		Variant:    variant,
		QueryError: qerr,
	}
}

func annotate(results []SimilarityResult, format string, variant Variant) {
	for i := range results {
		results[i].Reason = fmt.Sprintf(format, variant, results[i].Score)
	}
}

// normalizeBasket trims ids and drops empties and duplicates, keeping order.
func normalizeBasket(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, id := range items {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

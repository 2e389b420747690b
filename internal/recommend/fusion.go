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
)

// SimilarToItemFused merges the neighbour lists of several variants with
// reciprocal rank fusion. Scores are not comparable across variants, so
// only ranks are combined: each variant contributes 1/(k+rank) for every
// item it returns within the fusion depth. The fused score is divided by
// its maximum possible value so it stays within [0, 1].
//
// Variants that are not enabled are ignored and reported on QueryError.
// When no variant has a vector for the item the popularity ranking is
// returned.
func (o *Orchestrator) SimilarToItemFused(ctx context.Context, item string, limit int, variants []Variant) (*Result, error) {
	start := time.Now()
	res, err := o.similarToItemFused(ctx, strings.TrimSpace(item), o.cfg.ClampLimit(limit), variants)
	o.observe("similar_item_fused", res, start)
	return res, err
}

func (o *Orchestrator) similarToItemFused(ctx context.Context, item string, limit int, variants []Variant) (*Result, error) {
	if len(variants) == 0 {
		variants = o.cfg.Variants.Enabled
	}

	var (
		qerr     *QueryError
		used     int
		degraded bool
		gen      int64
		fused    = make(map[string]float64)
	)
	seen := make(map[Variant]struct{}, len(variants))
	for _, v := range variants {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}

		if !o.cfg.VariantEnabled(v) {
			qerr = &QueryError{Kind: QueryUnknownVariant, Subject: string(v)}
			continue
		}

		vec, err := o.reader.Vector(ctx, v, item)
		if err != nil {
			if !errors.Is(err, ErrNoEmbedding) && !errors.Is(err, ErrMalformedRecord) {
				o.logger.Warn().Err(err).Str("variant", string(v)).Msg("Embedding lookup failed during fusion")
				degraded = true
			}
			continue
		}

		ranked, g, err := o.engine.Query(ctx, vec.Values, v, o.cfg.Fusion.Depth, map[string]struct{}{item: {}})
		if err != nil {
			o.logger.Warn().Err(err).Str("variant", string(v)).Msg("Vector scan failed during fusion")
			degraded = true
			continue
		}
		used++
		if g > gen {
			gen = g
		}
		for rank, r := range ranked {
			fused[r.Item] += 1 / (o.cfg.Fusion.K + float64(rank+1))
		}
	}

	if used == 0 {
		if qerr == nil && !degraded {
			qerr = &QueryError{Kind: QueryUnknownItem, Subject: item}
		}
		return o.fallback(ctx, limit, nil, "", qerr, degraded, "no_embedding")
	}

	best := float64(used) / (o.cfg.Fusion.K + 1)
	results := make([]SimilarityResult, 0, len(fused))
	for id, score := range fused {
		results = append(results, SimilarityResult{
			Item:   id,
			Score:  score / best,
			Reason: fmt.Sprintf("Fused rank across %d variants: %.3f", used, score/best),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item < results[j].Item
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return &Result{
		Items:      results,
		Source:     SourceFusion,
		Generation: gen,
		Degraded:   degraded,
		QueryError: qerr,
	}, nil
}

// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package recommend

import (
	"context"
	"math"
	"sort"
)

// unitTolerance is the allowed deviation from norm 1 for stored vectors.
const unitTolerance = 1e-6

// Dot returns the dot product of a and b. Both must have the same length.
func Dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the Euclidean norm of v.
func Norm(v []float64) float64 {
	return math.Sqrt(Dot(v, v))
}

// Normalize returns a unit-length copy of v. It reports false for a zero
// or non-finite vector.
func Normalize(v []float64) ([]float64, bool) {
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, false
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out, true
}

// IsUnit reports whether v has norm 1 within tolerance.
func IsUnit(v []float64) bool {
	return math.Abs(Norm(v)-1) <= unitTolerance
}

// Centroid returns the normalized arithmetic mean of vectors. All vectors
// must share a dimension. It reports false when the mean is zero.
func Centroid(vectors [][]float64) ([]float64, bool) {
	if len(vectors) == 0 {
		return nil, false
	}
	mean := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i, x := range v {
			mean[i] += x
		}
	}
	inv := 1 / float64(len(vectors))
	for i := range mean {
		mean[i] *= inv
	}
	return Normalize(mean)
}

// Nearest scores every candidate against query by dot product and returns
// at most k results by descending score. Equal scores are ordered by
// ascending item id. Candidates in exclude, and candidates whose dimension
// differs from the query, are skipped.
func Nearest(query []float64, candidates map[string]*EmbeddingVector, k int, exclude map[string]struct{}) []SimilarityResult {
	if k <= 0 || len(query) == 0 {
		return []SimilarityResult{}
	}

	scored := make([]SimilarityResult, 0, len(candidates))
	for id, cand := range candidates {
		if _, skip := exclude[id]; skip {
			continue
		}
		if cand == nil || len(cand.Values) != len(query) {
			continue
		}
		scored = append(scored, SimilarityResult{
			Item:  id,
			Score: clampScore(Dot(query, cand.Values)),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Item < scored[j].Item
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// clampScore keeps rounding noise on unit vectors inside [-1, 1].
func clampScore(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return s
	}
}

// SimilarityEngine runs nearest-neighbour queries against the vectors of
// the current snapshot.
type SimilarityEngine struct {
	reader SnapshotReader
}

// NewSimilarityEngine creates an engine reading from reader.
func NewSimilarityEngine(reader SnapshotReader) *SimilarityEngine {
	return &SimilarityEngine{reader: reader}
}

// Query ranks the variant's current vectors against query.
func (e *SimilarityEngine) Query(ctx context.Context, query []float64, variant Variant, k int, exclude map[string]struct{}) ([]SimilarityResult, int64, error) {
	snap, err := e.reader.Vectors(ctx, variant)
	if err != nil {
		return nil, 0, err
	}
	return Nearest(query, snap.Vectors, k, exclude), snap.Generation, nil
}

// BasketNearest ranks candidates against the centroid of the basket
// members that have a vector. Members are excluded from the results.
// It returns ErrNoEmbedding when no member has a vector.
func (e *SimilarityEngine) BasketNearest(ctx context.Context, items []string, variant Variant, k int) ([]SimilarityResult, int64, error) {
	snap, err := e.reader.Vectors(ctx, variant)
	if err != nil {
		return nil, 0, err
	}

	exclude := make(map[string]struct{}, len(items))
	members := make([][]float64, 0, len(items))
	for _, id := range items {
		if _, dup := exclude[id]; dup {
			continue
		}
		exclude[id] = struct{}{}
		if vec, ok := snap.Vectors[id]; ok && vec != nil && len(vec.Values) > 0 {
			if len(members) > 0 && len(vec.Values) != len(members[0]) {
				continue
			}
			members = append(members, vec.Values)
		}
	}

	centroid, ok := Centroid(members)
	if !ok {
		return nil, snap.Generation, ErrNoEmbedding
	}
	return Nearest(centroid, snap.Vectors, k, exclude), snap.Generation, nil
}

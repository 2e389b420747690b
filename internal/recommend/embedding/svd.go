// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package embedding

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/metrics"
	"github.com/tomtom215/basketrec/internal/recommend"
	"github.com/tomtom215/basketrec/internal/recommend/cooccur"
)

// SVDConfig configures the co-occurrence factorization.
type SVDConfig struct {
	// Rank is the number of components kept, and the vector dimension.
	Rank int

	// Seed fixes the random projection. Same matrix, rank and seed give
	// identical vectors.
	Seed int64

	// Oversample is the number of extra projection columns beyond Rank.
	Oversample int

	// PowerIterations sharpens the subspace on slowly decaying spectra.
	PowerIterations int

	// Workers splits matrix products by rows. <= 0 uses GOMAXPROCS.
	Workers int
}

// DefaultSVDConfig returns the default factorization settings.
func DefaultSVDConfig() SVDConfig {
	return SVDConfig{
		Rank:            128,
		Seed:            42,
		Oversample:      10,
		PowerIterations: 5,
	}
}

// SVDEncoder embeds items by truncated SVD of the log1p co-occurrence
// matrix. Row i of U·Σ becomes the vector of vocabulary item i.
//
// The decomposition uses randomized subspace iteration: a seeded Gaussian
// projection, power iterations with reorthogonalization, and a Jacobi
// eigen-solve of the small projected problem.
type SVDEncoder struct {
	cfg    SVDConfig
	logger zerolog.Logger
}

// NewSVDEncoder creates an encoder.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewSVDEncoder(cfg SVDConfig, logger zerolog.Logger) *SVDEncoder {
	if cfg.Oversample < 0 {
		cfg.Oversample = 0
	}
	if cfg.PowerIterations < 0 {
		cfg.PowerIterations = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &SVDEncoder{
		cfg:    cfg,
		logger: logger.With().Str("component", "svd").Logger(),
	}
}

// Variant implements Encoder.
func (e *SVDEncoder) Variant() recommend.Variant {
	return recommend.VariantCooccurrence
}

// Encode implements Encoder using the configured rank.
func (e *SVDEncoder) Encode(ctx context.Context, in *Input) (*Embeddings, error) {
	start := time.Now()
	fit, err := e.fit(ctx, in.Matrix, e.cfg.Rank)
	if err != nil {
		return nil, err
	}

	metrics.RecordEmbeddings(e.Variant().String(), len(fit.vectors))
	e.logger.Info().
		Int("items", len(fit.vectors)).
		Int("vocabulary", in.Matrix.Len()).
		Int("rank", e.cfg.Rank).
		Int("omitted", fit.omitted).
		Float64("explained_variance", fit.explained).
		Dur("duration", time.Since(start)).
		Msg("SVD embeddings generated")

	return &Embeddings{
		Variant:   e.Variant(),
		Dimension: e.cfg.Rank,
		Vectors:   fit.vectors,
		Metadata: map[string]string{
			"approach":           "svd",
			"model":              "randomized_svd",
			"rank":               strconv.Itoa(e.cfg.Rank),
			"seed":               strconv.FormatInt(e.cfg.Seed, 10),
			"explained_variance": strconv.FormatFloat(fit.explained, 'f', 4, 64),
		},
	}, nil
}

// Fit factorizes m at the given rank and returns one unit vector per
// vocabulary item. Items whose factor row is zero are left out.
func (e *SVDEncoder) Fit(ctx context.Context, m *cooccur.Matrix, rank int) (map[string][]float64, error) {
	fit, err := e.fit(ctx, m, rank)
	if err != nil {
		return nil, err
	}
	return fit.vectors, nil
}

// zeroRowTolerance is the norm below which a factor row counts as zero.
const zeroRowTolerance = 1e-9

type svdFit struct {
	vectors   map[string][]float64
	sigma     []float64
	explained float64
	omitted   int
}

func (e *SVDEncoder) fit(ctx context.Context, m *cooccur.Matrix, rank int) (*svdFit, error) {
	variant := e.Variant()
	n := 0
	if m != nil {
		n = m.Len()
	}
	switch {
	case n == 0:
		return nil, recommend.NewModelError(variant, "fit", recommend.ErrEmptyVocabulary)
	case rank <= 0:
		return nil, recommend.NewModelError(variant, "fit", fmt.Errorf("%w: %d", recommend.ErrInvalidRank, rank))
	case rank > n:
		return nil, recommend.NewModelError(variant, "fit", fmt.Errorf("%w: rank %d, %d items", recommend.ErrRankTooLarge, rank, n))
	}

	a := m.Dense()
	width := rank + e.cfg.Oversample
	if width > n {
		width = n
	}

	rng := rand.New(rand.NewPCG(uint64(e.cfg.Seed), 0x9e3779b97f4a7c15)) //nolint:gosec // deterministic projection, not security sensitive
	omega := newDense(n, width)
	for i := range omega {
		for j := range omega[i] {
			omega[i][j] = rng.NormFloat64()
		}
	}

	q := mulParallel(a, omega, e.cfg.Workers)
	orthonormalize(q)
	// a is symmetric, so aᵀ·q is a·q.
	for it := 0; it < e.cfg.PowerIterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, recommend.NewModelError(variant, "fit", err)
		}
		z := mulParallel(a, q, e.cfg.Workers)
		orthonormalize(z)
		q = mulParallel(a, z, e.cfg.Workers)
		orthonormalize(q)
	}
	if err := ctx.Err(); err != nil {
		return nil, recommend.NewModelError(variant, "fit", err)
	}

	// B = qᵀ·a, so B·Bᵀ = (a·q)ᵀ·(a·q).
	aq := mulParallel(a, q, e.cfg.Workers)
	vals, w := jacobiEigen(gram(aq))

	sigma := make([]float64, rank)
	var kept float64
	for j := 0; j < rank; j++ {
		if vals[j] > 0 {
			sigma[j] = math.Sqrt(vals[j])
			kept += vals[j]
		}
	}

	// U = q·W, truncated to rank columns.
	u := newDense(n, rank)
	for i := 0; i < n; i++ {
		for j := 0; j < rank; j++ {
			var s float64
			for k := 0; k < width; k++ {
				s += q[i][k] * w[k][j]
			}
			u[i][j] = s
		}
	}
	fixSigns(u)

	var total float64
	for i := range a {
		for _, x := range a[i] {
			total += x * x
		}
	}

	vocab := m.Vocabulary()
	out := &svdFit{
		vectors: make(map[string][]float64, n),
		sigma:   sigma,
	}
	if total > 0 {
		out.explained = kept / total
	}
	for i, item := range vocab {
		row := make([]float64, rank)
		for j := range row {
			row[j] = u[i][j] * sigma[j]
		}
		if recommend.Norm(row) < zeroRowTolerance {
			out.omitted++
			continue
		}
		unit, ok := recommend.Normalize(row)
		if !ok {
			out.omitted++
			continue
		}
		out.vectors[item] = unit
	}
	return out, nil
}

// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package embedding

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/basketrec/internal/metrics"
	"github.com/tomtom215/basketrec/internal/recommend"
)

// Backend serves a pretrained sentence model.
//
// Embed must embed each text independently of the others in the call, so
// that batching never changes a vector.
type Backend interface {
	Name() string

	// Load prepares the model. It fails when the backend cannot serve it.
	Load(ctx context.Context, spec ModelSpec) error

	// Embed returns one vector per text, in order.
	Embed(ctx context.Context, spec ModelSpec, texts []string) ([][]float64, error)
}

// TextConfig configures text encoding.
type TextConfig struct {
	// BatchSize is the number of texts per backend call.
	BatchSize int

	// Workers is the number of batches in flight.
	Workers int
}

// DefaultTextConfig returns the default text encoding settings.
func DefaultTextConfig() TextConfig {
	return TextConfig{BatchSize: 32, Workers: 4}
}

// TextEncoder embeds item names with a pretrained model.
type TextEncoder struct {
	backend Backend
	cfg     TextConfig
	logger  zerolog.Logger
}

// NewTextEncoder creates a text encoder over backend.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTextEncoder(backend Backend, cfg TextConfig, logger zerolog.Logger) *TextEncoder {
	def := DefaultTextConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &TextEncoder{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With().Str("component", "text_encoder").Str("backend", backend.Name()).Logger(),
	}
}

// ForModel returns an Encoder for one registry model.
func (e *TextEncoder) ForModel(key string) (Encoder, error) {
	if _, err := LookupModel(key); err != nil {
		return nil, err
	}
	return &modelEncoder{text: e, key: key}, nil
}

// EncodeModel embeds items with the model registered under modelKey.
// Items are de-duplicated and sorted before batching.
func (e *TextEncoder) EncodeModel(ctx context.Context, items []string, modelKey string) (*Embeddings, error) {
	spec, err := LookupModel(modelKey)
	if err != nil {
		return nil, err
	}
	variant := recommend.TextVariant(spec.Key)
	start := time.Now()

	if err := e.backend.Load(ctx, spec); err != nil {
		return nil, recommend.NewModelError(variant, "load", fmt.Errorf("%w: %w", recommend.ErrBackendUnavailable, err))
	}

	names := uniqueSorted(items)
	texts := make([]string, len(names))
	for i, name := range names {
		texts[i] = Preprocess(name)
	}

	vectors := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for lo := 0; lo < len(texts); lo += e.cfg.BatchSize {
		hi := lo + e.cfg.BatchSize
		if hi > len(texts) {
			hi = len(texts)
		}
		g.Go(func() error {
			return e.embedBatch(gctx, spec, variant, texts[lo:hi], vectors[lo:hi])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]float64, len(names))
	for i, name := range names {
		out[name] = vectors[i]
	}

	metrics.RecordEmbeddings(variant.String(), len(out))
	e.logger.Info().
		Str("model", spec.Name).
		Int("items", len(out)).
		Int("batch_size", e.cfg.BatchSize).
		Dur("duration", time.Since(start)).
		Msg("Text embeddings generated")

	return &Embeddings{
		Variant:   variant,
		Dimension: spec.Dimension,
		Vectors:   out,
		Metadata: map[string]string{
			"approach":   "huggingface",
			"model":      spec.Name,
			"model_key":  spec.Key,
			"backend":    e.backend.Name(),
			"max_tokens": strconv.Itoa(spec.MaxTokens),
		},
	}, nil
}

func (e *TextEncoder) embedBatch(ctx context.Context, spec ModelSpec, variant recommend.Variant, texts []string, dst [][]float64) error {
	got, err := e.backend.Embed(ctx, spec, texts)
	if err != nil {
		return recommend.NewModelError(variant, "embed", fmt.Errorf("%w: %w", recommend.ErrBackendUnavailable, err))
	}
	if len(got) != len(texts) {
		return recommend.NewModelError(variant, "embed", fmt.Errorf("backend returned %d vectors for %d texts", len(got), len(texts)))
	}
	for i, v := range got {
		if len(v) != spec.Dimension {
			return recommend.NewModelError(variant, "embed",
				fmt.Errorf("%w: %q has %d values, model %s has %d", recommend.ErrDimensionMismatch, texts[i], len(v), spec.Key, spec.Dimension))
		}
		unit, ok := recommend.Normalize(v)
		if !ok {
			return recommend.NewModelError(variant, "embed", fmt.Errorf("zero vector for %q", texts[i]))
		}
		dst[i] = unit
	}
	return nil
}

func uniqueSorted(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

type modelEncoder struct {
	text *TextEncoder
	key  string
}

func (m *modelEncoder) Variant() recommend.Variant {
	return recommend.TextVariant(m.key)
}

func (m *modelEncoder) Encode(ctx context.Context, in *Input) (*Embeddings, error) {
	return m.text.EncodeModel(ctx, in.Items, m.key)
}

// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package embedding

import (
	"context"
	"hash/fnv"
	"strings"
)

// HashingBackend embeds text locally by signed feature hashing of words
// and character trigrams. It needs no model files and is deterministic,
// which makes it the default for offline runs and tests. Names that share
// words or spellings land near each other.
type HashingBackend struct{}

// NewHashingBackend creates a hashing backend.
func NewHashingBackend() *HashingBackend {
	return &HashingBackend{}
}

// Name implements Backend.
func (h *HashingBackend) Name() string { return "hashing" }

// Load implements Backend.
func (h *HashingBackend) Load(_ context.Context, _ ModelSpec) error {
	return nil
}

// Embed implements Backend.
func (h *HashingBackend) Embed(ctx context.Context, spec ModelSpec, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = hashText(spec, text)
	}
	return out, nil
}

const trigramWeight = 0.5

func hashText(spec ModelSpec, text string) []float64 {
	v := make([]float64, spec.Dimension)
	tokens := strings.Fields(strings.ToLower(text))
	if spec.MaxTokens > 0 && len(tokens) > spec.MaxTokens {
		tokens = tokens[:spec.MaxTokens]
	}
	for _, w := range tokens {
		addFeature(v, spec.Key, "w:"+w, 1)
		padded := []rune(" " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			addFeature(v, spec.Key, "t:"+string(padded[i:i+3]), trigramWeight)
		}
	}
	return v
}

// addFeature adds weight to the bucket of feature. The high hash bit
// chooses the sign so collisions cancel on average.
func addFeature(v []float64, model, feature string, weight float64) {
	if len(v) == 0 {
		return
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(model))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(len(v)))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package embedding produces item vectors for each embedding variant.
//
// Two encoders exist. SVDEncoder factorizes the log1p co-occurrence matrix
// and places items that are bought together close to each other.
// TextEncoder embeds item names with a pretrained sentence model served by
// a Backend, so it also covers items that were never co-purchased.
//
// Every encoder either returns a vector for each item it was given or a
// *recommend.ModelError. Partial output is never returned.
package embedding

import (
	"context"

	"github.com/tomtom215/basketrec/internal/recommend"
	"github.com/tomtom215/basketrec/internal/recommend/cooccur"
)

// Input is what a batch run hands to every encoder.
type Input struct {
	// Items is every accepted item name, in any order.
	Items []string

	// Matrix is the co-occurrence matrix for the run.
	Matrix *cooccur.Matrix
}

// Embeddings is the output of one encoder for one run. Vectors are unit
// length and all have Dimension entries.
type Embeddings struct {
	Variant   recommend.Variant
	Dimension int
	Vectors   map[string][]float64

	// Metadata is copied onto every stored record.
	Metadata map[string]string
}

// Encoder produces the vectors of one variant.
type Encoder interface {
	Variant() recommend.Variant
	Encode(ctx context.Context, in *Input) (*Embeddings, error)
}

// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package vectorstore

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/basketrec/internal/recommend"
)

// Entry is one vector to publish.
type Entry struct {
	Values   []float64
	Metadata map[string]string
}

// record is the stored JSON form of a vector.
type record struct {
	Embedding   []float64         `json:"embedding"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Dimension   int               `json:"dimension"`
	Normalized  bool              `json:"normalized"`
	LastUpdated time.Time         `json:"last_updated"`
}

var errEmptyVector = errors.New("empty vector")

func encodeRecord(e Entry, now time.Time) ([]byte, error) {
	if len(e.Values) == 0 {
		return nil, errEmptyVector
	}
	for i, x := range e.Values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("value %d is not finite", i)
		}
	}
	return json.Marshal(record{
		Embedding:   e.Values,
		Metadata:    e.Metadata,
		Dimension:   len(e.Values),
		Normalized:  recommend.IsUnit(e.Values),
		LastUpdated: now.UTC(),
	})
}

// decodeRecord parses and validates a stored record. Every failure wraps
// recommend.ErrMalformedRecord. Records not flagged as normalized are
// normalized here.
func decodeRecord(item string, variant recommend.Variant, data []byte) (*recommend.EmbeddingVector, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", recommend.ErrMalformedRecord, item, err)
	}
	switch {
	case len(rec.Embedding) == 0:
		return nil, fmt.Errorf("%w: %s: empty embedding", recommend.ErrMalformedRecord, item)
	case rec.Dimension != len(rec.Embedding):
		return nil, fmt.Errorf("%w: %s: dimension %d, embedding has %d values",
			recommend.ErrMalformedRecord, item, rec.Dimension, len(rec.Embedding))
	}
	for _, x := range rec.Embedding {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %s: non-finite value", recommend.ErrMalformedRecord, item)
		}
	}

	values := rec.Embedding
	if rec.Normalized {
		if !recommend.IsUnit(values) {
			return nil, fmt.Errorf("%w: %s: flagged normalized with norm %.6f",
				recommend.ErrMalformedRecord, item, recommend.Norm(values))
		}
	} else {
		unit, ok := recommend.Normalize(values)
		if !ok {
			return nil, fmt.Errorf("%w: %s: zero vector", recommend.ErrMalformedRecord, item)
		}
		values = unit
	}

	return &recommend.EmbeddingVector{
		Item:        item,
		Variant:     variant,
		Dimension:   rec.Dimension,
		Values:      values,
		Normalized:  true,
		LastUpdated: rec.LastUpdated,
		Metadata:    rec.Metadata,
	}, nil
}

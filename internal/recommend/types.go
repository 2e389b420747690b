// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package recommend

import (
	"context"
	"strings"
	"time"
)

// Variant names an embedding derivation strategy. Each variant owns its
// own dimension and storage namespace, and vectors of different variants
// are never compared.
type Variant string

const (
	// VariantCooccurrence is the SVD factorization of the co-occurrence matrix.
	VariantCooccurrence Variant = "cooccurrence"

	textVariantPrefix = "huggingface:"
)

// TextVariant returns the variant for a pretrained text model key.
func TextVariant(modelKey string) Variant {
	return Variant(textVariantPrefix + modelKey)
}

// IsText reports whether v is a pretrained text variant.
func (v Variant) IsText() bool {
	return strings.HasPrefix(string(v), textVariantPrefix) && len(v) > len(textVariantPrefix)
}

// Model returns the text model key, or "" for non-text variants.
func (v Variant) Model() string {
	if !v.IsText() {
		return ""
	}
	return string(v)[len(textVariantPrefix):]
}

// KeyPrefix returns the storage key prefix that partitions v's records.
func (v Variant) KeyPrefix() string {
	switch {
	case v == VariantCooccurrence:
		return "item:"
	case v.IsText():
		return "hf:" + v.Model() + ":"
	default:
		return string(v) + ":"
	}
}

// Valid reports whether v has a recognised shape.
func (v Variant) Valid() bool {
	return v == VariantCooccurrence || v.IsText()
}

func (v Variant) String() string { return string(v) }

// Order is one order and its items in row order. Duplicates are kept.
type Order struct {
	ID    string   `json:"id"`
	Items []string `json:"items"`
}

// OrderIndex maps order ids to their items, preserving first-seen order.
type OrderIndex struct {
	orders []Order
	pos    map[string]int
}

// NewOrderIndex creates an empty index.
func NewOrderIndex() *OrderIndex {
	return &OrderIndex{pos: make(map[string]int)}
}

// Add appends item to the order, creating the order on first sight.
func (x *OrderIndex) Add(orderID, item string) {
	i, ok := x.pos[orderID]
	if !ok {
		i = len(x.orders)
		x.pos[orderID] = i
		x.orders = append(x.orders, Order{ID: orderID})
	}
	x.orders[i].Items = append(x.orders[i].Items, item)
}

// Orders returns the orders in first-seen order. Callers must not modify it.
func (x *OrderIndex) Orders() []Order {
	return x.orders
}

// Get returns the order with the given id.
func (x *OrderIndex) Get(orderID string) (Order, bool) {
	i, ok := x.pos[orderID]
	if !ok {
		return Order{}, false
	}
	return x.orders[i], true
}

// Len returns the number of orders.
func (x *OrderIndex) Len() int {
	return len(x.orders)
}

// EmbeddingVector is one item's vector for one variant.
type EmbeddingVector struct {
	Item        string            `json:"item"`
	Variant     Variant           `json:"variant"`
	Dimension   int               `json:"dimension"`
	Values      []float64         `json:"values"`
	Normalized  bool              `json:"normalized"`
	LastUpdated time.Time         `json:"last_updated"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// VariantSnapshot is every vector of one variant at one generation.
type VariantSnapshot struct {
	Variant    Variant
	Generation int64
	Dimension  int
	Vectors    map[string]*EmbeddingVector

	// Skipped counts records dropped as malformed during the scan.
	Skipped int
}

// SimilarityResult is one ranked recommendation.
type SimilarityResult struct {
	Item           string  `json:"item"`
	Score          float64 `json:"score"`
	Reason         string  `json:"reason"`
	PopularityRank int     `json:"popularity_rank,omitempty"`
}

// PopularItem is one entry of the popularity snapshot.
type PopularItem struct {
	Item      string `json:"item"`
	Frequency int    `json:"frequency"`
}

// Partner is one entry of an item's co-occurrence list.
type Partner struct {
	Item  string `json:"item"`
	Count int    `json:"cooccurrence_count"`
}

// VariantInfo describes one variant within a catalog snapshot.
type VariantInfo struct {
	Dimension  int   `json:"dimension"`
	Count      int   `json:"count"`
	Generation int64 `json:"generation"`
}

// CatalogMeta describes a published batch snapshot. Maxima are computed
// when the batch is built and stored here.
type CatalogMeta struct {
	Generation      int64                   `json:"generation"`
	RunID           string                  `json:"run_id"`
	BuiltAt         time.Time               `json:"built_at"`
	MaxFrequency    int                     `json:"max_frequency"`
	MaxCooccurrence int                     `json:"max_cooccurrence"`
	TotalOrders     int                     `json:"total_orders"`
	TotalItems      int                     `json:"total_items"`
	TotalPairs      int                     `json:"total_pairs"`
	AvgOrderSize    float64                 `json:"avg_order_size"`
	MaxOrderSize    int                     `json:"max_order_size"`
	Variants        map[Variant]VariantInfo `json:"variants"`
}

// Source says how a Result was produced.
type Source string

const (
	SourceSimilarity   Source = "similarity"
	SourcePopularity   Source = "popularity"
	SourceFallback     Source = "popularity_fallback"
	SourceCooccurrence Source = "cooccurrence"
	SourceFusion       Source = "fusion"
	SourceNone         Source = "none"
)

// Result is the outcome of an orchestrator query.
type Result struct {
	Items      []SimilarityResult `json:"items"`
	Source     Source             `json:"source"`
	Variant    Variant            `json:"variant,omitempty"`
	Generation int64              `json:"generation"`

	// Degraded is set when similarity data could not be read and the
	// result was substituted from the popularity snapshot.
	Degraded bool `json:"degraded"`

	// QueryError explains an empty or fallback result caused by the query
	// itself (unknown item or variant, empty basket).
	QueryError *QueryError `json:"query_error,omitempty"`
}

// SnapshotReader is the read side of the published snapshot.
type SnapshotReader interface {
	// Vector returns one item's vector. ErrNoEmbedding when absent.
	Vector(ctx context.Context, variant Variant, item string) (*EmbeddingVector, error)

	// Vectors returns every vector of the variant's current generation.
	// A variant with nothing published yields an empty snapshot.
	Vectors(ctx context.Context, variant Variant) (*VariantSnapshot, error)

	// Meta returns the current catalog metadata. ErrNotFound when no
	// catalog has been published.
	Meta(ctx context.Context) (*CatalogMeta, error)

	// Popular returns the popularity snapshot, most frequent first, and
	// its generation. An empty list when nothing is published.
	Popular(ctx context.Context) ([]PopularItem, int64, error)

	// Partners returns an item's top co-occurring partners.
	Partners(ctx context.Context, item string) ([]Partner, error)

	// OrderItems returns an order's items. ErrNotFound when unknown.
	OrderItems(ctx context.Context, orderID string) ([]string, error)
}

// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package recommend

import (
	"fmt"
)

// Config contains the serving and snapshot parameters of the recommender.
type Config struct {
	// Limits bounds query sizes.
	Limits LimitsConfig `json:"limits" koanf:"limits"`

	// Variants lists the variants the orchestrator will answer for.
	Variants VariantsConfig `json:"variants" koanf:"variants"`

	// Catalog controls what the batch job stores besides embeddings.
	Catalog CatalogConfig `json:"catalog" koanf:"catalog"`

	// Fusion controls the multi-variant ranking.
	Fusion FusionConfig `json:"fusion" koanf:"fusion"`
}

// LimitsConfig bounds query sizes.
type LimitsConfig struct {
	// DefaultLimit is used when a caller passes limit <= 0.
	// Default: 10.
	DefaultLimit int `json:"default_limit" koanf:"default_limit"`

	// MaxLimit caps every query.
	// Default: 50.
	MaxLimit int `json:"max_limit" koanf:"max_limit"`

	// MaxBasketItems caps the basket size.
	// Default: 100.
	MaxBasketItems int `json:"max_basket_items" koanf:"max_basket_items"`
}

// VariantsConfig lists enabled variants.
type VariantsConfig struct {
	// Enabled variants. Queries for any other variant return an empty
	// result with an unknown_variant QueryError.
	Enabled []Variant `json:"enabled" koanf:"enabled"`

	// Default is used when a caller passes an empty variant.
	Default Variant `json:"default" koanf:"default"`
}

// CatalogConfig controls the non-vector records of a snapshot.
type CatalogConfig struct {
	// PopularTop is the length of the popularity snapshot. Basket fallbacks
	// read up to max_limit + max_basket_items entries from it, so it must be
	// at least that long.
	// Default: 150.
	PopularTop int `json:"popular_top" koanf:"popular_top"`

	// TopPartners is the number of co-occurrence partners kept per item.
	// Default: 20.
	TopPartners int `json:"top_partners" koanf:"top_partners"`

	// MaxOrders caps the orders stored for order lookups. 0 stores none.
	// Default: 100000.
	MaxOrders int `json:"max_orders" koanf:"max_orders"`
}

// FusionConfig controls reciprocal rank fusion across variants.
type FusionConfig struct {
	// K is the RRF damping constant.
	// Default: 60.
	K float64 `json:"k" koanf:"k"`

	// Depth is how many candidates each variant contributes.
	// Default: 50.
	Depth int `json:"depth" koanf:"depth"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Limits: LimitsConfig{
			DefaultLimit:   10,
			MaxLimit:       50,
			MaxBasketItems: 100,
		},
		Variants: VariantsConfig{
			Enabled: []Variant{VariantCooccurrence, TextVariant("all-minilm")},
			Default: VariantCooccurrence,
		},
		Catalog: CatalogConfig{
			PopularTop:  150,
			TopPartners: 20,
			MaxOrders:   100000,
		},
		Fusion: FusionConfig{
			K:     60,
			Depth: 50,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Limits.DefaultLimit <= 0 {
		return fmt.Errorf("limits.default_limit must be positive, got %d", c.Limits.DefaultLimit)
	}
	if c.Limits.MaxLimit < c.Limits.DefaultLimit {
		return fmt.Errorf("limits.max_limit (%d) must be >= default_limit (%d)", c.Limits.MaxLimit, c.Limits.DefaultLimit)
	}
	if c.Limits.MaxBasketItems <= 0 {
		return fmt.Errorf("limits.max_basket_items must be positive, got %d", c.Limits.MaxBasketItems)
	}

	if len(c.Variants.Enabled) == 0 {
		return fmt.Errorf("variants.enabled must not be empty")
	}
	defaultEnabled := false
	for _, v := range c.Variants.Enabled {
		if !v.Valid() {
			return fmt.Errorf("variants.enabled: invalid variant %q", v)
		}
		if v == c.Variants.Default {
			defaultEnabled = true
		}
	}
	if !defaultEnabled {
		return fmt.Errorf("variants.default %q is not enabled", c.Variants.Default)
	}

	if depth := c.Limits.MaxLimit + c.Limits.MaxBasketItems; c.Catalog.PopularTop < depth {
		return fmt.Errorf("catalog.popular_top (%d) must be >= max_limit + max_basket_items (%d)", c.Catalog.PopularTop, depth)
	}
	if c.Catalog.TopPartners <= 0 {
		return fmt.Errorf("catalog.top_partners must be positive, got %d", c.Catalog.TopPartners)
	}
	if c.Catalog.MaxOrders < 0 {
		return fmt.Errorf("catalog.max_orders must be non-negative, got %d", c.Catalog.MaxOrders)
	}

	if c.Fusion.K <= 0 {
		return fmt.Errorf("fusion.k must be positive, got %f", c.Fusion.K)
	}
	if c.Fusion.Depth <= 0 {
		return fmt.Errorf("fusion.depth must be positive, got %d", c.Fusion.Depth)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Variants.Enabled = append([]Variant(nil), c.Variants.Enabled...)
	return &clone
}

// VariantEnabled reports whether v is in the enabled list.
func (c *Config) VariantEnabled(v Variant) bool {
	for _, e := range c.Variants.Enabled {
		if e == v {
			return true
		}
	}
	return false
}

// ClampLimit applies the default and maximum to a caller-supplied limit.
func (c *Config) ClampLimit(limit int) int {
	if limit <= 0 {
		return c.Limits.DefaultLimit
	}
	if limit > c.Limits.MaxLimit {
		return c.Limits.MaxLimit
	}
	return limit
}

// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/recommend"
)

func TestCatalogRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(backend, DefaultConfig(), zerolog.Nop())

			if _, err := s.Meta(ctx); !errors.Is(err, recommend.ErrNotFound) {
				t.Fatalf("Meta on empty store err = %v", err)
			}
			popular, gen, err := s.Popular(ctx)
			if err != nil || len(popular) != 0 || gen != 0 {
				t.Fatalf("Popular on empty store = %v, %d, %v", popular, gen, err)
			}

			cat := &Catalog{
				Meta: &recommend.CatalogMeta{RunID: "run-1", MaxFrequency: 3, MaxCooccurrence: 2, TotalOrders: 3},
				Popular: []recommend.PopularItem{
					{Item: "A", Frequency: 3}, {Item: "B", Frequency: 2}, {Item: "C", Frequency: 2},
				},
				Partners: map[string][]recommend.Partner{
					"A": {{Item: "B", Count: 2}, {Item: "C", Count: 2}},
				},
				Orders: map[string][]string{"o1": {"A", "B"}},
			}
			gen, err = s.PublishCatalog(ctx, cat)
			if err != nil {
				t.Fatalf("PublishCatalog: %v", err)
			}

			meta, err := s.Meta(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if meta.Generation != gen || meta.RunID != "run-1" || meta.MaxCooccurrence != 2 {
				t.Errorf("meta = %+v", meta)
			}

			popular, pgen, err := s.Popular(ctx)
			if err != nil || pgen != gen || len(popular) != 3 || popular[0].Item != "A" {
				t.Errorf("Popular = %v, %d, %v", popular, pgen, err)
			}

			partners, err := s.Partners(ctx, "A")
			if err != nil || len(partners) != 2 || partners[0].Count != 2 {
				t.Errorf("Partners = %v, %v", partners, err)
			}
			if _, err := s.Partners(ctx, "Z"); !errors.Is(err, recommend.ErrNotFound) {
				t.Errorf("Partners(Z) err = %v", err)
			}

			items, err := s.OrderItems(ctx, "o1")
			if err != nil || len(items) != 2 {
				t.Errorf("OrderItems = %v, %v", items, err)
			}
			if _, err := s.OrderItems(ctx, "o9"); !errors.Is(err, recommend.ErrNotFound) {
				t.Errorf("OrderItems(o9) err = %v", err)
			}

			// A new generation replaces the cached one.
			cat.Popular = []recommend.PopularItem{{Item: "D", Frequency: 9}}
			if _, err := s.PublishCatalog(ctx, cat); err != nil {
				t.Fatal(err)
			}
			popular, _, _ = s.Popular(ctx)
			if len(popular) != 1 || popular[0].Item != "D" {
				t.Errorf("Popular after republish = %v", popular)
			}
		})
	}
}

func TestPublishCatalogRequiresMeta(t *testing.T) {
	s := New(NewMemoryBackend(), DefaultConfig(), zerolog.Nop())
	if _, err := s.PublishCatalog(context.Background(), &Catalog{}); err == nil {
		t.Error("expected error")
	}
}

func TestStoreDrivesOrchestrator(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend(), DefaultConfig(), zerolog.Nop())

	if _, err := s.Publish(ctx, recommend.VariantCooccurrence, map[string]Entry{
		"A": {Values: unit(1, 0)},
		"B": {Values: unit(0.9, 0.1)},
		"C": {Values: unit(0, 1)},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PublishCatalog(ctx, &Catalog{
		Meta:    &recommend.CatalogMeta{MaxFrequency: 3},
		Popular: []recommend.PopularItem{{Item: "A", Frequency: 3}, {Item: "B", Frequency: 2}, {Item: "C", Frequency: 2}},
	}); err != nil {
		t.Fatal(err)
	}

	orch := recommend.NewOrchestrator(recommend.DefaultConfig(), s, zerolog.Nop())
	res, err := orch.SimilarToItem(ctx, "A", 2, recommend.VariantCooccurrence)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 2 || res.Items[0].Item != "B" || res.Items[1].Item != "C" {
		t.Errorf("SimilarToItem(A) = %+v", res.Items)
	}

	pop, err := orch.Popular(ctx, 1)
	if err != nil || len(pop.Items) != 1 || pop.Items[0].Item != "A" {
		t.Errorf("Popular(1) = %+v, %v", pop, err)
	}
}

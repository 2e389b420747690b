// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/config"
	"github.com/tomtom215/basketrec/internal/recommend"
)

const ordersCSV = `order_id,item_name
1,Bananas
1,Milk
2,Bananas
2,Bread
3,Bananas
3,Milk
3,Bread
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	dir := t.TempDir()
	cfg.Store.Backend = config.BackendMemory
	cfg.Ingest.Source = config.SourceCSV
	cfg.Ingest.Path = filepath.Join(dir, "orders.csv")
	cfg.Embedding.Rank = 2
	cfg.Batch.ArchiveDir = filepath.Join(dir, "snapshots")
	cfg.Audit.ReportPath = ""
	cfg.Audit.DuckDBPath = ""
	if err := os.WriteFile(cfg.Ingest.Path, []byte(ordersCSV), 0o600); err != nil {
		t.Fatalf("write orders: %v", err)
	}
	return cfg
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		backend string
		wantErr bool
	}{
		{"memory", config.BackendMemory, false},
		{"badger", config.BackendBadger, false},
		{"unknown", "cassandra", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Store.Backend = tt.backend
			cfg.Store.BadgerPath = filepath.Join(t.TempDir(), "badger")

			store, err := OpenStore(ctx, cfg, zerolog.Nop())
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer store.Close()
			if err := store.Ping(ctx); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
		})
	}
}

func TestSourceOpener(t *testing.T) {
	cfg := testConfig(t)
	src, err := SourceOpener(cfg)()
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	if src.Name() == "" {
		t.Error("source has no name")
	}

	cfg.Ingest.Source = "kafka"
	if _, err := SourceOpener(cfg)(); err == nil {
		t.Error("unknown source accepted")
	}
}

func TestEncoders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recommend.Variants.Enabled = []recommend.Variant{
		recommend.VariantCooccurrence,
		recommend.TextVariant("all-minilm"),
		recommend.TextVariant("paraphrase"),
	}

	encoders, err := Encoders(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Encoders() error = %v", err)
	}
	if len(encoders) != 3 {
		t.Fatalf("got %d encoders, want 3", len(encoders))
	}
	for i, want := range cfg.Recommend.Variants.Enabled {
		if got := encoders[i].Variant(); got != want {
			t.Errorf("encoder %d variant = %s, want %s", i, got, want)
		}
	}

	cfg.Recommend.Variants.Enabled = append(cfg.Recommend.Variants.Enabled, recommend.TextVariant("nope"))
	if _, err := Encoders(cfg, zerolog.Nop()); err == nil {
		t.Error("unknown text model accepted")
	}
}

func TestNewBatch_RunAndRestore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	store, err := OpenStore(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	batch, err := NewBatch(ctx, cfg, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}
	defer batch.Close()
	if batch.Audit == nil {
		t.Error("audit logger not created")
	}

	src, err := SourceOpener(cfg)()
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	res, err := batch.Job.Run(ctx, src)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Generation != 1 || res.Summary.UniqueOrders != 3 {
		t.Errorf("result = %+v", res)
	}

	restored, err := batch.Job.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.Generation != 2 {
		t.Errorf("restored generation = %d, want 2", restored.Generation)
	}

	meta, err := store.Meta(ctx)
	if err != nil {
		t.Fatalf("Meta() error = %v", err)
	}
	if meta.Generation != 2 || meta.TotalOrders != 3 {
		t.Errorf("meta = %+v", meta)
	}
}

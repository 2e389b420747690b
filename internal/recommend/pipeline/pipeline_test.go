// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/audit"
	"github.com/tomtom215/basketrec/internal/recommend"
	"github.com/tomtom215/basketrec/internal/recommend/cooccur"
	"github.com/tomtom215/basketrec/internal/recommend/embedding"
	"github.com/tomtom215/basketrec/internal/recommend/ingest"
	"github.com/tomtom215/basketrec/internal/recommend/storage"
	"github.com/tomtom215/basketrec/internal/vectorstore"
)

// abcRows gives A=3, B=2, C=2 across three orders, plus two bad rows.
func abcRows() ingest.SliceSource {
	return ingest.SliceSource{
		{Line: 2, OrderID: "1", ItemName: "A", Record: []string{"1", "A"}},
		{Line: 3, OrderID: "1", ItemName: "B", Record: []string{"1", "B"}},
		{Line: 4, OrderID: "2", ItemName: "A", Record: []string{"2", "A"}},
		{Line: 5, OrderID: "2", ItemName: "C", Record: []string{"2", "C"}},
		{Line: 6, OrderID: "3", ItemName: "A", Record: []string{"3", "A"}},
		{Line: 7, OrderID: "3", ItemName: "B", Record: []string{"3", "B"}},
		{Line: 8, OrderID: "3", ItemName: "C", Record: []string{"3", "C"}},
		{Line: 9, OrderID: "", ItemName: "D", Record: []string{"", "D"}},
		{Line: 10, OrderID: "4", ItemName: "  ", Record: []string{"4", "  "}},
	}
}

func testEncoders() []embedding.Encoder {
	svd := embedding.DefaultSVDConfig()
	svd.Rank = 2
	text := embedding.NewTextEncoder(embedding.NewHashingBackend(), embedding.DefaultTextConfig(), zerolog.Nop())
	minilm, err := text.ForModel("all-minilm")
	if err != nil {
		panic(err)
	}
	return []embedding.Encoder{embedding.NewSVDEncoder(svd, zerolog.Nop()), minilm}
}

func newTestJob(t *testing.T, store Publisher, encoders []embedding.Encoder, opts ...Option) *Job {
	t.Helper()
	cfg := DefaultConfig()
	j, err := NewJob(cfg, cooccur.NewBuilder(2, zerolog.Nop()), encoders, store, zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("NewJob() error = %v", err)
	}
	return j
}

func newStore() *vectorstore.Store {
	return vectorstore.New(vectorstore.NewMemoryBackend(), vectorstore.DefaultConfig(), zerolog.Nop())
}

// stubEncoder fails or blocks on demand.
type stubEncoder struct {
	variant recommend.Variant
	err     error
	block   chan struct{}
	started chan struct{}
}

func (s *stubEncoder) Variant() recommend.Variant { return s.variant }

func (s *stubEncoder) Encode(ctx context.Context, in *embedding.Input) (*embedding.Embeddings, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	vecs := make(map[string][]float64, len(in.Items))
	for _, item := range in.Items {
		vecs[item] = []float64{1, 0}
	}
	return &embedding.Embeddings{Variant: s.variant, Dimension: 2, Vectors: vecs}, nil
}

func TestJob_RunEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	job := newTestJob(t, store, testEncoders())

	res, err := job.Run(ctx, abcRows())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.RunID == "" || res.Generation != 1 {
		t.Errorf("RunID = %q, Generation = %d", res.RunID, res.Generation)
	}
	if res.Summary.RowsAccepted != 7 || res.Summary.RowsRejected != 2 || res.Summary.UniqueOrders != 3 {
		t.Errorf("summary = %+v", res.Summary)
	}
	if len(res.Variants) != 2 {
		t.Fatalf("published %d variants, want 2", len(res.Variants))
	}
	if v := res.Variants[recommend.VariantCooccurrence]; v.Count != 3 || v.Dimension != 2 {
		t.Errorf("cooccurrence variant = %+v", v)
	}
	if v := res.Variants[recommend.TextVariant("all-minilm")]; v.Count != 3 || v.Dimension != 384 {
		t.Errorf("text variant = %+v", v)
	}

	meta, err := store.Meta(ctx)
	if err != nil {
		t.Fatalf("Meta() error = %v", err)
	}
	if meta.MaxFrequency != 3 || meta.MaxCooccurrence != 2 || meta.TotalPairs != 3 || meta.TotalOrders != 3 {
		t.Errorf("meta = %+v", meta)
	}
	if meta.Variants[recommend.VariantCooccurrence].Generation != 1 {
		t.Errorf("meta variants = %+v", meta.Variants)
	}

	orch := recommend.NewOrchestrator(recommend.DefaultConfig(), store, zerolog.Nop())

	popular, err := orch.Popular(ctx, 1)
	if err != nil {
		t.Fatalf("Popular() error = %v", err)
	}
	if len(popular.Items) != 1 || popular.Items[0].Item != "A" {
		t.Errorf("Popular(1) = %+v, want [A]", popular.Items)
	}

	similar, err := orch.SimilarToItem(ctx, "A", 2, recommend.VariantCooccurrence)
	if err != nil {
		t.Fatalf("SimilarToItem() error = %v", err)
	}
	if similar.Source != recommend.SourceSimilarity || len(similar.Items) != 2 {
		t.Fatalf("SimilarToItem(A) = %+v", similar)
	}
	for _, it := range similar.Items {
		if it.Item == "A" {
			t.Error("SimilarToItem(A) returned A")
		}
	}

	items, err := store.OrderItems(ctx, "3")
	if err != nil || len(items) != 3 {
		t.Errorf("OrderItems(3) = %v, %v", items, err)
	}

	status := job.Status()
	if status.Running || status.Runs != 1 || status.Failures != 0 || status.LastGeneration != 1 {
		t.Errorf("status = %+v", status)
	}
}

func TestJob_EncoderFailureKeepsPreviousGeneration(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	if _, err := newTestJob(t, store, testEncoders()).Run(ctx, abcRows()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	failing := append(testEncoders(), &stubEncoder{
		variant: recommend.TextVariant("e5-small"),
		err: &recommend.ModelError{
			Variant: recommend.TextVariant("e5-small"), Op: "load", Err: recommend.ErrBackendUnavailable,
		},
	})
	job := newTestJob(t, store, failing)

	_, err := job.Run(ctx, abcRows())
	var merr *recommend.ModelError
	if !errors.As(err, &merr) {
		t.Fatalf("Run() error = %v, want ModelError", err)
	}

	for _, variant := range []recommend.Variant{recommend.VariantCooccurrence, recommend.TextVariant("all-minilm")} {
		gen, err := store.Generation(ctx, variant)
		if err != nil || gen != 1 {
			t.Errorf("%s generation = %d, %v; want 1", variant, gen, err)
		}
	}
	gen, err := store.CatalogGeneration(ctx)
	if err != nil || gen != 1 {
		t.Errorf("catalog generation = %d, %v; want 1", gen, err)
	}
	if st := job.Status(); st.Failures != 1 || st.LastError == "" {
		t.Errorf("status = %+v", st)
	}
}

func TestJob_EmptyInputFails(t *testing.T) {
	store := newStore()
	job := newTestJob(t, store, testEncoders())

	_, err := job.Run(context.Background(), ingest.SliceSource{})
	if !errors.Is(err, recommend.ErrEmptyVocabulary) {
		t.Fatalf("Run() error = %v, want ErrEmptyVocabulary", err)
	}
	if gen, _ := store.CatalogGeneration(context.Background()); gen != 0 {
		t.Errorf("catalog generation = %d, want 0", gen)
	}
}

func TestJob_RunInProgress(t *testing.T) {
	blocker := &stubEncoder{
		variant: recommend.VariantCooccurrence,
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	job := newTestJob(t, newStore(), []embedding.Encoder{blocker})

	done := make(chan error, 1)
	go func() {
		_, err := job.Run(context.Background(), abcRows())
		done <- err
	}()

	select {
	case <-blocker.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not start")
	}

	if _, err := job.Run(context.Background(), abcRows()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("concurrent Run() error = %v, want ErrRunInProgress", err)
	}
	if !job.Status().Running {
		t.Error("Status().Running = false during a run")
	}

	close(blocker.block)
	if err := <-done; err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
}

func TestNewJob_Validation(t *testing.T) {
	store := newStore()
	builder := cooccur.NewBuilder(1, zerolog.Nop())

	if _, err := NewJob(DefaultConfig(), builder, nil, store, zerolog.Nop()); err == nil {
		t.Error("NewJob() with no encoders should fail")
	}

	dup := []embedding.Encoder{
		&stubEncoder{variant: recommend.VariantCooccurrence},
		&stubEncoder{variant: recommend.VariantCooccurrence},
	}
	if _, err := NewJob(DefaultConfig(), builder, dup, store, zerolog.Nop()); err == nil {
		t.Error("NewJob() with duplicate variants should fail")
	}
}

func TestJob_ArchiveAndRestore(t *testing.T) {
	ctx := context.Background()
	archive, err := storage.NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("NewArchive() error = %v", err)
	}

	source := newStore()
	job := newTestJob(t, source, testEncoders(), WithArchive(archive))
	res, err := job.Run(ctx, abcRows())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ArchiveVersion != 1 {
		t.Errorf("ArchiveVersion = %d, want 1", res.ArchiveVersion)
	}

	target := newStore()
	restorer := newTestJob(t, target, testEncoders(), WithArchive(archive))
	restored, err := restorer.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.ArchiveVersion != 1 || len(restored.Variants) != 2 {
		t.Errorf("Restore() = %+v", restored)
	}

	for _, variant := range []recommend.Variant{recommend.VariantCooccurrence, recommend.TextVariant("all-minilm")} {
		want, err := source.Get(ctx, "B", variant)
		if err != nil {
			t.Fatalf("source Get(B, %s) error = %v", variant, err)
		}
		got, err := target.Get(ctx, "B", variant)
		if err != nil {
			t.Fatalf("target Get(B, %s) error = %v", variant, err)
		}
		if len(got.Values) != len(want.Values) {
			t.Fatalf("%s dimension = %d, want %d", variant, len(got.Values), len(want.Values))
		}
		for i := range want.Values {
			if got.Values[i] != want.Values[i] {
				t.Fatalf("%s values differ at %d", variant, i)
			}
		}
	}

	meta, err := target.Meta(ctx)
	if err != nil {
		t.Fatalf("target Meta() error = %v", err)
	}
	if meta.RunID != res.RunID || meta.MaxFrequency != 3 {
		t.Errorf("restored meta = %+v", meta)
	}
}

func TestJob_RestoreWithoutArchive(t *testing.T) {
	job := newTestJob(t, newStore(), testEncoders())
	if _, err := job.Restore(context.Background()); err == nil {
		t.Error("Restore() without an archive should fail")
	}

	archive, err := storage.NewArchive(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	job = newTestJob(t, newStore(), testEncoders(), WithArchive(archive))
	if _, err := job.Restore(context.Background()); !errors.Is(err, storage.ErrNoArchive) {
		t.Errorf("Restore() on empty archive = %v, want ErrNoArchive", err)
	}
}

func TestJob_AuditTrail(t *testing.T) {
	ctx := context.Background()
	events := audit.NewMemoryStore(1000)
	logger := audit.NewLogger(events, audit.DefaultConfig())
	t.Cleanup(func() { _ = logger.Close() })

	cfg := DefaultConfig()
	cfg.ReportPath = filepath.Join(t.TempDir(), "audit_report_{run}.json")
	job, err := NewJob(cfg, cooccur.NewBuilder(1, zerolog.Nop()), testEncoders(), newStore(), zerolog.Nop(), WithAudit(logger))
	if err != nil {
		t.Fatal(err)
	}

	res, err := job.Run(ctx, abcRows())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := logger.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	counts := map[audit.EventType]int{}
	all, err := events.Query(ctx, audit.QueryFilter{RunID: res.RunID})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range all {
		counts[e.Type]++
	}
	want := map[audit.EventType]int{
		audit.EventTypeIngestStarted:     1,
		audit.EventTypeIngestRowRejected: 2,
		audit.EventTypeIngestQuality:     1,
		audit.EventTypeBatchCooccurrence: 1,
		audit.EventTypeBatchEmbedding:    2,
		audit.EventTypeBatchPublished:    2,
		audit.EventTypeBatchCompleted:    1,
	}
	for typ, n := range want {
		if counts[typ] != n {
			t.Errorf("%s events = %d, want %d", typ, counts[typ], n)
		}
	}

	path := audit.ReportPath(cfg.ReportPath, res.RunID)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("audit report not written: %v", err)
	}
}

func TestBuildSnapshot(t *testing.T) {
	in, err := ingest.NewIngester(0, zerolog.Nop()).Ingest(context.Background(), ingest.SliceSource{
		{Line: 2, OrderID: "1", ItemName: "A"},
		{Line: 3, OrderID: "1", ItemName: "A"},
		{Line: 4, OrderID: "1", ItemName: "B"},
		{Line: 5, OrderID: "2", ItemName: "C"},
	})
	if err != nil {
		t.Fatal(err)
	}
	m, err := cooccur.NewBuilder(1, zerolog.Nop()).Build(context.Background(), in.Orders)
	if err != nil {
		t.Fatal(err)
	}

	cfg := recommend.CatalogConfig{PopularTop: 2, TopPartners: 5, MaxOrders: 1}
	snap := buildSnapshot("run", time.Unix(0, 0).UTC(), in, m, nil, cfg)

	if len(snap.Popular) != 2 || snap.Popular[0].Item != "A" {
		t.Errorf("Popular = %+v", snap.Popular)
	}
	if len(snap.Orders) != 1 || len(snap.Orders["1"]) != 2 {
		t.Errorf("Orders = %v, want order 1 with distinct items [A B]", snap.Orders)
	}
	if _, ok := snap.Partners["C"]; ok {
		t.Error("C has no partners and should be omitted")
	}
	if p := snap.Partners["A"]; len(p) != 1 || p[0].Item != "B" {
		t.Errorf("Partners[A] = %+v", p)
	}
	if snap.Meta.MaxFrequency != 2 || snap.Meta.TotalOrders != 2 {
		t.Errorf("meta = %+v", snap.Meta)
	}
}

func TestBuildSnapshotCoversBasketFallback(t *testing.T) {
	var rows ingest.SliceSource
	line := 2
	for i := 0; i < 200; i++ {
		rows = append(rows, ingest.RawRow{Line: line, OrderID: fmt.Sprintf("o%d", i/2), ItemName: fmt.Sprintf("item-%03d", i)})
		line++
	}
	in, err := ingest.NewIngester(0, zerolog.Nop()).Ingest(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	m, err := cooccur.NewBuilder(1, zerolog.Nop()).Build(context.Background(), in.Orders)
	if err != nil {
		t.Fatal(err)
	}

	cfg := recommend.DefaultConfig()
	snap := buildSnapshot("run", time.Unix(0, 0).UTC(), in, m, nil, cfg.Catalog)

	if want := cfg.Limits.MaxLimit + cfg.Limits.MaxBasketItems; len(snap.Popular) < want {
		t.Errorf("popularity snapshot has %d items, basket fallback needs %d", len(snap.Popular), want)
	}
}

// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package pipeline runs the offline batch job that turns an order export
// into a published recommendation snapshot.
//
// A run ingests the source, builds the co-occurrence matrix, runs every
// configured encoder, and only then publishes: each variant's vectors
// first, the catalog (popularity, partners, orders, maxima) last. An
// encoder failure aborts the run before anything is written, so readers
// keep serving the previous generation. Successful runs are archived so
// a store can be repopulated with Restore.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/audit"
	"github.com/tomtom215/basketrec/internal/logging"
	"github.com/tomtom215/basketrec/internal/metrics"
	"github.com/tomtom215/basketrec/internal/recommend"
	"github.com/tomtom215/basketrec/internal/recommend/cooccur"
	"github.com/tomtom215/basketrec/internal/recommend/embedding"
	"github.com/tomtom215/basketrec/internal/recommend/ingest"
	"github.com/tomtom215/basketrec/internal/recommend/storage"
	"github.com/tomtom215/basketrec/internal/vectorstore"
)

// ErrRunInProgress is returned when a run or restore is already executing.
var ErrRunInProgress = errors.New("batch run already in progress")

// Config controls a Job.
type Config struct {
	// Timeout bounds one run. Zero means no limit.
	Timeout time.Duration

	// MaxRejections caps the rejected rows kept for the audit trail.
	MaxRejections int

	// ArchiveRetain is how many archived snapshots to keep.
	ArchiveRetain int

	// ReportPath, when set, receives the JSON audit report of every run.
	// "{run}" is replaced by the run id.
	ReportPath string

	Catalog recommend.CatalogConfig
}

// DefaultConfig returns the default job settings.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Minute,
		MaxRejections: 1000,
		ArchiveRetain: 5,
		Catalog:       recommend.DefaultConfig().Catalog,
	}
}

// Publisher is the write side of the vector store.
type Publisher interface {
	Publish(ctx context.Context, variant recommend.Variant, entries map[string]vectorstore.Entry) (int64, error)
	PublishCatalog(ctx context.Context, cat *vectorstore.Catalog) (int64, error)
}

// VariantResult describes one published variant.
type VariantResult struct {
	Generation int64 `json:"generation"`
	Count      int   `json:"count"`
	Dimension  int   `json:"dimension"`
}

// RunResult is the outcome of a successful run.
type RunResult struct {
	RunID          string                              `json:"run_id"`
	Generation     int64                               `json:"generation"`
	Summary        ingest.QualitySummary               `json:"summary"`
	Variants       map[recommend.Variant]VariantResult `json:"variants"`
	ArchiveVersion int                                 `json:"archive_version,omitempty"`
	Duration       time.Duration                       `json:"duration_ns"`
}

// Status describes the most recent run.
type Status struct {
	Running        bool          `json:"running"`
	LastRunID      string        `json:"last_run_id,omitempty"`
	LastStartedAt  time.Time     `json:"last_started_at,omitempty"`
	LastFinishedAt time.Time     `json:"last_finished_at,omitempty"`
	LastDuration   time.Duration `json:"last_duration_ns"`
	LastError      string        `json:"last_error,omitempty"`
	LastGeneration int64         `json:"last_generation"`
	Runs           int           `json:"runs"`
	Failures       int           `json:"failures"`
}

// Job runs batch builds. Only one run or restore executes at a time.
type Job struct {
	cfg      Config
	ingester *ingest.Ingester
	builder  *cooccur.Builder
	encoders []embedding.Encoder
	store    Publisher
	archive  *storage.Archive
	audit    *audit.Logger
	logger   zerolog.Logger
	now      func() time.Time

	runMu sync.Mutex

	statusMu sync.RWMutex
	status   Status
}

// Option configures optional Job collaborators.
type Option func(*Job)

// WithArchive saves every successful run to a.
func WithArchive(a *storage.Archive) Option {
	return func(j *Job) { j.archive = a }
}

// WithAudit records run events to l.
func WithAudit(l *audit.Logger) Option {
	return func(j *Job) { j.audit = l }
}

// NewJob creates a job. At least one encoder is required.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewJob(cfg Config, builder *cooccur.Builder, encoders []embedding.Encoder, store Publisher, logger zerolog.Logger, opts ...Option) (*Job, error) {
	if len(encoders) == 0 {
		return nil, errors.New("pipeline: no encoders configured")
	}
	seen := make(map[recommend.Variant]bool, len(encoders))
	for _, enc := range encoders {
		if seen[enc.Variant()] {
			return nil, fmt.Errorf("pipeline: duplicate encoder for variant %s", enc.Variant())
		}
		seen[enc.Variant()] = true
	}

	j := &Job{
		cfg:      cfg,
		ingester: ingest.NewIngester(cfg.MaxRejections, logger),
		builder:  builder,
		encoders: encoders,
		store:    store,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Status returns a copy of the current run status.
func (j *Job) Status() Status {
	j.statusMu.RLock()
	defer j.statusMu.RUnlock()
	return j.status
}

// Variants lists the variants this job produces.
func (j *Job) Variants() []recommend.Variant {
	out := make([]recommend.Variant, len(j.encoders))
	for i, enc := range j.encoders {
		out[i] = enc.Variant()
	}
	return out
}

// Run executes one batch build over src.
func (j *Job) Run(ctx context.Context, src ingest.Source) (*RunResult, error) {
	if !j.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer j.runMu.Unlock()

	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	if j.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.cfg.Timeout)
		defer cancel()
	}

	start := j.now()
	j.begin(runID, start)
	logger := j.logger.With().Str("run_id", runID).Str("source", src.Name()).Logger()
	logger.Info().Msg("Batch run started")

	res, err := j.run(ctx, runID, src, logger)
	j.finish(ctx, runID, start, res, err, logger)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (j *Job) run(ctx context.Context, runID string, src ingest.Source, logger zerolog.Logger) (*RunResult, error) {
	j.record(ctx, audit.EventTypeIngestStarted, audit.SeverityInfo, audit.OutcomeSuccess, src.Name(),
		"Ingestion started", nil)

	stageStart := time.Now()
	ingested, err := j.ingester.Ingest(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	metrics.RecordBatchStage("ingest", time.Since(stageStart))
	if j.audit != nil {
		for _, rej := range ingested.Rejected {
			j.audit.RowRejected(ctx, src.Name(), rej.Line, rej.Reason, rej.Record)
		}
	}
	j.record(ctx, audit.EventTypeIngestQuality, audit.SeverityInfo, audit.OutcomeSuccess, src.Name(),
		"Data quality summary", ingested.Summary)

	stageStart = time.Now()
	matrix, err := j.builder.Build(ctx, ingested.Orders)
	if err != nil {
		return nil, fmt.Errorf("build co-occurrence: %w", err)
	}
	metrics.RecordBatchStage("cooccurrence", time.Since(stageStart))
	j.record(ctx, audit.EventTypeBatchCooccurrence, audit.SeverityInfo, audit.OutcomeSuccess, "cooccur",
		"Co-occurrence matrix built", audit.CooccurrenceStats{
			Items: matrix.Len(), Pairs: matrix.NumPairs(), MaxCount: matrix.MaxCount(),
		})

	in := &embedding.Input{Items: itemNames(ingested.Frequency), Matrix: matrix}
	embeddings, err := j.encodeAll(ctx, in)
	if err != nil {
		return nil, err
	}

	snap := buildSnapshot(runID, j.now().UTC(), ingested, matrix, embeddings, j.cfg.Catalog)
	result, err := j.publish(ctx, snap)
	if err != nil {
		return nil, err
	}
	result.RunID = runID
	result.Summary = ingested.Summary

	result.ArchiveVersion = j.archiveSnapshot(ctx, snap, logger)
	return result, nil
}

// encodeAll runs every encoder. Any failure aborts before publication.
func (j *Job) encodeAll(ctx context.Context, in *embedding.Input) ([]*embedding.Embeddings, error) {
	out := make([]*embedding.Embeddings, 0, len(j.encoders))
	for _, enc := range j.encoders {
		stageStart := time.Now()
		emb, err := enc.Encode(ctx, in)
		if err != nil {
			j.record(ctx, audit.EventTypeBatchEmbedding, audit.SeverityError, audit.OutcomeFailure,
				string(enc.Variant()), "Embedding failed: "+err.Error(), nil)
			return nil, fmt.Errorf("encode %s: %w", enc.Variant(), err)
		}
		metrics.RecordBatchStage("embedding", time.Since(stageStart))
		j.record(ctx, audit.EventTypeBatchEmbedding, audit.SeverityInfo, audit.OutcomeSuccess,
			string(enc.Variant()), "Embeddings generated", map[string]interface{}{
				"variant":   emb.Variant,
				"dimension": emb.Dimension,
				"count":     len(emb.Vectors),
				"metadata":  emb.Metadata,
			})
		out = append(out, emb)
	}
	return out, nil
}

// publish writes every variant and then the catalog.
func (j *Job) publish(ctx context.Context, snap *storage.Snapshot) (*RunResult, error) {
	stageStart := time.Now()
	result := &RunResult{Variants: make(map[recommend.Variant]VariantResult, len(snap.Variants))}

	for _, variant := range snap.VariantNames() {
		vv := snap.Variants[variant]
		entries := make(map[string]vectorstore.Entry, len(vv.Vectors))
		for item, values := range vv.Vectors {
			entries[item] = vectorstore.Entry{Values: values, Metadata: vv.Metadata}
		}

		gen, err := j.store.Publish(ctx, variant, entries)
		if err != nil {
			j.record(ctx, audit.EventTypeBatchPublished, audit.SeverityError, audit.OutcomeFailure,
				string(variant), "Publish failed: "+err.Error(), nil)
			return nil, fmt.Errorf("publish %s: %w", variant, err)
		}
		info := VariantResult{Generation: gen, Count: len(entries), Dimension: vv.Dimension}
		result.Variants[variant] = info
		snap.Meta.Variants[variant] = recommend.VariantInfo{Dimension: vv.Dimension, Count: len(entries), Generation: gen}
		j.record(ctx, audit.EventTypeBatchPublished, audit.SeverityInfo, audit.OutcomeSuccess,
			string(variant), "Variant published", info)
	}

	gen, err := j.store.PublishCatalog(ctx, &vectorstore.Catalog{
		Meta:     &snap.Meta,
		Popular:  snap.Popular,
		Partners: snap.Partners,
		Orders:   snap.Orders,
	})
	if err != nil {
		j.record(ctx, audit.EventTypeBatchPublished, audit.SeverityError, audit.OutcomeFailure,
			vectorstore.CatalogNamespace, "Catalog publish failed: "+err.Error(), nil)
		return nil, fmt.Errorf("publish catalog: %w", err)
	}
	result.Generation = gen
	metrics.RecordBatchStage("publish", time.Since(stageStart))
	return result, nil
}

// archiveSnapshot saves snap and prunes old versions. Failures are logged
// and do not fail the run.
func (j *Job) archiveSnapshot(ctx context.Context, snap *storage.Snapshot, logger zerolog.Logger) int {
	if j.archive == nil {
		return 0
	}
	meta, err := j.archive.Save(ctx, snap)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to archive snapshot")
		j.record(ctx, audit.EventTypeBatchArchived, audit.SeverityWarning, audit.OutcomeFailure,
			j.archive.Dir(), "Archive failed: "+err.Error(), nil)
		return 0
	}
	if removed, err := j.archive.Prune(ctx, j.cfg.ArchiveRetain); err != nil {
		logger.Warn().Err(err).Msg("Failed to prune archive")
	} else if removed > 0 {
		logger.Debug().Int("removed", removed).Msg("Pruned archived snapshots")
	}
	j.record(ctx, audit.EventTypeBatchArchived, audit.SeverityInfo, audit.OutcomeSuccess,
		j.archive.Dir(), "Snapshot archived", meta)
	return meta.Version
}

// Restore republishes the latest archived snapshot.
func (j *Job) Restore(ctx context.Context) (*RunResult, error) {
	if j.archive == nil {
		return nil, errors.New("restore: no archive configured")
	}
	if !j.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer j.runMu.Unlock()

	snap, meta, err := j.archive.Load(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	start := j.now()
	j.begin(runID, start)
	logger := j.logger.With().Str("run_id", runID).Int("archive_version", meta.Version).Logger()
	logger.Info().Str("archived_run_id", meta.RunID).Msg("Restoring archived snapshot")

	if snap.Meta.Variants == nil {
		snap.Meta.Variants = make(map[recommend.Variant]recommend.VariantInfo)
	}
	res, err := j.publish(ctx, snap)
	if err == nil {
		res.RunID = runID
		res.ArchiveVersion = meta.Version
		j.record(ctx, audit.EventTypeBatchRestored, audit.SeverityInfo, audit.OutcomeSuccess,
			j.archive.Dir(), "Archived snapshot republished", meta)
	}
	j.finish(ctx, runID, start, res, err, logger)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (j *Job) begin(runID string, start time.Time) {
	j.statusMu.Lock()
	defer j.statusMu.Unlock()
	j.status.Running = true
	j.status.LastRunID = runID
	j.status.LastStartedAt = start
	j.status.LastError = ""
}

func (j *Job) finish(ctx context.Context, runID string, start time.Time, res *RunResult, err error, logger zerolog.Logger) {
	elapsed := j.now().Sub(start)

	j.statusMu.Lock()
	j.status.Running = false
	j.status.LastFinishedAt = start.Add(elapsed)
	j.status.LastDuration = elapsed
	j.status.Runs++
	if err != nil {
		j.status.Failures++
		j.status.LastError = err.Error()
	} else {
		j.status.LastGeneration = res.Generation
	}
	j.statusMu.Unlock()

	if err != nil {
		metrics.RecordBatchRun("failure")
		logger.Error().Err(err).Dur("duration", elapsed).Msg("Batch run failed")
		// Failure is recorded even if the run context has expired.
		j.record(context.WithoutCancel(ctx), audit.EventTypeBatchFailed, audit.SeverityError, audit.OutcomeFailure,
			"", "Batch run failed: "+err.Error(), nil)
	} else {
		res.Duration = elapsed
		metrics.RecordBatchRun("success")
		logger.Info().
			Int64("generation", res.Generation).
			Int("variants", len(res.Variants)).
			Int("archive_version", res.ArchiveVersion).
			Dur("duration", elapsed).
			Msg("Batch run complete")
		j.record(ctx, audit.EventTypeBatchCompleted, audit.SeverityInfo, audit.OutcomeSuccess,
			"", "Batch run complete", res)
	}

	j.writeReport(context.WithoutCancel(ctx), runID, logger)
}

func (j *Job) writeReport(ctx context.Context, runID string, logger zerolog.Logger) {
	if j.audit == nil || j.cfg.ReportPath == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	path := audit.ReportPath(j.cfg.ReportPath, runID)
	if _, err := j.audit.WriteReport(ctx, path, runID); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to write audit report")
		return
	}
	logger.Info().Str("path", path).Msg("Audit report saved")
}

func (j *Job) record(ctx context.Context, typ audit.EventType, sev audit.Severity, outcome audit.Outcome, source, msg string, details interface{}) {
	if j.audit == nil {
		return
	}
	j.audit.Record(ctx, typ, sev, outcome, source, msg, details)
}

// buildSnapshot assembles everything a run publishes. Maxima are computed
// here and stored with the catalog.
func buildSnapshot(runID string, builtAt time.Time, in *ingest.Result, m *cooccur.Matrix, embs []*embedding.Embeddings, cfg recommend.CatalogConfig) *storage.Snapshot {
	snap := &storage.Snapshot{
		Meta: recommend.CatalogMeta{
			RunID:           runID,
			BuiltAt:         builtAt,
			MaxFrequency:    in.Summary.MaxItemFrequency,
			MaxCooccurrence: m.MaxCount(),
			TotalOrders:     in.Summary.UniqueOrders,
			TotalItems:      in.Summary.UniqueItems,
			TotalPairs:      m.NumPairs(),
			AvgOrderSize:    in.Summary.AvgOrderSize,
			MaxOrderSize:    in.Summary.MaxOrderSize,
			Variants:        make(map[recommend.Variant]recommend.VariantInfo, len(embs)),
		},
		Popular:  in.TopItems(cfg.PopularTop),
		Partners: make(map[string][]recommend.Partner),
		Orders:   make(map[string][]string),
		Variants: make(map[recommend.Variant]*storage.VariantVectors, len(embs)),
	}

	if cfg.TopPartners > 0 {
		for _, item := range m.Vocabulary() {
			if partners := m.TopPartners(item, cfg.TopPartners); len(partners) > 0 {
				snap.Partners[item] = partners
			}
		}
	}

	orders := in.Orders.Orders()
	if cfg.MaxOrders > 0 && len(orders) > cfg.MaxOrders {
		orders = orders[:cfg.MaxOrders]
	}
	if cfg.MaxOrders > 0 {
		for _, o := range orders {
			snap.Orders[o.ID] = distinct(o.Items)
		}
	}

	for _, emb := range embs {
		snap.Variants[emb.Variant] = &storage.VariantVectors{
			Dimension: emb.Dimension,
			Vectors:   emb.Vectors,
			Metadata:  emb.Metadata,
		}
	}
	return snap
}

// distinct returns items without repeats, in first-seen order.
func distinct(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// itemNames returns every accepted item, sorted.
func itemNames(freq map[string]int) []string {
	out := make([]string, 0, len(freq))
	for item := range freq {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package app assembles the store, batch job and order sources from
// configuration. It is shared by the server and loader commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/audit"
	"github.com/tomtom215/basketrec/internal/config"
	"github.com/tomtom215/basketrec/internal/recommend/cooccur"
	"github.com/tomtom215/basketrec/internal/recommend/embedding"
	"github.com/tomtom215/basketrec/internal/recommend/ingest"
	"github.com/tomtom215/basketrec/internal/recommend/pipeline"
	"github.com/tomtom215/basketrec/internal/recommend/storage"
	"github.com/tomtom215/basketrec/internal/vectorstore"
)

// OpenStore opens the configured backend and wraps it with retries and a
// circuit breaker.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func OpenStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*vectorstore.Store, error) {
	var (
		backend vectorstore.Backend
		err     error
	)
	switch cfg.Store.Backend {
	case config.BackendMemory:
		backend = vectorstore.NewMemoryBackend()
	case config.BackendBadger:
		backend, err = vectorstore.OpenBadger(cfg.Store.BadgerPath)
	case config.BackendRedis:
		backend, err = vectorstore.NewRedisBackend(ctx, cfg.RedisSettings())
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	resilient := vectorstore.NewResilient(backend, cfg.RetrySettings(), cfg.Store.Breaker, logger)
	logger.Info().Str("backend", backend.Name()).Msg("Vector store opened")
	return vectorstore.New(resilient, cfg.StoreSettings(), logger), nil
}

// SourceOpener returns a function that opens the configured order source.
func SourceOpener(cfg *config.Config) func() (ingest.Source, error) {
	return func() (ingest.Source, error) {
		switch cfg.Ingest.Source {
		case config.SourceCSV:
			return ingest.NewCSVFileSource(cfg.Ingest.Path), nil
		case config.SourceDuckDB:
			return ingest.NewDuckDBSource(cfg.Ingest.Path)
		default:
			return nil, fmt.Errorf("unknown ingest source %q", cfg.Ingest.Source)
		}
	}
}

// Encoders builds the encoder of every enabled variant.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func Encoders(cfg *config.Config, logger zerolog.Logger) ([]embedding.Encoder, error) {
	encoders := []embedding.Encoder{embedding.NewSVDEncoder(cfg.SVDSettings(), logger)}

	models := cfg.TextModels()
	if len(models) == 0 {
		return encoders, nil
	}

	var backend embedding.Backend
	switch cfg.Embedding.TextBackend {
	case config.TextBackendHTTP:
		backend = embedding.NewHTTPBackend(cfg.HTTPSettings(), logger)
	default:
		backend = embedding.NewHashingBackend()
	}
	text := embedding.NewTextEncoder(backend, cfg.TextSettings(), logger)
	for _, key := range models {
		enc, err := text.ForModel(key)
		if err != nil {
			return nil, fmt.Errorf("text model %s: %w", key, err)
		}
		encoders = append(encoders, enc)
	}
	return encoders, nil
}

// Batch is the batch job with the resources it owns.
type Batch struct {
	Job   *pipeline.Job
	Audit *audit.Logger

	closers []func() error
}

// Close flushes the audit log and releases the audit store.
func (b *Batch) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewBatch builds the batch job publishing to store.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBatch(ctx context.Context, cfg *config.Config, store pipeline.Publisher, logger zerolog.Logger) (*Batch, error) {
	b := &Batch{}

	encoders, err := Encoders(cfg, logger)
	if err != nil {
		return nil, err
	}

	var opts []pipeline.Option
	if cfg.Batch.ArchiveDir != "" {
		archive, err := storage.NewArchive(cfg.Batch.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		opts = append(opts, pipeline.WithArchive(archive))
	}

	if cfg.Audit.Enabled {
		var auditStore audit.Store
		if cfg.Audit.DuckDBPath != "" {
			ds, err := audit.OpenDuckDBStore(ctx, cfg.Audit.DuckDBPath)
			if err != nil {
				return nil, fmt.Errorf("open audit store: %w", err)
			}
			b.closers = append(b.closers, ds.Close)
			auditStore = ds
		} else {
			auditStore = audit.NewMemoryStore(cfg.Audit.BufferSize * 10)
		}
		b.Audit = audit.NewLogger(auditStore, cfg.AuditSettings())
		b.closers = append(b.closers, b.Audit.Close)
		opts = append(opts, pipeline.WithAudit(b.Audit))
	}

	builder := cooccur.NewBuilder(cfg.Embedding.Workers, logger)
	job, err := pipeline.NewJob(cfg.PipelineSettings(), builder, encoders, store, logger, opts...)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("create batch job: %w", err)
	}
	b.Job = job
	return b, nil
}

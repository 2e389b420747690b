// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/recommend/ingest"
	"github.com/tomtom215/basketrec/internal/recommend/pipeline"
)

// BatchJob runs one snapshot rebuild.
type BatchJob interface {
	Run(ctx context.Context, src ingest.Source) (*pipeline.RunResult, error)
}

// SourceOpener returns a fresh order source for one run. Sources that
// implement io.Closer are closed when the run ends.
type SourceOpener func() (ingest.Source, error)

// RebuildConfig schedules rebuilds.
type RebuildConfig struct {
	// RunOnStartup runs the job as soon as the service starts.
	RunOnStartup bool

	// Interval between scheduled runs. Zero disables the schedule.
	Interval time.Duration
}

// RebuildService runs the batch job on a schedule under supervision.
// A failed run is logged and the schedule continues; Serve only
// returns when ctx is canceled.
type RebuildService struct {
	job    BatchJob
	open   SourceOpener
	config RebuildConfig
	logger zerolog.Logger
	name   string
}

// NewRebuildService creates a rebuild service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRebuildService(job BatchJob, open SourceOpener, cfg RebuildConfig, logger zerolog.Logger) *RebuildService {
	return &RebuildService{
		job:    job,
		open:   open,
		config: cfg,
		logger: logger.With().Str("service", "rebuild").Logger(),
		name:   "rebuild-service",
	}
}

// Serve implements suture.Service.
func (s *RebuildService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("run_on_startup", s.config.RunOnStartup).
		Dur("interval", s.config.Interval).
		Msg("rebuild service starting")

	if s.config.RunOnStartup {
		s.runOnce(ctx)
	}

	if s.config.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("rebuild service shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce runs the job and logs the outcome.
func (s *RebuildService) runOnce(ctx context.Context) {
	res, err := s.Rebuild(ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Info().Msg("rebuild skipped, a run is already in progress")
	case err != nil:
		s.logger.Error().Err(err).Msg("rebuild failed, keeping the previous generation")
	default:
		s.logger.Info().
			Str("run_id", res.RunID).
			Int64("generation", res.Generation).
			Dur("duration", res.Duration).
			Msg("rebuild complete")
	}
}

// Rebuild opens the source and runs the job once.
func (s *RebuildService) Rebuild(ctx context.Context) (*pipeline.RunResult, error) {
	src, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("open order source: %w", err)
	}
	if c, ok := src.(io.Closer); ok {
		defer func() {
			if cerr := c.Close(); cerr != nil {
				s.logger.Warn().Err(cerr).Str("source", src.Name()).Msg("failed to close order source")
			}
		}()
	}
	return s.job.Run(ctx, src)
}

// String implements fmt.Stringer.
func (s *RebuildService) String() string {
	return s.name
}

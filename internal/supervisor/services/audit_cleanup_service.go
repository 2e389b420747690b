// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Cleaner removes expired records.
type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// AuditCleanupService runs audit retention on an interval.
type AuditCleanupService struct {
	cleaner  Cleaner
	interval time.Duration
	logger   zerolog.Logger
}

// NewAuditCleanupService creates the service. A non-positive interval uses 24h.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewAuditCleanupService(cleaner Cleaner, interval time.Duration, logger zerolog.Logger) *AuditCleanupService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &AuditCleanupService{
		cleaner:  cleaner,
		interval: interval,
		logger:   logger.With().Str("service", "audit-cleanup").Logger(),
	}
}

// Serve implements suture.Service.
func (s *AuditCleanupService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.cleaner.Cleanup(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("audit cleanup failed")
			}
		}
	}
}

// String implements fmt.Stringer.
func (s *AuditCleanupService) String() string {
	return "audit-cleanup"
}

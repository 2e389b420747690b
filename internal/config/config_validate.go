// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/basketrec/internal/audit"
	"github.com/tomtom215/basketrec/internal/recommend/embedding"
)

// Validate checks the loaded configuration. All problems are reported
// together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		add("server read and write timeouts must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitRequests <= 0 {
			add("server.rate_limit_requests must be positive, got %d", c.Server.RateLimitRequests)
		}
		if c.Server.RateLimitWindow <= 0 {
			add("server.rate_limit_window must be positive, got %s", c.Server.RateLimitWindow)
		}
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		add("logging.level %q is not a known level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		add("logging.format must be json or console, got %q", c.Logging.Format)
	}

	// Store
	switch c.Store.Backend {
	case BackendMemory:
	case BackendBadger:
		if c.Store.BadgerPath == "" {
			add("store.badger_path is required for the badger backend")
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			add("store.redis_addr is required for the redis backend")
		}
	default:
		add("store.backend must be memory, badger or redis, got %q", c.Store.Backend)
	}
	if c.Store.Retry.MaxAttempts < 1 {
		add("store.retry.max_attempts must be at least 1, got %d", c.Store.Retry.MaxAttempts)
	}
	if c.Store.Retry.InitialBackoff <= 0 || c.Store.Retry.MaxBackoff < c.Store.Retry.InitialBackoff {
		add("store.retry backoffs must be positive with max_backoff >= initial_backoff")
	}
	if err := c.Store.Breaker.Validate(); err != nil {
		add("store.breaker: %w", err)
	}
	if c.Store.RetainGenerations < 1 {
		add("store.retain_generations must be at least 1, got %d", c.Store.RetainGenerations)
	}
	if c.Store.ScanCacheTTL < 0 {
		add("store.scan_cache_ttl must not be negative")
	}

	// Ingest
	if c.Ingest.Source != SourceCSV && c.Ingest.Source != SourceDuckDB {
		add("ingest.source must be csv or duckdb, got %q", c.Ingest.Source)
	}
	if c.Ingest.Path == "" {
		add("ingest.path is required")
	}
	if c.Ingest.MaxRejections < 0 {
		add("ingest.max_rejections must not be negative")
	}

	// Embedding
	if c.Embedding.Rank < 1 {
		add("embedding.rank must be positive, got %d", c.Embedding.Rank)
	}
	if c.Embedding.Oversample < 0 || c.Embedding.PowerIterations < 0 {
		add("embedding.oversample and power_iterations must not be negative")
	}
	if c.Embedding.BatchSize < 1 {
		add("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	for _, model := range c.TextModels() {
		if _, err := embedding.LookupModel(model); err != nil {
			add("recommend.variants.enabled: %w", err)
		}
	}
	switch c.Embedding.TextBackend {
	case TextBackendHashing:
	case TextBackendHTTP:
		if c.Embedding.HTTPEndpoint == "" {
			add("embedding.http_endpoint is required for the http backend")
		}
		if c.Embedding.HTTPTimeout <= 0 {
			add("embedding.http_timeout must be positive")
		}
		if c.Embedding.HTTPRequestsPerSec <= 0 || c.Embedding.HTTPBurst < 1 {
			add("embedding.http_rps and http_burst must be positive")
		}
		if err := c.Embedding.HTTPBreaker.Validate(); err != nil {
			add("embedding.http_breaker: %w", err)
		}
	default:
		add("embedding.text_backend must be hashing or http, got %q", c.Embedding.TextBackend)
	}

	// Recommend
	if err := c.Recommend.Validate(); err != nil {
		add("recommend: %w", err)
	}

	// Batch
	if c.Batch.Interval < 0 || c.Batch.Timeout < 0 {
		add("batch.interval and batch.timeout must not be negative")
	}
	if c.Batch.ArchiveDir != "" && c.Batch.ArchiveRetain < 1 {
		add("batch.archive_retain must be at least 1 when archive_dir is set")
	}

	// Audit
	if c.Audit.Enabled {
		switch audit.Severity(c.Audit.LogLevel) {
		case audit.SeverityDebug, audit.SeverityInfo, audit.SeverityWarning, audit.SeverityError, audit.SeverityCritical:
		default:
			add("audit.log_level %q is not a known severity", c.Audit.LogLevel)
		}
		if c.Audit.BufferSize < 1 {
			add("audit.buffer_size must be positive, got %d", c.Audit.BufferSize)
		}
	}

	return errors.Join(errs...)
}

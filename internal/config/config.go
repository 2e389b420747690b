// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package config

import (
	"os"
	"time"

	"github.com/tomtom215/basketrec/internal/audit"
	"github.com/tomtom215/basketrec/internal/breaker"
	"github.com/tomtom215/basketrec/internal/logging"
	"github.com/tomtom215/basketrec/internal/recommend"
	"github.com/tomtom215/basketrec/internal/recommend/embedding"
	"github.com/tomtom215/basketrec/internal/recommend/pipeline"
	"github.com/tomtom215/basketrec/internal/vectorstore"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Ingest sources.
const (
	SourceCSV    = "csv"
	SourceDuckDB = "duckdb"
)

// Text embedding backends.
const (
	TextBackendHashing = "hashing"
	TextBackendHTTP    = "http"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Logging   LoggingConfig    `koanf:"logging"`
	Store     StoreConfig      `koanf:"store"`
	Ingest    IngestConfig     `koanf:"ingest"`
	Embedding EmbeddingConfig  `koanf:"embedding"`
	Recommend recommend.Config `koanf:"recommend"`
	Batch     BatchConfig      `koanf:"batch"`
	Audit     AuditConfig      `koanf:"audit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists allowed origins. "*" allows any.
	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// StoreConfig selects and tunes the vector store backend.
type StoreConfig struct {
	Backend    string `koanf:"backend"`
	BadgerPath string `koanf:"badger_path"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	Retry   RetryConfig    `koanf:"retry"`
	Breaker breaker.Config `koanf:"breaker"`

	RetainGenerations int           `koanf:"retain_generations"`
	ScanCacheTTL      time.Duration `koanf:"scan_cache_ttl"`
}

// RetryConfig bounds retries of store operations.
type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
}

// IngestConfig selects the order source.
type IngestConfig struct {
	Source        string `koanf:"source"`
	Path          string `koanf:"path"`
	MaxRejections int    `koanf:"max_rejections"`
}

// EmbeddingConfig tunes the encoders. The text models built are the
// huggingface:<model> entries of recommend.variants.enabled.
type EmbeddingConfig struct {
	Rank            int   `koanf:"rank"`
	Seed            int64 `koanf:"seed"`
	Oversample      int   `koanf:"oversample"`
	PowerIterations int   `koanf:"power_iterations"`
	Workers         int   `koanf:"workers"`

	TextBackend string `koanf:"text_backend"`
	BatchSize   int    `koanf:"batch_size"`
	TextWorkers int    `koanf:"text_workers"`

	HTTPEndpoint       string            `koanf:"http_endpoint"`
	HTTPModelEndpoints map[string]string `koanf:"http_model_endpoints"`
	HTTPTimeout        time.Duration     `koanf:"http_timeout"`
	HTTPRequestsPerSec float64           `koanf:"http_rps"`
	HTTPBurst          int               `koanf:"http_burst"`
	HTTPBreaker        breaker.Config    `koanf:"http_breaker"`
}

// BatchConfig schedules snapshot rebuilds.
type BatchConfig struct {
	RunOnStartup  bool          `koanf:"run_on_startup"`
	Interval      time.Duration `koanf:"interval"`
	Timeout       time.Duration `koanf:"timeout"`
	ArchiveDir    string        `koanf:"archive_dir"`
	ArchiveRetain int           `koanf:"archive_retain"`
}

// AuditConfig configures the batch audit trail.
type AuditConfig struct {
	Enabled       bool   `koanf:"enabled"`
	LogLevel      string `koanf:"log_level"`
	LogToStdout   bool   `koanf:"log_to_stdout"`
	BufferSize    int    `koanf:"buffer_size"`
	RetentionDays int    `koanf:"retention_days"`

	// DuckDBPath persists events in DuckDB. Empty keeps them in memory.
	DuckDBPath string `koanf:"duckdb_path"`

	// ReportPath receives a JSON report per run. "{run}" expands to the run id.
	ReportPath string `koanf:"report_path"`
}

// LoggingSettings converts to the logging package configuration.
func (c *Config) LoggingSettings() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	cfg.Caller = c.Logging.Caller
	cfg.Output = os.Stderr
	return cfg
}

// StoreSettings converts to the vector store configuration.
func (c *Config) StoreSettings() vectorstore.Config {
	return vectorstore.Config{
		RetainGenerations: c.Store.RetainGenerations,
		ScanCacheTTL:      c.Store.ScanCacheTTL,
	}
}

// RetrySettings converts to the resilient backend retry configuration.
func (c *Config) RetrySettings() vectorstore.RetryConfig {
	return vectorstore.RetryConfig{
		MaxAttempts:    c.Store.Retry.MaxAttempts,
		InitialBackoff: c.Store.Retry.InitialBackoff,
		MaxBackoff:     c.Store.Retry.MaxBackoff,
	}
}

// RedisSettings converts to the Redis backend configuration.
func (c *Config) RedisSettings() vectorstore.RedisConfig {
	return vectorstore.RedisConfig{
		Addr:     c.Store.RedisAddr,
		Password: c.Store.RedisPassword,
		DB:       c.Store.RedisDB,
	}
}

// SVDSettings converts to the factorization configuration.
func (c *Config) SVDSettings() embedding.SVDConfig {
	return embedding.SVDConfig{
		Rank:            c.Embedding.Rank,
		Seed:            c.Embedding.Seed,
		Oversample:      c.Embedding.Oversample,
		PowerIterations: c.Embedding.PowerIterations,
		Workers:         c.Embedding.Workers,
	}
}

// TextSettings converts to the text encoder configuration.
func (c *Config) TextSettings() embedding.TextConfig {
	return embedding.TextConfig{
		BatchSize: c.Embedding.BatchSize,
		Workers:   c.Embedding.TextWorkers,
	}
}

// HTTPSettings converts to the remote embedding backend configuration.
func (c *Config) HTTPSettings() embedding.HTTPConfig {
	return embedding.HTTPConfig{
		Endpoint:          c.Embedding.HTTPEndpoint,
		ModelEndpoints:    c.Embedding.HTTPModelEndpoints,
		Timeout:           c.Embedding.HTTPTimeout,
		RequestsPerSecond: c.Embedding.HTTPRequestsPerSec,
		Burst:             c.Embedding.HTTPBurst,
		Breaker:           c.Embedding.HTTPBreaker,
	}
}

// TextModels returns the registry keys of the enabled text variants.
func (c *Config) TextModels() []string {
	var models []string
	for _, v := range c.Recommend.Variants.Enabled {
		if v.IsText() {
			models = append(models, v.Model())
		}
	}
	return models
}

// PipelineSettings converts to the batch job configuration.
func (c *Config) PipelineSettings() pipeline.Config {
	return pipeline.Config{
		Timeout:       c.Batch.Timeout,
		MaxRejections: c.Ingest.MaxRejections,
		ArchiveRetain: c.Batch.ArchiveRetain,
		ReportPath:    c.Audit.ReportPath,
		Catalog:       c.Recommend.Catalog,
	}
}

// AuditSettings converts to the audit logger configuration.
func (c *Config) AuditSettings() *audit.Config {
	cfg := audit.DefaultConfig()
	cfg.Enabled = c.Audit.Enabled
	cfg.LogLevel = audit.Severity(c.Audit.LogLevel)
	cfg.LogToStdout = c.Audit.LogToStdout
	cfg.BufferSize = c.Audit.BufferSize
	cfg.RetentionDays = c.Audit.RetentionDays
	return cfg
}

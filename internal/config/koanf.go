// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/basketrec/internal/breaker"
	"github.com/tomtom215/basketrec/internal/recommend"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/basketrec/config.yaml",
	"/etc/basketrec/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              3858,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Backend:    BackendBadger,
			BadgerPath: "/data/vectors",
			RedisAddr:  "localhost:6379",
			Retry: RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: 50 * time.Millisecond,
				MaxBackoff:     time.Second,
			},
			Breaker:           breaker.DefaultConfig(),
			RetainGenerations: 2,
			ScanCacheTTL:      10 * time.Minute,
		},
		Ingest: IngestConfig{
			Source:        SourceCSV,
			Path:          "/data/orders.csv",
			MaxRejections: 1000,
		},
		Embedding: EmbeddingConfig{
			Rank:               128,
			Seed:               42,
			Oversample:         10,
			PowerIterations:    5,
			TextBackend:        TextBackendHashing,
			BatchSize:          32,
			TextWorkers:        4,
			HTTPEndpoint:       "http://localhost:8080",
			HTTPTimeout:        30 * time.Second,
			HTTPRequestsPerSec: 20,
			HTTPBurst:          5,
			HTTPBreaker:        breaker.DefaultConfig(),
		},
		Recommend: *recommend.DefaultConfig(),
		Batch: BatchConfig{
			RunOnStartup:  true,
			Interval:      24 * time.Hour,
			Timeout:       30 * time.Minute,
			ArchiveDir:    "/data/snapshots",
			ArchiveRetain: 5,
		},
		Audit: AuditConfig{
			Enabled:       true,
			LogLevel:      "info",
			BufferSize:    1000,
			RetentionDays: 90,
		},
	}
}

// LoadWithKoanf loads configuration using a layered approach:
//  1. Defaults from defaultConfig()
//  2. Config file (CONFIG_PATH or the first of DefaultConfigPaths found)
//  3. Environment variables (highest priority)
func LoadWithKoanf() (*Config, error) {
	return Load(findConfigFile())
}

// Load is LoadWithKoanf with an explicit config file. An empty path skips
// the file layer.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment, STORE_BACKEND -> store.backend
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the config file to load, or "" when none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are set from comma-separated environment values.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"recommend.variants.enabled",
}

// processSliceFields splits comma-separated strings at sliceConfigPaths.
// Values that are already slices (from YAML) are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_requests",
	"rate_limit_window":     "server.rate_limit_window",
	"disable_rate_limit":    "server.rate_limit_disabled",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Vector store
	"store_backend":                   "store.backend",
	"badger_path":                     "store.badger_path",
	"redis_addr":                      "store.redis_addr",
	"redis_password":                  "store.redis_password",
	"redis_db":                        "store.redis_db",
	"store_retry_attempts":            "store.retry.max_attempts",
	"store_retry_initial_backoff":     "store.retry.initial_backoff",
	"store_retry_max_backoff":         "store.retry.max_backoff",
	"store_breaker_max_requests":      "store.breaker.max_requests",
	"store_breaker_interval":          "store.breaker.interval",
	"store_breaker_timeout":           "store.breaker.timeout",
	"store_breaker_failure_threshold": "store.breaker.failure_threshold",
	"store_retain_generations":        "store.retain_generations",
	"store_scan_cache_ttl":            "store.scan_cache_ttl",

	// Ingest
	"ingest_source":         "ingest.source",
	"orders_path":           "ingest.path",
	"ingest_max_rejections": "ingest.max_rejections",

	// Embedding
	"svd_rank":                "embedding.rank",
	"svd_seed":                "embedding.seed",
	"svd_oversample":          "embedding.oversample",
	"svd_power_iterations":    "embedding.power_iterations",
	"svd_workers":             "embedding.workers",
	"text_backend":            "embedding.text_backend",
	"text_batch_size":         "embedding.batch_size",
	"text_workers":            "embedding.text_workers",
	"embedding_http_endpoint": "embedding.http_endpoint",
	"embedding_http_timeout":  "embedding.http_timeout",
	"embedding_http_rps":      "embedding.http_rps",
	"embedding_http_burst":    "embedding.http_burst",

	// Recommend
	"recommend_default_limit":    "recommend.limits.default_limit",
	"recommend_max_limit":        "recommend.limits.max_limit",
	"recommend_max_basket_items": "recommend.limits.max_basket_items",
	"recommend_variants":         "recommend.variants.enabled",
	"recommend_default_variant":  "recommend.variants.default",
	"recommend_popular_top":      "recommend.catalog.popular_top",
	"recommend_top_partners":     "recommend.catalog.top_partners",
	"recommend_max_orders":       "recommend.catalog.max_orders",
	"recommend_fusion_k":         "recommend.fusion.k",
	"recommend_fusion_depth":     "recommend.fusion.depth",

	// Batch
	"batch_run_on_startup": "batch.run_on_startup",
	"batch_interval":       "batch.interval",
	"batch_timeout":        "batch.timeout",
	"archive_dir":          "batch.archive_dir",
	"archive_retain":       "batch.archive_retain",

	// Audit
	"audit_enabled":        "audit.enabled",
	"audit_log_level":      "audit.log_level",
	"audit_log_to_stdout":  "audit.log_to_stdout",
	"audit_buffer_size":    "audit.buffer_size",
	"audit_retention_days": "audit.retention_days",
	"audit_duckdb_path":    "audit.duckdb_path",
	"audit_report_path":    "audit.report_path",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped keys return "" so unrelated variables never reach the config.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

/*
Package config loads application configuration with koanf.

Configuration is layered, later layers overriding earlier ones:

 1. Defaults from defaultConfig()
 2. A YAML file: CONFIG_PATH, or the first of DefaultConfigPaths that exists
 3. Environment variables listed in envMappings

Unmapped environment variables are ignored. List values (CORS origins,
enabled variants) accept comma-separated strings from the environment.

# Sections

  - server: HTTP listener, timeouts, CORS and rate limiting
  - logging: zerolog level, format and caller
  - store: vector store backend (memory, badger, redis), retry and breaker
  - ingest: order source (csv or duckdb) and path
  - embedding: SVD rank and seed, text backend and batching
  - recommend: limits, variants, catalog sizes and fusion
  - batch: rebuild schedule and snapshot archive
  - audit: batch audit trail and per-run reports

# Usage

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    log.Fatal(err)
	}
	logging.Init(cfg.LoggingSettings())

Validate reports every problem found, joined with errors.Join.
*/
package config

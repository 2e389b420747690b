// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Command server serves item recommendations over HTTP and rebuilds the
// published snapshot on a schedule.
//
// # Startup
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, config.yaml and environment (Koanf v2)
//  2. Logging: zerolog, bridged to slog for the supervisor
//  3. Vector store: memory, BadgerDB or Redis behind retries and a circuit breaker
//  4. Batch job: ingestion, co-occurrence, SVD and text encoders, archive, audit
//  5. Supervisor tree: rebuild and audit cleanup in the batch layer, HTTP in the api layer
//
// # Configuration
//
// Common environment variables:
//
//	HTTP_PORT=3858
//	STORE_BACKEND=badger|redis|memory
//	BADGER_PATH=/data/vectors
//	REDIS_ADDR=localhost:6379
//	INGEST_SOURCE=csv|duckdb
//	INGEST_PATH=/data/orders.csv
//	RECOMMEND_VARIANTS=cooccurrence,huggingface:all-minilm
//	BATCH_INTERVAL=24h
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The HTTP server drains
// in-flight requests and the store is closed after the tree stops.
package main

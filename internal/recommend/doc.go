// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package recommend answers item-similarity queries over a published batch
// snapshot.
//
// # Architecture
//
// A batch job (see the pipeline subpackage) turns order rows into a catalog
// snapshot and one embedding set per variant:
//
//   - ingest: order rows to an OrderIndex and item frequencies
//   - cooccur: symmetric co-occurrence counts over a sorted vocabulary
//   - embedding: the SVD and text encoders, both producing unit vectors
//
// The snapshot is published to a vector store with a generation pointer
// swap. At serving time the Orchestrator reads it through SnapshotReader
// and answers popular, similar-item, basket and order queries, falling
// back to popularity when embeddings are missing.
//
// # Outcomes
//
// Ranking operations return a *Result or an error. Their errors always
// wrap ErrUnavailable and mean the store could not be read. "No data" is an
// empty Result, possibly with QueryError set, never an error.
//
// # Thread Safety
//
// Orchestrator holds no mutable state beyond its metrics and is safe for
// concurrent use.
package recommend

// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package storage archives batch snapshots to disk.
//
// Every successful batch run can be saved as a numbered file so the
// vector store can be repopulated without recomputing embeddings, for
// example after a Redis flush or when moving to a new Badger directory.
//
// # Storage Format
//
//	filename: snapshot_v{version}.gob.zst
//
//	structure (gob):
//	  - Metadata (version, run id, checksum, sizes, variants)
//	  - CompressedData (zstd-compressed gob-encoded Snapshot)
//
// The checksum is the SHA-256 of the uncompressed payload and is verified
// on every Load. Files are written under a temporary name and renamed
// into place, so a crash never leaves a truncated version behind.
//
// # Usage
//
//	archive, err := storage.NewArchive("/data/archive")
//	meta, err := archive.Save(ctx, snap)
//	snap, meta, err := archive.Load(ctx, 0) // 0 = latest
//	removed, err := archive.Prune(ctx, 5)
package storage

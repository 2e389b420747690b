// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package audit records data-processing events for batch runs.
//
// Every batch run emits a sequence of events sharing one run id: the
// start of ingestion, each rejected row, the data-quality summary, the
// co-occurrence and embedding stages, publication, and the final
// completion or failure. Events are written asynchronously through a
// buffered Logger to a Store.
//
// # Stores
//
//   - MemoryStore keeps a bounded ring of events, for tests and
//     deployments without an audit database.
//   - DuckDBStore persists events to a data_audit_events table.
//
// # Reports
//
// WriteReport assembles the events of one run into a JSON report with a
// processing summary, the quality metrics, and samples of skipped and
// failed records:
//
//	logger := audit.NewLogger(store, audit.DefaultConfig())
//	defer logger.Close()
//	...
//	if err := logger.Flush(ctx); err != nil { ... }
//	report, err := audit.WriteReport(ctx, store, "logs/audit_report.json", runID)
package audit

// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

/*
Package services provides suture.Service wrappers for basketrec components.

Each wrapper translates a component lifecycle into suture's
context-aware Serve pattern and implements fmt.Stringer so suture can
name it in log events.

# Available Services

HTTPService:
  - Wraps *http.Server (ListenAndServe and Shutdown)
  - Graceful shutdown with a bounded timeout on context cancellation
  - http.ErrServerClosed is treated as a clean stop

RebuildService:
  - Runs the snapshot batch job on startup when configured, then on an interval
  - Opens the order source for each run and closes it afterwards
  - A run that finds another in progress is skipped, not retried
  - Failed runs are logged; the service keeps its schedule

AuditCleanupService:
  - Runs audit retention on an interval until canceled
*/
package services

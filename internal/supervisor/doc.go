// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package supervisor runs the long-lived parts of basketrec under a
// suture v4 supervision tree.
//
// The tree has two layers. The batch layer holds the snapshot rebuild
// loop and audit retention; the API layer holds the HTTP server. Each
// layer restarts its own services with suture's backoff, so a crashing
// rebuild leaves the API serving the last published generation.
//
// Supervisor events are logged through sutureslog with an slog logger
// backed by zerolog:
//
//	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
//	tree.AddBatchService(services.NewRebuildService(job, open, cfg, logger))
//	tree.AddAPIService(services.NewHTTPService(server, 10*time.Second, logger))
//	err := tree.Serve(ctx)
//
// Service wrappers live in the services subpackage.
package supervisor

// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tomtom215/basketrec/internal/api"
	"github.com/tomtom215/basketrec/internal/app"
	"github.com/tomtom215/basketrec/internal/config"
	"github.com/tomtom215/basketrec/internal/logging"
	"github.com/tomtom215/basketrec/internal/recommend"
	"github.com/tomtom215/basketrec/internal/supervisor"
	"github.com/tomtom215/basketrec/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func run() error {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return err
	}
	logging.Init(cfg.LoggingSettings())
	logger := logging.Logger()

	logger.Info().
		Str("store_backend", cfg.Store.Backend).
		Str("ingest_source", cfg.Ingest.Source).
		Str("ingest_path", cfg.Ingest.Path).
		Strs("variants", variantNames(cfg.Recommend.Variants.Enabled)).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing vector store")
		}
	}()

	batch, err := app.NewBatch(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := batch.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing batch resources")
		}
	}()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	rebuild := services.NewRebuildService(batch.Job, app.SourceOpener(cfg), services.RebuildConfig{
		RunOnStartup: cfg.Batch.RunOnStartup,
		Interval:     cfg.Batch.Interval,
	}, logger)
	tree.AddBatchService(rebuild)

	if batch.Audit != nil {
		tree.AddBatchService(services.NewAuditCleanupService(batch.Audit, batch.Audit.CleanupInterval(), logger))
	}

	orch := recommend.NewOrchestrator(&cfg.Recommend, store, logger)
	handler := api.NewHandler(orch, store, api.WithBatchStatus(batch.Job))
	mw := api.NewChiMiddleware(&api.ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		CORSMaxAge:         86400,
		RateLimitRequests:  cfg.Server.RateLimitRequests,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
		RateLimitDisabled:  cfg.Server.RateLimitDisabled,
	})

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           api.NewRouter(handler, mw),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(services.NewHTTPService(server, cfg.Server.ShutdownTimeout, logger))

	logger.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	err = tree.Serve(ctx)

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logger.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("Server stopped")
	return nil
}

func variantNames(vs []recommend.Variant) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

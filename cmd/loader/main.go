// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Command loader runs one batch build and exits.
//
//	loader                   ingest orders, build every variant, publish
//	loader -restore          republish the latest archived snapshot
//	loader -config x.yaml    use an explicit config file
//	loader -input orders.csv override the configured order source path
//
// It exits non-zero when the run fails. The previously published
// generation stays current in that case.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/app"
	"github.com/tomtom215/basketrec/internal/config"
	"github.com/tomtom215/basketrec/internal/logging"
	"github.com/tomtom215/basketrec/internal/recommend/pipeline"
)

type options struct {
	configPath string
	input      string
	restore    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "config file (default: CONFIG_PATH or config.yaml)")
	flag.StringVar(&opts.input, "input", "", "order file, overriding ingest.path")
	flag.BoolVar(&opts.restore, "restore", false, "republish the latest archived snapshot")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintln(os.Stderr, "loader:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
	} else {
		cfg, err = config.LoadWithKoanf()
	}
	if err != nil {
		return err
	}
	if opts.input != "" {
		cfg.Ingest.Path = opts.input
	}

	logging.Init(cfg.LoggingSettings())
	logger := logging.Logger().With().Str("component", "loader").Logger()

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // process exits next

	batch, err := app.NewBatch(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	defer batch.Close() //nolint:errcheck // process exits next

	var res *pipeline.RunResult
	if opts.restore {
		res, err = batch.Job.Restore(ctx)
	} else {
		res, err = ingestAndRun(ctx, batch.Job, cfg)
	}
	if err != nil {
		return err
	}

	logResult(logger, res)
	return nil
}

func ingestAndRun(ctx context.Context, job *pipeline.Job, cfg *config.Config) (*pipeline.RunResult, error) {
	src, err := app.SourceOpener(cfg)()
	if err != nil {
		return nil, err
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close() //nolint:errcheck // read-only source
	}
	return job.Run(ctx, src)
}

//nolint:gocritic // logger passed by value is acceptable for zerolog
func logResult(logger zerolog.Logger, res *pipeline.RunResult) {
	ev := logger.Info().
		Str("run_id", res.RunID).
		Int64("generation", res.Generation).
		Int("rows_accepted", res.Summary.RowsAccepted).
		Int("rows_rejected", res.Summary.RowsRejected).
		Int("orders", res.Summary.UniqueOrders).
		Dur("duration", res.Duration)
	if res.ArchiveVersion > 0 {
		ev = ev.Int("archive_version", res.ArchiveVersion)
	}
	ev.Msg("Batch published")

	for variant, v := range res.Variants {
		logger.Info().
			Str("variant", variant.String()).
			Int64("generation", v.Generation).
			Int("count", v.Count).
			Int("dimension", v.Dimension).
			Msg("Variant published")
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/quickscout/internal/browser"
	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/engine"
	"github.com/IshaanNene/quickscout/internal/extract"
	"github.com/IshaanNene/quickscout/internal/fetcher"
	"github.com/IshaanNene/quickscout/internal/observability"
	"github.com/IshaanNene/quickscout/internal/storage"
	"github.com/IshaanNene/quickscout/internal/tasksource"
	"github.com/IshaanNene/quickscout/internal/types"
)

// runFlags are the overrides accepted by "run".
type runFlags struct {
	workers     int
	concurrency int
	output      string
	format      string
	sinks       []string
	headless    bool
	engine      string
	preflight   bool
	resume      string
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <tasks-file>",
		Short: "Scrape every location in a tasks file",
		Long: `Scrape every location listed in a CSV, YAML or text file.

A CSV needs a Pincode column; an optional URLs column lists the category or
product pages to scrape for that row. Locations without URLs have their
categories discovered from the storefront.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			logger, closeLog, err := setupLogger(&cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()
			return runScrape(cmd.Context(), cmd, cfg, args[0], logger)
		},
	}

	bindRunFlags(cmd, &f)
	return cmd
}

func bindRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "number of browser workers (0 = config)")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "n", 0, "parallel category pages per worker (0 = config)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output directory")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "file output format: csv, jsonl")
	cmd.Flags().StringSliceVar(&f.sinks, "sink", nil, "additional sinks: mongo, postgres, redis")
	cmd.Flags().BoolVar(&f.headless, "headless", true, "run browsers headless")
	cmd.Flags().StringVar(&f.engine, "engine", "", "browser engine: rod, playwright")
	cmd.Flags().BoolVar(&f.preflight, "preflight", false, "probe the storefront over HTTP before launching browsers")
	cmd.Flags().StringVar(&f.resume, "resume", "", "checkpoint file; finished locations recorded there are skipped")
}

// apply copies the flags the user actually set onto cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if f.workers > 0 {
		cfg.Pool.Workers = f.workers
	}
	if f.concurrency > 0 {
		cfg.Fanout.Concurrency = f.concurrency
	}
	if f.output != "" {
		cfg.Storage.OutputPath = f.output
	}
	if f.format != "" {
		cfg.Storage.Types = []string{strings.ToLower(f.format)}
	}
	if len(f.sinks) > 0 {
		cfg.Storage.Types = append(cfg.Storage.Types, f.sinks...)
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = f.headless
	}
	if f.engine != "" {
		cfg.Browser.Engine = f.engine
	}
	if f.preflight {
		cfg.Pool.Preflight = true
	}
	if f.resume != "" {
		cfg.Pool.CheckpointPath = f.resume
	}
}

func runScrape(ctx context.Context, cmd *cobra.Command, cfg *config.Config, tasksPath string, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks, err := tasksource.NewLoader(cfg).Load(tasksPath)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		logger.Warn("no valid locations in tasks file", "path", tasksPath)
		fmt.Fprintln(cmd.OutOrStdout(), "No valid locations found; nothing to do.")
		return nil
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	logger.Info("starting run",
		"platform", cfg.Site.Platform,
		"locations", len(tasks),
		"workers", cfg.Pool.Workers,
		"engine", cfg.Browser.Engine,
		"sinks", cfg.Storage.Types,
	)

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	proxies := fetcher.NewProxyManager(&cfg.Proxy, logger)
	if cfg.Pool.Preflight {
		if _, err := preflight(ctx, cfg, proxies, logger); err != nil {
			return err
		}
	}

	launcher, err := browser.NewLauncher(cfg, proxies, logger)
	if err != nil {
		return err
	}
	chain, err := extract.BuildChain(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("build extraction chain: %w", err)
	}

	baseName := fmt.Sprintf("%s_products_%s", cfg.Site.Platform, time.Now().Format("20060102_150405"))
	store, err := storage.New(ctx, cfg, baseName, metrics, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	opts := []engine.Option{engine.WithMetrics(metrics), engine.WithRunID(runID)}
	var checkpoint *engine.CheckpointManager
	if cfg.Pool.CheckpointPath != "" {
		checkpoint = engine.NewCheckpointManager(cfg.Pool.CheckpointPath)
		opts = append(opts, engine.WithCheckpoint(checkpoint))
	}
	coord := engine.NewCoordinator(cfg, launcher, chain, store, logger, opts...)

	// First signal stops dequeuing; a second one cancels in-flight waits.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, finishing claimed locations...", "signal", sig)
			coord.Stop()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigCh:
			logger.Warn("second signal, cancelling")
			cancel()
		case <-ctx.Done():
		}
	}()

	report, runErr := coord.Run(ctx, tasks)
	if report != nil {
		printSummary(cmd.OutOrStdout(), cfg, report, metrics.Snapshot(), baseName)
	}
	if runErr != nil {
		return runErr
	}

	// A complete run needs no resume point.
	if checkpoint != nil && report.Done+report.Abandoned+report.Skipped == report.Locations {
		if err := checkpoint.Clean(); err != nil {
			logger.Warn("could not remove checkpoint", "error", err)
		}
	}
	return nil
}

// preflight probes the storefront root once. Only a block is fatal.
func preflight(ctx context.Context, cfg *config.Config, proxies *fetcher.ProxyManager, logger *slog.Logger) (*fetcher.ProbeResult, error) {
	prober, err := fetcher.NewProber(cfg, proxies, logger)
	if err != nil {
		return nil, err
	}
	defer prober.Close()

	res, err := prober.Probe(ctx, cfg.Site.BaseURL)
	switch {
	case types.IsBlocked(err):
		return res, fmt.Errorf("preflight: %w", err)
	case err != nil:
		var fe *types.FetchError
		if errors.As(err, &fe) {
			logger.Warn("preflight probe failed, continuing", "url", fe.URL, "status", fe.StatusCode, "error", fe.Err)
		} else {
			logger.Warn("preflight probe failed, continuing", "error", err)
		}
		return res, nil
	}
	logger.Info("preflight ok", "status", res.Status, "bytes", res.Bytes, "duration", res.Duration)
	return res, nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/storage"
	"github.com/IshaanNene/quickscout/internal/types"
)

// uploadCmd creates the "upload" subcommand.
func uploadCmd() *cobra.Command {
	var (
		sink        string
		destination string
		chunkSize   int
	)
	cmd := &cobra.Command{
		Use:   "upload <csv>",
		Short: "Upload a CSV written by run into a database sink",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Storage.Types = []string{sink}
			if destination != "" {
				cfg.Storage.Destination = destination
			}
			if chunkSize > 0 {
				cfg.Storage.ChunkSize = chunkSize
			}
			logger, closeLog, err := setupLogger(&cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			records, err := storage.ReadCSVFile(args[0])
			if err != nil {
				return err
			}
			logger.Info("uploading", "file", args[0], "records", len(records), "sink", sink, "destination", cfg.Storage.Destination)

			report, err := upload(cmd.Context(), cfg, records, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d/%d records in %d chunks (%d failed) to %s\n",
				report.Records, len(records), report.Chunks, report.Failed, cfg.Storage.Destination)
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d chunks failed", report.Failed, report.Chunks)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sink, "sink", "mongo", "database sink: mongo, postgres, redis")
	cmd.Flags().StringVar(&destination, "destination", "", "collection, table or stream (default: storage.destination)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "records per chunk (0 = config)")
	return cmd
}

// upload writes records through the chunked database sink named in cfg.
func upload(ctx context.Context, cfg *config.Config, records []types.ProductRecord, logger *slog.Logger) (storage.ChunkReport, error) {
	var total storage.ChunkReport
	for _, kind := range cfg.Storage.Types {
		if !isDatabaseSink(kind) {
			return total, fmt.Errorf("upload needs a database sink, got %q", kind)
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := storage.New(ctx, cfg, "upload", nil, logger)
	if err != nil {
		return total, fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	multi, ok := store.(*storage.MultiStorage)
	if !ok {
		return total, fmt.Errorf("unexpected storage %s", store.Name())
	}
	for _, b := range multi.Backends() {
		chunked, ok := b.(*storage.ChunkedStorage)
		if !ok {
			continue
		}
		report, err := chunked.Upload(ctx, storage.Valid(records))
		total.Chunks += report.Chunks
		total.Succeeded += report.Succeeded
		total.Failed += report.Failed
		total.Records += report.Records
		if err != nil {
			logger.Warn("upload incomplete", "backend", b.Name(), "error", err)
		}
	}
	return total, nil
}

func isDatabaseSink(kind string) bool {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "mongo", "mongodb", "postgres", "redis":
		return true
	}
	return false
}

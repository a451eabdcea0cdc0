package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/quickscout/internal/fetcher"
)

// probeCmd creates the "probe" subcommand.
func probeCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether the storefront blocks this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if url != "" {
				cfg.Site.BaseURL = url
			}
			logger, closeLog, err := setupLogger(&cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			proxies := fetcher.NewProxyManager(&cfg.Proxy, logger)
			res, err := preflight(ctx, cfg, proxies, logger)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "BLOCKED  %s\n", cfg.Site.BaseURL)
				return err
			}
			if res == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "UNREACHABLE  %s\n", cfg.Site.BaseURL)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK  %s  status=%d  bytes=%d  encoding=%q  took=%s\n",
				res.URL, res.Status, res.Bytes, res.Encoding, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "URL to probe (default: site.base_url)")
	return cmd
}

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/quickscout/internal/config"
)

var (
	cfgFile  string
	verbose  bool
	platform string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "quickscout",
		Short: "quickscout — multi-location quick-commerce assortment scraper",
		Long: `quickscout scrapes product assortment, price and availability from
quick-commerce storefronts for many delivery locations at once.

Features:
  • Worker pool with one browser session per worker and staggered starts
  • Location picker automation (suggestion, confirm button or Enter)
  • Extraction fallback chain: network payloads, hydration state, DOM, regex
  • Bounded parallel category scraping in isolated browser contexts
  • CSV, JSONL, MongoDB, Postgres and Redis stream sinks
  • Checkpoint-based resume and Prometheus metrics`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&platform, "platform", "", "site preset: "+strings.Join(config.Presets(), ", "))

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(probeCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())
	return rootCmd
}

// loadConfig loads the config file and applies the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if platform != "" && !config.ApplyPreset(cfg, platform) {
		return nil, fmt.Errorf("unknown platform %q (known: %s)", platform, strings.Join(config.Presets(), ", "))
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quickscout %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := config.Dump(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// setupLogger creates a structured logger from the logging section. The
// returned closer releases a log file, if one was opened.
func setupLogger(cfg *config.LoggingConfig) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var (
		out    io.Writer = os.Stderr
		closer           = func() {}
	)
	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = func() { _ = f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

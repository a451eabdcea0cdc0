package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/engine"
	"github.com/IshaanNene/quickscout/internal/types"
)

// --- Summary Tests ---

func TestRenderTableAlignsWideRunes(t *testing.T) {
	out := renderTable([][]string{
		{"Platform", "zepto"},
		{"City", "बेंगलुरु"},
		{"Note", "配達"},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), out)
	}
	want := runewidth.StringWidth(lines[0])
	for _, l := range lines {
		if got := runewidth.StringWidth(l); got != want {
			t.Errorf("line %q has width %d, want %d", l, got, want)
		}
	}
}

func TestSummaryRows(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Types = []string{"csv", "mongo"}
	cfg.Storage.Destination = "zepto_products"
	r := &engine.Report{
		RunID:     "run-1",
		Locations: 3,
		Done:      1,
		Abandoned: 1,
		Blocked:   []types.Location{"560002"},
		Records:   30,
		Elapsed:   time.Minute,
	}

	rows := summaryRows(cfg, r, map[string]int64{"peak_contexts": 4}, "zepto_products_x")
	got := make(map[string]string)
	for _, row := range rows {
		got[row[0]] = row[1]
	}
	if got["Blocked"] != "1 (560002)" {
		t.Errorf("unexpected blocked cell %q", got["Blocked"])
	}
	if got["Products / min"] != "30.0" {
		t.Errorf("unexpected rate %q", got["Products / min"])
	}
	if !strings.HasSuffix(got["Output"], "zepto_products_x.csv") {
		t.Errorf("unexpected output %q", got["Output"])
	}
	if got["Sink"] != "mongo → zepto_products" {
		t.Errorf("unexpected sink %q", got["Sink"])
	}
}

func TestPrintSummaryHintsOnEmptyRun(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, config.DefaultConfig(), &engine.Report{}, nil, "x")
	if !strings.Contains(buf.String(), "quickscout probe") {
		t.Errorf("expected a hint for an empty run, got:\n%s", buf.String())
	}
}

// --- Command Tests ---

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "quickscout ") {
		t.Errorf("unexpected version output %q", buf.String())
	}
}

func TestRunFlagsApply(t *testing.T) {
	f := &runFlags{}
	cmd := &cobra.Command{Use: "run"}
	bindRunFlags(cmd, f)
	if err := cmd.ParseFlags([]string{"--workers", "3", "--format", "JSONL", "--sink", "redis", "--headless=false", "--engine", "playwright"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	f.apply(cmd, cfg)
	if cfg.Pool.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Pool.Workers)
	}
	if strings.Join(cfg.Storage.Types, ",") != "jsonl,redis" {
		t.Errorf("unexpected sinks %v", cfg.Storage.Types)
	}
	if cfg.Browser.Headless || cfg.Browser.Engine != "playwright" {
		t.Errorf("unexpected browser config %+v", cfg.Browser)
	}
}

func TestUploadRejectsFileSinks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Types = []string{"csv"}
	if _, err := upload(context.Background(), cfg, nil, nil); err == nil {
		t.Error("expected file sinks to be rejected")
	}
}

func TestSetupLoggerFormats(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		logger, closeLog, err := setupLogger(&config.LoggingConfig{Level: "warn", Format: format, Output: "stderr"})
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		closeLog()
		if logger.Enabled(context.Background(), slog.LevelDebug) {
			t.Errorf("%s: debug should be disabled at warn level", format)
		}
	}
}

package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/engine"
)

// summaryRows renders the end-of-run report as label/value pairs.
func summaryRows(cfg *config.Config, r *engine.Report, snap map[string]int64, baseName string) [][]string {
	rows := [][]string{
		{"Platform", cfg.Site.Platform},
		{"Run ID", r.RunID},
		{"Locations", fmt.Sprintf("%d (%d skipped)", r.Locations, r.Skipped)},
		{"Workers", fmt.Sprint(r.Workers)},
		{"Done", fmt.Sprint(r.Done)},
		{"Abandoned", fmt.Sprint(r.Abandoned)},
		{"Blocked", blockedCell(r)},
		{"Records", fmt.Sprintf("%d persisted, %d dropped, %d failed", r.Records, r.Dropped, r.Failed)},
		{"Peak contexts", fmt.Sprint(snap["peak_contexts"])},
		{"Elapsed", r.Elapsed.Round(time.Second).String()},
		{"Avg / location", r.AvgPerLocation().Round(100 * time.Millisecond).String()},
		{"Products / min", fmt.Sprintf("%.1f", r.ProductsPerMinute())},
	}
	for _, kind := range cfg.Storage.Types {
		switch kind {
		case "csv", "jsonl":
			rows = append(rows, []string{"Output", filepath.Join(cfg.Storage.OutputPath, baseName+"."+kind)})
		default:
			rows = append(rows, []string{"Sink", kind + " → " + cfg.Storage.Destination})
		}
	}
	return rows
}

func blockedCell(r *engine.Report) string {
	if len(r.Blocked) == 0 {
		return "0"
	}
	locs := make([]string, len(r.Blocked))
	for i, l := range r.Blocked {
		locs[i] = string(l)
	}
	return fmt.Sprintf("%d (%s)", len(locs), strings.Join(locs, ", "))
}

// renderTable pads cells by display width so mixed-script values align.
func renderTable(rows [][]string) string {
	widths := make([]int, 2)
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := runewidth.StringWidth(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	sep := "+" + strings.Repeat("-", widths[0]+2) + "+" + strings.Repeat("-", widths[1]+2) + "+"
	var sb strings.Builder
	sb.WriteString(sep + "\n")
	for _, row := range rows {
		sb.WriteString("|")
		for i, w := range widths {
			content := ""
			if i < len(row) {
				content = row[i]
			}
			sb.WriteString(" ")
			sb.WriteString(runewidth.FillRight(content, w))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(sep + "\n")
	return sb.String()
}

func printSummary(w io.Writer, cfg *config.Config, r *engine.Report, snap map[string]int64, baseName string) {
	fmt.Fprintf(w, "\n✅ Run complete in %s\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprint(w, renderTable(summaryRows(cfg, r, snap, baseName)))
	if r.Records == 0 {
		fmt.Fprintln(w, "\n💡 No products were saved. Check the location selectors with -v, or run")
		fmt.Fprintln(w, "   quickscout probe   to see whether the storefront blocks this machine.")
	}
}

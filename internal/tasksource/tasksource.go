// Package tasksource loads the locations to scrape, with optional per-location
// targets, from CSV, YAML or plain text files.
package tasksource

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/types"
)

// Header names recognized in CSV input, compared case-insensitively.
var (
	locationHeaders = []string{"pincode", "pincodes", "location", "postal_code"}
	targetHeaders   = []string{"urls", "targets", "url", "product_url", "category_url"}
	kindHeaders     = []string{"kind", "type"}
)

// Loader turns raw input rows into tasks.
type Loader struct {
	categoryMarker string
}

// NewLoader creates a loader. URLs containing site.category_path_marker are
// category targets; others are product pages.
func NewLoader(cfg *config.Config) *Loader {
	return &Loader{categoryMarker: cfg.Site.CategoryPathMarker}
}

// Load reads path, choosing the format from its extension. Failures wrap
// types.ErrTaskSource.
func (l *Loader) Load(path string) ([]types.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTaskSource, err)
	}
	defer f.Close()

	var tasks []types.Task
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		tasks, err = l.ReadYAML(f)
	case ".txt":
		tasks, err = l.ReadLines(f)
	default:
		tasks, err = l.ReadCSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrTaskSource, path, err)
	}
	return tasks, nil
}

// ReadCSV reads a CSV with a location column and optional targets and kind
// columns. A targets cell holds URLs separated by '|' or whitespace and
// applies to every location on its row.
func (l *Loader) ReadCSV(r io.Reader) ([]types.Task, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty input")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	locCol := findColumn(header, locationHeaders)
	if locCol < 0 {
		return nil, fmt.Errorf("no pincode column in header %v", header)
	}
	targetCol := findColumn(header, targetHeaders)
	kindCol := findColumn(header, kindHeaders)

	b := newBuilder(l)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		locs := CleanLocations(cell(row, locCol))
		if len(locs) == 0 {
			continue
		}
		kind := cell(row, kindCol)
		urls := splitTargets(cell(row, targetCol))
		for _, loc := range locs {
			b.add(loc, urls, kind)
		}
	}
	return b.tasks(), nil
}

type yamlTarget struct {
	URL  string `yaml:"url"`
	Kind string `yaml:"kind"`
}

type yamlLocation struct {
	Pincode string       `yaml:"pincode"`
	Targets []yamlTarget `yaml:"targets"`
}

type yamlFile struct {
	// Targets apply to every location.
	Targets   []yamlTarget   `yaml:"targets"`
	Locations []yamlLocation `yaml:"locations"`
	Pincodes  []string       `yaml:"pincodes"`
}

// ReadYAML reads a document with a locations list (pincode plus targets), a
// bare pincodes list, and shared targets.
func (l *Loader) ReadYAML(r io.Reader) ([]types.Task, error) {
	var doc yamlFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty input")
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	b := newBuilder(l)
	addTargets := func(loc types.Location, targets []yamlTarget) {
		for _, t := range targets {
			b.add(loc, []string{t.URL}, t.Kind)
		}
	}
	for _, entry := range doc.Locations {
		for _, loc := range CleanLocations(entry.Pincode) {
			b.add(loc, nil, "")
			addTargets(loc, entry.Targets)
			addTargets(loc, doc.Targets)
		}
	}
	for _, raw := range doc.Pincodes {
		for _, loc := range CleanLocations(raw) {
			b.add(loc, nil, "")
			addTargets(loc, doc.Targets)
		}
	}
	return b.tasks(), nil
}

// ReadLines reads one or more pincodes per line. Blank lines and lines
// starting with '#' are skipped.
func (l *Loader) ReadLines(r io.Reader) ([]types.Task, error) {
	b := newBuilder(l)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, loc := range CleanLocations(line) {
			b.add(loc, nil, "")
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return b.tasks(), nil
}

// CleanLocations extracts the six-digit pincodes from a raw cell. A cell may
// hold several comma-separated values; spreadsheet exports add a ".0" suffix.
func CleanLocations(raw string) []types.Location {
	var out []types.Location
	for _, part := range strings.Split(raw, ",") {
		p := strings.TrimSpace(part)
		if i := strings.IndexByte(p, '.'); i >= 0 {
			p = p[:i]
		}
		if isPincode(p) {
			out = append(out, types.Location(p))
		}
	}
	return out
}

func isPincode(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func splitTargets(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == '|' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

func findColumn(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			h = strings.TrimPrefix(h, "\ufeff")
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// builder accumulates targets per location, dropping duplicate URLs.
type builder struct {
	loader  *Loader
	targets map[types.Location][]types.Target
	seen    map[types.Location]map[string]bool
}

func newBuilder(l *Loader) *builder {
	return &builder{
		loader:  l,
		targets: make(map[types.Location][]types.Target),
		seen:    make(map[types.Location]map[string]bool),
	}
}

func (b *builder) add(loc types.Location, urls []string, kind string) {
	if _, ok := b.targets[loc]; !ok {
		b.targets[loc] = nil
		b.seen[loc] = make(map[string]bool)
	}
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		key := types.CanonicalizeURL(u)
		if b.seen[loc][key] {
			continue
		}
		b.seen[loc][key] = true
		b.targets[loc] = append(b.targets[loc], types.Target{
			URL:      u,
			Location: loc,
			Kind:     b.loader.kindOf(u, kind),
		})
	}
}

func (b *builder) tasks() []types.Task {
	locs := make([]types.Location, 0, len(b.targets))
	for loc := range b.targets {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })

	out := make([]types.Task, len(locs))
	for i, loc := range locs {
		out[i] = types.Task{Location: loc, Targets: b.targets[loc]}
	}
	return out
}

func (l *Loader) kindOf(url, declared string) types.TargetKind {
	if strings.TrimSpace(declared) != "" {
		return types.ParseTargetKind(declared)
	}
	if l.categoryMarker == "" || strings.Contains(url, l.categoryMarker) {
		return types.TargetCategory
	}
	return types.TargetProduct
}

package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/observability"
	"github.com/IshaanNene/quickscout/internal/pipeline"
	"github.com/IshaanNene/quickscout/internal/types"
)

// Strategy is one way of finding product candidates on a page.
type Strategy interface {
	// Name identifies the strategy in logs, metrics and configuration.
	Name() string

	// TryExtract returns the candidates found on src. Zero candidates, an
	// error, or a panic all make the chain fall through to the next strategy.
	TryExtract(ctx context.Context, src Source) ([]Candidate, error)
}

// Result is the outcome of one chain run.
type Result struct {
	Records []types.ProductRecord

	// Strategy names the strategy that yielded candidates, or "" if none did.
	Strategy   string
	Candidates int
}

// Chain runs strategies in order until one yields candidates, then
// normalizes, filters and deduplicates them.
type Chain struct {
	strategies []Strategy
	normalizer *Normalizer
	pipeline   *pipeline.Pipeline
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewChain creates a chain over strategies in the given order.
func NewChain(logger *slog.Logger, normalizer *Normalizer, pipe *pipeline.Pipeline, strategies ...Strategy) *Chain {
	return &Chain{
		strategies: strategies,
		normalizer: normalizer,
		pipeline:   pipe,
		logger:     logger.With("component", "extract"),
	}
}

// BuildChain assembles the configured strategy order with the default record
// pipeline.
func BuildChain(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Chain, error) {
	shape := ShapeFromConfig(cfg.Extraction)

	var strategies []Strategy
	for _, name := range cfg.Extraction.Strategies {
		s, err := newStrategy(name, shape, cfg)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}

	c := NewChain(logger, NewNormalizer(cfg), pipeline.NewDefault(logger, cfg.Extraction.CategoryFilters), strategies...)
	c.metrics = metrics
	return c, nil
}

func newStrategy(name string, shape Shape, cfg *config.Config) (Strategy, error) {
	switch name {
	case "network":
		return NewNetworkStrategy(shape, cfg.Extraction.CaptureURLKeywords), nil
	case "hydration":
		return NewHydrationStrategy(shape, cfg.Extraction.HydrationScript, cfg.Extraction.HydrationSelector), nil
	case "dom":
		return NewDOMStrategy(shape, cfg.Extraction)
	case "regex":
		return NewRegexStrategy(shape, cfg.Extraction.RegexAnchor)
	case "jsonld":
		return NewJSONLDStrategy(shape), nil
	default:
		return nil, fmt.Errorf("unknown extraction strategy %q", name)
	}
}

// Names returns the strategy order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Subset returns a chain restricted to the named strategies, keeping this
// chain's order. Unknown names are ignored.
func (c *Chain) Subset(names ...string) *Chain {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	sub := *c
	sub.strategies = nil
	for _, s := range c.strategies {
		if want[s.Name()] {
			sub.strategies = append(sub.strategies, s)
		}
	}
	return &sub
}

// Extract runs the chain against src. It never fails: at worst the result is
// empty.
func (c *Chain) Extract(ctx context.Context, src Source, rc RecordContext) Result {
	for _, s := range c.strategies {
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		cands, err := c.try(ctx, s, src)
		c.metrics.ObserveStrategy(s.Name(), time.Since(start))

		if err != nil {
			c.logger.Debug("strategy failed", "strategy", s.Name(), "url", src.URL(), "error", err)
			continue
		}
		if len(cands) == 0 {
			continue
		}

		recs := c.normalize(cands, rc)
		c.metrics.AddExtracted(s.Name(), len(recs))
		c.logger.Debug("strategy yielded",
			"strategy", s.Name(),
			"url", src.URL(),
			"candidates", len(cands),
			"records", len(recs),
		)
		return Result{Records: recs, Strategy: s.Name(), Candidates: len(cands)}
	}
	return Result{}
}

// try runs one strategy, converting a panic into an error.
func (c *Chain) try(ctx context.Context, s Strategy, src Source) (cands []Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			cands = nil
			err = &types.ExtractError{Strategy: s.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	cands, err = s.TryExtract(ctx, src)
	if err != nil {
		return cands, &types.ExtractError{Strategy: s.Name(), Err: err}
	}
	return cands, nil
}

func (c *Chain) normalize(cands []Candidate, rc RecordContext) []types.ProductRecord {
	recs := make([]types.ProductRecord, 0, len(cands))
	for _, cand := range cands {
		rec, ok := c.normalizer.Normalize(cand, rc)
		if !ok {
			continue
		}
		recs = append(recs, rec)
	}
	if c.pipeline != nil {
		recs = c.pipeline.ProcessAll(recs)
	}
	return Merge(recs)
}

package pipeline

import (
	"log/slog"

	"github.com/IshaanNene/quickscout/internal/types"
)

// Middleware processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop it.
	Process(rec *types.ProductRecord) (*types.ProductRecord, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// NewDefault returns the record pipeline used by the extraction chain:
// trim, defaults, required fields, then the category sanity filter.
func NewDefault(logger *slog.Logger, categoryFilters map[string][]string) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(&DefaultValueMiddleware{Brand: "Unknown", Stock: types.StockUnknown})
	p.Use(&RequiredFieldsMiddleware{})
	if len(categoryFilters) > 0 {
		p.Use(NewCategoryFilter(categoryFilters))
	}
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order.
func (p *Pipeline) Process(rec *types.ProductRecord) (*types.ProductRecord, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:  mw.Name(),
				Record: current,
				Err:    err,
			}
		}
		if result == nil {
			p.logger.Debug("record dropped", "stage", mw.Name(), "id", rec.ID, "name", rec.Name)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// ProcessAll runs every record through the chain and returns the survivors
// in input order. A record that errors is logged and skipped.
func (p *Pipeline) ProcessAll(recs []types.ProductRecord) []types.ProductRecord {
	if p == nil || len(p.middlewares) == 0 {
		return recs
	}
	out := make([]types.ProductRecord, 0, len(recs))
	for i := range recs {
		rec := recs[i]
		result, err := p.Process(&rec)
		if err != nil {
			p.logger.Warn("record skipped", "error", err)
			continue
		}
		if result != nil {
			out = append(out, *result)
		}
	}
	return out
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

package engine

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/IshaanNene/quickscout/internal/observability"
	"github.com/IshaanNene/quickscout/internal/storage"
)

// Aggregator is the single consumer of the result queue and the only writer
// to storage.
type Aggregator struct {
	results *ResultQueue
	store   storage.Storage
	metrics *observability.Metrics
	logger  *slog.Logger

	batches   atomic.Int64
	persisted atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewAggregator creates an aggregator draining results into store.
func NewAggregator(results *ResultQueue, store storage.Storage, metrics *observability.Metrics, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		results: results,
		store:   store,
		metrics: metrics,
		logger:  logger.With("component", "aggregator"),
	}
}

// Run persists batches until the sentinel is taken. Storage errors are
// logged and the batch is lost; the aggregator keeps going.
func (a *Aggregator) Run(ctx context.Context) {
	for {
		batch, ok := a.results.Take()
		if !ok {
			a.logger.Debug("sentinel received", "batches", a.batches.Load(), "persisted", a.persisted.Load())
			return
		}
		a.batches.Add(1)

		valid := storage.Valid(batch.Records)
		a.dropped.Add(int64(len(batch.Records) - len(valid)))
		if len(valid) == 0 {
			continue
		}

		if err := a.store.Store(ctx, valid); err != nil {
			a.failed.Add(int64(len(valid)))
			a.logger.Error("persist batch failed",
				"location", batch.Location,
				"target", batch.Target.Label,
				"records", len(valid),
				"error", err,
			)
			continue
		}
		a.persisted.Add(int64(len(valid)))
		a.metrics.AddPersisted(len(valid))
		a.logger.Debug("batch persisted",
			"location", batch.Location,
			"target", batch.Target.Label,
			"strategy", batch.Strategy,
			"records", len(valid),
		)
	}
}

// Persisted returns the number of records written.
func (a *Aggregator) Persisted() int64 { return a.persisted.Load() }

// Dropped returns the number of invalid records discarded.
func (a *Aggregator) Dropped() int64 { return a.dropped.Load() }

// Failed returns the number of valid records lost to storage errors.
func (a *Aggregator) Failed() int64 { return a.failed.Load() }

// Batches returns the number of batches taken, empty ones included.
func (a *Aggregator) Batches() int64 { return a.batches.Load() }

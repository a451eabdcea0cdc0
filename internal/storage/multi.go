package storage

import (
	"context"
	"log/slog"

	"github.com/IshaanNene/quickscout/internal/observability"
	"github.com/IshaanNene/quickscout/internal/types"
)

// --- Multi-Storage Fan-Out ---

// MultiStorage writes records to multiple backends. A failing backend does
// not stop the others.
type MultiStorage struct {
	backends []Storage
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, metrics *observability.Metrics, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		metrics:  metrics,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string {
	if len(s.backends) == 1 {
		return s.backends[0].Name()
	}
	return "multi"
}

// Backends returns the wrapped backends.
func (s *MultiStorage) Backends() []Storage { return s.backends }

func (s *MultiStorage) Store(ctx context.Context, records []types.ProductRecord) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(ctx, records); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			s.metrics.IncSinkError(backend.Name())
			if firstErr == nil {
				firstErr = &types.StorageError{Backend: backend.Name(), Err: err}
			}
		}
	}
	return firstErr
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			s.logger.Error("backend close failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

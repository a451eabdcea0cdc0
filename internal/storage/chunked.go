package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/quickscout/internal/types"
)

// ChunkReport summarizes one chunked write.
type ChunkReport struct {
	Chunks    int
	Succeeded int
	Failed    int
	// Records is the number of records in chunks that succeeded.
	Records int
}

// ChunkedStorage splits writes into fixed-size chunks so one oversized
// batch cannot time out a database round trip. A failed chunk does not stop
// the remaining chunks.
type ChunkedStorage struct {
	inner  Storage
	size   int
	logger *slog.Logger
}

// NewChunkedStorage wraps inner with chunks of size records (default 100).
func NewChunkedStorage(inner Storage, size int, logger *slog.Logger) *ChunkedStorage {
	if size <= 0 {
		size = 100
	}
	return &ChunkedStorage{
		inner:  inner,
		size:   size,
		logger: logger.With("component", "chunked_storage", "backend", inner.Name()),
	}
}

func (s *ChunkedStorage) Name() string { return s.inner.Name() }

// Upload writes records chunk by chunk and reports per-chunk outcomes.
func (s *ChunkedStorage) Upload(ctx context.Context, records []types.ProductRecord) (ChunkReport, error) {
	var rep ChunkReport
	var firstErr error
	total := (len(records) + s.size - 1) / s.size

	for start := 0; start < len(records); start += s.size {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		end := min(start+s.size, len(records))
		rep.Chunks++

		if err := s.inner.Store(ctx, records[start:end]); err != nil {
			rep.Failed++
			s.logger.Error("chunk failed", "chunk", rep.Chunks, "of", total, "records", end-start, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("chunk %d: %w", rep.Chunks, err)
			}
			continue
		}
		rep.Succeeded++
		rep.Records += end - start
		s.logger.Debug("chunk stored", "chunk", rep.Chunks, "of", total, "progress", rep.Records)
	}
	return rep, firstErr
}

func (s *ChunkedStorage) Store(ctx context.Context, records []types.ProductRecord) error {
	_, err := s.Upload(ctx, records)
	return err
}

func (s *ChunkedStorage) Close() error { return s.inner.Close() }

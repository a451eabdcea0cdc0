// Package storage persists product records. Every sink is written to by a
// single aggregator goroutine, but sinks still guard their state so they can
// be reused from the upload command.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/observability"
	"github.com/IshaanNene/quickscout/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists a batch of records. An empty batch is a no-op.
	Store(ctx context.Context, records []types.ProductRecord) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// Valid returns the records worth persisting, in order.
func Valid(records []types.ProductRecord) []types.ProductRecord {
	out := make([]types.ProductRecord, 0, len(records))
	for i := range records {
		if records[i].Valid() {
			out = append(out, records[i])
		}
	}
	return out
}

// New builds the sinks named by storage.types. File sinks write under
// storage.output_path using baseName; database sinks upsert in chunks.
func New(ctx context.Context, cfg *config.Config, baseName string, metrics *observability.Metrics, logger *slog.Logger) (Storage, error) {
	sc := cfg.Storage
	var backends []Storage
	fail := func(err error) (Storage, error) {
		for _, b := range backends {
			_ = b.Close()
		}
		return nil, err
	}

	for _, kind := range sc.Types {
		switch kind = strings.ToLower(strings.TrimSpace(kind)); kind {
		case "csv", "jsonl":
			s, err := NewFileStorage(kind, filepath.Join(sc.OutputPath, baseName+"."+kind), logger)
			if err != nil {
				return fail(err)
			}
			backends = append(backends, s)

		case "mongo", "mongodb":
			s, err := NewMongoStorage(ctx, sc.Mongo.URI, sc.Mongo.Database, sc.Destination, logger)
			if err != nil {
				return fail(&types.StorageError{Backend: kind, Err: err})
			}
			backends = append(backends, NewChunkedStorage(s, sc.ChunkSize, logger))

		case "postgres":
			s, err := NewPostgresStorage(ctx, sc.Postgres.DSN, sc.Postgres.MaxConns, sc.Destination, logger)
			if err != nil {
				return fail(&types.StorageError{Backend: kind, Err: err})
			}
			backends = append(backends, NewChunkedStorage(s, sc.ChunkSize, logger))

		case "redis":
			client := redis.NewClient(&redis.Options{
				Addr:     sc.Redis.Addr,
				Password: sc.Redis.Password,
				DB:       sc.Redis.DB,
			})
			if err := client.Ping(ctx).Err(); err != nil {
				_ = client.Close()
				return fail(&types.StorageError{Backend: kind, Err: fmt.Errorf("redis ping: %w", err)})
			}
			s := NewRedisStreamStorage(client, sc.Destination, sc.Redis.MaxLen, logger)
			backends = append(backends, NewChunkedStorage(s, sc.ChunkSize, logger))

		default:
			return fail(fmt.Errorf("unsupported storage type: %s", kind))
		}
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no storage configured")
	}
	return NewMultiStorage(backends, metrics, logger), nil
}

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/IshaanNene/quickscout/internal/types"
)

// RedisClient is the part of *redis.Client the stream sink uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisStreamStorage publishes one stream entry per record.
type RedisStreamStorage struct {
	client RedisClient
	stream string
	maxLen int64
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewRedisStreamStorage publishes into stream, trimming it to roughly
// maxLen entries when maxLen > 0.
func NewRedisStreamStorage(client RedisClient, stream string, maxLen int64, logger *slog.Logger) *RedisStreamStorage {
	return &RedisStreamStorage{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With("component", "redis_storage", "stream", stream),
	}
}

func (s *RedisStreamStorage) Name() string { return "redis" }

func (s *RedisStreamStorage) Store(ctx context.Context, records []types.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range records {
		r := &records[i]
		data, err := r.ToJSON()
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", r.ID, err)
		}
		args := &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]interface{}{
				"data":          string(data),
				"platform":      r.Platform,
				"product_id":    r.ID,
				"pincode_input": string(r.Location),
				"run_id":        r.RunID,
			},
		}
		if s.maxLen > 0 {
			args.MaxLen = s.maxLen
			args.Approx = true
		}
		if _, err := s.client.XAdd(ctx, args).Result(); err != nil {
			return fmt.Errorf("failed to publish to redis: %w", err)
		}
		s.count++
	}
	s.logger.Debug("records published", "count", len(records), "total", s.count)
	return nil
}

func (s *RedisStreamStorage) Close() error {
	s.logger.Info("redis storage closing", "total_records", s.count)
	return s.client.Close()
}

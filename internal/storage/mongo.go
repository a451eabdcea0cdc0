package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/quickscout/internal/types"
)

// mongoCollection is the part of *mongo.Collection the sink uses.
type mongoCollection interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// MongoStorage upserts records into a MongoDB collection keyed by platform,
// product id and location.
type MongoStorage struct {
	client     *mongo.Client
	collection mongoCollection
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoStorage connects to MongoDB and returns a storage writing into
// database.collection.
func NewMongoStorage(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	s := newMongoStorage(client.Database(database).Collection(collection), logger)
	s.client = client
	return s, nil
}

func newMongoStorage(coll mongoCollection, logger *slog.Logger) *MongoStorage {
	return &MongoStorage{
		collection: coll,
		logger:     logger.With("component", "mongo_storage"),
	}
}

func (s *MongoStorage) Name() string { return "mongodb" }

func (s *MongoStorage) Store(ctx context.Context, records []types.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	models := make([]mongo.WriteModel, len(records))
	for i := range records {
		r := &records[i]
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{
				"platform":      r.Platform,
				"product_id":    r.ID,
				"pincode_input": r.Location,
			}).
			SetUpdate(bson.M{"$set": r}).
			SetUpsert(true)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("mongodb bulk upsert: %w", err)
	}

	s.count += len(records)
	s.logger.Debug("records upserted in mongodb",
		"count", len(records),
		"upserted", res.UpsertedCount,
		"modified", res.ModifiedCount,
		"total", s.count,
	)
	return nil
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "total_records", s.count)
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

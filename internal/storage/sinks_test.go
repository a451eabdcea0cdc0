package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/quickscout/internal/observability"
	"github.com/IshaanNene/quickscout/internal/types"
)

// MockRedisClient is a mock for the Redis client.
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Redis Stream Tests ---

func TestRedisPublishesOneEntryPerRecord(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	client.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
		values := args.Values.(map[string]interface{})
		return args.Stream == "products" &&
			args.MaxLen == 1000 && args.Approx &&
			values["pincode_input"] == "560001" &&
			strings.Contains(values["data"].(string), `"product_id"`)
	})).Return(nil).Times(3)
	client.On("Close").Return(nil)

	s := NewRedisStreamStorage(client, "products", 1000, testLogger)
	require.NoError(t, s.Store(ctx, records(3, "560001")))
	require.NoError(t, s.Close())

	client.AssertExpectations(t)
}

func TestRedisStopsOnPublishError(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	client.On("XAdd", ctx, mock.Anything).Return(errors.New("connection refused")).Once()

	s := NewRedisStreamStorage(client, "products", 0, testLogger)
	err := s.Store(ctx, records(3, "560001"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	client.AssertNumberOfCalls(t, "XAdd", 1)
}

// --- Postgres Tests ---

type fakeBatchResults struct {
	execs   int
	failAt  int
	closed  bool
	failErr error
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	r.execs++
	if r.failAt > 0 && r.execs == r.failAt {
		return pgconn.CommandTag{}, r.failErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeBatchResults) QueryRow() pgx.Row { return nil }
func (r *fakeBatchResults) Close() error {
	r.closed = true
	return nil
}

type fakeBatcher struct {
	batches []*pgx.Batch
	results *fakeBatchResults
}

func (b *fakeBatcher) SendBatch(_ context.Context, batch *pgx.Batch) pgx.BatchResults {
	b.batches = append(b.batches, batch)
	return b.results
}

func TestPostgresUpsertBatch(t *testing.T) {
	db := &fakeBatcher{results: &fakeBatchResults{}}
	s := newPostgresStorage(db, "zepto_products", testLogger)

	require.NoError(t, s.Store(context.Background(), records(4, "560001")))
	require.Len(t, db.batches, 1)
	assert.Equal(t, 4, db.batches[0].Len())
	assert.Equal(t, 4, db.results.execs)
	assert.True(t, db.results.closed)

	q := db.batches[0].QueuedQueries[0]
	assert.Len(t, q.Arguments, len(types.Columns()))
	assert.Contains(t, q.SQL, `INSERT INTO "zepto_products"`)
	assert.Contains(t, q.SQL, `ON CONFLICT ("platform", "product_id", "pincode_input") DO UPDATE SET`)
	assert.Contains(t, q.SQL, `"url" = EXCLUDED."url"`)
	assert.NotContains(t, q.SQL, `"product_id" = EXCLUDED`)
}

func TestPostgresReportsFailedRow(t *testing.T) {
	db := &fakeBatcher{results: &fakeBatchResults{failAt: 2, failErr: errors.New("constraint")}}
	s := newPostgresStorage(db, "zepto_products", testLogger)

	err := s.Store(context.Background(), records(3, "560001"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")
	assert.True(t, db.results.closed)
}

func TestCreateTableSQL(t *testing.T) {
	sql := createTableSQL("zepto_products")
	assert.Contains(t, sql, `CREATE TABLE IF NOT EXISTS "zepto_products"`)
	assert.Contains(t, sql, `"price" DOUBLE PRECISION`)
	assert.Contains(t, sql, `"scraped_at" TIMESTAMPTZ`)
	assert.Contains(t, sql, `PRIMARY KEY ("platform", "product_id", "pincode_input")`)
}

// --- Mongo Tests ---

type fakeCollection struct {
	models []mongo.WriteModel
	err    error
}

func (c *fakeCollection) BulkWrite(_ context.Context, models []mongo.WriteModel, _ ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.models = append(c.models, models...)
	return &mongo.BulkWriteResult{UpsertedCount: int64(len(models))}, nil
}

func TestMongoUpsertsEveryRecord(t *testing.T) {
	coll := &fakeCollection{}
	s := newMongoStorage(coll, testLogger)

	require.NoError(t, s.Store(context.Background(), records(3, "560001")))
	require.Len(t, coll.models, 3)
	m, ok := coll.models[0].(*mongo.UpdateOneModel)
	require.True(t, ok)
	require.NotNil(t, m.Upsert)
	assert.True(t, *m.Upsert)

	require.NoError(t, s.Store(context.Background(), nil))
	assert.Len(t, coll.models, 3)
	assert.NoError(t, s.Close())
}

// --- Chunked and Multi Tests ---

type memStorage struct {
	name    string
	batches [][]types.ProductRecord
	failOn  int // 1-based call that fails
	calls   int
	closed  bool
}

func (m *memStorage) Name() string { return m.name }

func (m *memStorage) Store(_ context.Context, recs []types.ProductRecord) error {
	m.calls++
	if m.failOn > 0 && m.calls == m.failOn {
		return errors.New("timeout")
	}
	m.batches = append(m.batches, recs)
	return nil
}

func (m *memStorage) Close() error {
	m.closed = true
	return nil
}

func TestChunkedSplitsAndReports(t *testing.T) {
	inner := &memStorage{name: "mem", failOn: 2}
	s := NewChunkedStorage(inner, 100, testLogger)

	rep, err := s.Upload(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ChunkReport{}, rep)

	var big []types.ProductRecord
	for i := 0; i < 25; i++ {
		big = append(big, records(10, types.Location(string(rune('a'+i))))...)
	}
	rep, err = s.Upload(context.Background(), big)
	require.Error(t, err)
	assert.Equal(t, 3, rep.Chunks)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 150, rep.Records)
	require.Len(t, inner.batches, 2)
	assert.Len(t, inner.batches[0], 100)
	assert.Len(t, inner.batches[1], 50)
}

func TestMultiStorageContinuesPastFailures(t *testing.T) {
	metrics := observability.NewMetrics(testLogger)
	bad := &memStorage{name: "postgres", failOn: 1}
	good := &memStorage{name: "csv"}
	s := NewMultiStorage([]Storage{bad, good}, metrics, testLogger)

	err := s.Store(context.Background(), records(2, "560001"))
	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "postgres", se.Backend)
	assert.Len(t, good.batches, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SinkErrors.WithLabelValues("postgres")))

	require.NoError(t, s.Close())
	assert.True(t, bad.closed && good.closed)
	assert.Equal(t, "multi", s.Name())
	assert.Equal(t, "csv", NewMultiStorage([]Storage{good}, nil, testLogger).Name())
}

func TestValidDropsIncompleteRecords(t *testing.T) {
	in := []types.ProductRecord{{Name: "A", Price: 1}, {Name: "B"}, {Price: 3}, {Name: "D", MRP: 4}}
	out := Valid(in)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Name)
	assert.Equal(t, "D", out[1].Name)

	notFound := Valid([]types.ProductRecord{{ID: "ff", Stock: types.NotFound}, {Stock: types.NotFound}})
	require.Len(t, notFound, 1, "a not-found record needs only its id")
	assert.Equal(t, "ff", notFound[0].ID)
}

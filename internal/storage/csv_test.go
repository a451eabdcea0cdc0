package storage

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/quickscout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func records(n int, loc types.Location) []types.ProductRecord {
	out := make([]types.ProductRecord, n)
	for i := range out {
		inv := i
		out[i] = types.ProductRecord{
			ID:        string(loc) + "-" + string(rune('a'+i)),
			Name:      "Product " + string(rune('A'+i)),
			Brand:     "Amul",
			Price:     27.5,
			MRP:       30,
			Stock:     types.InStock,
			Inventory: &inv,
			Platform:  "zepto",
			Location:  loc,
			ScrapedAt: time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
		}
	}
	return out
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

// --- CSV Storage Tests ---

func TestCSVHeaderWrittenOnceAcrossEmptyBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "zepto.csv")
	s, err := NewCSVStorage(path, testLogger)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Store(ctx, nil))
	}
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file should not exist before the first non-empty batch")

	require.NoError(t, s.Store(ctx, records(5, "560001")))
	require.NoError(t, s.Close())

	rows := readRows(t, path)
	require.Len(t, rows, 6)
	assert.Equal(t, types.Columns(), rows[0])
	assert.Equal(t, 1, s.HeaderWrites())
	assert.Equal(t, 5, s.Count())

	header := 0
	for _, r := range rows {
		if r[0] == "platform" {
			header++
		}
	}
	assert.Equal(t, 1, header)
}

func TestCSVAppendsAcrossBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zepto.csv")
	s, err := NewCSVStorage(path, testLogger)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, records(2, "560001")))
	require.NoError(t, s.Store(ctx, []types.ProductRecord{}))
	require.NoError(t, s.Store(ctx, records(3, "560002")))
	require.NoError(t, s.Close())

	assert.Len(t, readRows(t, path), 6)
	assert.Equal(t, 1, s.HeaderWrites())
}

func TestCSVFiltersInvalidRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zepto.csv")
	s, err := NewCSVStorage(path, testLogger)
	require.NoError(t, err)

	batch := []types.ProductRecord{
		{ID: "a", Name: "", Price: 10},
		{ID: "b", Name: "No Price"},
	}
	require.NoError(t, s.Store(context.Background(), batch))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "an all-invalid batch counts as empty")

	batch = append(batch, types.ProductRecord{ID: "c", Name: "MRP Only", MRP: 45})
	require.NoError(t, s.Store(context.Background(), batch))
	require.NoError(t, s.Close())
	assert.Len(t, readRows(t, path), 2)
}

func TestReadCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zepto.csv")
	s, err := NewCSVStorage(path, testLogger)
	require.NoError(t, err)
	in := records(3, "560001")
	require.NoError(t, s.Store(context.Background(), in))
	require.NoError(t, s.Close())

	out, err := ReadCSVFile(path)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range in {
		assert.Equal(t, in[i].ID, out[i].ID)
		assert.Equal(t, in[i].Price, out[i].Price)
		assert.Equal(t, *in[i].Inventory, *out[i].Inventory)
		assert.True(t, in[i].ScrapedAt.Equal(out[i].ScrapedAt))
		assert.Nil(t, out[i].ShelfLifeHours)
	}
}

func TestReadCSVCoercesNumbers(t *testing.T) {
	const body = "Name,Price,MRP,Inventory,pincode_input,url,extra\n" +
		"Milk,27.0,29,7.0,560001.0,https://x/pn/milk,ignored\n"
	out, err := ReadCSV(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, out, 1)

	r := out[0]
	assert.Equal(t, 27.0, r.Price)
	assert.Equal(t, 7, *r.Inventory)
	assert.Equal(t, types.Location("560001"), r.Location)
	assert.Equal(t, "https://x/pn/milk", r.ProductURL)
}

func TestNewFileStorageRejectsUnknownType(t *testing.T) {
	_, err := NewFileStorage("parquet", filepath.Join(t.TempDir(), "x"), testLogger)
	assert.Error(t, err)
}

func BenchmarkCSVStore(b *testing.B) {
	s, _ := NewCSVStorage(filepath.Join(b.TempDir(), "bench.csv"), testLogger)
	defer s.Close()
	batch := records(50, "560001")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Store(context.Background(), batch)
	}
}

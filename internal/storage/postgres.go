package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IshaanNene/quickscout/internal/types"
)

// pgBatcher is the part of *pgxpool.Pool the sink uses.
type pgBatcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// conflictColumns identify one product observation.
var conflictColumns = []string{"platform", "product_id", "pincode_input"}

// PostgresStorage upserts records into a table with INSERT ... ON CONFLICT.
type PostgresStorage struct {
	pool   *pgxpool.Pool
	db     pgBatcher
	table  string
	upsert string
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewPostgresStorage opens a pool on dsn and makes sure table exists.
func NewPostgresStorage(ctx context.Context, dsn string, maxConns int32, table string, logger *slog.Logger) (*PostgresStorage, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL(table)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}

	s := newPostgresStorage(pool, table, logger)
	s.pool = pool
	return s, nil
}

func newPostgresStorage(db pgBatcher, table string, logger *slog.Logger) *PostgresStorage {
	return &PostgresStorage{
		db:     db,
		table:  table,
		upsert: upsertSQL(table),
		logger: logger.With("component", "postgres_storage", "table", table),
	}
}

func (s *PostgresStorage) Name() string { return "postgres" }

func (s *PostgresStorage) Store(ctx context.Context, records []types.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := &pgx.Batch{}
	for i := range records {
		batch.Queue(s.upsert, rowValues(&records[i])...)
	}

	br := s.db.SendBatch(ctx, batch)
	for i := range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upsert %s (record %d): %w", s.table, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	s.count += len(records)
	s.logger.Debug("records upserted", "count", len(records), "total", s.count)
	return nil
}

func (s *PostgresStorage) Close() error {
	s.logger.Info("postgres storage closing", "total_records", s.count)
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// dbColumn maps a record column to its table column.
func dbColumn(name string) string {
	if name == "product_url" {
		return "url"
	}
	return name
}

func quotedColumns() []string {
	cols := types.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgx.Identifier{dbColumn(c)}.Sanitize()
	}
	return out
}

func upsertSQL(table string) string {
	cols := quotedColumns()
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	conflict := make(map[string]bool, len(conflictColumns))
	keys := make([]string, len(conflictColumns))
	for i, c := range conflictColumns {
		q := pgx.Identifier{c}.Sanitize()
		conflict[q] = true
		keys[i] = q
	}
	var updates []string
	for _, c := range cols {
		if !conflict[c] {
			updates = append(updates, c+" = EXCLUDED."+c)
		}
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(keys, ", "),
		strings.Join(updates, ", "),
	)
}

func createTableSQL(table string) string {
	typesByColumn := map[string]string{
		"mrp":                 "DOUBLE PRECISION",
		"price":               "DOUBLE PRECISION",
		"shelf_life_in_hours": "INTEGER",
		"inventory":           "INTEGER",
		"scraped_at":          "TIMESTAMPTZ",
	}
	cols := types.Columns()
	defs := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		typ, ok := typesByColumn[c]
		if !ok {
			typ = "TEXT"
		}
		if c == "platform" || c == "product_id" || c == "pincode_input" {
			typ += " NOT NULL"
		}
		defs = append(defs, pgx.Identifier{dbColumn(c)}.Sanitize()+" "+typ)
	}
	keys := make([]string, len(conflictColumns))
	for i, c := range conflictColumns {
		keys[i] = pgx.Identifier{c}.Sanitize()
	}
	defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pgx.Identifier{table}.Sanitize(), strings.Join(defs, ", "))
}

// rowValues returns the typed column values in types.Columns order.
func rowValues(r *types.ProductRecord) []any {
	var scrapedAt any
	if !r.ScrapedAt.IsZero() {
		scrapedAt = r.ScrapedAt.UTC()
	}
	return []any{
		r.Platform, r.Category, r.Subcategory, r.ClickedLabel, r.Name, r.Brand,
		r.BaseProductID, r.ID, r.GroupID, r.MerchantType, r.MRP, r.Price,
		r.Weight, r.ShelfLifeHours, r.DeliveryETA, string(r.Stock), r.Inventory, r.StoreID,
		r.ProductURL, r.ImageURL, scrapedAt, string(r.Location), r.RunID,
	}
}

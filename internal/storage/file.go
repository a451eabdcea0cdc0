package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/quickscout/internal/types"
)

// --- CSV Storage ---

// CSVStorage writes records as CSV rows in types.Columns order. The file is
// created on the first non-empty batch, so a run that finds nothing leaves
// no file behind, and the header is written exactly once.
type CSVStorage struct {
	path         string
	file         *os.File
	writer       *csv.Writer
	mu           sync.Mutex
	count        int
	headerWrites int
	logger       *slog.Logger
}

// NewCSVStorage creates a CSV storage writing to outputPath.
func NewCSVStorage(outputPath string, logger *slog.Logger) (*CSVStorage, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &CSVStorage{
		path:   outputPath,
		logger: logger.With("component", "csv_storage"),
	}, nil
}

func (s *CSVStorage) Name() string { return "csv" }

// Path is the output file path.
func (s *CSVStorage) Path() string { return s.path }

// Count is the number of rows written.
func (s *CSVStorage) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// HeaderWrites is the number of times the header row was written.
func (s *CSVStorage) HeaderWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headerWrites
}

func (s *CSVStorage) Store(_ context.Context, records []types.ProductRecord) error {
	records = Valid(records)
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		f, err := os.Create(s.path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		s.file = f
		s.writer = csv.NewWriter(f)
		if err := s.writer.Write(types.Columns()); err != nil {
			return fmt.Errorf("write CSV header: %w", err)
		}
		s.headerWrites++
		s.logger.Info("CSV file created", "path", s.path)
	}

	for i := range records {
		if err := s.writer.Write(records[i].Row()); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
		s.count++
	}

	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("CSV written", "path", s.path, "records", s.count)
	if s.writer != nil {
		s.writer.Flush()
	}
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// --- JSONL Storage ---

// JSONLStorage writes records as newline-delimited JSON, one record per line.
type JSONLStorage struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLStorage creates a JSONL file storage (streaming writes).
func NewJSONLStorage(outputPath string, logger *slog.Logger) (*JSONLStorage, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	return &JSONLStorage{
		path:   outputPath,
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "jsonl_storage"),
	}, nil
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(_ context.Context, records []types.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range records {
		if err := s.enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("encode JSONL: %w", err)
		}
		s.count++
	}
	return nil
}

func (s *JSONLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("JSONL written", "path", s.path, "records", s.count)
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// NewFileStorage creates the file-based storage for storageType at path.
func NewFileStorage(storageType, path string, logger *slog.Logger) (Storage, error) {
	switch storageType {
	case "jsonl":
		return NewJSONLStorage(path, logger)
	case "csv":
		return NewCSVStorage(path, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

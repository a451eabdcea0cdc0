package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/quickscout/internal/types"
)

// ReadCSVFile reads records previously written by CSVStorage.
func ReadCSVFile(path string) ([]types.ProductRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses a record CSV. Columns are matched by header name and
// unknown columns are ignored. Numeric columns tolerate float notation,
// so "7.0" reads as 7 for integer columns.
func ReadCSV(r io.Reader) ([]types.ProductRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "url" {
			h = "product_url"
		}
		index[h] = i
	}

	var out []types.ProductRecord
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return out, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(col string) string {
			if i, ok := index[col]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		rec := types.ProductRecord{
			Platform:      get("platform"),
			Category:      get("category"),
			Subcategory:   get("subcategory"),
			ClickedLabel:  get("clicked_label"),
			Name:          get("name"),
			Brand:         get("brand"),
			BaseProductID: get("base_product_id"),
			ID:            get("product_id"),
			GroupID:       get("group_id"),
			MerchantType:  get("merchant_type"),
			MRP:           parseFloat(get("mrp")),
			Price:         parseFloat(get("price")),
			Weight:        get("weight"),
			DeliveryETA:   get("eta"),
			Stock:         types.StockState(get("availability")),
			StoreID:       get("store_id"),
			ProductURL:    get("product_url"),
			ImageURL:      get("image_url"),
			Location:      types.Location(strings.TrimSuffix(get("pincode_input"), ".0")),
			RunID:         get("run_id"),
		}
		rec.ShelfLifeHours = parseIntPtr(get("shelf_life_in_hours"))
		rec.Inventory = parseIntPtr(get("inventory"))
		if ts := get("scraped_at"); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				rec.ScrapedAt = t
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func parseIntPtr(s string) *int {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int(f)
	return &n
}

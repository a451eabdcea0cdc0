package pipeline

import (
	"html"
	"strings"

	"github.com/IshaanNene/quickscout/internal/types"
)

// --- Built-in Middleware ---

// TrimMiddleware trims whitespace and decodes HTML entities in text fields.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(rec *types.ProductRecord) (*types.ProductRecord, error) {
	for _, f := range []*string{
		&rec.ID, &rec.BaseProductID, &rec.GroupID, &rec.MerchantType,
		&rec.Name, &rec.Brand, &rec.Weight, &rec.StoreID,
		&rec.ImageURL, &rec.ProductURL, &rec.DeliveryETA,
	} {
		if *f == "" {
			continue
		}
		*f = strings.Join(strings.Fields(html.UnescapeString(*f)), " ")
	}
	return rec, nil
}

// RequiredFieldsMiddleware drops records without an id, a name, or any
// price.
type RequiredFieldsMiddleware struct{}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(rec *types.ProductRecord) (*types.ProductRecord, error) {
	if rec.ID == "" || !rec.Valid() {
		return nil, nil
	}
	return rec, nil
}

// DefaultValueMiddleware fills fields a strategy could not determine.
type DefaultValueMiddleware struct {
	Brand  string
	Stock  types.StockState
	Weight string
}

func (m *DefaultValueMiddleware) Name() string { return "default_values" }

func (m *DefaultValueMiddleware) Process(rec *types.ProductRecord) (*types.ProductRecord, error) {
	if rec.Brand == "" {
		rec.Brand = m.Brand
	}
	if rec.Stock == "" {
		rec.Stock = m.Stock
	}
	if rec.Weight == "" {
		rec.Weight = m.Weight
	}
	return rec, nil
}

// FilterMiddleware drops records for which Keep returns false.
type FilterMiddleware struct {
	Label string
	Keep  func(rec *types.ProductRecord) bool
}

func (m *FilterMiddleware) Name() string {
	if m.Label == "" {
		return "filter"
	}
	return m.Label
}

func (m *FilterMiddleware) Process(rec *types.ProductRecord) (*types.ProductRecord, error) {
	if m.Keep != nil && !m.Keep(rec) {
		return nil, nil
	}
	return rec, nil
}

// NewCategoryFilter rejects records whose name contains a keyword that
// contradicts the category. Rules map a category keyword to the name
// keywords forbidden under it; matching is case-insensitive.
func NewCategoryFilter(rules map[string][]string) *FilterMiddleware {
	lowered := make(map[string][]string, len(rules))
	for cat, words := range rules {
		ws := make([]string, 0, len(words))
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				ws = append(ws, w)
			}
		}
		lowered[strings.ToLower(cat)] = ws
	}

	return &FilterMiddleware{
		Label: "category_filter",
		Keep: func(rec *types.ProductRecord) bool {
			category := strings.ToLower(rec.Category + " " + rec.Subcategory)
			name := strings.ToLower(rec.Name)
			for cat, forbidden := range lowered {
				if !strings.Contains(category, cat) {
					continue
				}
				for _, w := range forbidden {
					if strings.Contains(name, w) {
						return false
					}
				}
			}
			return true
		},
	}
}

package extract

import (
	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/jsonvalue"
)

// Shape is the product heuristic: an object with an id, a non-empty name and
// at least one positive price-like member.
type Shape struct {
	IDKeys    []string
	NameKeys  []string
	PriceKeys []string
	MRPKeys   []string
	Limits    jsonvalue.Limits
}

// ShapeFromConfig builds the heuristic from the extraction settings.
func ShapeFromConfig(cfg config.ExtractionConfig) Shape {
	limits := jsonvalue.DefaultLimits
	if cfg.MaxDepth > 0 {
		limits.MaxDepth = cfg.MaxDepth
	}
	if cfg.MaxNodes > 0 {
		limits.MaxNodes = cfg.MaxNodes
	}
	return Shape{
		IDKeys:    cfg.IDKeys,
		NameKeys:  cfg.NameKeys,
		PriceKeys: cfg.PriceKeys,
		MRPKeys:   cfg.MRPKeys,
		Limits:    limits,
	}
}

// ID returns the candidate identifier, or "".
func (s Shape) ID(v jsonvalue.Value) string {
	return v.FirstText(s.IDKeys...)
}

// Matches reports whether v looks like a product.
func (s Shape) Matches(v jsonvalue.Value) bool {
	if !v.IsObject() || s.ID(v) == "" {
		return false
	}
	name, _, ok := v.First(s.NameKeys...)
	if !ok {
		return false
	}
	if str, isStr := name.Str(); !isStr || str == "" {
		return false
	}
	return positive(v, s.PriceKeys) || positive(v, s.MRPKeys)
}

// Collect walks root and returns every product-shaped object whose id has
// not been seen with at least as many members. seen maps ids to the member
// count already emitted and is updated in place so one guard can span
// several documents. A richer duplicate is emitted again and left to Merge.
// Children of a matched object are not searched.
func (s Shape) Collect(root jsonvalue.Value, seen map[string]int) []jsonvalue.Value {
	var found []jsonvalue.Value
	jsonvalue.Walk(root, s.Limits, func(v jsonvalue.Value, _ int) bool {
		if !v.IsObject() || !s.Matches(v) {
			return true
		}
		id := s.ID(v)
		if n, ok := seen[id]; ok && n >= v.Len() {
			return false
		}
		seen[id] = v.Len()
		found = append(found, v)
		return false
	})
	return found
}

func positive(v jsonvalue.Value, keys []string) bool {
	for _, k := range keys {
		if m, ok := v.Get(k); ok {
			if f, ok := m.Float(); ok && f > 0 {
				return true
			}
		}
	}
	return false
}

// firstKey returns keys[0] or fallback.
func firstKey(keys []string, fallback string) string {
	if len(keys) > 0 {
		return keys[0]
	}
	return fallback
}

package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/quickscout/internal/jsonvalue"
)

// JSONLDStrategy reads schema.org Product objects from ld+json blocks.
type JSONLDStrategy struct {
	shape Shape
}

// NewJSONLDStrategy creates the structured data strategy.
func NewJSONLDStrategy(shape Shape) *JSONLDStrategy {
	return &JSONLDStrategy{shape: shape}
}

func (s *JSONLDStrategy) Name() string { return "jsonld" }

// TryExtract implements Strategy.
func (s *JSONLDStrategy) TryExtract(ctx context.Context, src Source) ([]Candidate, error) {
	body, err := src.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []Candidate
	seen := make(map[string]bool)

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return
		}
		root, err := jsonvalue.Parse([]byte(raw))
		if err != nil {
			return
		}
		jsonvalue.Walk(root, s.shape.Limits, func(v jsonvalue.Value, _ int) bool {
			if !isProductType(v) {
				return true
			}
			if c, ok := s.candidate(v, src.URL()); ok {
				id := s.shape.ID(c.Fields)
				if !seen[id] {
					seen[id] = true
					out = append(out, c)
				}
			}
			return false
		})
	})

	return out, nil
}

func isProductType(v jsonvalue.Value) bool {
	t, ok := v.Get("@type")
	if !ok {
		return false
	}
	if s, ok := t.Str(); ok {
		return s == "Product"
	}
	for _, e := range t.Elements() {
		if s, _ := e.Str(); s == "Product" {
			return true
		}
	}
	return false
}

func (s *JSONLDStrategy) candidate(v jsonvalue.Value, pageURL string) (Candidate, bool) {
	id := v.FirstText("sku", "productID", "@id", "gtin13")
	name := v.FirstText("name")
	if id == "" || name == "" {
		return Candidate{}, false
	}

	offer, ok := v.Get("offers")
	if ok && offer.IsArray() && offer.Len() > 0 {
		offer = offer.Elements()[0]
	}
	price := offer.FirstText("price", "lowPrice")

	obj := jsonvalue.NewObject().
		SetString(firstKey(s.shape.IDKeys, "id"), id).
		SetString(firstKey(s.shape.NameKeys, "name"), name).
		SetString(firstKey(s.shape.PriceKeys, "price"), price).
		SetString("url", v.FirstText("url")).
		SetString("weight", v.FirstText("weight"))

	if b, ok := v.Get("brand"); ok {
		if b.IsObject() {
			obj.SetString("brand", b.FirstText("name"))
		} else {
			obj.SetString("brand", b.Text())
		}
	}
	if img, ok := v.Get("image"); ok {
		if img.IsArray() && img.Len() > 0 {
			obj.SetString("imageUrl", img.Elements()[0].Text())
		} else {
			obj.SetString("imageUrl", img.Text())
		}
	}
	if avail := offer.FirstText("availability"); avail != "" {
		obj.Set("outOfStock", jsonvalue.BoolValue(strings.Contains(avail, "OutOfStock")))
	}
	if pageURL != "" && !obj.Value().Has("url") {
		obj.SetString("url", pageURL)
	}

	c := Candidate{Fields: obj.Value(), MajorUnits: true, Source: s.Name()}
	return c, s.shape.Matches(c.Fields)
}

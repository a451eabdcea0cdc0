package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/quickscout/internal/jsonvalue"
)

// HydrationStrategy reads the framework hydration blob embedded in the page.
// The in-page expression is tried first; the serialized script element is
// the fallback.
type HydrationStrategy struct {
	shape    Shape
	script   string
	selector string
}

// NewHydrationStrategy creates the embedded-hydration strategy.
func NewHydrationStrategy(shape Shape, script, selector string) *HydrationStrategy {
	return &HydrationStrategy{shape: shape, script: script, selector: selector}
}

func (s *HydrationStrategy) Name() string { return "hydration" }

// TryExtract implements Strategy.
func (s *HydrationStrategy) TryExtract(ctx context.Context, src Source) ([]Candidate, error) {
	doc, err := s.blob(ctx, src)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, v := range s.shape.Collect(doc, make(map[string]int)) {
		out = append(out, Candidate{Fields: v, Source: s.Name()})
	}
	return out, nil
}

func (s *HydrationStrategy) blob(ctx context.Context, src Source) (jsonvalue.Value, error) {
	if s.script != "" {
		raw, err := src.Evaluate(ctx, s.script)
		if err == nil {
			raw = bytes.TrimSpace(raw)
			if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
				if v, err := jsonvalue.Parse(raw); err == nil && !v.IsNull() {
					return v, nil
				}
			}
		}
	}

	if s.selector == "" {
		return jsonvalue.Value{}, fmt.Errorf("hydration data unavailable")
	}
	html, err := src.HTML(ctx)
	if err != nil {
		return jsonvalue.Value{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return jsonvalue.Value{}, fmt.Errorf("parse html: %w", err)
	}
	text := strings.TrimSpace(doc.Find(s.selector).First().Text())
	if text == "" {
		return jsonvalue.Value{}, fmt.Errorf("hydration element %q not found", s.selector)
	}
	return jsonvalue.Parse([]byte(text))
}

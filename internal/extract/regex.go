package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/IshaanNene/quickscout/internal/jsonvalue"
)

// RegexStrategy is the last resort: it finds object fragments in the raw
// page source that start with an identifier-looking key and decodes each as
// JSON.
type RegexStrategy struct {
	shape  Shape
	anchor *regexp.Regexp
}

// NewRegexStrategy creates the raw-text strategy. anchor must match at the
// opening brace of a candidate object.
func NewRegexStrategy(shape Shape, anchor string) (*RegexStrategy, error) {
	re, err := regexp.Compile(anchor)
	if err != nil {
		return nil, fmt.Errorf("regex_anchor: %w", err)
	}
	return &RegexStrategy{shape: shape, anchor: re}, nil
}

func (s *RegexStrategy) Name() string { return "regex" }

// TryExtract implements Strategy. When the page embeds its data as an escaped
// string, the scan is repeated over the unescaped text.
func (s *RegexStrategy) TryExtract(ctx context.Context, src Source) ([]Candidate, error) {
	body, err := src.HTML(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	out := s.scan(body, seen)
	if len(out) == 0 && strings.Contains(body, `\"`) {
		out = s.scan(strings.ReplaceAll(body, `\"`, `"`), seen)
	}
	return out, nil
}

func (s *RegexStrategy) scan(body string, seen map[string]bool) []Candidate {
	var out []Candidate
	end := 0
	for _, loc := range s.anchor.FindAllStringIndex(body, -1) {
		start := loc[0]
		if start < end {
			continue
		}
		v, n, err := jsonvalue.ParsePrefix(body[start:])
		if err != nil || !s.shape.Matches(v) {
			continue
		}
		end = start + n
		id := s.shape.ID(v)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Candidate{Fields: v, Source: s.Name()})
	}
	return out
}

package extract

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/IshaanNene/quickscout/internal/jsonvalue"
)

// flightLineRe matches a React server component row: "<hex id>:<payload>".
var flightLineRe = regexp.MustCompile(`^[0-9a-zA-Z]+:`)

// NetworkStrategy scans JSON bodies captured while the page loaded.
type NetworkStrategy struct {
	shape    Shape
	keywords []string
}

// NewNetworkStrategy creates the network-capture strategy. Only payloads whose
// URL contains one of keywords are scanned; no keywords means all of them.
func NewNetworkStrategy(shape Shape, keywords []string) *NetworkStrategy {
	return &NetworkStrategy{shape: shape, keywords: keywords}
}

func (s *NetworkStrategy) Name() string { return "network" }

// TryExtract implements Strategy.
func (s *NetworkStrategy) TryExtract(ctx context.Context, src Source) ([]Candidate, error) {
	var out []Candidate
	seen := make(map[string]int)

	for _, p := range src.Payloads() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if p.Status != 0 && p.Status != 200 {
			continue
		}
		if !s.interesting(p.URL) {
			continue
		}
		for _, doc := range DecodePayload(p.Body) {
			for _, v := range s.shape.Collect(doc, seen) {
				out = append(out, Candidate{Fields: v, Source: s.Name()})
			}
		}
	}
	return out, nil
}

func (s *NetworkStrategy) interesting(url string) bool {
	if len(s.keywords) == 0 {
		return true
	}
	lower := strings.ToLower(url)
	for _, k := range s.keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// DecodePayload parses a response body as one JSON document or, failing
// that, as newline separated server component rows. Undecodable parts are
// skipped.
func DecodePayload(body []byte) []jsonvalue.Value {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if v, err := jsonvalue.Parse(trimmed); err == nil {
			return []jsonvalue.Value{v}
		}
	}

	var docs []jsonvalue.Value
	for _, line := range strings.Split(string(trimmed), "\n") {
		loc := flightLineRe.FindStringIndex(line)
		if loc == nil {
			continue
		}
		rest := strings.TrimSpace(line[loc[1]:])
		if rest == "" || (rest[0] != '{' && rest[0] != '[') {
			continue
		}
		if v, _, err := jsonvalue.ParsePrefix(rest); err == nil {
			docs = append(docs, v)
		}
	}
	return docs
}

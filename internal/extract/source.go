// Package extract turns a loaded storefront page into product records through
// an ordered fallback chain of strategies.
package extract

import (
	"context"
	"errors"
	"time"

	"github.com/IshaanNene/quickscout/internal/jsonvalue"
	"github.com/IshaanNene/quickscout/internal/types"
)

// Payload is one network response body captured while a page loaded.
type Payload struct {
	URL         string
	ContentType string
	Status      int
	Body        []byte
}

// Source is the read-only view of a loaded page a strategy works against.
type Source interface {
	// URL is the page's final URL after redirects.
	URL() string

	// HTML returns the current serialized document.
	HTML(ctx context.Context) (string, error)

	// Evaluate runs a script in the page and returns its JSON-encoded result.
	Evaluate(ctx context.Context, script string) ([]byte, error)

	// Payloads returns the responses captured during load.
	Payloads() []Payload
}

// Candidate is an unnormalized product: a loosely typed object found by one
// strategy.
type Candidate struct {
	Fields jsonvalue.Value

	// MajorUnits marks prices that are already in major currency units, as
	// with prices scraped from visible text.
	MajorUnits bool

	// Source names the strategy that produced the candidate.
	Source string
}

// RecordContext carries everything a record needs that the page itself does
// not provide.
type RecordContext struct {
	Platform     string
	Category     string
	Subcategory  string
	ClickedLabel string
	Location     types.Location
	DeliveryETA  string
	RunID        string
	ScrapedAt    time.Time
}

var errNoScript = errors.New("no script configured")

// StaticSource is a Source over an already captured page.
type StaticSource struct {
	PageURL  string
	Body     string
	Captured []Payload

	// Scripts maps a script to its canned JSON result.
	Scripts map[string][]byte
}

func (s *StaticSource) URL() string { return s.PageURL }

func (s *StaticSource) HTML(context.Context) (string, error) { return s.Body, nil }

func (s *StaticSource) Evaluate(_ context.Context, script string) ([]byte, error) {
	if b, ok := s.Scripts[script]; ok {
		return b, nil
	}
	return nil, errNoScript
}

func (s *StaticSource) Payloads() []Payload { return s.Captured }

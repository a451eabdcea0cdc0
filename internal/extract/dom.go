package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/jsonvalue"
	"github.com/IshaanNene/quickscout/internal/types"
)

var (
	rupeeRe = regexp.MustCompile(`₹\s*([\d,]+(?:\.\d+)?)`)

	weightPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+(?:\.\d+)?\s*(?:kg|g|gm|ml|l|ltr|litre|pcs?|pc|pack|unit|piece)s?)\b`),
		regexp.MustCompile(`(?i)(\d+\s*x\s*\d+\s*(?:g|ml|pcs?))`),
		regexp.MustCompile(`(?i)\((\d+(?:\.\d+)?\s*(?:kg|g|gm|ml|l)\s*)\)`),
	}
)

// DOMStrategy reads product cards around product links.
type DOMStrategy struct {
	shape          Shape
	linkSelector   string
	idPattern      *regexp.Regexp
	namePattern    *regexp.Regexp
	ancestorLevels int
}

// NewDOMStrategy creates the DOM heuristic strategy from the extraction
// settings.
func NewDOMStrategy(shape Shape, cfg config.ExtractionConfig) (*DOMStrategy, error) {
	idRe, err := regexp.Compile(cfg.IDFromLinkPattern)
	if err != nil {
		return nil, fmt.Errorf("id_from_link_pattern: %w", err)
	}
	var nameRe *regexp.Regexp
	if cfg.NameFromLinkPattern != "" {
		if nameRe, err = regexp.Compile(cfg.NameFromLinkPattern); err != nil {
			return nil, fmt.Errorf("name_from_link_pattern: %w", err)
		}
	}
	levels := cfg.AncestorLevels
	if levels <= 0 {
		levels = 5
	}
	return &DOMStrategy{
		shape:          shape,
		linkSelector:   cfg.ProductLinkSelector,
		idPattern:      idRe,
		namePattern:    nameRe,
		ancestorLevels: levels,
	}, nil
}

func (s *DOMStrategy) Name() string { return "dom" }

// TryExtract implements Strategy.
func (s *DOMStrategy) TryExtract(ctx context.Context, src Source) ([]Candidate, error) {
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

	doc.Find(s.linkSelector).Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		m := s.idPattern.FindStringSubmatch(href)
		if len(m) < 2 || seen[m[1]] {
			return
		}
		id := m[1]

		card := link
		for i := 0; i < s.ancestorLevels; i++ {
			parent := card.Parent()
			if parent.Length() == 0 {
				break
			}
			card = parent
		}

		lines := textLines(card)
		prices := rupeeRe.FindAllStringSubmatch(strings.Join(lines, "\n"), -1)
		if len(prices) == 0 {
			return
		}
		price := parseRupees(prices[0][1])
		mrp := price
		if len(prices) > 1 {
			mrp = parseRupees(prices[1][1])
		}
		if price <= 0 {
			return
		}

		name := s.nameFromLink(href)
		if name == "" {
			name = firstTextLine(lines)
		}
		if name == "" {
			return
		}
		seen[id] = true

		obj := jsonvalue.NewObject().
			SetString(firstKey(s.shape.IDKeys, "id"), id).
			SetString(firstKey(s.shape.NameKeys, "name"), name).
			Set(firstKey(s.shape.PriceKeys, "price"), jsonvalue.FloatValue(price)).
			Set(firstKey(s.shape.MRPKeys, "mrp"), jsonvalue.FloatValue(mrp)).
			SetString("url", types.ResolveURL(src.URL(), href)).
			SetString("packSize", packSize(strings.Join(lines, "\n"))).
			SetString("imageUrl", cardImage(card)).
			SetString("brand", shortBrand(lines))

		out = append(out, Candidate{Fields: obj.Value(), MajorUnits: true, Source: s.Name()})
	})

	return out, nil
}

func (s *DOMStrategy) nameFromLink(href string) string {
	if s.namePattern == nil {
		return ""
	}
	m := s.namePattern.FindStringSubmatch(href)
	if len(m) < 2 || m[1] == "" {
		return ""
	}
	return titleCase(strings.ReplaceAll(m[1], "-", " "))
}

// textLines returns the trimmed, non-empty text nodes under sel in document
// order, approximating the rendered lines of a card.
func textLines(sel *goquery.Selection) []string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				lines = append(lines, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return lines
}

func qualifyingLines(lines []string) []string {
	var out []string
	for _, l := range lines {
		if strings.HasPrefix(l, "₹") || strings.EqualFold(l, "ADD") {
			continue
		}
		out = append(out, l)
	}
	return out
}

func firstTextLine(lines []string) string {
	q := qualifyingLines(lines)
	if len(q) == 0 {
		return ""
	}
	return q[0]
}

// shortBrand treats a short leading line as the brand.
func shortBrand(lines []string) string {
	q := qualifyingLines(lines)
	if len(q) > 0 && len([]rune(q[0])) < 30 {
		return q[0]
	}
	return ""
}

func packSize(text string) string {
	for _, re := range weightPatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func cardImage(card *goquery.Selection) string {
	img := card.Find("img").First()
	if img.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"src", "data-src"} {
		if v, ok := img.Attr(attr); ok && v != "" {
			return v
		}
	}
	if v, ok := img.Attr("srcset"); ok {
		if fields := strings.Fields(v); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

func parseRupees(s string) float64 {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return f
}

// titleCase builds a fresh Caser per call; Casers are not safe for
// concurrent use.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/IshaanNene/quickscout/internal/types"
)

// DiscoverOptions controls category link discovery on a storefront page.
type DiscoverOptions struct {
	BaseURL string
	XPath   string

	// Exclude drops links whose URL contains any of these keywords.
	Exclude []string

	// Max caps the number of links returned. Zero means no cap.
	Max int
}

// DiscoverCategories returns the distinct same-host category links in page
// order.
func DiscoverCategories(body string, opts DiscoverOptions) ([]string, error) {
	doc, err := htmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	nodes, err := htmlquery.QueryAll(doc, opts.XPath)
	if err != nil {
		return nil, fmt.Errorf("invalid category xpath %q: %w", opts.XPath, err)
	}

	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	seen := make(map[string]bool)
	var links []string
	for _, n := range nodes {
		href := strings.TrimSpace(htmlquery.SelectAttr(n, "href"))
		if href == "" || strings.HasPrefix(href, "javascript:") {
			continue
		}
		abs := types.ResolveURL(opts.BaseURL, href)
		u, err := url.Parse(abs)
		if err != nil || !strings.EqualFold(u.Hostname(), base.Hostname()) {
			continue
		}
		if excluded(abs, opts.Exclude) {
			continue
		}
		canon := types.CanonicalizeURL(abs)
		if seen[canon] {
			continue
		}
		seen[canon] = true
		links = append(links, canon)
		if opts.Max > 0 && len(links) >= opts.Max {
			break
		}
	}
	return links, nil
}

func excluded(link string, keywords []string) bool {
	lower := strings.ToLower(link)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

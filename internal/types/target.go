package types

import (
	"net/url"
	"sort"
	"strings"
)

// Location is an opaque service-area identifier, a six-digit postal code for
// the built-in sites. It is consumed by exactly one worker.
type Location string

func (l Location) String() string { return string(l) }

// TargetKind distinguishes category listings from single product pages.
type TargetKind int

const (
	TargetCategory TargetKind = iota
	TargetProduct
)

func (k TargetKind) String() string {
	switch k {
	case TargetCategory:
		return "category"
	case TargetProduct:
		return "product"
	default:
		return "unknown"
	}
}

// ParseTargetKind maps "category"/"product" to a TargetKind. Anything else is
// treated as a category.
func ParseTargetKind(s string) TargetKind {
	if strings.EqualFold(strings.TrimSpace(s), "product") {
		return TargetProduct
	}
	return TargetCategory
}

// Target is a URL to scrape in the context of one location.
type Target struct {
	URL      string
	Location Location
	Kind     TargetKind

	// Label is the human readable trail, e.g. "Fruits > Fresh Fruits".
	Label string
}

// Task is the unit a worker claims: one location and the targets to scrape
// once the location is set. Empty Targets means discover categories.
type Task struct {
	Location Location
	Targets  []Target
}

// CanonicalizeURL normalizes a URL so equivalent targets compare equal:
// - lowercases scheme and host
// - removes fragment
// - sorts query parameters
// - removes trailing slash (except root)
// - removes default ports (80 for http, 443 for https)
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sorted []string
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(sorted, "&")
	}

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}

// ResolveURL resolves href against base. Invalid input returns href as is.
func ResolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

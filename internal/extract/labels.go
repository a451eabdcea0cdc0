package extract

import (
	"net/url"
	"strings"
)

// Labels are the human readable category names of a listing URL.
type Labels struct {
	Category    string
	Subcategory string
}

// Clicked renders the labels as "Category > Subcategory".
func (l Labels) Clicked() string {
	switch {
	case l.Category == "":
		return ""
	case l.Subcategory == "":
		return l.Category
	default:
		return l.Category + " > " + l.Subcategory
	}
}

// CategoryFromURL reads the slugs that follow marker in a listing URL, e.g.
// "/cn/fruits-vegetables/fresh-fruits/cid/..." gives "Fruits Vegetables" and
// "Fresh Fruits". Slugs stop at the first id segment.
func CategoryFromURL(rawURL, marker string) Labels {
	u, err := url.Parse(rawURL)
	if err != nil || marker == "" {
		return Labels{}
	}
	idx := strings.Index(u.Path, marker)
	if idx < 0 {
		return Labels{}
	}

	var slugs []string
	for _, seg := range strings.Split(u.Path[idx+len(marker):], "/") {
		if seg == "" {
			continue
		}
		if seg == "cid" || seg == "scid" || seg == "c" {
			break
		}
		slugs = append(slugs, seg)
		if len(slugs) == 2 {
			break
		}
	}

	var l Labels
	if len(slugs) > 0 {
		l.Category = humanize(slugs[0])
	}
	if len(slugs) > 1 {
		l.Subcategory = humanize(slugs[1])
	}
	return l
}

func humanize(slug string) string {
	if s, err := url.PathUnescape(slug); err == nil {
		slug = s
	}
	return titleCase(strings.Join(strings.FieldsFunc(slug, func(r rune) bool {
		return r == '-' || r == '_'
	}), " "))
}

package config

import "strings"

// Presets lists the built-in storefront presets.
func Presets() []string {
	return []string{"zepto", "blinkit"}
}

// ApplyPreset overwrites the site specific sections of cfg with the named
// preset. It returns false for an unknown name and leaves cfg untouched.
func ApplyPreset(cfg *Config, name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "zepto":
		applyZepto(cfg)
	case "blinkit":
		applyBlinkit(cfg)
	default:
		return false
	}
	return true
}

var accountKeywords = []string{"cart", "account", "orders", "profile", "login"}

func applyZepto(cfg *Config) {
	cfg.Site = SiteConfig{
		Platform:           "zepto",
		BaseURL:            "https://www.zepto.com/",
		ProductURLTemplate: "{base}pn/{slug}/pvid/{id}",
		CategoryPathMarker: "/cn/",
		CategoryLinkXPath:  "//a[contains(@href, '/cn/') and contains(@href, '/cid/')]",
		ExcludeKeywords:    accountKeywords,
		DefaultCategories: []string{
			"https://www.zepto.com/cn/fruits-vegetables/fresh-fruits/cid/64374cfe-d06f-4a01-898e-c07c46462c36/scid/09e63c15-e5f7-4712-9ff8-513250b79942",
			"https://www.zepto.com/cn/dairy-bread-eggs/top-picks/cid/4b938e02-7bde-4479-bc0a-2b54cb6bd5f5/scid/b26b6bcf-7c81-48e7-a9bc-fec3825bad2a",
			"https://www.zepto.com/cn/munchies/top-picks/cid/d2c2a144-43cd-43e5-b308-92628fa68596/scid/d648ea7c-18f0-4178-a202-4751811b086b",
			"https://www.zepto.com/cn/cold-drinks-juices/top-picks/cid/947a72ae-b371-45cb-ad3a-778c05b64399/scid/7dceec53-78f9-4f06-83d7-c8edd9c2f71a",
			"https://www.zepto.com/cn/atta-rice-oil-dals/top-picks/cid/2f7190d0-7c40-458b-b450-9a1006db3d95/scid/84f270cf-ae95-4d61-a556-b35b563fb947",
		},
	}

	cfg.Location.TriggerSelectors = []string{
		"text=Select Location",
		"text=Delivery in",
		"[data-testid*='location']",
		"[data-testid*='address']",
		"text=Enter your delivery location",
		"text=Select your location",
	}
	cfg.Location.InputSelectors = []string{
		"input[placeholder='Search a new address']",
		"input[placeholder*='pincode' i]",
		"input[placeholder*='location' i]",
		"input[placeholder*='area' i]",
		"input[placeholder*='address' i]",
		"input[placeholder*='search' i]",
		"input[type='search']",
		"input[type='text']",
	}
	cfg.Location.SuggestionSelectors = []string{
		"div[data-testid='address-search-item']",
		"[role='option']",
		"[data-testid*='suggestion']",
		"div[class*='suggestion']",
		"div[class*='result']",
	}
	cfg.Location.ConfirmSelectors = []string{
		"text=Confirm",
		"button[data-testid*='confirm']",
	}
	cfg.Location.ETASelectors = []string{
		"[data-testid='delivery-time']",
		"header",
	}

	cfg.Extraction.CaptureURLKeywords = []string{"widget", "products", "catalog", "inventory", "layout"}
	cfg.Extraction.IDKeys = []string{"productVariantId", "id", "productId"}
	cfg.Extraction.NameKeys = []string{"name", "productName", "title", "display_name"}
	cfg.Extraction.PriceKeys = []string{"sellingPrice", "price", "discountedPrice"}
	cfg.Extraction.MRPKeys = []string{"mrp", "maxRetailPrice", "original_price"}
	cfg.Extraction.PriceInMinorUnits = true
	cfg.Extraction.HydrationScript = "() => window.__NEXT_DATA__"
	cfg.Extraction.HydrationSelector = "script#__NEXT_DATA__"
	cfg.Extraction.ProductLinkSelector = `a[href*="/pn/"]`
	cfg.Extraction.IDFromLinkPattern = `pvid/([a-f0-9-]+)`
	cfg.Extraction.NameFromLinkPattern = `/pn/([^/]+)/pvid`
	cfg.Extraction.AncestorLevels = 5
	cfg.Extraction.RegexAnchor = `\{"productVariantId"\s*:\s*"`
	cfg.Extraction.CategoryFilters = map[string][]string{
		"fruits":     {"detergent", "cleaner", "shampoo", "soap"},
		"vegetables": {"detergent", "cleaner", "shampoo", "soap"},
	}
}

func applyBlinkit(cfg *Config) {
	cfg.Site = SiteConfig{
		Platform:           "blinkit",
		BaseURL:            "https://blinkit.com/",
		ProductURLTemplate: "{base}prn/{slug}/prid/{id}",
		CategoryPathMarker: "/cn/",
		CategoryLinkXPath:  "//a[contains(@href, '/cn/')]",
		ExcludeKeywords:    accountKeywords,
	}

	cfg.Location.TriggerSelectors = []string{
		"div[class*='LocationBar__']",
		"text=Delivery in",
		"header div[class*='Container']",
	}
	cfg.Location.InputSelectors = []string{
		"input[name='search']",
		"input[placeholder*='search' i]",
	}
	cfg.Location.SuggestionSelectors = []string{
		"div[class*='LocationSearchList'] > div",
	}
	cfg.Location.ConfirmSelectors = []string{
		"text=Confirm",
	}
	cfg.Location.ETASelectors = []string{
		"div[class*='LocationBar__Title']",
	}

	cfg.Extraction.CaptureURLKeywords = []string{"layout", "listing", "products", "search"}
	cfg.Extraction.IDKeys = []string{"product_id", "id"}
	cfg.Extraction.NameKeys = []string{"name", "product_name", "display_name"}
	cfg.Extraction.PriceKeys = []string{"price", "selling_price"}
	cfg.Extraction.MRPKeys = []string{"mrp"}
	cfg.Extraction.PriceInMinorUnits = false
	cfg.Extraction.HydrationScript = "() => window.__NEXT_DATA__"
	cfg.Extraction.HydrationSelector = "script#__NEXT_DATA__"
	cfg.Extraction.ProductLinkSelector = `a[href*="/prn/"]`
	cfg.Extraction.IDFromLinkPattern = `prid/(\d+)`
	cfg.Extraction.NameFromLinkPattern = `/prn/([^/]+)/prid`
	cfg.Extraction.AncestorLevels = 5
	cfg.Extraction.RegexAnchor = `\{"product_id"\s*:\s*"?\d+`
	cfg.Extraction.CategoryFilters = nil
}

package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/jsonvalue"
	"github.com/IshaanNene/quickscout/internal/types"
)

var (
	inventoryKeys = []string{"inventory", "availableQuantity", "available_quantity", "stock"}
	weightKeys    = []string{"packSize", "pack_size", "weight", "unit", "packDesc", "quantity_info"}
	shelfLifeKeys = []string{"shelfLifeInHours", "shelf_life_in_hours", "shelf_life_hours", "shelfLife", "shelf_life"}
	urlKeys       = []string{"url", "productUrl", "product_url"}
	brandKeys     = []string{"brand", "brandName"}
	storeKeys     = []string{"storeId", "merchantId", "merchant_id", "store_id"}
	imageKeys     = []string{"imageUrl", "image_url", "image", "thumbnail"}
	groupKeys     = []string{"groupId", "variantGroupId", "group_id"}
	merchantKeys  = []string{"merchantType", "sellerType", "merchant_type"}
	baseIDKeys    = []string{"productId", "product_id"}

	soldOutFlags = []string{"outOfStock", "isSoldOut", "is_sold_out"}
	stockKeys    = []string{
		"outOfStock", "isSoldOut", "is_sold_out", "inStock", "productState",
		"available_quantity", "availableQuantity", "unavailable_quantity", "inventory",
	}

	digitsRe = regexp.MustCompile(`\d+`)
)

// Normalizer converts candidates into product records.
type Normalizer struct {
	shape       Shape
	minorUnits  bool
	baseURL     string
	urlTemplate string
}

// NewNormalizer builds a normalizer for the configured site.
func NewNormalizer(cfg *config.Config) *Normalizer {
	return &Normalizer{
		shape:       ShapeFromConfig(cfg.Extraction),
		minorUnits:  cfg.Extraction.PriceInMinorUnits,
		baseURL:     cfg.Site.BaseURL,
		urlTemplate: cfg.Site.ProductURLTemplate,
	}
}

// Normalize maps a candidate to a record. It is total: any candidate that
// lacks an id, a name, or both prices yields false.
func (n *Normalizer) Normalize(c Candidate, rc RecordContext) (types.ProductRecord, bool) {
	v := c.Fields
	if !v.IsObject() {
		return types.ProductRecord{}, false
	}

	id := n.shape.ID(v)
	name := v.FirstText(n.shape.NameKeys...)
	if id == "" || name == "" {
		return types.ProductRecord{}, false
	}

	price := n.price(v, n.shape.PriceKeys, c.MajorUnits)
	mrp := n.price(v, n.shape.MRPKeys, c.MajorUnits)
	if price == 0 && mrp == 0 {
		return types.ProductRecord{}, false
	}
	if price == 0 {
		price = mrp
	}
	if mrp == 0 {
		mrp = price
	}

	rec := types.ProductRecord{
		ID:             id,
		BaseProductID:  v.FirstText(baseIDKeys...),
		GroupID:        v.FirstText(groupKeys...),
		MerchantType:   v.FirstText(merchantKeys...),
		Name:           name,
		Brand:          v.FirstText(brandKeys...),
		Price:          price,
		MRP:            mrp,
		Weight:         v.FirstText(weightKeys...),
		Stock:          stockState(v),
		Inventory:      intField(v, inventoryKeys),
		ShelfLifeHours: shelfLife(v),
		DeliveryETA:    rc.DeliveryETA,
		Platform:       rc.Platform,
		Category:       rc.Category,
		Subcategory:    rc.Subcategory,
		ClickedLabel:   rc.ClickedLabel,
		StoreID:        v.FirstText(storeKeys...),
		ImageURL:       v.FirstText(imageKeys...),
		ProductURL:     v.FirstText(urlKeys...),
		ScrapedAt:      rc.ScrapedAt,
		Location:       rc.Location,
		RunID:          rc.RunID,
	}
	if rec.BaseProductID == "" {
		rec.BaseProductID = id
	}
	if rec.Brand == "" {
		if b, ok := v.Get("brand"); ok && b.IsObject() {
			rec.Brand = b.FirstText("name")
		}
	}
	if rec.ImageURL == "" {
		rec.ImageURL = firstImage(v)
	}
	if rec.ProductURL == "" {
		rec.ProductURL = n.productURL(name, id)
	} else {
		rec.ProductURL = types.ResolveURL(n.baseURL, rec.ProductURL)
	}
	return rec, true
}

// price returns the first positive price among keys in major units.
func (n *Normalizer) price(v jsonvalue.Value, keys []string, major bool) float64 {
	for _, k := range keys {
		m, ok := v.Get(k)
		if !ok {
			continue
		}
		f, ok := m.Float()
		if !ok || f <= 0 {
			continue
		}
		if n.minorUnits && !major && m.IsInteger() {
			f /= 100
		}
		return math.Round(f*100) / 100
	}
	return 0
}

func (n *Normalizer) productURL(name, id string) string {
	if n.urlTemplate == "" {
		return ""
	}
	return strings.NewReplacer(
		"{base}", n.baseURL,
		"{slug}", Slug(name),
		"{id}", id,
	).Replace(n.urlTemplate)
}

// Slug lowercases name and replaces spaces and slashes with dashes, capped at
// 50 characters.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer(" ", "-", "/", "-").Replace(s)
	if r := []rune(s); len(r) > 50 {
		s = string(r[:50])
	}
	return s
}

func stockState(v jsonvalue.Value) types.StockState {
	present := false
	for _, k := range stockKeys {
		if v.Has(k) {
			present = true
			break
		}
	}
	if !present {
		return types.StockUnknown
	}

	for _, k := range soldOutFlags {
		if m, ok := v.Get(k); ok {
			if b, isBool := m.Bool(); isBool && b {
				return types.OutOfStock
			}
		}
	}
	if m, ok := v.Get("inStock"); ok {
		if b, isBool := m.Bool(); isBool && !b {
			return types.OutOfStock
		}
	}
	if strings.EqualFold(v.FirstText("productState"), "OUT_OF_STOCK") {
		return types.OutOfStock
	}
	for _, k := range []string{"available_quantity", "availableQuantity", "inventory"} {
		if q, ok := intValue(v, k); ok && q == 0 {
			return types.OutOfStock
		}
	}
	if q, ok := intValue(v, "unavailable_quantity"); ok && q == 1 {
		return types.OutOfStock
	}
	return types.InStock
}

func intValue(v jsonvalue.Value, key string) (int, bool) {
	m, ok := v.Get(key)
	if !ok {
		return 0, false
	}
	return m.Int()
}

func intField(v jsonvalue.Value, keys []string) *int {
	for _, k := range keys {
		if i, ok := intValue(v, k); ok {
			return &i
		}
	}
	return nil
}

// shelfLife reads a shelf life in hours. Strings such as "3 days" are
// converted; zero means unknown.
func shelfLife(v jsonvalue.Value) *int {
	for _, k := range shelfLifeKeys {
		m, ok := v.Get(k)
		if !ok || m.IsNull() {
			continue
		}
		hours, ok := m.Int()
		if !ok {
			s := strings.ToLower(m.Text())
			d := digitsRe.FindString(s)
			if d == "" {
				continue
			}
			hours, _ = strconv.Atoi(d)
			if strings.Contains(s, "day") {
				hours *= 24
			}
		}
		if hours <= 0 {
			continue
		}
		return &hours
	}
	return nil
}

// firstImage handles images given as a list of strings or of {path|url}
// objects.
func firstImage(v jsonvalue.Value) string {
	imgs, ok := v.Get("images")
	if !ok || imgs.Len() == 0 {
		return ""
	}
	first := imgs.Elements()[0]
	if s, ok := first.Str(); ok {
		return s
	}
	return first.FirstText("url", "path")
}

package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// StockState is the availability reported for a product.
type StockState string

const (
	InStock      StockState = "In Stock"
	OutOfStock   StockState = "Out of Stock"
	StockUnknown StockState = "Unknown"
	NotFound     StockState = "Not Found"
)

// ProductRecord is one normalized product observed for a location.
type ProductRecord struct {
	ID             string     `json:"product_id" bson:"product_id"`
	BaseProductID  string     `json:"base_product_id,omitempty" bson:"base_product_id,omitempty"`
	GroupID        string     `json:"group_id,omitempty" bson:"group_id,omitempty"`
	MerchantType   string     `json:"merchant_type,omitempty" bson:"merchant_type,omitempty"`
	Name           string     `json:"name" bson:"name"`
	Brand          string     `json:"brand,omitempty" bson:"brand,omitempty"`
	Price          float64    `json:"price" bson:"price"`
	MRP            float64    `json:"mrp" bson:"mrp"`
	Weight         string     `json:"weight,omitempty" bson:"weight,omitempty"`
	Stock          StockState `json:"availability" bson:"availability"`
	Inventory      *int       `json:"inventory,omitempty" bson:"inventory,omitempty"`
	ShelfLifeHours *int       `json:"shelf_life_in_hours,omitempty" bson:"shelf_life_in_hours,omitempty"`
	DeliveryETA    string     `json:"eta,omitempty" bson:"eta,omitempty"`
	Platform       string     `json:"platform" bson:"platform"`
	Category       string     `json:"category,omitempty" bson:"category,omitempty"`
	Subcategory    string     `json:"subcategory,omitempty" bson:"subcategory,omitempty"`
	ClickedLabel   string     `json:"clicked_label,omitempty" bson:"clicked_label,omitempty"`
	StoreID        string     `json:"store_id,omitempty" bson:"store_id,omitempty"`
	ImageURL       string     `json:"image_url,omitempty" bson:"image_url,omitempty"`
	ProductURL     string     `json:"product_url,omitempty" bson:"product_url,omitempty"`
	ScrapedAt      time.Time  `json:"scraped_at" bson:"scraped_at"`
	Location       Location   `json:"pincode_input" bson:"pincode_input"`
	RunID          string     `json:"run_id,omitempty" bson:"run_id,omitempty"`
	Error          string     `json:"error,omitempty" bson:"error,omitempty"`
}

// Valid reports whether the record is worth persisting: it has a name and at
// least one of price or MRP. A NotFound record only needs its id.
func (r *ProductRecord) Valid() bool {
	if r.Stock == NotFound {
		return r.ID != ""
	}
	return r.Name != "" && (r.Price > 0 || r.MRP > 0)
}

// Richness counts the non-empty fields. Duplicate records collapse into the
// richer one.
func (r *ProductRecord) Richness() int {
	n := 0
	for _, s := range []string{
		r.ID, r.BaseProductID, r.GroupID, r.MerchantType, r.Name, r.Brand,
		r.Weight, r.DeliveryETA, r.Platform, r.Category, r.Subcategory,
		r.ClickedLabel, r.StoreID, r.ImageURL, r.ProductURL,
	} {
		if s != "" {
			n++
		}
	}
	if r.Price > 0 {
		n++
	}
	if r.MRP > 0 {
		n++
	}
	if r.Stock != "" && r.Stock != StockUnknown {
		n++
	}
	if r.Inventory != nil {
		n++
	}
	if r.ShelfLifeHours != nil {
		n++
	}
	return n
}

// Columns is the fixed column order used by tabular sinks.
func Columns() []string {
	return []string{
		"platform", "category", "subcategory", "clicked_label", "name", "brand",
		"base_product_id", "product_id", "group_id", "merchant_type", "mrp", "price",
		"weight", "shelf_life_in_hours", "eta", "availability", "inventory", "store_id",
		"product_url", "image_url", "scraped_at", "pincode_input", "run_id",
	}
}

// Row renders the record in Columns order.
func (r *ProductRecord) Row() []string {
	return []string{
		r.Platform, r.Category, r.Subcategory, r.ClickedLabel, r.Name, r.Brand,
		r.BaseProductID, r.ID, r.GroupID, r.MerchantType,
		formatPrice(r.MRP), formatPrice(r.Price),
		r.Weight, formatIntPtr(r.ShelfLifeHours), r.DeliveryETA, string(r.Stock),
		formatIntPtr(r.Inventory), r.StoreID, r.ProductURL, r.ImageURL,
		formatTime(r.ScrapedAt), string(r.Location), r.RunID,
	}
}

// ToMap returns the record keyed by column name, with typed values.
func (r *ProductRecord) ToMap() map[string]any {
	m := make(map[string]any, 24)
	b, err := json.Marshal(r)
	if err != nil {
		return m
	}
	_ = json.Unmarshal(b, &m)
	return m
}

// ToJSON serializes the record to JSON bytes.
func (r *ProductRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ResultBatch is the records one target produced. Producers never touch a
// batch after pushing it.
type ResultBatch struct {
	Location Location
	Target   Target
	Strategy string
	Worker   int
	Records  []ProductRecord
}

func formatPrice(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

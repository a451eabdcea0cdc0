package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/jsonvalue"
	"github.com/IshaanNene/quickscout/internal/types"
)

func mustParse(t *testing.T, s string) jsonvalue.Value {
	t.Helper()
	v, err := jsonvalue.Parse([]byte(s))
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return v
}

func zeptoNormalizer() *Normalizer {
	return NewNormalizer(config.DefaultConfig())
}

func TestNormalizeMinorUnits(t *testing.T) {
	n := zeptoNormalizer()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	r, ok := n.Normalize(Candidate{Fields: mustParse(t, `{"productVariantId":"pv1","productId":"p1","name":"Amul Taaza Toned Milk","sellingPrice":2700,"mrp":2900,"storeId":"s9"}`)},
		RecordContext{Platform: "zepto", Location: "560001", ScrapedAt: now, RunID: "run-1"})
	if !ok {
		t.Fatal("expected record")
	}
	if r.Price != 27 || r.MRP != 29 {
		t.Errorf("expected 27/29, got %v/%v", r.Price, r.MRP)
	}
	if r.ID != "pv1" || r.BaseProductID != "p1" || r.StoreID != "s9" {
		t.Errorf("unexpected ids: %+v", r)
	}
	if r.ProductURL != "https://www.zepto.com/pn/amul-taaza-toned-milk/pvid/pv1" {
		t.Errorf("unexpected synthesized url %q", r.ProductURL)
	}
	if r.Stock != types.StockUnknown {
		t.Errorf("expected unknown stock without stock fields, got %q", r.Stock)
	}
	if !r.ScrapedAt.Equal(now) || r.RunID != "run-1" || r.Location != "560001" {
		t.Errorf("context not applied: %+v", r)
	}
}

func TestNormalizeMajorUnitsAreNotDivided(t *testing.T) {
	n := zeptoNormalizer()

	r, ok := n.Normalize(Candidate{
		Fields:     mustParse(t, `{"productVariantId":"pv1","name":"Milk","sellingPrice":27}`),
		MajorUnits: true,
	}, RecordContext{})
	if !ok || r.Price != 27 {
		t.Fatalf("expected 27, got %v (ok=%v)", r.Price, ok)
	}

	r, ok = n.Normalize(Candidate{Fields: mustParse(t, `{"productVariantId":"pv2","name":"Milk","sellingPrice":27.5}`)}, RecordContext{})
	if !ok || r.Price != 27.5 {
		t.Fatalf("fractional prices are already major units, got %v", r.Price)
	}
}

func TestNormalizeBlinkitPricesAreMajor(t *testing.T) {
	cfg := config.DefaultConfig()
	config.ApplyPreset(cfg, "blinkit")
	n := NewNormalizer(cfg)

	r, ok := n.Normalize(Candidate{Fields: mustParse(t, `{"product_id":12345,"name":"Bread","price":40,"mrp":45}`)}, RecordContext{})
	if !ok {
		t.Fatal("expected record")
	}
	if r.ID != "12345" || r.Price != 40 || r.MRP != 45 {
		t.Errorf("unexpected record %+v", r)
	}
	if r.ProductURL != "https://blinkit.com/prn/bread/prid/12345" {
		t.Errorf("unexpected url %q", r.ProductURL)
	}
}

func TestNormalizePriceFallbacks(t *testing.T) {
	n := zeptoNormalizer()

	r, ok := n.Normalize(Candidate{Fields: mustParse(t, `{"id":"a","name":"X","mrp":5000}`)}, RecordContext{})
	if !ok || r.Price != 50 || r.MRP != 50 {
		t.Errorf("expected price to take mrp, got %v/%v", r.Price, r.MRP)
	}

	r, ok = n.Normalize(Candidate{Fields: mustParse(t, `{"id":"a","name":"X","sellingPrice":0,"discountedPrice":1500}`)}, RecordContext{})
	if !ok || r.Price != 15 {
		t.Errorf("expected first positive price key, got %v", r.Price)
	}
}

func TestNormalizeRejects(t *testing.T) {
	n := zeptoNormalizer()
	tests := []struct {
		name string
		json string
	}{
		{"no id", `{"name":"X","sellingPrice":100}`},
		{"no name", `{"id":"a","sellingPrice":100}`},
		{"no prices", `{"id":"a","name":"X"}`},
		{"zero prices", `{"id":"a","name":"X","sellingPrice":0,"mrp":0}`},
		{"not an object", `[1,2,3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := n.Normalize(Candidate{Fields: mustParse(t, tt.json)}, RecordContext{}); ok {
				t.Errorf("expected rejection for %s", tt.json)
			}
		})
	}
}

func TestNormalizeStock(t *testing.T) {
	n := zeptoNormalizer()
	tests := []struct {
		extra string
		want  types.StockState
	}{
		{``, types.StockUnknown},
		{`,"outOfStock":false`, types.InStock},
		{`,"outOfStock":true`, types.OutOfStock},
		{`,"isSoldOut":true`, types.OutOfStock},
		{`,"is_sold_out":true`, types.OutOfStock},
		{`,"productState":"OUT_OF_STOCK"`, types.OutOfStock},
		{`,"productState":"ACTIVE"`, types.InStock},
		{`,"availableQuantity":0`, types.OutOfStock},
		{`,"available_quantity":3`, types.InStock},
		{`,"unavailable_quantity":1`, types.OutOfStock},
		{`,"inStock":false`, types.OutOfStock},
	}
	for _, tt := range tests {
		r, ok := n.Normalize(Candidate{Fields: mustParse(t, `{"id":"a","name":"X","mrp":100`+tt.extra+`}`)}, RecordContext{})
		if !ok {
			t.Fatalf("%s: expected record", tt.extra)
		}
		if r.Stock != tt.want {
			t.Errorf("%q: expected %q, got %q", tt.extra, tt.want, r.Stock)
		}
	}
}

func TestNormalizeOptionalFields(t *testing.T) {
	n := zeptoNormalizer()

	r, ok := n.Normalize(Candidate{Fields: mustParse(t, `{
		"id":"a","name":"Paneer","mrp":9000,
		"availableQuantity":7,
		"shelfLife":"3 days",
		"brandName":"Milky Mist",
		"pack_size":"200 g",
		"images":[{"path":"cms/paneer.jpg"}],
		"url":"/pn/paneer/pvid/a",
		"groupId":"g1","sellerType":"3P"
	}`)}, RecordContext{})
	if !ok {
		t.Fatal("expected record")
	}
	if r.Inventory == nil || *r.Inventory != 7 {
		t.Errorf("expected inventory 7, got %v", r.Inventory)
	}
	if r.ShelfLifeHours == nil || *r.ShelfLifeHours != 72 {
		t.Errorf("expected 72 hours shelf life, got %v", r.ShelfLifeHours)
	}
	if r.Brand != "Milky Mist" || r.Weight != "200 g" || r.GroupID != "g1" || r.MerchantType != "3P" {
		t.Errorf("unexpected fields: %+v", r)
	}
	if r.ImageURL != "cms/paneer.jpg" {
		t.Errorf("unexpected image %q", r.ImageURL)
	}
	if r.ProductURL != "https://www.zepto.com/pn/paneer/pvid/a" {
		t.Errorf("expected relative url resolved, got %q", r.ProductURL)
	}
}

func TestNormalizeZeroShelfLifeIsUnknown(t *testing.T) {
	n := zeptoNormalizer()
	r, _ := n.Normalize(Candidate{Fields: mustParse(t, `{"id":"a","name":"X","mrp":100,"shelfLifeInHours":0}`)}, RecordContext{})
	if r.ShelfLifeHours != nil {
		t.Errorf("expected nil shelf life, got %d", *r.ShelfLifeHours)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Amul Taaza Milk", "amul-taaza-milk"},
		{"Fruits/Vegetables", "fruits-vegetables"},
		{"  Trim Me ", "trim-me"},
		{"", ""},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

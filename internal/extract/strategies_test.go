package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/IshaanNene/quickscout/internal/config"
)

func zeptoShape() Shape {
	return ShapeFromConfig(config.DefaultConfig().Extraction)
}

func ids(t *testing.T, shape Shape, cands []Candidate) []string {
	t.Helper()
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = shape.ID(c.Fields)
	}
	return out
}

// --- Shape Tests ---

func TestShapeMatches(t *testing.T) {
	s := zeptoShape()
	tests := []struct {
		json string
		want bool
	}{
		{`{"id":"a","name":"Milk","sellingPrice":100}`, true},
		{`{"productVariantId":"a","name":"Milk","mrp":"₹29"}`, true},
		{`{"id":"a","name":"","sellingPrice":100}`, false},
		{`{"id":"a","name":12,"sellingPrice":100}`, false},
		{`{"id":"a","name":"Milk"}`, false},
		{`{"id":"a","name":"Milk","price":0}`, false},
		{`{"name":"Milk","price":10}`, false},
		{`["id","name","price"]`, false},
	}
	for _, tt := range tests {
		if got := s.Matches(mustParse(t, tt.json)); got != tt.want {
			t.Errorf("Matches(%s) = %v, want %v", tt.json, got, tt.want)
		}
	}
}

func TestShapeCollectGuardsSeenIDs(t *testing.T) {
	s := zeptoShape()
	doc := mustParse(t, `{"a":[{"id":"1","name":"A","price":5}],"b":{"c":{"id":"1","name":"A","price":5}},"d":{"id":"2","name":"B","price":6}}`)

	seen := map[string]int{}
	got := s.Collect(doc, seen)
	if len(got) != 2 {
		t.Fatalf("expected 2 unique products, got %d", len(got))
	}
	if again := s.Collect(doc, seen); len(again) != 0 {
		t.Errorf("seen guard should span calls, got %d", len(again))
	}
}

func TestShapeCollectKeepsRicherDuplicate(t *testing.T) {
	s := zeptoShape()
	doc := mustParse(t, `{"rail":[{"id":"1","name":"A","price":5}],
		"detail":{"id":"1","name":"A","price":5,"brand":"Amul","packSize":"500 ml"},
		"footer":{"id":"1","name":"A","price":5}}`)

	got := s.Collect(doc, map[string]int{})
	if len(got) != 2 {
		t.Fatalf("expected the stub and the richer duplicate, got %d", len(got))
	}
	if _, ok := got[1].Get("brand"); !ok {
		t.Errorf("expected the second match to be the full object, got %d members", got[1].Len())
	}
}

func TestShapeCollectRespectsDepthCap(t *testing.T) {
	s := zeptoShape()
	s.Limits.MaxDepth = 3
	deep := strings.Repeat(`{"x":`, 10) + `{"id":"1","name":"A","price":5}` + strings.Repeat(`}`, 10)
	if got := s.Collect(mustParse(t, deep), map[string]int{}); len(got) != 0 {
		t.Errorf("expected product below depth cap to be ignored, got %d", len(got))
	}
}

// --- Network Strategy Tests ---

func TestNetworkStrategy(t *testing.T) {
	s := NewNetworkStrategy(zeptoShape(), []string{"catalog", "widget"})
	src := &StaticSource{Captured: []Payload{
		{URL: "https://api.example.com/catalog/1", Status: 200, Body: []byte(`{"items":[{"id":"a","name":"A","sellingPrice":100},{"id":"b","name":"B","mrp":200}]}`)},
		{URL: "https://api.example.com/catalog/2", Status: 500, Body: []byte(`{"id":"c","name":"C","sellingPrice":1}`)},
		{URL: "https://api.example.com/analytics", Status: 200, Body: []byte(`{"id":"d","name":"D","sellingPrice":1}`)},
		{URL: "https://api.example.com/widget", Status: 200, Body: []byte("not json at all")},
		{URL: "https://api.example.com/catalog/3", Status: 200, Body: []byte(`{"id":"a","name":"A again","sellingPrice":100}`)},
	}}

	cands, err := s.TryExtract(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := strings.Join(ids(t, zeptoShape(), cands), ",")
	if got != "a,b" {
		t.Errorf("expected a,b, got %s", got)
	}
}

func TestNetworkStrategyFlightRows(t *testing.T) {
	body := "0:[\"$\",\"html\",null]\n" +
		`1a:{"products":[{"productVariantId":"pv1","name":"Curd","sellingPrice":3500}]}` + "\n" +
		"2:I[\"chunk\",[]]\n" +
		`3:[{"productVariantId":"pv2","name":"Paneer","mrp":9000}]` + "\n"

	s := NewNetworkStrategy(zeptoShape(), nil)
	cands, _ := s.TryExtract(context.Background(), &StaticSource{Captured: []Payload{{URL: "https://x/?_rsc=1", Body: []byte(body)}}})
	if got := strings.Join(ids(t, zeptoShape(), cands), ","); got != "pv1,pv2" {
		t.Errorf("expected pv1,pv2 from flight rows, got %q", got)
	}
}

// --- Hydration Strategy Tests ---

const nextData = `{"props":{"pageProps":{"id":"page","catalog":{"items":[
	{"productVariantId":"h1","name":"Apple","sellingPrice":12000},
	{"productVariantId":"h2","name":"Banana","sellingPrice":4000},
	{"productVariantId":"h3","name":"Cherry","mrp":30000}
]}}}}`

func TestHydrationStrategyEvaluate(t *testing.T) {
	cfg := config.DefaultConfig().Extraction
	s := NewHydrationStrategy(zeptoShape(), cfg.HydrationScript, cfg.HydrationSelector)

	src := &StaticSource{Scripts: map[string][]byte{cfg.HydrationScript: []byte(nextData)}}
	cands, err := s.TryExtract(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(ids(t, zeptoShape(), cands), ","); got != "h1,h2,h3" {
		t.Errorf("expected h1,h2,h3, got %s", got)
	}
}

func TestHydrationStrategyFallsBackToScriptElement(t *testing.T) {
	cfg := config.DefaultConfig().Extraction
	s := NewHydrationStrategy(zeptoShape(), cfg.HydrationScript, cfg.HydrationSelector)

	src := &StaticSource{
		Scripts: map[string][]byte{cfg.HydrationScript: []byte("null")},
		Body:    `<html><body><script id="__NEXT_DATA__" type="application/json">` + nextData + `</script></body></html>`,
	}
	cands, err := s.TryExtract(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 3 {
		t.Errorf("expected 3 candidates, got %d", len(cands))
	}
}

func TestHydrationStrategyMissing(t *testing.T) {
	s := NewHydrationStrategy(zeptoShape(), "() => window.__NEXT_DATA__", "script#__NEXT_DATA__")
	if _, err := s.TryExtract(context.Background(), &StaticSource{Body: "<html></html>"}); err == nil {
		t.Error("expected error when no hydration data exists")
	}
}

// --- DOM Strategy Tests ---

const cardsHTML = `<html><body><div class="grid">
<div class="card"><div class="inner">
	<a href="/pn/amul-taaza-toned-milk/pvid/aaaa-1111"><img data-src="https://cdn.example.com/milk.jpg"></a>
	<p>Amul</p><p>500 ml</p><span>₹27</span><span>₹29</span><button>ADD</button>
</div></div>
<div class="card"><div class="inner">
	<a href="/pn/amul-taaza-toned-milk/pvid/aaaa-1111">again</a><span>₹27</span>
</div></div>
<div class="card"><div class="inner">
	<a href="/pn/no-price/pvid/bbbb-2222"></a><p>Sold out</p>
</div></div>
<div class="card"><div class="inner">
	<a href="https://www.zepto.com/offer/pvid/cccc-3333"></a>
	<p>₹1,099</p><p>Basmati Rice 5 kg</p>
</div></div>
</div></body></html>`

func TestDOMStrategy(t *testing.T) {
	cfg := config.DefaultConfig().Extraction
	cfg.ProductLinkSelector = `a[href*="/pvid/"]`
	cfg.AncestorLevels = 2
	s, err := NewDOMStrategy(zeptoShape(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	src := &StaticSource{PageURL: "https://www.zepto.com/cn/dairy/cid/1", Body: cardsHTML}
	cands, err := s.TryExtract(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cands))
	}

	milk := cands[0]
	if !milk.MajorUnits {
		t.Error("dom prices should be flagged as major units")
	}
	checks := map[string]string{
		"productVariantId": "aaaa-1111",
		"name":             "Amul Taaza Toned Milk",
		"sellingPrice":     "27",
		"mrp":              "29",
		"packSize":         "500 ml",
		"brand":            "Amul",
		"imageUrl":         "https://cdn.example.com/milk.jpg",
		"url":              "https://www.zepto.com/pn/amul-taaza-toned-milk/pvid/aaaa-1111",
	}
	for key, want := range checks {
		if got := milk.Fields.FirstText(key); got != want {
			t.Errorf("%s: expected %q, got %q", key, want, got)
		}
	}

	rice := cands[1]
	if got := rice.Fields.FirstText("name"); got != "Basmati Rice 5 kg" {
		t.Errorf("expected name from first text line, got %q", got)
	}
	if got := rice.Fields.FirstText("sellingPrice"); got != "1099" {
		t.Errorf("expected 1099, got %q", got)
	}
}

// --- Regex Strategy Tests ---

func TestRegexStrategy(t *testing.T) {
	cfg := config.DefaultConfig().Extraction
	s, err := NewRegexStrategy(zeptoShape(), cfg.RegexAnchor)
	if err != nil {
		t.Fatal(err)
	}

	body := `<script>window.x = {"productVariantId":"r1","name":"Eggs","sellingPrice":8500,"mrp":9000}; ` +
		`window.y = {"productVariantId":"broken", </script>` +
		`<script>{"productVariantId":"r2","name":"","sellingPrice":1}</script>` +
		`<script>{"productVariantId":"r1","name":"Eggs","sellingPrice":8500}</script>`

	cands, err := s.TryExtract(context.Background(), &StaticSource{Body: body})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(ids(t, zeptoShape(), cands), ","); got != "r1" {
		t.Errorf("expected only r1, got %q", got)
	}
}

func TestRegexStrategyEscapedPayload(t *testing.T) {
	cfg := config.DefaultConfig().Extraction
	s, _ := NewRegexStrategy(zeptoShape(), cfg.RegexAnchor)

	body := `<script>self.__next_f.push([1,"{\"productVariantId\":\"e1\",\"name\":\"Bread\",\"sellingPrice\":4000}"])</script>`
	cands, _ := s.TryExtract(context.Background(), &StaticSource{Body: body})
	if len(cands) != 1 || zeptoShape().ID(cands[0].Fields) != "e1" {
		t.Fatalf("expected e1 from escaped payload, got %d candidates", len(cands))
	}
}

// --- JSON-LD Strategy Tests ---

func TestJSONLDStrategy(t *testing.T) {
	body := `<html><head>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"BreadcrumbList"}</script>
<script type="application/ld+json">{"@graph":[{"@type":"Product","sku":"j1","name":"Ghee 1 L","brand":{"@type":"Brand","name":"Amul"},
"image":["https://cdn/ghee.jpg"],"offers":{"@type":"Offer","price":"645.00","availability":"https://schema.org/OutOfStock"}}]}</script>
</head></html>`

	s := NewJSONLDStrategy(zeptoShape())
	cands, err := s.TryExtract(context.Background(), &StaticSource{PageURL: "https://www.zepto.com/pn/ghee/pvid/j1", Body: body})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 product, got %d", len(cands))
	}

	r, ok := zeptoNormalizer().Normalize(cands[0], RecordContext{})
	if !ok {
		t.Fatal("expected normalized record")
	}
	if r.Price != 645 || r.Brand != "Amul" || r.Stock != "Out of Stock" || r.ImageURL != "https://cdn/ghee.jpg" {
		t.Errorf("unexpected record %+v", r)
	}
}

// --- Labels and Discovery Tests ---

func TestCategoryFromURL(t *testing.T) {
	tests := []struct {
		url, cat, sub, clicked string
	}{
		{"https://www.zepto.com/cn/fruits-vegetables/fresh-fruits/cid/64374cfe/scid/09e63c15", "Fruits Vegetables", "Fresh Fruits", "Fruits Vegetables > Fresh Fruits"},
		{"https://www.zepto.com/cn/munchies/cid/d2c2a144", "Munchies", "", "Munchies"},
		{"https://www.zepto.com/pn/milk/pvid/1", "", "", ""},
	}
	for _, tt := range tests {
		l := CategoryFromURL(tt.url, "/cn/")
		if l.Category != tt.cat || l.Subcategory != tt.sub || l.Clicked() != tt.clicked {
			t.Errorf("%s: got %+v (%q)", tt.url, l, l.Clicked())
		}
	}
}

func TestDiscoverCategories(t *testing.T) {
	body := `<html><body><nav>
<a href="/cn/fruits-vegetables/fresh-fruits/cid/1/scid/2">Fruits</a>
<a href="/cn/fruits-vegetables/fresh-fruits/cid/1/scid/2/">Fruits again</a>
<a href="/cn/cart/cid/9">Cart</a>
<a href="https://other.example.com/cn/x/cid/3">Elsewhere</a>
<a href="/pn/milk/pvid/4">Product</a>
<a href="/cn/munchies/chips/cid/5/scid/6#top">Chips</a>
<a href="/cn/dairy/milk/cid/7/scid/8">Milk</a>
</nav></body></html>`

	cfg := config.DefaultConfig()
	opts := DiscoverOptions{
		BaseURL: cfg.Site.BaseURL,
		XPath:   cfg.Site.CategoryLinkXPath,
		Exclude: cfg.Site.ExcludeKeywords,
	}

	links, err := DiscoverCategories(body, opts)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	want := []string{
		"https://www.zepto.com/cn/fruits-vegetables/fresh-fruits/cid/1/scid/2",
		"https://www.zepto.com/cn/munchies/chips/cid/5/scid/6",
		"https://www.zepto.com/cn/dairy/milk/cid/7/scid/8",
	}
	if strings.Join(links, " ") != strings.Join(want, " ") {
		t.Errorf("expected %v, got %v", want, links)
	}

	opts.Max = 2
	links, _ = DiscoverCategories(body, opts)
	if len(links) != 2 {
		t.Errorf("expected cap of 2, got %d", len(links))
	}

	opts.XPath = "//a[@"
	if _, err := DiscoverCategories(body, opts); err == nil {
		t.Error("expected invalid xpath error")
	}
}

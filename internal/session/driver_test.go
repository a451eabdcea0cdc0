package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/IshaanNene/quickscout/internal/browser/browsertest"
	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/extract"
	"github.com/IshaanNene/quickscout/internal/observability"
	"github.com/IshaanNene/quickscout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const (
	hydrationScript = "() => window.__NEXT_DATA__"
	milkURL         = "https://www.zepto.com/cn/dairy-bread-eggs/milk/cid/c1/scid/s1"
	fruitURL        = "https://www.zepto.com/cn/fruits-vegetables/fresh-fruits/cid/c2/scid/s2"
)

// testConfig is the zepto preset with every pause removed and short step
// timeouts.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Browser.NavigationTimeout = 2 * time.Second
	cfg.Location.StepTimeout = 300 * time.Millisecond
	cfg.Location.SuggestionTimeout = 100 * time.Millisecond
	cfg.Location.ConfirmationTimeout = 300 * time.Millisecond
	cfg.Location.TypeDelay = 0
	cfg.Session.TargetDelayMin = 0
	cfg.Session.TargetDelayMax = 0
	cfg.Session.CooldownMin = 0
	cfg.Session.CooldownMax = 0
	cfg.Session.LongBreakProbability = 0
	cfg.Session.SettleDelay = 0
	cfg.Session.CaptureWindow = 0
	cfg.Session.ScrollSteps = 0
	cfg.Fanout.Concurrency = 4
	return cfg
}

// testUI mirrors the first selector of each zepto selector list.
func testUI() *browsertest.LocationUI {
	return &browsertest.LocationUI{
		Trigger:       "text=Select Location",
		Input:         "input[placeholder='Search a new address']",
		Suggestion:    "div[data-testid='address-search-item']",
		Confirm:       "text=Confirm",
		ETA:           "[data-testid='delivery-time']",
		ETAText:       "Delivery in 12 mins",
		AcceptConfirm: true,
	}
}

func hydrationPage(items string) *browsertest.PageSpec {
	return &browsertest.PageSpec{
		HTML:    "<html><body></body></html>",
		Scripts: map[string]string{hydrationScript: `{"props":{"pageProps":{"items":[` + items + `]}}}`},
	}
}

func testSite(cfg *config.Config) *browsertest.Site {
	return &browsertest.Site{
		Root: cfg.Site.BaseURL,
		UI:   testUI(),
		Pages: map[string]*browsertest.PageSpec{
			milkURL: hydrationPage(`{"productVariantId":"m1","name":"Amul Taaza","sellingPrice":2700,"mrp":2900},
				{"productVariantId":"m2","name":"Amul Gold","sellingPrice":3400}`),
			fruitURL: hydrationPage(`{"productVariantId":"f1","name":"Banana Robusta","sellingPrice":4900}`),
		},
	}
}

type collectSink struct {
	mu      sync.Mutex
	batches []types.ResultBatch
}

func (s *collectSink) Push(b types.ResultBatch) {
	s.mu.Lock()
	s.batches = append(s.batches, b)
	s.mu.Unlock()
}

func (s *collectSink) Batches() []types.ResultBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ResultBatch(nil), s.batches...)
}

func (s *collectSink) Records() int {
	n := 0
	for _, b := range s.Batches() {
		n += len(b.Records)
	}
	return n
}

func newTestDriver(t *testing.T, cfg *config.Config, site *browsertest.Site, sink BatchSink, opts ...Option) *Driver {
	t.Helper()
	chain, err := extract.BuildChain(cfg, testLogger, nil)
	if err != nil {
		t.Fatalf("build chain: %v", err)
	}
	d, err := NewDriver(0, cfg, site.Launcher(), chain, sink, testLogger, opts...)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	return d
}

func launched(t *testing.T, d *Driver) {
	t.Helper()
	if err := d.Launch(context.Background()); err != nil {
		t.Fatalf("launch: %v", err)
	}
}

// --- Driver Tests ---

func TestProcessLocationSequentialTargets(t *testing.T) {
	cfg := testConfig()
	cfg.Fanout.Enabled = false
	site := testSite(cfg)
	sink := &collectSink{}
	metrics := observability.NewMetrics(testLogger)
	d := newTestDriver(t, cfg, site, sink, WithMetrics(metrics), WithRunID("run-42"))
	launched(t, d)

	task := types.Task{Location: "560001", Targets: []types.Target{
		{URL: milkURL, Kind: types.TargetCategory},
		{URL: fruitURL, Kind: types.TargetCategory},
	}}
	if err := d.ProcessLocation(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}

	if d.State().Phase != Scraping {
		t.Errorf("expected scraping, got %s", d.State().Phase)
	}
	batches := sink.Batches()
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	first := batches[0]
	if first.Strategy != "hydration" || len(first.Records) != 2 || first.Location != "560001" {
		t.Fatalf("unexpected batch %+v", first)
	}
	r := first.Records[0]
	if r.Price != 27 || r.DeliveryETA != "12 mins" || r.RunID != "run-42" || r.Location != "560001" {
		t.Errorf("record context not applied: %+v", r)
	}
	if r.Category != "Dairy Bread Eggs" || r.Subcategory != "Milk" || r.ClickedLabel != "Dairy Bread Eggs > Milk" {
		t.Errorf("unexpected labels %q / %q / %q", r.Category, r.Subcategory, r.ClickedLabel)
	}
	if got := testutil.ToFloat64(metrics.SessionTransitions.WithLabelValues("location_set")); got != 1 {
		t.Errorf("expected 1 location_set transition, got %v", got)
	}

	if err := d.Retire(); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if d.State().Phase != Retired || !site.Sessions()[0].Closed() {
		t.Error("expected retired and closed session")
	}
}

func TestProcessLocationDiscoversCategoriesAndFansOut(t *testing.T) {
	cfg := testConfig()
	site := testSite(cfg)
	site.Pages[cfg.Site.BaseURL] = &browsertest.PageSpec{HTML: `<html><body>
		<a href="/cn/dairy-bread-eggs/milk/cid/c1/scid/s1">Milk</a>
		<a href="/cn/fruits-vegetables/fresh-fruits/cid/c2/scid/s2">Fruits</a>
		<a href="/cn/cart/cid/x">Cart</a>
		<a href="/pn/some-product/pvid/p1">Product</a>
	</body></html>`}
	sink := &collectSink{}
	d := newTestDriver(t, cfg, site, sink)
	launched(t, d)

	if err := d.ProcessLocation(context.Background(), types.Task{Location: "560001"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := sink.Records(); got != 3 {
		t.Fatalf("expected 3 records across discovered categories, got %d", got)
	}
	if site.OpenContexts() != 0 {
		t.Errorf("expected every isolated context closed, %d open", site.OpenContexts())
	}
	if site.PeakContexts() == 0 {
		t.Error("expected categories to run in isolated contexts")
	}
}

func TestDefaultCategoriesWhenDiscoveryFindsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Site.DefaultCategories = []string{milkURL}
	site := testSite(cfg)
	sink := &collectSink{}
	d := newTestDriver(t, cfg, site, sink)
	launched(t, d)

	if err := d.ProcessLocation(context.Background(), types.Task{Location: "560001"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := sink.Records(); got != 2 {
		t.Fatalf("expected the default milk category, got %d records", got)
	}
}

func TestProductTargetKeepsOnlyNamedProduct(t *testing.T) {
	const (
		productURL = "https://www.zepto.com/pn/amul-taaza/pvid/a1"
		missingURL = "https://www.zepto.com/pn/gone/pvid/ff"
	)
	cfg := testConfig()
	cfg.Fanout.Enabled = false
	site := testSite(cfg)
	site.Pages[productURL] = hydrationPage(`{"productVariantId":"a1","name":"Amul Taaza","sellingPrice":2700},
		{"productVariantId":"b1","name":"Amul Gold","sellingPrice":3400},
		{"productVariantId":"b2","name":"Amul Slim","sellingPrice":2600}`)
	site.Pages[missingURL] = hydrationPage(`{"productVariantId":"b1","name":"Amul Gold","sellingPrice":3400}`)
	sink := &collectSink{}
	d := newTestDriver(t, cfg, site, sink, WithRunID("run-7"))
	launched(t, d)

	task := types.Task{Location: "560001", Targets: []types.Target{
		{URL: productURL, Kind: types.TargetProduct},
		{URL: missingURL, Kind: types.TargetProduct},
	}}
	if err := d.ProcessLocation(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}

	batches := sink.Batches()
	if len(batches) != 2 {
		t.Fatalf("expected one batch per product target, got %d", len(batches))
	}
	if len(batches[0].Records) != 1 || batches[0].Records[0].ID != "a1" {
		t.Errorf("expected only a1 from the product page, got %+v", batches[0].Records)
	}
	if len(batches[1].Records) != 1 {
		t.Fatalf("expected a single not-found record, got %+v", batches[1].Records)
	}
	missing := batches[1].Records[0]
	if missing.ID != "ff" || missing.Stock != types.NotFound {
		t.Errorf("expected ff not found, got id=%s stock=%q", missing.ID, missing.Stock)
	}
	if missing.Location != "560001" || missing.ProductURL != missingURL || missing.Platform != "zepto" || missing.RunID != "run-7" {
		t.Errorf("record context not applied: %+v", missing)
	}
	if !missing.Valid() {
		t.Error("a not-found record must survive sink validation")
	}
}

func TestRedirectedCategoryYieldsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Fanout.Enabled = false
	site := testSite(cfg)
	site.Pages[milkURL].RedirectTo = cfg.Site.BaseURL
	sink := &collectSink{}
	d := newTestDriver(t, cfg, site, sink)
	launched(t, d)

	task := types.Task{Location: "560001", Targets: []types.Target{{URL: milkURL, Kind: types.TargetCategory}}}
	if err := d.ProcessLocation(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(sink.Batches()) != 0 {
		t.Fatalf("expected no batches for a redirected category, got %d", len(sink.Batches()))
	}
}

func TestBlockedTargetBlocksSession(t *testing.T) {
	cfg := testConfig()
	cfg.Fanout.Enabled = false
	site := testSite(cfg)
	site.Pages[fruitURL].Status = 403
	sink := &collectSink{}
	metrics := observability.NewMetrics(testLogger)
	d := newTestDriver(t, cfg, site, sink, WithMetrics(metrics))
	launched(t, d)

	task := types.Task{Location: "560001", Targets: []types.Target{
		{URL: milkURL, Kind: types.TargetCategory},
		{URL: fruitURL, Kind: types.TargetCategory},
		{URL: milkURL, Kind: types.TargetCategory},
	}}
	err := d.ProcessLocation(context.Background(), task)
	if !types.IsBlocked(err) {
		t.Fatalf("expected block, got %v", err)
	}
	var be *types.BlockedError
	if !errors.As(err, &be) || be.Status != 403 || be.URL != fruitURL {
		t.Errorf("unexpected block error %+v", be)
	}
	if d.State().Phase != Blocked {
		t.Errorf("expected blocked, got %s", d.State().Phase)
	}
	if !site.Sessions()[0].Closed() {
		t.Error("expected blocked session to be closed")
	}
	if site.Sessions()[0].BlockReports() != 1 {
		t.Errorf("expected the block to be reported once, got %d", site.Sessions()[0].BlockReports())
	}
	if len(sink.Batches()) != 1 {
		t.Errorf("expected only the batch before the block, got %d", len(sink.Batches()))
	}
	if got := testutil.ToFloat64(metrics.SessionTransitions.WithLabelValues("blocked")); got != 1 {
		t.Errorf("expected 1 blocked transition, got %v", got)
	}
	if err := d.Retire(); err != nil {
		t.Errorf("retire after block should be a no-op, got %v", err)
	}
}

func TestLaunchFailureRetires(t *testing.T) {
	cfg := testConfig()
	site := testSite(cfg)
	site.LaunchErr = errors.New("no chrome")
	d := newTestDriver(t, cfg, site, &collectSink{})

	err := d.Launch(context.Background())
	if !errors.Is(err, types.ErrLaunchFailed) {
		t.Fatalf("expected launch failure, got %v", err)
	}
	if d.State().Phase != Retired {
		t.Errorf("expected retired, got %s", d.State().Phase)
	}
}

func TestCooldownHonorsCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.Session.CooldownMin = time.Hour
	cfg.Session.CooldownMax = time.Hour
	site := testSite(cfg)
	d := newTestDriver(t, cfg, site, &collectSink{})
	launched(t, d)
	if err := d.ProcessLocation(context.Background(), types.Task{Location: "560001", Targets: []types.Target{{URL: milkURL}}}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := d.Cooldown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cooldown ignored cancellation")
	}
	if err := d.Retire(); err != nil {
		t.Fatalf("cooldown -> retiring should be legal: %v", err)
	}
}

func TestNewDriverRejectsBadETAPattern(t *testing.T) {
	cfg := testConfig()
	cfg.Location.ETAPattern = "(("
	chain, _ := extract.BuildChain(cfg, testLogger, nil)
	if _, err := NewDriver(0, cfg, testSite(cfg).Launcher(), chain, &collectSink{}, testLogger); err == nil {
		t.Fatal("expected error for invalid eta pattern")
	}
}

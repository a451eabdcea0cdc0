// Package session drives one browser session through its lifecycle: launch,
// set a location, scrape its targets, cool down, and retire or block.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/quickscout/internal/browser"
	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/extract"
	"github.com/IshaanNene/quickscout/internal/fetcher"
	"github.com/IshaanNene/quickscout/internal/observability"
	"github.com/IshaanNene/quickscout/internal/types"
)

// capturePoll is how often the capture buffer is checked while waiting for
// network payloads.
const capturePoll = 100 * time.Millisecond

// BatchSink receives the batches a driver produces.
type BatchSink interface {
	Push(types.ResultBatch)
}

// Option configures a Driver.
type Option func(*Driver)

// WithMetrics records transitions, contexts and extraction counts on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithRunID stamps every record with id.
func WithRunID(id string) Option {
	return func(d *Driver) { d.runID = id }
}

// Driver owns one browser session. It is used by a single worker goroutine;
// only Push and the halt flag are touched by fan-out sub-tasks.
type Driver struct {
	id        int
	cfg       *config.Config
	launcher  browser.Launcher
	chain     *extract.Chain
	fast      *extract.Chain
	scheduler *SubtaskScheduler
	detector  *fetcher.BlockDetector
	sink      BatchSink
	metrics   *observability.Metrics
	logger    *slog.Logger
	runID     string

	etaPattern *regexp.Regexp
	idPattern  *regexp.Regexp

	sess  browser.Session
	state State

	mu     sync.Mutex
	halted bool
}

// NewDriver creates the driver for worker id.
func NewDriver(id int, cfg *config.Config, launcher browser.Launcher, chain *extract.Chain, sink BatchSink, logger *slog.Logger, opts ...Option) (*Driver, error) {
	eta, err := regexp.Compile(cfg.Location.ETAPattern)
	if err != nil {
		return nil, fmt.Errorf("compile eta pattern: %w", err)
	}

	d := &Driver{
		id:         id,
		cfg:        cfg,
		launcher:   launcher,
		chain:      chain,
		detector:   fetcher.NewBlockDetector(&cfg.Session),
		sink:       sink,
		logger:     logger.With("component", "session", "worker", id),
		etaPattern: eta,
	}
	if cfg.Extraction.IDFromLinkPattern != "" {
		if d.idPattern, err = regexp.Compile(cfg.Extraction.IDFromLinkPattern); err != nil {
			return nil, fmt.Errorf("compile id_from_link_pattern: %w", err)
		}
	}
	for _, opt := range opts {
		opt(d)
	}

	d.fast = chain
	if len(cfg.Fanout.FastPathStrategies) > 0 {
		d.fast = chain.Subset(cfg.Fanout.FastPathStrategies...)
	}
	d.scheduler = NewSubtaskScheduler(cfg.Fanout.Concurrency, d.metrics, d.logger)
	return d, nil
}

// State returns the current session state.
func (d *Driver) State() State { return d.state }

func (d *Driver) transition(p Phase) error {
	next, err := d.state.To(p)
	if err != nil {
		d.logger.Error("illegal transition", "from", d.state.Phase, "to", p)
		return err
	}
	d.logger.Debug("session transition", "from", d.state.Phase, "to", p, "location", next.Location)
	d.state = next
	d.metrics.IncTransition(p.String())
	return nil
}

// Launch starts the browser. A failed launch retires the session.
func (d *Driver) Launch(ctx context.Context) error {
	if err := d.transition(Launching); err != nil {
		return err
	}
	sess, err := d.launcher.Launch(ctx)
	if err != nil {
		d.logger.Error("browser launch failed", "error", err)
		_ = d.transition(Retired)
		return err
	}
	d.sess = sess
	d.logger.Info("browser session launched")
	return nil
}

// ProcessLocation sets task.Location on the session and scrapes its targets.
// A *types.LocationError means the location was abandoned and the session
// is still usable. A block error means the session is now Blocked.
func (d *Driver) ProcessLocation(ctx context.Context, task types.Task) error {
	if d.sess == nil {
		return fmt.Errorf("process %s: session not launched", task.Location)
	}
	d.state = d.state.ForLocation(task.Location)
	if err := d.transition(LocationPending); err != nil {
		return err
	}

	st, err := d.SetLocation(ctx, d.state)
	if err != nil {
		if types.IsBlocked(err) {
			d.block(err)
		}
		return err
	}
	d.state = st
	if err := d.transition(LocationSet); err != nil {
		return err
	}
	if err := d.transition(Scraping); err != nil {
		return err
	}

	targets := d.targets(ctx, task)
	d.logger.Info("scraping location", "location", task.Location, "targets", len(targets))

	if err := d.scrape(ctx, targets); err != nil && types.IsBlocked(err) {
		d.block(err)
		return err
	}
	return nil
}

// targets returns the task's explicit targets, or discovers category
// listings from the site root the session is currently on.
func (d *Driver) targets(ctx context.Context, task types.Task) []types.Target {
	if len(task.Targets) > 0 {
		out := make([]types.Target, len(task.Targets))
		for i, t := range task.Targets {
			t.Location = task.Location
			out[i] = t
		}
		return out
	}

	var links []string
	if d.cfg.Fanout.DiscoverCategories {
		html, err := d.sess.HTML(ctx)
		if err == nil {
			links, err = extract.DiscoverCategories(html, extract.DiscoverOptions{
				BaseURL: d.cfg.Site.BaseURL,
				XPath:   d.cfg.Site.CategoryLinkXPath,
				Exclude: d.cfg.Site.ExcludeKeywords,
				Max:     d.cfg.Fanout.MaxCategories,
			})
		}
		if err != nil {
			d.logger.Warn("category discovery failed", "error", err)
		}
	}
	if len(links) == 0 {
		for _, c := range d.cfg.Site.DefaultCategories {
			links = append(links, types.ResolveURL(d.cfg.Site.BaseURL, c))
		}
		if limit := d.cfg.Fanout.MaxCategories; limit > 0 && len(links) > limit {
			links = links[:limit]
		}
		d.logger.Debug("using default categories", "count", len(links))
	}

	out := make([]types.Target, 0, len(links))
	for _, l := range links {
		out = append(out, types.Target{
			URL:      l,
			Location: task.Location,
			Kind:     types.TargetCategory,
			Label:    extract.CategoryFromURL(l, d.cfg.Site.CategoryPathMarker).Clicked(),
		})
	}
	return out
}

// scrape runs category targets through the fan-out when enabled and
// everything else sequentially on the session page.
func (d *Driver) scrape(ctx context.Context, targets []types.Target) error {
	var fan, seq []types.Target
	for _, t := range targets {
		if d.cfg.Fanout.Enabled && t.Kind == types.TargetCategory {
			fan = append(fan, t)
		} else {
			seq = append(seq, t)
		}
	}

	st := d.state
	if len(fan) > 0 {
		err := d.scheduler.Run(ctx, d.sess, fan, func(ctx context.Context, page browser.Page, t types.Target) error {
			return d.scrapeTarget(ctx, page, t, st, d.fast)
		})
		if err != nil {
			return err
		}
	}

	for i, t := range seq {
		if i > 0 {
			if err := sleepRange(ctx, d.cfg.Session.TargetDelayMin, d.cfg.Session.TargetDelayMax); err != nil {
				return err
			}
		}
		err := d.scrapeTarget(ctx, d.sess, t, st, d.chain)
		if err == nil {
			continue
		}
		if types.IsBlocked(err) || ctx.Err() != nil {
			return err
		}
		d.logger.Warn("target failed", "url", t.URL, "error", err)
	}
	return nil
}

// scrapeTarget loads one target on page, extracts it with chain and pushes
// a non-empty batch.
func (d *Driver) scrapeTarget(ctx context.Context, page browser.Page, t types.Target, st State, chain *extract.Chain) error {
	sc := d.cfg.Session
	capture := NewCaptureBuffer(sc.CaptureCacheSize, d.cfg.Extraction.CaptureURLKeywords)
	stop := page.OnResponse(capture.Handle)
	defer stop()

	navCtx, cancel := context.WithTimeout(ctx, d.cfg.Browser.NavigationTimeout)
	nav, err := page.Navigate(navCtx, t.URL)
	cancel()
	if err != nil {
		return err
	}
	if err := d.checkBlocked(ctx, page, nav); err != nil {
		d.halt()
		return err
	}

	marker := d.cfg.Site.CategoryPathMarker
	if t.Kind == types.TargetCategory && marker != "" && !strings.Contains(nav.URL, marker) {
		d.logger.Warn("category redirected away", "url", t.URL, "final_url", nav.URL)
		return nil
	}

	if err := d.settle(ctx, page, capture); err != nil {
		return err
	}

	labels := extract.CategoryFromURL(nav.URL, marker)
	rc := extract.RecordContext{
		Platform:     d.cfg.Site.Platform,
		Category:     labels.Category,
		Subcategory:  labels.Subcategory,
		ClickedLabel: labels.Clicked(),
		Location:     st.Location,
		DeliveryETA:  st.DeliveryETA,
		RunID:        d.runID,
		ScrapedAt:    time.Now().UTC(),
	}
	res := chain.Extract(ctx, &pageSource{page: page, capture: capture}, rc)
	d.metrics.AddExtracted(res.Strategy, len(res.Records))
	d.logger.Debug("target extracted",
		"url", t.URL,
		"strategy", res.Strategy,
		"candidates", res.Candidates,
		"records", len(res.Records),
		"payloads", capture.Len(),
	)

	if t.Kind == types.TargetProduct {
		res.Records = d.pinProduct(t, res.Records, rc)
	}
	if len(res.Records) == 0 && res.Strategy == "" {
		return fmt.Errorf("%s: %w", t.URL, types.ErrNoCandidates)
	}

	d.push(types.ResultBatch{
		Location: st.Location,
		Target:   t,
		Strategy: res.Strategy,
		Worker:   d.id,
		Records:  res.Records,
	})
	return nil
}

// pinProduct narrows a product page to the product its URL names, dropping
// recommendations. A missing product yields one NotFound record.
func (d *Driver) pinProduct(t types.Target, records []types.ProductRecord, rc extract.RecordContext) []types.ProductRecord {
	if d.idPattern == nil {
		return records
	}
	m := d.idPattern.FindStringSubmatch(t.URL)
	if len(m) < 2 || m[1] == "" {
		return records
	}
	id := m[1]
	for _, r := range records {
		if r.ID == id {
			return []types.ProductRecord{r}
		}
	}
	d.logger.Info("product not found", "url", t.URL, "id", id, "location", rc.Location)
	return []types.ProductRecord{{
		ID:          id,
		Stock:       types.NotFound,
		Platform:    rc.Platform,
		ProductURL:  t.URL,
		Location:    rc.Location,
		DeliveryETA: rc.DeliveryETA,
		ScrapedAt:   rc.ScrapedAt,
		RunID:       rc.RunID,
	}}
}

// settle waits for the page to render, scrolls to trigger lazy loading and
// gives captured responses a window to arrive.
func (d *Driver) settle(ctx context.Context, page browser.Page, capture *CaptureBuffer) error {
	sc := d.cfg.Session
	if err := fetcher.Sleep(ctx, fetcher.RandomDelay(sc.SettleDelay)); err != nil {
		return err
	}

	scroll := fmt.Sprintf("() => window.scrollBy(0, %d)", sc.ScrollPixels)
	for i := 0; i < sc.ScrollSteps; i++ {
		if _, err := page.Evaluate(ctx, scroll); err != nil {
			break
		}
		if err := fetcher.Sleep(ctx, fetcher.RandomDelay(sc.ScrollPause)); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(sc.CaptureWindow)
	for capture.Len() == 0 && time.Now().Before(deadline) {
		if err := fetcher.Sleep(ctx, capturePoll); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) push(b types.ResultBatch) {
	if len(b.Records) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return
	}
	d.sink.Push(b)
}

func (d *Driver) halt() {
	d.mu.Lock()
	d.halted = true
	d.mu.Unlock()
}

// block moves the session to Blocked and closes the browser.
func (d *Driver) block(err error) {
	d.halt()
	var be *types.BlockedError
	if errors.As(err, &be) {
		d.logger.Error("session blocked", "url", be.URL, "status", be.Status, "marker", be.Marker, "location", d.state.Location)
	} else {
		d.logger.Error("session blocked", "error", err, "location", d.state.Location)
	}
	_ = d.transition(Blocked)
	if r, ok := d.sess.(browser.BlockReporter); ok {
		r.ReportBlocked(err)
	}
	d.closeSession()
}

// Cooldown pauses between locations. With the configured probability a long
// break is added.
func (d *Driver) Cooldown(ctx context.Context) error {
	if err := d.transition(Cooldown); err != nil {
		return err
	}
	sc := d.cfg.Session
	pause := fetcher.RandomBetween(sc.CooldownMin, sc.CooldownMax)
	if sc.LongBreakProbability > 0 && rand.Float64() < sc.LongBreakProbability {
		extra := fetcher.RandomBetween(sc.LongBreakMin, sc.LongBreakMax)
		d.logger.Info("taking a long break", "duration", extra)
		pause += extra
	}
	d.logger.Debug("cooling down", "duration", pause)
	return fetcher.Sleep(ctx, pause)
}

// Retire closes the session after its last location.
func (d *Driver) Retire() error {
	if d.state.Phase.Terminal() {
		return nil
	}
	if err := d.transition(Retiring); err != nil {
		return err
	}
	d.closeSession()
	return d.transition(Retired)
}

func (d *Driver) closeSession() {
	if d.sess == nil {
		return
	}
	if err := d.sess.Close(); err != nil {
		d.logger.Debug("close session", "error", err)
	}
	d.sess = nil
}

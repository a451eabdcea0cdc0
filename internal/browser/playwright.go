package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/fetcher"
	"github.com/IshaanNene/quickscout/internal/types"
)

// PlaywrightLauncher launches Chromium builds through playwright-go, trying
// each configured channel in turn.
type PlaywrightLauncher struct {
	cfg     *config.Config
	proxies *fetcher.ProxyManager
	logger  *slog.Logger
}

// NewPlaywrightLauncher creates a playwright based launcher.
func NewPlaywrightLauncher(cfg *config.Config, proxies *fetcher.ProxyManager, logger *slog.Logger) *PlaywrightLauncher {
	return &PlaywrightLauncher{
		cfg:     cfg,
		proxies: proxies,
		logger:  logger.With("component", "playwright_launcher"),
	}
}

func (l *PlaywrightLauncher) channels() []string {
	if len(l.cfg.Browser.Channels) == 0 {
		return []string{""}
	}
	return l.cfg.Browser.Channels
}

// Launch starts playwright and the first channel that comes up.
func (l *PlaywrightLauncher) Launch(ctx context.Context) (Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: start playwright: %w", types.ErrLaunchFailed, err)
	}

	profile := fetcher.NewStealthProfile(&l.cfg.Browser)
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.cfg.Browser.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--window-size=" + profile.WindowSize(),
		},
	}
	proxyURL := l.proxies.Next()
	if proxyURL != nil {
		opts.Proxy = &playwright.Proxy{Server: proxyURL.String()}
	}

	var errs []error
	for _, channel := range l.channels() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		opts.Channel = nil
		if channel != "" {
			opts.Channel = playwright.String(channel)
		}

		browser, err := pw.Chromium.Launch(opts)
		if err != nil {
			l.logger.Warn("browser launch failed", "channel", channelName(channel), "error", err)
			errs = append(errs, err)
			continue
		}

		page, err := l.newPage(browser, profile)
		if err != nil {
			_ = browser.Close()
			errs = append(errs, err)
			continue
		}

		l.logger.Info("browser launched", "channel", channelName(channel), "viewport", profile.WindowSize())
		return &pwSession{
			pwPage:   page,
			launcher: l,
			pw:       pw,
			browser:  browser,
			profile:  profile,
			proxy:    proxyURL,
		}, nil
	}

	_ = pw.Stop()
	return nil, fmt.Errorf("%w: %w", types.ErrLaunchFailed, errors.Join(errs...))
}

func channelName(channel string) string {
	if channel == "" {
		return "bundled"
	}
	return channel
}

// newPage opens a page in a fresh browser context carrying the profile.
func (l *PlaywrightLauncher) newPage(browser playwright.Browser, profile *fetcher.StealthProfile) (*pwPage, error) {
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(profile.UserAgent),
		Viewport: &playwright.Size{
			Width:  profile.ViewportWidth,
			Height: profile.ViewportHeight,
		},
		JavaScriptEnabled: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	if l.cfg.Browser.Stealth {
		if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(profile.InitScript())}); err != nil {
			l.logger.Warn("failed to install init script", "error", err)
		}
	}
	for _, pattern := range l.cfg.Browser.BlockResources {
		if err := bctx.Route("**/"+pattern, func(route playwright.Route) {
			_ = route.Abort()
		}); err != nil {
			l.logger.Warn("route block failed", "pattern", pattern, "error", err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	page.SetDefaultTimeout(float64(l.cfg.Browser.NavigationTimeout.Milliseconds()))

	return newPWPage(page, bctx), nil
}

// pwSession is a playwright driver, a browser and its primary page.
type pwSession struct {
	*pwPage
	launcher *PlaywrightLauncher
	pw       *playwright.Playwright
	browser  playwright.Browser
	profile  *fetcher.StealthProfile
	proxy    *url.URL
}

// ReportBlocked takes the session's proxy out of rotation.
func (s *pwSession) ReportBlocked(err error) {
	s.launcher.proxies.MarkFailed(s.proxy, err)
}

// NewIsolatedContext opens a page in a new browser context seeded with the
// primary context's cookies, which carry the location.
func (s *pwSession) NewIsolatedContext(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := s.launcher.newPage(s.browser, s.profile)
	if err != nil {
		return nil, err
	}

	cookies, err := s.bctx.Cookies()
	if err == nil && len(cookies) > 0 {
		if err := page.bctx.AddCookies(optionalCookies(cookies)); err != nil {
			s.launcher.logger.Warn("failed to copy cookies", "error", err)
		}
	}
	return page, nil
}

func optionalCookies(cookies []playwright.Cookie) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			Expires:  playwright.Float(c.Expires),
			HttpOnly: playwright.Bool(c.HttpOnly),
			Secure:   playwright.Bool(c.Secure),
			SameSite: c.SameSite,
		})
	}
	return out
}

// Close shuts down the context, the browser and the driver.
func (s *pwSession) Close() error {
	var errs []error
	if err := s.pwPage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close context: %w", err))
	}
	if err := s.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	if err := s.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

// pwPage adapts a playwright page and its owning context to Page.
type pwPage struct {
	page playwright.Page
	bctx playwright.BrowserContext

	mu       sync.Mutex
	handlers map[int]func(Response)
	nextID   int
}

func newPWPage(page playwright.Page, bctx playwright.BrowserContext) *pwPage {
	p := &pwPage{page: page, bctx: bctx, handlers: make(map[int]func(Response))}
	page.OnResponse(func(resp playwright.Response) {
		p.mu.Lock()
		handlers := make([]func(Response), 0, len(p.handlers))
		for _, h := range p.handlers {
			handlers = append(handlers, h)
		}
		p.mu.Unlock()
		if len(handlers) == 0 {
			return
		}

		r := Response{
			URL:         resp.URL(),
			Status:      resp.Status(),
			ContentType: resp.Headers()["content-type"],
			Body:        resp.Body,
		}
		for _, h := range handlers {
			h(r)
		}
	})
	return p
}

// timeoutMS converts the context deadline to playwright's millisecond
// timeout. Zero means the page default.
func timeoutMS(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	ms := float64(time.Until(deadline).Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return playwright.Float(ms)
}

func (p *pwPage) Navigate(ctx context.Context, url string) (*Navigation, error) {
	resp, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMS(ctx),
	})
	if err != nil {
		return nil, &types.FetchError{URL: url, Err: err, Retryable: true}
	}
	nav := &Navigation{URL: p.page.URL()}
	if resp != nil {
		nav.Status = resp.Status()
	}
	return nav, nil
}

func (p *pwPage) WaitVisible(ctx context.Context, selector string) (Element, error) {
	loc := p.page.Locator(selector).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeoutMS(ctx),
	}); err != nil {
		return nil, fmt.Errorf("element %s not visible: %w", selector, err)
	}
	return &pwElement{loc: loc}, nil
}

func (p *pwPage) QueryAll(_ context.Context, selector string) ([]Element, error) {
	locs, err := p.page.Locator(selector).All()
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(locs))
	for _, loc := range locs {
		out = append(out, &pwElement{loc: loc})
	}
	return out, nil
}

func (p *pwPage) Evaluate(_ context.Context, script string) ([]byte, error) {
	v, err := p.page.Evaluate(script)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (p *pwPage) HTML(context.Context) (string, error) {
	return p.page.Content()
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) PressKey(_ context.Context, key string) error {
	return p.page.Keyboard().Press(key)
}

func (p *pwPage) OnResponse(handler func(Response)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.handlers[id] = handler
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.handlers, id)
		p.mu.Unlock()
	}
}

// Close closes the page's browser context, which closes the page with it.
func (p *pwPage) Close() error {
	return p.bctx.Close()
}

// pwElement adapts a playwright locator to Element.
type pwElement struct {
	loc playwright.Locator
}

func (e *pwElement) Click(ctx context.Context) error {
	return e.loc.Click(playwright.LocatorClickOptions{Timeout: timeoutMS(ctx)})
}

func (e *pwElement) Text(ctx context.Context) (string, error) {
	return e.loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: timeoutMS(ctx)})
}

func (e *pwElement) Type(ctx context.Context, text string, delay time.Duration) error {
	if err := e.loc.Fill("", playwright.LocatorFillOptions{Timeout: timeoutMS(ctx)}); err != nil {
		return err
	}
	return e.loc.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay:   playwright.Float(float64(delay.Milliseconds())),
		Timeout: timeoutMS(ctx),
	})
}

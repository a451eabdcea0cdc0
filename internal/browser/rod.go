package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/fetcher"
	"github.com/IshaanNene/quickscout/internal/types"
)

// RodLauncher launches Chromium through go-rod.
type RodLauncher struct {
	cfg     *config.Config
	proxies *fetcher.ProxyManager
	logger  *slog.Logger
}

// NewRodLauncher creates a rod based launcher.
func NewRodLauncher(cfg *config.Config, proxies *fetcher.ProxyManager, logger *slog.Logger) *RodLauncher {
	return &RodLauncher{
		cfg:     cfg,
		proxies: proxies,
		logger:  logger.With("component", "rod_launcher"),
	}
}

// candidates is the binary fallback chain: configured paths, the system
// browser, then rod's managed download ("").
func (l *RodLauncher) candidates() []string {
	bins := append([]string(nil), l.cfg.Browser.BinPaths...)
	if path, ok := launcher.LookPath(); ok {
		bins = append(bins, path)
	}
	return append(bins, "")
}

// Launch starts a browser, trying each candidate binary in turn.
func (l *RodLauncher) Launch(ctx context.Context) (Session, error) {
	profile := fetcher.NewStealthProfile(&l.cfg.Browser)
	proxyURL := l.proxies.Next()

	var errs []error
	for _, bin := range l.candidates() {
		browser, err := l.connect(ctx, bin, profile, proxyURL)
		if err != nil {
			l.logger.Warn("browser launch failed", "bin", binName(bin), "error", err)
			errs = append(errs, err)
			continue
		}

		page, err := l.newPage(browser, profile)
		if err != nil {
			_ = browser.Close()
			errs = append(errs, err)
			continue
		}

		l.logger.Info("browser launched", "bin", binName(bin), "viewport", profile.WindowSize())
		return &rodSession{
			rodPage:  page,
			launcher: l,
			browser:  browser,
			profile:  profile,
			proxy:    proxyURL,
		}, nil
	}
	return nil, fmt.Errorf("%w: %w", types.ErrLaunchFailed, errors.Join(errs...))
}

func binName(bin string) string {
	if bin == "" {
		return "managed"
	}
	return bin
}

// connect starts Chromium with the anti-automation flags and connects to it.
func (l *RodLauncher) connect(ctx context.Context, bin string, profile *fetcher.StealthProfile, proxyURL *url.URL) (*rod.Browser, error) {
	lc := launcher.New().
		Context(ctx).
		Headless(l.cfg.Browser.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", profile.WindowSize())
	if bin != "" {
		lc = lc.Bin(bin)
	}

	if proxyURL != nil {
		lc = lc.Proxy(proxyURL.String())
	}

	controlURL, err := lc.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		lc.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	// Later calls take their deadline from the per-operation context.
	return browser.Context(context.Background()), nil
}

// newPage opens a stealth page and applies the session profile to it.
func (l *RodLauncher) newPage(browser *rod.Browser, profile *fetcher.StealthProfile) (*rodPage, error) {
	var (
		page *rod.Page
		err  error
	)
	if l.cfg.Browser.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	if l.cfg.Browser.Stealth {
		if _, err := page.EvalOnNewDocument(profile.InitScript()); err != nil {
			l.logger.Warn("failed to install init script", "error", err)
		}
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: profile.UserAgent}); err != nil {
		l.logger.Warn("failed to set user agent", "error", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             profile.ViewportWidth,
		Height:            profile.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		l.logger.Warn("failed to set viewport", "error", err)
	}
	if blocked := l.cfg.Browser.BlockResources; len(blocked) > 0 {
		if err := (proto.NetworkSetBlockedURLs{Urls: blocked}).Call(page); err != nil {
			l.logger.Warn("set blocked urls failed", "error", err)
		}
	}

	return newRodPage(page, l.logger), nil
}

// rodSession is a browser process plus its primary page.
type rodSession struct {
	*rodPage
	launcher *RodLauncher
	browser  *rod.Browser
	profile  *fetcher.StealthProfile
	proxy    *url.URL
}

// ReportBlocked takes the session's proxy out of rotation.
func (s *rodSession) ReportBlocked(err error) {
	s.launcher.proxies.MarkFailed(s.proxy, err)
}

// NewIsolatedContext opens a stealth page inside a fresh incognito context
// seeded with the primary context's cookies, which carry the location.
func (s *rodSession) NewIsolatedContext(ctx context.Context) (Page, error) {
	incognito, err := s.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("create incognito context: %w", err)
	}
	incognito = incognito.Context(context.Background())

	if cookies, err := s.browser.GetCookies(); err == nil && len(cookies) > 0 {
		if err := incognito.SetCookies(proto.CookiesToParams(cookies)); err != nil {
			s.launcher.logger.Warn("failed to copy cookies", "error", err)
		}
	}

	page, err := s.launcher.newPage(incognito, s.profile)
	if err != nil {
		_ = incognito.Close()
		return nil, err
	}
	page.dispose = incognito.Close
	return page, nil
}

// Close shuts down the browser and releases resources.
func (s *rodSession) Close() error {
	_ = s.rodPage.Close()
	return s.browser.Close()
}

// rodPage adapts *rod.Page to Page. A background listener tracks the main
// document status and fans finished responses out to handlers.
type rodPage struct {
	page    *rod.Page
	logger  *slog.Logger
	stop    context.CancelFunc
	dispose func() error

	mu        sync.Mutex
	handlers  map[int]func(Response)
	nextID    int
	docStatus int
	pending   map[proto.NetworkRequestID]*proto.NetworkResponse
}

func newRodPage(page *rod.Page, logger *slog.Logger) *rodPage {
	ctx, cancel := context.WithCancel(context.Background())
	p := &rodPage{
		page:     page,
		logger:   logger,
		stop:     cancel,
		handlers: make(map[int]func(Response)),
		pending:  make(map[proto.NetworkRequestID]*proto.NetworkResponse),
	}

	wait := page.Context(ctx).EachEvent(
		func(e *proto.NetworkResponseReceived) {
			p.mu.Lock()
			defer p.mu.Unlock()
			if e.Type == proto.NetworkResourceTypeDocument {
				p.docStatus = e.Response.Status
			}
			if len(p.handlers) > 0 {
				p.pending[e.RequestID] = e.Response
			}
		},
		func(e *proto.NetworkLoadingFinished) {
			p.mu.Lock()
			resp, ok := p.pending[e.RequestID]
			delete(p.pending, e.RequestID)
			handlers := make([]func(Response), 0, len(p.handlers))
			for _, h := range p.handlers {
				handlers = append(handlers, h)
			}
			p.mu.Unlock()
			if !ok {
				return
			}

			r := Response{
				URL:         resp.URL,
				Status:      resp.Status,
				ContentType: resp.MIMEType,
				Body:        p.bodyLoader(e.RequestID),
			}
			for _, h := range handlers {
				h(r)
			}
		},
	)
	go wait()
	return p
}

func (p *rodPage) bodyLoader(id proto.NetworkRequestID) func() ([]byte, error) {
	return func() ([]byte, error) {
		res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(p.page)
		if err != nil {
			return nil, err
		}
		if res.Base64Encoded {
			return base64.StdEncoding.DecodeString(res.Body)
		}
		return []byte(res.Body), nil
	}
}

func (p *rodPage) Navigate(ctx context.Context, url string) (*Navigation, error) {
	p.mu.Lock()
	p.docStatus = 0
	p.mu.Unlock()

	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return nil, &types.FetchError{URL: url, Err: err, Retryable: true}
	}
	if err := page.WaitLoad(); err != nil {
		p.logger.Debug("page load wait failed, continuing", "url", url, "error", err)
	}

	nav := &Navigation{URL: p.URL()}
	p.mu.Lock()
	nav.Status = p.docStatus
	p.mu.Unlock()
	return nav, nil
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string) (Element, error) {
	page := p.page.Context(ctx)
	sel := ParseSelector(selector)

	var (
		el  *rod.Element
		err error
	)
	if sel.Text != "" {
		el, err = page.ElementX(sel.XPath())
	} else {
		el, err = page.Element(sel.CSS)
	}
	if err != nil {
		return nil, fmt.Errorf("element %s: %w", selector, err)
	}
	if err := el.Context(ctx).WaitVisible(); err != nil {
		return nil, fmt.Errorf("element %s not visible: %w", selector, err)
	}
	return &rodElement{el: el}, nil
}

func (p *rodPage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	page := p.page.Context(ctx)
	sel := ParseSelector(selector)

	var (
		els rod.Elements
		err error
	)
	if sel.Text != "" {
		els, err = page.ElementsX(sel.XPath())
	} else {
		els, err = page.Elements(sel.CSS)
	}
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (p *rodPage) Evaluate(ctx context.Context, script string) ([]byte, error) {
	res, err := p.page.Context(ctx).Eval(script)
	if err != nil {
		return nil, err
	}
	return []byte(res.Value.JSON("", "")), nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

var rodKeys = map[string]input.Key{
	"Enter":  input.Enter,
	"Escape": input.Escape,
	"Tab":    input.Tab,
}

func (p *rodPage) PressKey(ctx context.Context, key string) error {
	k, ok := rodKeys[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return p.page.Context(ctx).Keyboard.Press(k)
}

func (p *rodPage) OnResponse(handler func(Response)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.handlers[id] = handler
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.handlers, id)
		if len(p.handlers) == 0 {
			clear(p.pending)
		}
		p.mu.Unlock()
	}
}

func (p *rodPage) Close() error {
	p.stop()
	err := p.page.Close()
	if p.dispose != nil {
		err = errors.Join(err, p.dispose())
	}
	return err
}

// rodElement adapts *rod.Element to Element.
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Type(ctx context.Context, text string, delay time.Duration) error {
	el := e.el.Context(ctx)
	// The first keystroke replaces the selected text.
	if err := el.SelectAllText(); err != nil {
		return err
	}
	for _, r := range text {
		if err := el.Input(string(r)); err != nil {
			return err
		}
		if err := fetcher.Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

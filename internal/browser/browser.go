// Package browser abstracts the headless browser drivers behind the small
// surface the session driver needs: navigate, wait for selectors, evaluate
// scripts, read HTML and observe network responses.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IshaanNene/quickscout/internal/config"
	"github.com/IshaanNene/quickscout/internal/fetcher"
)

// Navigation is the outcome of loading a URL.
type Navigation struct {
	// Status of the main document response, 0 when the driver did not see it.
	Status int
	// URL after redirects.
	URL string
}

// Response is a network response observed on a page. Body is loaded lazily
// so handlers only pay for the payloads they keep.
type Response struct {
	URL         string
	Status      int
	ContentType string
	Body        func() ([]byte, error)
}

// Element is a handle to a DOM element.
type Element interface {
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	// Type replaces the element's value, pausing delay between keystrokes.
	Type(ctx context.Context, text string, delay time.Duration) error
}

// Page is one browsing context tab.
type Page interface {
	Navigate(ctx context.Context, url string) (*Navigation, error)
	// WaitVisible waits until an element matching selector is visible.
	WaitVisible(ctx context.Context, selector string) (Element, error)
	// QueryAll returns the elements currently matching selector.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// Evaluate runs script and returns its result as JSON.
	Evaluate(ctx context.Context, script string) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	URL() string
	PressKey(ctx context.Context, key string) error
	// OnResponse registers handler for every finished response until stop is
	// called.
	OnResponse(handler func(Response)) (stop func())
	Close() error
}

// Session is a launched browser with its primary page.
type Session interface {
	Page
	// NewIsolatedContext opens a page in a fresh context that shares nothing
	// with the primary page except the browser process.
	NewIsolatedContext(ctx context.Context) (Page, error)
}

// BlockReporter is implemented by sessions whose egress can be retired when
// the site blocks them.
type BlockReporter interface {
	ReportBlocked(err error)
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// NewLauncher builds the launcher named by browser.engine.
func NewLauncher(cfg *config.Config, proxies *fetcher.ProxyManager, logger *slog.Logger) (Launcher, error) {
	switch strings.ToLower(cfg.Browser.Engine) {
	case "", "rod":
		return NewRodLauncher(cfg, proxies, logger), nil
	case "playwright":
		return NewPlaywrightLauncher(cfg, proxies, logger), nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", cfg.Browser.Engine)
	}
}

// Selector is a parsed selector. Selectors prefixed with "text=" match on
// visible text, everything else is CSS.
type Selector struct {
	CSS  string
	Text string
}

// ParseSelector splits a configured selector into its CSS or text form.
func ParseSelector(s string) Selector {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "text="); ok {
		return Selector{Text: strings.Trim(rest, `"'`)}
	}
	return Selector{CSS: s}
}

// XPath renders a text selector as an XPath matching elements whose own text
// contains the wanted string.
func (s Selector) XPath() string {
	return "//*[text()[contains(normalize-space(.), " + xpathLiteral(s.Text) + ")]]"
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

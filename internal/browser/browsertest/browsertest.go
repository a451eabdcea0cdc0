// Package browsertest provides a scripted in-memory browser for tests. A Site
// serves canned pages, simulates the location picker and counts open
// contexts so concurrency bounds can be asserted.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/quickscout/internal/browser"
	"github.com/IshaanNene/quickscout/internal/types"
)

var errNoScript = errors.New("browsertest: script not scripted")

// Payload is a network response a page emits while loading.
type Payload struct {
	URL         string
	Status      int
	ContentType string
	Body        string
}

// PageSpec is what the fake serves for one URL.
type PageSpec struct {
	Status   int
	HTML     string
	Scripts  map[string]string // script source -> JSON result
	Payloads []Payload
	// RedirectTo makes the navigation end on another URL.
	RedirectTo string
}

// LocationUI scripts the location picker on the site root. Selector fields
// must match the selectors configured in the location config.
type LocationUI struct {
	Trigger     string
	Input       string
	Suggestion  string
	Suggestions []string // texts shown after typing
	Confirm     string
	ETA         string
	ETAText     string // shown once the location is set

	// AcceptEnter sets the location when Enter is pressed in the input.
	AcceptEnter bool
	// AcceptSuggestion sets the location when a suggestion is clicked.
	AcceptSuggestion bool
	// AcceptConfirm sets the location when the confirm button is clicked.
	AcceptConfirm bool
}

// Site is a fake storefront shared by every session launched from it.
type Site struct {
	Root    string
	Pages   map[string]*PageSpec
	Default *PageSpec
	UI      *LocationUI

	// BlockAfter blocks every navigation once this many have happened
	// across the site. Zero disables it.
	BlockAfter int
	// BlockLocations answers 403 for navigations made by sessions whose
	// location is in the set.
	BlockLocations map[types.Location]bool
	// Latency is added to every navigation.
	Latency time.Duration
	// LaunchErr fails every launch.
	LaunchErr error

	launches    atomic.Int64
	navigations atomic.Int64
	open        atomic.Int64
	peak        atomic.Int64

	mu       sync.Mutex
	sessions []*Session
}

// Launcher returns a browser.Launcher backed by the site.
func (s *Site) Launcher() browser.Launcher { return launcher{site: s} }

// Launches is the number of sessions launched.
func (s *Site) Launches() int { return int(s.launches.Load()) }

// Navigations is the number of navigations across all pages.
func (s *Site) Navigations() int { return int(s.navigations.Load()) }

// OpenContexts is the number of isolated contexts currently open.
func (s *Site) OpenContexts() int { return int(s.open.Load()) }

// PeakContexts is the highest number of isolated contexts open at once.
func (s *Site) PeakContexts() int { return int(s.peak.Load()) }

// Sessions returns every session launched so far.
func (s *Site) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Session(nil), s.sessions...)
}

func (s *Site) spec(url string) *PageSpec {
	if p, ok := s.Pages[url]; ok {
		return p
	}
	if s.Default != nil {
		return s.Default
	}
	return &PageSpec{Status: 200, HTML: "<html><body></body></html>"}
}

type launcher struct{ site *Site }

func (l launcher) Launch(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.site.LaunchErr != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrLaunchFailed, l.site.LaunchErr)
	}
	l.site.launches.Add(1)
	sess := &Session{site: l.site}
	sess.Page = newPage(l.site, sess)

	l.site.mu.Lock()
	l.site.sessions = append(l.site.sessions, sess)
	l.site.mu.Unlock()
	return sess, nil
}

// Session is a fake browser session. Its location state is shared with the
// isolated contexts it opens.
type Session struct {
	*Page
	site *Site

	mu            sync.Mutex
	typed         string
	location      types.Location
	triggerClicks int
	confirmClicks int
	suggestClicks int
	enterPresses  int
	blockReports  int
	closed        bool
}

// Location is the location the site accepted, if any.
func (s *Session) Location() types.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

// Typed is the last text typed into the location input.
func (s *Session) Typed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typed
}

// ConfirmClicks counts clicks on the confirm button.
func (s *Session) ConfirmClicks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmClicks
}

// SuggestionClicks counts clicks on suggestions.
func (s *Session) SuggestionClicks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suggestClicks
}

// EnterPresses counts Enter key presses.
func (s *Session) EnterPresses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enterPresses
}

// ReportBlocked records that the driver saw a block on this session.
func (s *Session) ReportBlocked(error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockReports++
}

// BlockReports counts ReportBlocked calls.
func (s *Session) BlockReports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockReports
}

// Closed reports whether the session was closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// NewIsolatedContext opens a counted page sharing the session's location.
func (s *Session) NewIsolatedContext(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := s.site.open.Add(1)
	for {
		peak := s.site.peak.Load()
		if n <= peak || s.site.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	p := newPage(s.site, s)
	p.isolated = true
	return p, nil
}

// Close closes the session.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Page is a fake tab.
type Page struct {
	site *Site
	sess *Session

	mu       sync.Mutex
	url      string
	handlers map[int]func(browser.Response)
	nextID   int
	isolated bool
	closed   bool
}

func newPage(site *Site, sess *Session) *Page {
	return &Page{site: site, sess: sess, handlers: make(map[int]func(browser.Response))}
}

func (p *Page) Navigate(ctx context.Context, url string) (*browser.Navigation, error) {
	if p.site.Latency > 0 {
		t := time.NewTimer(p.site.Latency)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, &types.FetchError{URL: url, Err: ctx.Err()}
		}
	} else if err := ctx.Err(); err != nil {
		return nil, &types.FetchError{URL: url, Err: err}
	}

	n := p.site.navigations.Add(1)
	spec := p.site.spec(url)
	final := url
	if spec.RedirectTo != "" {
		final = spec.RedirectTo
	}

	p.mu.Lock()
	p.url = final
	handlers := make([]func(browser.Response), 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	status := spec.Status
	if status == 0 {
		status = 200
	}
	if p.site.BlockAfter > 0 && int(n) > p.site.BlockAfter {
		status = 403
	}
	if loc := p.sess.Location(); loc != "" && p.site.BlockLocations[loc] {
		status = 403
	}

	for _, pl := range spec.Payloads {
		body := []byte(pl.Body)
		r := browser.Response{
			URL:         pl.URL,
			Status:      pl.Status,
			ContentType: pl.ContentType,
			Body:        func() ([]byte, error) { return body, nil },
		}
		for _, h := range handlers {
			h(r)
		}
	}
	return &browser.Navigation{Status: status, URL: final}, nil
}

func (p *Page) onRoot() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.site.UI != nil && p.url == p.site.Root
}

// visible returns the element a selector resolves to in the current UI
// state, or nil.
func (p *Page) visible(selector string) *element {
	if !p.onRoot() {
		return nil
	}
	ui := p.site.UI
	s := p.sess
	s.mu.Lock()
	defer s.mu.Unlock()

	typed := s.typed != ""
	switch selector {
	case "":
		return nil
	case ui.Trigger:
		return &element{page: p, kind: kindTrigger}
	case ui.Input:
		if ui.Trigger == "" || s.triggerClicks > 0 {
			return &element{page: p, kind: kindInput}
		}
	case ui.Suggestion:
		if typed && len(ui.Suggestions) > 0 {
			return &element{page: p, kind: kindSuggestion, text: ui.Suggestions[0]}
		}
	case ui.Confirm:
		if typed {
			return &element{page: p, kind: kindConfirm}
		}
	case ui.ETA:
		text := "Select Location"
		if s.location != "" {
			text = ui.ETAText
		}
		return &element{page: p, kind: kindETA, text: text}
	}
	return nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string) (browser.Element, error) {
	for {
		if el := p.visible(selector); el != nil {
			return el, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("element %s not visible: %w", selector, ctx.Err())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (p *Page) QueryAll(_ context.Context, selector string) ([]browser.Element, error) {
	if !p.onRoot() || selector != p.site.UI.Suggestion {
		if el := p.visible(selector); el != nil {
			return []browser.Element{el}, nil
		}
		return nil, nil
	}
	if p.visible(selector) == nil {
		return nil, nil
	}
	out := make([]browser.Element, 0, len(p.site.UI.Suggestions))
	for _, text := range p.site.UI.Suggestions {
		out = append(out, &element{page: p, kind: kindSuggestion, text: text})
	}
	return out, nil
}

func (p *Page) Evaluate(_ context.Context, script string) ([]byte, error) {
	p.mu.Lock()
	url := p.url
	p.mu.Unlock()
	if v, ok := p.site.spec(url).Scripts[script]; ok {
		return []byte(v), nil
	}
	return nil, errNoScript
}

func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	url := p.url
	p.mu.Unlock()
	return p.site.spec(url).HTML, nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) PressKey(_ context.Context, key string) error {
	if key != "Enter" {
		return nil
	}
	s := p.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enterPresses++
	if p.site.UI != nil && p.site.UI.AcceptEnter && s.typed != "" {
		s.location = types.Location(s.typed)
	}
	return nil
}

func (p *Page) OnResponse(handler func(browser.Response)) func() {
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

func (p *Page) Close() error {
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.mu.Unlock()
	if p.isolated && !already {
		p.site.open.Add(-1)
	}
	return nil
}

type elementKind int

const (
	kindTrigger elementKind = iota
	kindInput
	kindSuggestion
	kindConfirm
	kindETA
)

type element struct {
	page *Page
	kind elementKind
	text string
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := e.page.sess
	ui := e.page.site.UI
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.kind {
	case kindTrigger:
		s.triggerClicks++
	case kindSuggestion:
		s.suggestClicks++
		if ui.AcceptSuggestion {
			s.location = types.Location(s.typed)
		}
	case kindConfirm:
		s.confirmClicks++
		if ui.AcceptConfirm {
			s.location = types.Location(s.typed)
		}
	}
	return nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.text, nil
}

func (e *element) Type(ctx context.Context, text string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.kind != kindInput {
		return errors.New("browsertest: element is not an input")
	}
	s := e.page.sess
	s.mu.Lock()
	s.typed = strings.TrimSpace(text)
	s.mu.Unlock()
	return nil
}

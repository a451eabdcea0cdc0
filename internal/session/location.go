package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IshaanNene/quickscout/internal/browser"
	"github.com/IshaanNene/quickscout/internal/fetcher"
	"github.com/IshaanNene/quickscout/internal/jsonvalue"
	"github.com/IshaanNene/quickscout/internal/types"
)

// probeSlice bounds a single selector probe inside a step, so earlier
// selectors in a list get the first look on every round.
const probeSlice = 150 * time.Millisecond

// roundPause separates rounds over the selector list for drivers that fail
// a wait immediately instead of blocking.
const roundPause = 50 * time.Millisecond

var errNoSelectors = errors.New("no selectors configured")

// firstVisible returns the first selector, in list order, whose element
// becomes visible within timeout.
func firstVisible(ctx context.Context, page browser.Page, selectors []string, timeout time.Duration) (browser.Element, string, error) {
	if len(selectors) == 0 {
		return nil, "", errNoSelectors
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		for _, sel := range selectors {
			probeCtx, cancelProbe := context.WithTimeout(stepCtx, probeSlice)
			el, err := page.WaitVisible(probeCtx, sel)
			cancelProbe()
			if err == nil {
				return el, sel, nil
			}
			if stepCtx.Err() != nil {
				return nil, "", fmt.Errorf("none of %d selectors visible: %w", len(selectors), stepCtx.Err())
			}
		}
		if err := fetcher.Sleep(stepCtx, roundPause); err != nil {
			return nil, "", fmt.Errorf("none of %d selectors visible: %w", len(selectors), err)
		}
	}
}

// SetLocation runs the location protocol on the session page and returns
// the updated state. Only a failed root navigation or a missing location
// input fail the location; every other step is best-effort. Blocks are
// returned as *types.BlockedError.
func (d *Driver) SetLocation(ctx context.Context, st State) (State, error) {
	lc := d.cfg.Location
	loc := st.Location
	page := d.sess
	logger := d.logger.With("location", loc)

	navCtx, cancel := context.WithTimeout(ctx, d.cfg.Browser.NavigationTimeout)
	nav, err := page.Navigate(navCtx, d.cfg.Site.BaseURL)
	cancel()
	if err != nil {
		return st, &types.LocationError{Location: loc, Step: "navigate", Err: err}
	}
	if err := d.checkBlocked(ctx, page, nav); err != nil {
		return st, err
	}

	if el, sel, err := firstVisible(ctx, page, lc.TriggerSelectors, lc.StepTimeout); err == nil {
		if err := el.Click(ctx); err != nil {
			logger.Debug("trigger click failed", "selector", sel, "error", err)
		}
	} else {
		logger.Debug("no location trigger", "error", err)
	}

	input, sel, err := firstVisible(ctx, page, lc.InputSelectors, lc.StepTimeout)
	if err != nil {
		return st, &types.LocationError{Location: loc, Step: "input", Err: fmt.Errorf("%w: %w", types.ErrLocationNotSet, err)}
	}
	if err := input.Type(ctx, string(loc), lc.TypeDelay); err != nil {
		return st, &types.LocationError{Location: loc, Step: "type", Err: err}
	}
	logger.Debug("location typed", "selector", sel)

	for _, method := range lc.SelectionOrder {
		if d.selectBy(ctx, page, method, string(loc)) {
			st.LocationConfirmedBy = method
			break
		}
	}
	if st.LocationConfirmedBy == "" {
		logger.Warn("no selection method succeeded, continuing best-effort")
	}

	if eta, ok := d.readETA(ctx, page); ok {
		st.DeliveryETA = eta
	}

	logger.Info("location set", "confirmed_by", st.LocationConfirmedBy, "eta", st.DeliveryETA)
	return st, nil
}

// selectBy applies one selection method and reports whether it acted.
func (d *Driver) selectBy(ctx context.Context, page browser.Page, method, token string) bool {
	lc := d.cfg.Location
	switch method {
	case "suggestion":
		_, sel, err := firstVisible(ctx, page, lc.SuggestionSelectors, lc.SuggestionTimeout)
		if err != nil {
			return false
		}
		items, err := page.QueryAll(ctx, sel)
		if err != nil || len(items) == 0 {
			return false
		}
		return items[d.bestSuggestion(ctx, items, token)].Click(ctx) == nil

	case "confirm":
		el, _, err := firstVisible(ctx, page, lc.ConfirmSelectors, lc.StepTimeout)
		if err != nil {
			return false
		}
		return el.Click(ctx) == nil

	case "enter":
		return page.PressKey(ctx, "Enter") == nil

	default:
		d.logger.Warn("unknown selection method", "method", method)
		return false
	}
}

// bestSuggestion prefers a suggestion whose text contains the token exactly,
// else the first one.
func (d *Driver) bestSuggestion(ctx context.Context, items []browser.Element, token string) int {
	for i, el := range items {
		text, err := el.Text(ctx)
		if err != nil || len(text) > d.cfg.Location.MaxSuggestionText {
			continue
		}
		if strings.Contains(text, token) {
			return i
		}
	}
	return 0
}

// readETA polls the delivery estimate element until it shows "N min" text,
// then falls back to the page header text.
func (d *Driver) readETA(ctx context.Context, page browser.Page) (string, bool) {
	lc := d.cfg.Location
	etaCtx, cancel := context.WithTimeout(ctx, lc.ConfirmationTimeout)
	defer cancel()

	for len(lc.ETASelectors) > 0 {
		if el, _, err := firstVisible(etaCtx, page, lc.ETASelectors, lc.ConfirmationTimeout); err == nil {
			if text, err := el.Text(etaCtx); err == nil {
				if eta, ok := d.parseETA(text); ok {
					return eta, true
				}
			}
		}
		if fetcher.Sleep(etaCtx, probeSlice) != nil {
			break
		}
	}

	headers, err := page.QueryAll(ctx, "header")
	if err == nil {
		for _, h := range headers {
			if text, err := h.Text(ctx); err == nil {
				if eta, ok := d.parseETA(text); ok {
					return eta, true
				}
			}
		}
	}
	return "", false
}

func (d *Driver) parseETA(text string) (string, bool) {
	m := d.etaPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return m[1] + " mins", true
}

// checkBlocked inspects a navigation and the page text for block signals.
func (d *Driver) checkBlocked(ctx context.Context, page browser.Page, nav *browser.Navigation) error {
	if err := d.detector.CheckStatus(nav.URL, nav.Status); err != nil {
		return err
	}
	script := d.cfg.Session.BlockProbeScript
	if script == "" {
		return nil
	}
	raw, err := page.Evaluate(ctx, script)
	if err != nil {
		return nil
	}
	text := string(raw)
	if v, err := jsonvalue.Parse(raw); err == nil {
		text = v.Text()
	}
	return d.detector.CheckText(nav.URL, text)
}

// sleepRange pauses for a random duration in [lo, hi].
func sleepRange(ctx context.Context, lo, hi time.Duration) error {
	return fetcher.Sleep(ctx, fetcher.RandomBetween(lo, hi))
}

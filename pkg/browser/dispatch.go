package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// Dispatcher performs fills and clicks against identifiers handed out by the
// registry and works out where the page ended up afterwards.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher bound to registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// resolve returns the element at the ordinal encoded in id within the
// current element snapshot.
func (d *Dispatcher) resolve(s *Session, id string, c Category) (playwright.Locator, Entry, error) {
	snap := s.elements
	if snap == nil {
		return nil, Entry{}, fmt.Errorf("%w: no element snapshot, discover the page first", ErrStaleSnapshot)
	}

	n, err := ParseID(id, c)
	if err != nil {
		return nil, Entry{}, err
	}

	var entries []Entry
	var selector string
	switch c {
	case CategoryButton:
		entries, selector = snap.Buttons, d.registry.selectors.ButtonSelector
	case CategoryField:
		entries, selector = snap.Fields, d.registry.selectors.FieldSelector
	default:
		return nil, Entry{}, fmt.Errorf("%w: %s elements cannot be targeted", ErrIndexOutOfRange, c)
	}

	if n > len(entries) {
		return nil, Entry{}, fmt.Errorf("%w: %s exceeds %d %s elements", ErrIndexOutOfRange, id, len(entries), c)
	}
	if err := s.checkFresh(snap.stamp); err != nil {
		return nil, Entry{}, err
	}

	return s.Page.Locator(selector).Nth(n - 1), entries[n-1], nil
}

// Fill sets the value of a field.
func (d *Dispatcher) Fill(s *Session, id, value string) (*FillResult, error) {
	s.UpdateLastUsed()

	el, entry, err := d.resolve(s, id, CategoryField)
	if err != nil {
		return nil, err
	}
	if err := el.Fill(value); err != nil {
		return nil, fmt.Errorf("failed to fill %s: %w", entry.ID, err)
	}

	s.logger.Debugf("filled %s (%s)", entry.ID, entry.Name)
	return &FillResult{ID: entry.ID, Name: entry.Name}, nil
}

// Click clicks a button once. A page opened by the click becomes the current
// page; otherwise the current page is given time to settle. Either way the
// element snapshot is invalidated.
func (d *Dispatcher) Click(ctx context.Context, s *Session, id string, mode ClickMode) (*ClickResult, error) {
	s.UpdateLastUsed()

	el, entry, err := d.resolve(s, id, CategoryButton)
	if err != nil {
		return nil, err
	}

	var w Warnings
	w.Add("scroll "+entry.ID+" into view", el.ScrollIntoViewIfNeeded())

	cfg := s.cfg.Dispatch
	var clickErr error
	popup, waitErr := s.Context.ExpectPage(func() error {
		clickErr = el.Click()
		return clickErr
	}, playwright.BrowserContextExpectPageOptions{
		Timeout: playwright.Float(millis(cfg.PopupWait)),
	})
	if clickErr != nil {
		return nil, fmt.Errorf("failed to click %s: %w", entry.ID, clickErr)
	}

	result := &ClickResult{ID: entry.ID, Name: entry.Name}
	if waitErr == nil && popup != nil {
		s.logger.Infof("%s opened a new page", entry.ID)
		s.adopt(popup)
		w.Add("wait for new page", popup.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateDomcontentloaded,
			Timeout: playwright.Float(millis(cfg.LoadWait)),
		}))
		result.Navigation = NavigationPopup
	} else {
		s.invalidate()
		w.Add("wait for network idle", s.Page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateNetworkidle,
			Timeout: playwright.Float(millis(cfg.LoadWait)),
		}))
		result.Navigation = NavigationSamePage
	}

	w.Add("wait for headings", d.waitForHeadings(ctx, s))

	if mode == ClickModeHeadings {
		snap, hw := d.registry.SnapshotHeadings(s)
		w.Merge(hw)
		s.headings = snap
		result.Headings = snap.Headings
	}

	result.URL = s.Page.URL()
	result.Warnings = w
	return result, nil
}

// waitForHeadings polls for headings as a sign the new content rendered.
func (d *Dispatcher) waitForHeadings(ctx context.Context, s *Session) error {
	cfg := s.cfg.Dispatch
	return pollUntil(ctx, cfg.HeadingPollInterval, cfg.HeadingPollBudget, func() bool {
		return present(s.Page, d.registry.selectors.HeadingSelector)
	})
}

// resolveHeading finds the heading at the ordinal encoded in id. The live
// enumeration is used; when a heading snapshot exists it must still be fresh
// and bounds the ordinal.
func (d *Dispatcher) resolveHeading(s *Session, id string, w *Warnings) (playwright.Locator, Entry, error) {
	n, err := ParseID(id, d.registry.heading)
	if err != nil {
		return nil, Entry{}, err
	}

	entry := Entry{ID: FormatID(d.registry.heading, n)}
	if snap := s.headings; snap != nil {
		if n > len(snap.Headings) {
			return nil, Entry{}, fmt.Errorf("%w: %s exceeds %d headings", ErrIndexOutOfRange, id, len(snap.Headings))
		}
		if err := s.checkFresh(snap.stamp); err != nil {
			return nil, Entry{}, err
		}
		entry = snap.Headings[n-1]
	}

	headings := d.registry.Headings(s.Page, w)
	if n > len(headings) {
		return nil, Entry{}, fmt.Errorf("%w: %s exceeds %d headings on the page", ErrIndexOutOfRange, id, len(headings))
	}
	return headings[n-1], entry, nil
}

// ClickHeading clicks a heading and pauses briefly for the view it opens to
// render. It does not wait for navigation; snapshots stay usable unless the
// page address changed.
func (d *Dispatcher) ClickHeading(ctx context.Context, s *Session, id string) (*HeadingResult, error) {
	s.UpdateLastUsed()

	var w Warnings
	el, entry, err := d.resolveHeading(s, id, &w)
	if err != nil {
		return nil, err
	}
	if err := d.clickHeading(ctx, s, el, entry.ID, &w); err != nil {
		return nil, err
	}
	return &HeadingResult{ID: entry.ID, Name: entry.Name, Warnings: w}, nil
}

// ClickHeadingByKeyword clicks the first heading whose label contains keyword.
func (d *Dispatcher) ClickHeadingByKeyword(ctx context.Context, s *Session, keyword string) (*HeadingResult, error) {
	s.UpdateLastUsed()

	var w Warnings
	for i, el := range d.registry.Headings(s.Page, &w) {
		text, err := el.InnerText()
		if err != nil {
			w.Add("read heading text", err)
			continue
		}
		text = strings.TrimSpace(text)
		if !strings.Contains(text, keyword) {
			continue
		}

		id := FormatID(d.registry.heading, i+1)
		if err := d.clickHeading(ctx, s, el, id, &w); err != nil {
			return nil, err
		}
		return &HeadingResult{ID: id, Name: text, Warnings: w}, nil
	}
	return nil, fmt.Errorf("%w: no heading contains %q", ErrNotFound, keyword)
}

func (d *Dispatcher) clickHeading(ctx context.Context, s *Session, el playwright.Locator, id string, w *Warnings) error {
	w.Add("scroll "+id+" into view", el.ScrollIntoViewIfNeeded())
	if err := el.Click(); err != nil {
		return fmt.Errorf("failed to click %s: %w", id, err)
	}
	s.logger.Debugf("clicked %s", id)

	w.Add("settle after "+id, Sleep(ctx, s.cfg.Dispatch.HeadingSettle))
	return nil
}

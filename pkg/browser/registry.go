package browser

import (
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pagewalker/pkg/config"
)

// Scripts evaluated against a single element.
const (
	scriptCaption   = `el => (el.caption ? el.caption.innerText : "").trim()`
	scriptLinkHref  = `el => { const a = el.querySelector("a"); return a ? (a.getAttribute("href") || "") : "" }`
	scriptOuterHTML = `el => el.outerHTML`
)

// Registry enumerates the addressable elements of a page.
type Registry struct {
	selectors config.RegistryConfig
	heading   Category
}

// NewRegistry creates a registry for the configured selectors.
func NewRegistry(selectors config.RegistryConfig) *Registry {
	return &Registry{
		selectors: selectors,
		heading:   headingCategory(selectors.HeadingSelector),
	}
}

// Snapshot lists the buttons, fields and tables of the top-level document.
// Frames are not searched.
func (r *Registry) Snapshot(s *Session) (*Snapshot, Warnings) {
	var w Warnings
	page := s.Page

	snap := &Snapshot{
		stamp:   s.newStamp(),
		Buttons: r.enumerate(page.Locator(r.selectors.ButtonSelector), CategoryButton, buttonLabel, &w),
		Fields:  r.enumerate(page.Locator(r.selectors.FieldSelector), CategoryField, fieldLabel, &w),
		Tables:  r.enumerate(page.Locator(r.selectors.TableSelector), CategoryTable, tableLabel, &w),
	}
	return snap, w
}

type labelFunc func(el playwright.Locator, ordinal int, w *Warnings) string

func (r *Registry) enumerate(loc playwright.Locator, c Category, label labelFunc, w *Warnings) []Entry {
	entries := []Entry{}

	n, err := loc.Count()
	if err != nil {
		w.Add(fmt.Sprintf("count %s elements", c), err)
		return entries
	}

	for i := 0; i < n; i++ {
		entries = append(entries, Entry{
			ID:   FormatID(c, i+1),
			Name: label(loc.Nth(i), i+1, w),
		})
	}
	return entries
}

// firstLabel returns the first non-empty candidate. A read error leaves the
// label empty rather than falling through to the placeholder.
func firstLabel(id string, w *Warnings, fallback string, reads ...func() (string, error)) string {
	for _, read := range reads {
		v, err := read()
		if err != nil {
			w.Add("read label of "+id, err)
			return ""
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return fallback
}

func buttonLabel(el playwright.Locator, ordinal int, w *Warnings) string {
	return firstLabel(FormatID(CategoryButton, ordinal), w, fmt.Sprintf("button %d", ordinal),
		func() (string, error) { return el.InnerText() },
		func() (string, error) { return el.GetAttribute("value") },
	)
}

func fieldLabel(el playwright.Locator, ordinal int, w *Warnings) string {
	return firstLabel(FormatID(CategoryField, ordinal), w, fmt.Sprintf("input %d", ordinal),
		func() (string, error) { return el.GetAttribute("placeholder") },
		func() (string, error) { return el.GetAttribute("name") },
	)
}

func tableLabel(el playwright.Locator, ordinal int, w *Warnings) string {
	return firstLabel(FormatID(CategoryTable, ordinal), w, fmt.Sprintf("table %d", ordinal),
		func() (string, error) { return evalString(el, scriptCaption) },
		func() (string, error) { return el.GetAttribute("id") },
	)
}

// Headings returns one locator per heading: the top-level document first,
// then every child frame in frame order. The main frame is the top-level
// document and is not searched twice.
func (r *Registry) Headings(page playwright.Page, w *Warnings) []playwright.Locator {
	var found []playwright.Locator
	collect := func(loc playwright.Locator, where string) {
		n, err := loc.Count()
		if err != nil {
			w.Add("count headings in "+where, err)
			return
		}
		for i := 0; i < n; i++ {
			found = append(found, loc.Nth(i))
		}
	}

	collect(page.Locator(r.selectors.HeadingSelector), "page")

	main := page.MainFrame()
	for _, frame := range page.Frames() {
		if frame == main {
			continue
		}
		collect(frame.Locator(r.selectors.HeadingSelector), "frame "+frameName(frame))
	}
	return found
}

// SnapshotHeadings enumerates headings across frames with their labels and
// the href of the link they wrap.
func (r *Registry) SnapshotHeadings(s *Session) (*HeadingSnapshot, Warnings) {
	var w Warnings
	snap := &HeadingSnapshot{stamp: s.newStamp(), Headings: []Entry{}}

	for i, el := range r.Headings(s.Page, &w) {
		id := FormatID(r.heading, i+1)
		entry := Entry{ID: id}

		text, err := el.InnerText()
		if err != nil {
			w.Add("read label of "+id, err)
		}
		entry.Name = strings.TrimSpace(text)

		href, err := evalString(el, scriptLinkHref)
		if err != nil {
			w.Add("read link of "+id, err)
		}
		entry.Href = href

		snap.Headings = append(snap.Headings, entry)
	}
	return snap, w
}

func frameName(f playwright.Frame) string {
	if name := f.Name(); name != "" {
		return name
	}
	return f.URL()
}

func evalString(el playwright.Locator, script string) (string, error) {
	v, err := el.Evaluate(script, nil)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok && v != nil {
		return "", fmt.Errorf("unexpected script result %T", v)
	}
	return s, nil
}

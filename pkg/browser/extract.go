package browser

import (
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pagewalker/pkg/config"
	"github.com/entrhq/pagewalker/pkg/tables"
)

// Extractor reads the first table of the current page.
type Extractor struct {
	tableSelector string
	cfg           config.ExtractConfig
}

// NewExtractor creates an extractor.
func NewExtractor(tableSelector string, cfg config.ExtractConfig) *Extractor {
	return &Extractor{tableSelector: tableSelector, cfg: cfg}
}

// Table waits for a table to exist, within the page's default timeout, and
// folds the first one into records.
func (e *Extractor) Table(s *Session) (*tables.Table, error) {
	s.UpdateLastUsed()

	first := s.Page.Locator(e.tableSelector).First()
	if err := first.WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateAttached,
	}); err != nil {
		return nil, fmt.Errorf("%w: no table on %s: %v", ErrNotFound, s.Page.URL(), err)
	}

	markup, err := evalString(first, scriptOuterHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}

	table, err := tables.Parse(markup)
	if err != nil {
		return nil, fmt.Errorf("failed to parse table: %w", err)
	}
	return table, nil
}

// Extract returns the records of the first table.
func (e *Extractor) Extract(s *Session) (*Extraction, error) {
	table, err := e.Table(s)
	if err != nil {
		return nil, err
	}
	return &Extraction{Rows: table.Rows(), Data: table.Records}, nil
}

// ExtractPaged returns the first table together with the pagination text
// and the "go to page" control found next to it.
func (e *Extractor) ExtractPaged(s *Session) (*TablePayload, Warnings, error) {
	table, err := e.Table(s)
	if err != nil {
		return nil, nil, err
	}

	var w Warnings
	payload := &TablePayload{
		TableName: table.Caption,
		PageSize:  table.Rows(),
		PageCount: e.pageCount(s.Page, &w),
		Buttons:   []Control{{ID: e.controlID(s.Page, &w), Name: e.cfg.FallbackControlLabel}},
		Data:      table.Records,
	}
	return payload, w, nil
}

func (e *Extractor) pageCount(page playwright.Page, w *Warnings) string {
	if e.cfg.PageCountSelector == "" {
		return ""
	}
	loc := page.Locator(e.cfg.PageCountSelector)
	n, err := loc.Count()
	if err != nil {
		w.Add("find page count", err)
		return ""
	}
	if n == 0 {
		return ""
	}
	text, err := loc.First().InnerText()
	if err != nil {
		w.Add("read page count", err)
		return ""
	}
	return strings.TrimSpace(text)
}

func (e *Extractor) controlID(page playwright.Page, w *Warnings) string {
	if e.cfg.ControlSelector == "" {
		return e.cfg.FallbackControlID
	}
	loc := page.Locator(e.cfg.ControlSelector)
	n, err := loc.Count()
	if err != nil {
		w.Add("find page control", err)
		return e.cfg.FallbackControlID
	}
	if n == 0 {
		return e.cfg.FallbackControlID
	}
	id, err := loc.First().GetAttribute("id")
	if err != nil {
		w.Add("read page control id", err)
	}
	if id = strings.TrimSpace(id); id == "" {
		return e.cfg.FallbackControlID
	}
	return id
}

package browser

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pagewalker/pkg/config"
	"github.com/entrhq/pagewalker/pkg/logging"
)

// Session represents the active browser session with its associated resources.
type Session struct {
	// Browser is the Playwright browser instance
	Browser playwright.Browser

	// Context is the browsing context holding cookies and storage
	Context playwright.BrowserContext

	// Page is the current page. Popups replace it.
	Page playwright.Page

	// CreatedAt is the timestamp when the session was created
	CreatedAt time.Time

	// LastUsedAt is the timestamp of the last operation on this session
	LastUsedAt time.Time

	cfg    *config.Config
	logger *logging.Logger
	stop   func() error

	auth     AuthOutcome
	elements *Snapshot
	headings *HeadingSnapshot

	// epoch counts the navigations observed by the session; snapshots taken
	// in an earlier epoch are stale
	epoch uint64
}

func newSession(cfg *config.Config, logger *logging.Logger, browser playwright.Browser, bctx playwright.BrowserContext, page playwright.Page, stop func() error) *Session {
	now := time.Now()
	page.SetDefaultTimeout(millis(cfg.Browser.Timeout))
	return &Session{
		Browser:    browser,
		Context:    bctx,
		Page:       page,
		CreatedAt:  now,
		LastUsedAt: now,
		cfg:        cfg,
		logger:     logger,
		stop:       stop,
		auth:       AuthNotRequired,
	}
}

// UpdateLastUsed updates the LastUsedAt timestamp to the current time.
func (s *Session) UpdateLastUsed() {
	s.LastUsedAt = time.Now()
}

// Navigate loads url in the current page and waits for network idle.
// A failed navigation is recorded as a warning; the page stays wherever it got to.
func (s *Session) Navigate(url string, w *Warnings) {
	s.UpdateLastUsed()
	defer s.invalidate()

	_, err := s.Page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	if err != nil {
		s.logger.Warnf("navigation to %s failed: %v", url, err)
		w.Add("navigate", err)
	}
}

// URL returns the address of the current page.
func (s *Session) URL() string {
	return s.Page.URL()
}

// adopt makes page the current page.
func (s *Session) adopt(page playwright.Page) {
	page.SetDefaultTimeout(millis(s.cfg.Browser.Timeout))
	s.Page = page
	s.invalidate()
}

func (s *Session) invalidate() {
	s.epoch++
}

func (s *Session) newStamp() stamp {
	return stamp{
		ID:      uuid.NewString(),
		TakenAt: time.Now(),
		URL:     s.Page.URL(),
		epoch:   s.epoch,
	}
}

// checkFresh fails when the page navigated after st was taken.
func (s *Session) checkFresh(st stamp) error {
	if st.epoch != s.epoch {
		return fmt.Errorf("%w: snapshot %s predates the last navigation", ErrStaleSnapshot, st.ID)
	}
	if current := s.Page.URL(); current != st.URL {
		return fmt.Errorf("%w: page moved from %s to %s", ErrStaleSnapshot, st.URL, current)
	}
	return nil
}

// close releases the page, context, browser and driver. Errors are logged
// and dropped.
func (s *Session) close() {
	if s.Page != nil {
		if err := s.Page.Close(); err != nil {
			s.logger.Debugf("failed to close page: %v", err)
		}
	}
	if s.Context != nil {
		if err := s.Context.Close(); err != nil {
			s.logger.Debugf("failed to close context: %v", err)
		}
	}
	if s.Browser != nil {
		if err := s.Browser.Close(); err != nil {
			s.logger.Debugf("failed to close browser: %v", err)
		}
	}
	if s.stop != nil {
		if err := s.stop(); err != nil {
			s.logger.Warnf("failed to stop playwright: %v", err)
		}
	}
}

func (s *Session) status() Status {
	st := Status{
		Active:     true,
		URL:        s.Page.URL(),
		CreatedAt:  s.CreatedAt,
		LastUsedAt: s.LastUsedAt,
		Auth:       s.auth,
	}
	if s.elements != nil {
		st.SnapshotID = s.elements.ID
	}
	if s.headings != nil {
		st.HeadingSnapshotID = s.headings.ID
	}
	return st
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pagewalker/pkg/config"
	"github.com/entrhq/pagewalker/pkg/logging"
)

// DefaultOutlineLength bounds the content of a page outline.
const DefaultOutlineLength = 20000

// Observer is told about session lifecycle events. All methods are called
// with the manager lock held and must not call back into the manager.
type Observer interface {
	SessionOpened()
	SessionClosed(reason string)
	AuthChecked(outcome AuthOutcome)
}

type nopObserver struct{}

func (nopObserver) SessionOpened()          {}
func (nopObserver) SessionClosed(string)    {}
func (nopObserver) AuthChecked(AuthOutcome) {}

// Option configures a Manager.
type Option func(*Manager)

// WithLauncher replaces the playwright launcher.
func WithLauncher(l Launcher) Option {
	return func(m *Manager) { m.launcher = l }
}

// WithObserver registers an observer for lifecycle events.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager owns the single browser session and serializes every operation on it.
type Manager struct {
	mu sync.Mutex

	cfg        *config.Config
	gate       *Gate
	store      StateStore
	launcher   Launcher
	observer   Observer
	logger     *logging.Logger
	registry   *Registry
	dispatcher *Dispatcher
	extractor  *Extractor

	session *Session
}

// NewManager creates a manager. store may be nil when login state is not
// persisted.
func NewManager(cfg *config.Config, gate *Gate, store StateStore, opts ...Option) *Manager {
	registry := NewRegistry(cfg.Registry)
	m := &Manager{
		cfg:        cfg,
		gate:       gate,
		store:      store,
		launcher:   PlaywrightLauncher{},
		observer:   nopObserver{},
		logger:     logging.Nop(),
		registry:   registry,
		dispatcher: NewDispatcher(registry),
		extractor:  NewExtractor(cfg.Registry.TableSelector, cfg.Extract),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// open launches a browser and opens the browsing context and page. The
// context starts from the persisted login state when one exists.
func (m *Manager) open() (*Session, error) {
	browser, stop, err := m.launcher.Launch(m.cfg.Browser)
	if err != nil {
		return nil, err
	}

	opts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  m.cfg.Browser.ViewportWidth,
			Height: m.cfg.Browser.ViewportHeight,
		},
	}
	if m.store != nil && m.store.Exists() {
		m.logger.Infof("restoring login state from %s", m.store.Path())
		opts.StorageStatePath = playwright.String(m.store.Path())
	}

	bctx, err := browser.NewContext(opts)
	if err != nil {
		_ = browser.Close()
		if stop != nil {
			_ = stop()
		}
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		if stop != nil {
			_ = stop()
		}
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	m.logger.Infof("browser session started (headless=%t)", m.cfg.Browser.Headless)
	m.observer.SessionOpened()
	return newSession(m.cfg, m.logger, browser, bctx, page, stop), nil
}

// Discover opens the session if needed, navigates to url, runs the
// authentication gate and snapshots the page's buttons, fields and tables.
func (m *Manager) Discover(ctx context.Context, url string) (*Discovery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var w Warnings
	s := m.session
	if s != nil && (s.Page == nil || s.Page.IsClosed()) {
		m.teardown("page closed")
		s = nil
	}
	if s == nil {
		var err error
		if s, err = m.open(); err != nil {
			return nil, err
		}
		m.session = s

		if m.gate.Strategy() == config.AuthStrategyOCR {
			s.auth = m.gate.Login(ctx, s, &w)
			s.Navigate(url, &w)
			if s.auth == AuthResolved && m.gate.RequiresAuthentication(s.Page) {
				w.Addf("page %s still requires authentication after login", s.URL())
				s.auth = AuthFailed
			}
			return m.discovered(s, w), nil
		}
	}

	s.Navigate(url, &w)
	s.auth = m.gate.Resolve(ctx, s, url, &w)
	return m.discovered(s, w), nil
}

func (m *Manager) discovered(s *Session, w Warnings) *Discovery {
	// idle time counts from the end of the gate's wait
	s.UpdateLastUsed()
	m.observer.AuthChecked(s.auth)

	snap, sw := m.registry.Snapshot(s)
	w.Merge(sw)
	s.elements = snap
	s.headings = nil

	m.logWarnings("discovery", w)
	m.logger.Infof("discovered %d buttons, %d fields, %d tables on %s (auth %s)",
		len(snap.Buttons), len(snap.Fields), len(snap.Tables), snap.URL, s.auth)

	return &Discovery{
		SnapshotID: snap.ID,
		URL:        snap.URL,
		Buttons:    snap.Buttons,
		Fields:     snap.Fields,
		Tables:     snap.Tables,
		Auth:       s.auth,
		Warnings:   w,
	}
}

func (m *Manager) active() (*Session, error) {
	if m.session == nil {
		return nil, ErrNoActiveSession
	}
	if m.session.Page == nil || m.session.Page.IsClosed() {
		m.teardown("page closed")
		return nil, ErrNoActiveSession
	}
	return m.session, nil
}

// Fill sets the value of the field identified by id.
func (m *Manager) Fill(id, value string) (*FillResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.active()
	if err != nil {
		return nil, err
	}
	return m.dispatcher.Fill(s, id, value)
}

// Click clicks the button identified by id.
func (m *Manager) Click(ctx context.Context, id string, mode ClickMode) (*ClickResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.active()
	if err != nil {
		return nil, err
	}
	res, err := m.dispatcher.Click(ctx, s, id, mode)
	if err != nil {
		return nil, err
	}
	m.logWarnings("click "+res.ID, res.Warnings)
	return res, nil
}

// ClickHeading clicks the heading identified by id. In HeadingModeTable the
// resulting table is extracted, after which the session may be torn down.
func (m *Manager) ClickHeading(ctx context.Context, id string, mode HeadingMode) (*HeadingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.active()
	if err != nil {
		return nil, err
	}
	res, err := m.dispatcher.ClickHeading(ctx, s, id)
	if err != nil {
		return nil, err
	}

	if mode == HeadingModeTable {
		payload, w, err := m.extractor.ExtractPaged(s)
		if err != nil {
			return nil, err
		}
		res.Table = payload
		res.Warnings.Merge(w)
		res.Closed = m.afterExtract()
	}

	m.logWarnings("click "+res.ID, res.Warnings)
	return res, nil
}

// ClickHeadingByKeyword clicks the first heading whose label contains keyword.
func (m *Manager) ClickHeadingByKeyword(ctx context.Context, keyword string) (*HeadingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.active()
	if err != nil {
		return nil, err
	}
	res, err := m.dispatcher.ClickHeadingByKeyword(ctx, s, keyword)
	if err != nil {
		return nil, err
	}
	m.logWarnings("click "+res.ID, res.Warnings)
	return res, nil
}

// Extract reads the first table of the current page.
func (m *Manager) Extract() (*Extraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.active()
	if err != nil {
		return nil, err
	}
	res, err := m.extractor.Extract(s)
	if err != nil {
		return nil, err
	}
	res.Closed = m.afterExtract()
	return res, nil
}

func (m *Manager) afterExtract() bool {
	if !m.cfg.Session.TeardownAfterExtract {
		return false
	}
	m.teardown("extraction finished")
	return true
}

// Outline renders the current page with its addressable elements tagged.
func (m *Manager) Outline(maxLength int) (*Outline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.active()
	if err != nil {
		return nil, err
	}
	content, err := s.Page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	if maxLength <= 0 {
		maxLength = DefaultOutlineLength
	}

	out, err := m.registry.BuildOutline(content, maxLength)
	if err != nil {
		return nil, err
	}
	out.URL = s.URL()
	return out, nil
}

// Status returns a read-only view of the session.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{}
	if m.session != nil {
		st = m.session.status()
	}
	st.RunID = logging.GetSessionID()
	return st
}

// Close tears the session down. It reports whether a session was open.
func (m *Manager) Close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.teardown("closed by request")
}

// CloseIdle tears the session down when it has not been used for longer than
// the configured idle timeout. A zero timeout disables it.
func (m *Manager) CloseIdle(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	timeout := m.cfg.Session.IdleTimeout
	if m.session == nil || timeout <= 0 {
		return false
	}
	if now.Sub(m.session.LastUsedAt) <= timeout {
		return false
	}
	return m.teardown("idle")
}

// Reap calls CloseIdle every interval until ctx is done.
func (m *Manager) Reap(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if m.CloseIdle(now) {
				m.logger.Infof("closed idle browser session")
			}
		}
	}
}

// Shutdown closes the session, if any.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardown("shutdown")
}

// teardown must be called with the lock held. It never fails.
func (m *Manager) teardown(reason string) bool {
	if m.session == nil {
		return false
	}
	m.session.close()
	m.session = nil
	m.logger.Infof("browser session closed (%s)", reason)
	m.observer.SessionClosed(reason)
	return true
}

func (m *Manager) logWarnings(op string, w Warnings) {
	if !w.Empty() {
		m.logger.Warnf("%s completed with %d warnings: %s", op, len(w), w)
	}
}

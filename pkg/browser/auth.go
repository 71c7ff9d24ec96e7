package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pagewalker/pkg/config"
	"github.com/entrhq/pagewalker/pkg/logging"
	"github.com/entrhq/pagewalker/pkg/ocr"
)

// StateStore persists the storage state of an authenticated context.
type StateStore interface {
	Exists() bool
	Path() string
	Save(state *playwright.StorageState) error
}

// Gate detects login or challenge pages and resolves them with the
// configured strategy.
type Gate struct {
	cfg        config.AuthConfig
	patterns   []glob.Glob
	recognizer ocr.Recognizer
	store      StateStore
	logger     *logging.Logger
}

// NewGate compiles the URL patterns of cfg. recognizer is only used by the
// ocr strategy and store by the deferred strategy (and by ocr when
// PersistAfterLogin is set); either may be nil otherwise.
func NewGate(cfg config.AuthConfig, recognizer ocr.Recognizer, store StateStore, logger *logging.Logger) (*Gate, error) {
	patterns := make([]glob.Glob, 0, len(cfg.URLPatterns))
	for _, p := range cfg.URLPatterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid auth url pattern %q: %w", p, err)
		}
		patterns = append(patterns, g)
	}

	if cfg.Strategy == config.AuthStrategyOCR && recognizer == nil {
		return nil, fmt.Errorf("ocr auth strategy requires a recognizer")
	}
	if cfg.Strategy == config.AuthStrategyDeferred && store == nil {
		return nil, fmt.Errorf("deferred auth strategy requires a login state store")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Gate{
		cfg:        cfg,
		patterns:   patterns,
		recognizer: recognizer,
		store:      store,
		logger:     logger,
	}, nil
}

// Strategy returns the configured strategy.
func (g *Gate) Strategy() config.AuthStrategy {
	return g.cfg.Strategy
}

// RequiresAuthentication reports whether page looks like a login or challenge
// surface: its URL matches a configured pattern, or it shows a password field
// or a captcha.
func (g *Gate) RequiresAuthentication(page playwright.Page) bool {
	url := strings.ToLower(page.URL())
	for _, p := range g.patterns {
		if p.Match(url) {
			return true
		}
	}
	return present(page, g.cfg.PasswordSelector) || present(page, g.cfg.CaptchaSelector)
}

func present(page playwright.Page, selector string) bool {
	if selector == "" {
		return false
	}
	n, err := page.Locator(selector).Count()
	return err == nil && n > 0
}

// Resolve runs the gate on the current page of s after it navigated to target.
// Under the ocr strategy it only detects the gate: Login runs once, when the
// session starts.
func (g *Gate) Resolve(ctx context.Context, s *Session, target string, w *Warnings) AuthOutcome {
	if !g.RequiresAuthentication(s.Page) {
		return AuthNotRequired
	}

	switch g.cfg.Strategy {
	case config.AuthStrategyDeferred:
		return g.awaitLogin(ctx, s, target, w)
	case config.AuthStrategyOCR:
		// automatic login only runs when the session starts
		w.Addf("page %s requires authentication; the session must be closed to log in again", s.Page.URL())
		return AuthRequired
	default:
		w.Addf("page %s requires authentication", s.Page.URL())
		return AuthRequired
	}
}

// Login performs one automatic captcha login on the configured login page.
// Failures are recorded as warnings; there is no retry.
func (g *Gate) Login(ctx context.Context, s *Session, w *Warnings) AuthOutcome {
	if err := g.login(ctx, s); err != nil {
		g.logger.Warnf("automatic login failed: %v", err)
		w.Add("automatic login", err)
		return AuthFailed
	}

	g.logger.Infof("automatic login succeeded")
	if g.cfg.OCR.PersistAfterLogin {
		g.persist(s, w)
	}
	return AuthResolved
}

func (g *Gate) login(ctx context.Context, s *Session) error {
	o := g.cfg.OCR
	page := s.Page

	_, err := page.Goto(o.LoginURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	s.invalidate()
	if err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	img := page.Locator(o.ImageSelector).First()
	if err := img.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(millis(o.ImageWait)),
	}); err != nil {
		return fmt.Errorf("%w: captcha image: %v", ErrTimeout, err)
	}

	image, err := img.Screenshot()
	if err != nil {
		return fmt.Errorf("capture captcha: %w", err)
	}

	guess, err := g.recognizer.Recognize(ctx, image)
	if err != nil {
		return fmt.Errorf("recognize captcha: %w", err)
	}
	g.logger.Debugf("captcha guess has %d characters", len(guess))

	if err := page.Locator(o.InputSelector).First().Fill(guess); err != nil {
		return fmt.Errorf("fill captcha: %w", err)
	}
	if err := page.Locator(o.SubmitSelector).First().Click(); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}

	if err := page.Locator(o.LandmarkSelector).First().WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(millis(o.LandmarkWait)),
	}); err != nil {
		return fmt.Errorf("%w: post-login landmark: %v", ErrTimeout, err)
	}

	if o.MenuSelector != "" {
		if err := page.Locator(o.MenuSelector).First().Click(); err != nil {
			return fmt.Errorf("open menu: %w", err)
		}
		// settling is best effort once the landmark showed up
		_ = page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State: playwright.LoadStateNetworkidle,
		})
	}
	s.invalidate()
	return nil
}

// awaitLogin polls until the gate clears or the wait budget runs out. The
// login state is persisted exactly once when it clears.
func (g *Gate) awaitLogin(ctx context.Context, s *Session, target string, w *Warnings) AuthOutcome {
	g.logger.Infof("waiting up to %s for login on %s", g.cfg.WaitBudget, s.Page.URL())

	err := pollUntil(ctx, g.cfg.PollInterval, g.cfg.WaitBudget, func() bool {
		return !g.RequiresAuthentication(s.Page)
	})
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			g.logger.Warnf("login not completed within %s", g.cfg.WaitBudget)
			w.Addf("login not completed within %s", g.cfg.WaitBudget)
		} else {
			w.Add("wait for login", err)
		}
		return AuthAbandoned
	}

	g.logger.Infof("login completed")
	s.invalidate()
	g.persist(s, w)
	g.returnTo(s, target, w)
	return AuthResolved
}

func (g *Gate) persist(s *Session, w *Warnings) {
	if g.store == nil {
		return
	}
	state, err := s.Context.StorageState()
	if err != nil {
		w.Add("read login state", err)
		return
	}
	if err := g.store.Save(state); err != nil {
		g.logger.Errorf("failed to save login state: %v", err)
		w.Add("save login state", err)
		return
	}
	g.logger.Infof("login state saved to %s", g.store.Path())
}

// returnTo goes back to target when resolving the gate left the page elsewhere.
func (g *Gate) returnTo(s *Session, target string, w *Warnings) {
	if target == "" || s.Page.URL() == target {
		return
	}
	s.Navigate(target, w)
}

package browser

import (
	"context"
	"errors"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pagewalker/pkg/config"
	"github.com/entrhq/pagewalker/pkg/logging"
)

// The fakes embed the playwright interfaces and override only what the
// package calls. Locators resolve lazily against a fakeDOM so elements added
// by a click are visible to later lookups, as they are in a real page.

type fakeElement struct {
	text    string
	attrs   map[string]string
	caption string
	href    string
	outer   string
	shot    []byte
	textErr error
	onClick func() error

	value  string
	clicks int
}

type fakeDOM struct {
	elements  map[string][]*fakeElement
	countErrs map[string]error
	// onCount runs before every Count on the DOM
	onCount func(selector string)
}

func newDOM() *fakeDOM {
	return &fakeDOM{
		elements:  map[string][]*fakeElement{},
		countErrs: map[string]error{},
	}
}

func (d *fakeDOM) add(selector string, els ...*fakeElement) {
	d.elements[selector] = append(d.elements[selector], els...)
}

// pwLocator lets fakeLocator embed the interface without a field named
// Locator hiding the interface's Locator method.
type pwLocator = playwright.Locator

type fakeLocator struct {
	pwLocator
	dom      *fakeDOM
	selector string
	index    int
}

func (l *fakeLocator) matches() []*fakeElement {
	els := l.dom.elements[l.selector]
	if l.index < 0 {
		return els
	}
	if l.index < len(els) {
		return els[l.index : l.index+1]
	}
	return nil
}

func (l *fakeLocator) one() (*fakeElement, error) {
	els := l.matches()
	if len(els) == 0 {
		return nil, errors.New("no element matches " + l.selector)
	}
	return els[0], nil
}

func (l *fakeLocator) Count() (int, error) {
	if l.dom.onCount != nil {
		l.dom.onCount(l.selector)
	}
	if err := l.dom.countErrs[l.selector]; err != nil {
		return 0, err
	}
	return len(l.matches()), nil
}

func (l *fakeLocator) Nth(index int) playwright.Locator {
	return &fakeLocator{dom: l.dom, selector: l.selector, index: index}
}

func (l *fakeLocator) First() playwright.Locator {
	return l.Nth(0)
}

func (l *fakeLocator) InnerText(...playwright.LocatorInnerTextOptions) (string, error) {
	el, err := l.one()
	if err != nil {
		return "", err
	}
	return el.text, el.textErr
}

func (l *fakeLocator) GetAttribute(name string, _ ...playwright.LocatorGetAttributeOptions) (string, error) {
	el, err := l.one()
	if err != nil {
		return "", err
	}
	return el.attrs[name], nil
}

func (l *fakeLocator) Fill(value string, _ ...playwright.LocatorFillOptions) error {
	el, err := l.one()
	if err != nil {
		return err
	}
	el.value = value
	return nil
}

func (l *fakeLocator) Click(...playwright.LocatorClickOptions) error {
	el, err := l.one()
	if err != nil {
		return err
	}
	el.clicks++
	if el.onClick != nil {
		return el.onClick()
	}
	return nil
}

func (l *fakeLocator) ScrollIntoViewIfNeeded(...playwright.LocatorScrollIntoViewIfNeededOptions) error {
	_, err := l.one()
	return err
}

func (l *fakeLocator) Screenshot(...playwright.LocatorScreenshotOptions) ([]byte, error) {
	el, err := l.one()
	if err != nil {
		return nil, err
	}
	return el.shot, nil
}

func (l *fakeLocator) WaitFor(...playwright.LocatorWaitForOptions) error {
	_, err := l.one()
	return err
}

func (l *fakeLocator) Evaluate(expression string, _ interface{}, _ ...playwright.LocatorEvaluateOptions) (interface{}, error) {
	el, err := l.one()
	if err != nil {
		return nil, err
	}
	switch expression {
	case scriptCaption:
		return el.caption, nil
	case scriptLinkHref:
		return el.href, nil
	case scriptOuterHTML:
		return el.outer, nil
	}
	return nil, errors.New("unexpected script")
}

type fakeFrame struct {
	playwright.Frame
	dom  *fakeDOM
	name string
	url  string
}

func (f *fakeFrame) Locator(selector string, _ ...playwright.FrameLocatorOptions) playwright.Locator {
	return &fakeLocator{dom: f.dom, selector: selector, index: -1}
}

func (f *fakeFrame) Name() string { return f.name }
func (f *fakeFrame) URL() string  { return f.url }

type fakePage struct {
	playwright.Page
	dom     *fakeDOM
	main    *fakeFrame
	frames  []*fakeFrame
	url     string
	content string

	gotoErr error
	onGoto  func(url string)
	visited []string
	loads   []playwright.LoadState
	timeout float64
	closed  bool
}

func newFakePage(url string) *fakePage {
	dom := newDOM()
	return &fakePage{
		dom:  dom,
		main: &fakeFrame{dom: dom, url: url},
		url:  url,
	}
}

func (p *fakePage) addFrame(name string) *fakeFrame {
	f := &fakeFrame{dom: newDOM(), name: name, url: "https://portal.example.test/frames/" + name}
	p.frames = append(p.frames, f)
	return f
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Locator(selector string, _ ...playwright.PageLocatorOptions) playwright.Locator {
	return &fakeLocator{dom: p.dom, selector: selector, index: -1}
}

func (p *fakePage) MainFrame() playwright.Frame { return p.main }

func (p *fakePage) Frames() []playwright.Frame {
	frames := []playwright.Frame{p.main}
	for _, f := range p.frames {
		frames = append(frames, f)
	}
	return frames
}

func (p *fakePage) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	p.visited = append(p.visited, url)
	if p.gotoErr != nil {
		return nil, p.gotoErr
	}
	p.url = url
	if p.onGoto != nil {
		p.onGoto(url)
	}
	return nil, nil
}

func (p *fakePage) WaitForLoadState(options ...playwright.PageWaitForLoadStateOptions) error {
	if len(options) > 0 && options[0].State != nil {
		p.loads = append(p.loads, *options[0].State)
	}
	return nil
}

func (p *fakePage) SetDefaultTimeout(timeout float64) { p.timeout = timeout }

func (p *fakePage) Content() (string, error) { return p.content, nil }

func (p *fakePage) Close(...playwright.PageCloseOptions) error {
	p.closed = true
	return nil
}

func (p *fakePage) IsClosed() bool { return p.closed }

type fakeContext struct {
	playwright.BrowserContext
	page   *fakePage
	popup  *fakePage
	state  *playwright.StorageState
	saves  int
	closed bool
}

func (c *fakeContext) NewPage() (playwright.Page, error) { return c.page, nil }

func (c *fakeContext) ExpectPage(cb func() error, _ ...playwright.BrowserContextExpectPageOptions) (playwright.Page, error) {
	if err := cb(); err != nil {
		return nil, err
	}
	if c.popup != nil {
		p := c.popup
		c.popup = nil
		return p, nil
	}
	return nil, errors.New(`timeout: waiting for event "page"`)
}

func (c *fakeContext) StorageState(...string) (*playwright.StorageState, error) {
	c.saves++
	return c.state, nil
}

func (c *fakeContext) Close(...playwright.BrowserContextCloseOptions) error {
	c.closed = true
	return nil
}

type fakeBrowser struct {
	playwright.Browser
	ctx     *fakeContext
	options []playwright.BrowserNewContextOptions
	closed  bool
}

func (b *fakeBrowser) NewContext(options ...playwright.BrowserNewContextOptions) (playwright.BrowserContext, error) {
	b.options = append(b.options, options...)
	return b.ctx, nil
}

func (b *fakeBrowser) Close(...playwright.BrowserCloseOptions) error {
	b.closed = true
	return nil
}

type fakeLauncher struct {
	browser  *fakeBrowser
	launches int
	stops    int
}

func (l *fakeLauncher) Launch(config.BrowserConfig) (playwright.Browser, func() error, error) {
	l.launches++
	return l.browser, func() error {
		l.stops++
		return nil
	}, nil
}

func newFakeLauncher(page *fakePage) *fakeLauncher {
	bctx := &fakeContext{page: page, state: &playwright.StorageState{}}
	return &fakeLauncher{browser: &fakeBrowser{ctx: bctx}}
}

type fakeStore struct {
	path   string
	exists bool
	saved  []*playwright.StorageState
}

func (s *fakeStore) Exists() bool { return s.exists }
func (s *fakeStore) Path() string { return s.path }

func (s *fakeStore) Save(state *playwright.StorageState) error {
	s.saved = append(s.saved, state)
	s.exists = true
	return nil
}

type fakeRecognizer struct {
	guess string
	err   error
	seen  [][]byte
}

func (r *fakeRecognizer) Recognize(_ context.Context, image []byte) (string, error) {
	r.seen = append(r.seen, image)
	return r.guess, r.err
}

// testConfig shrinks every wait so tests run quickly.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Dispatch = config.DispatchConfig{
		PopupWait:           10 * time.Millisecond,
		LoadWait:            10 * time.Millisecond,
		HeadingPollInterval: 2 * time.Millisecond,
		HeadingPollBudget:   20 * time.Millisecond,
		HeadingSettle:       0,
	}
	cfg.Auth.PollInterval = 5 * time.Millisecond
	cfg.Auth.WaitBudget = 60 * time.Millisecond
	return cfg
}

// testSession wraps page in a session whose context is a fakeContext.
func testSession(cfg *config.Config, page *fakePage) (*Session, *fakeContext) {
	bctx := &fakeContext{page: page, state: &playwright.StorageState{}}
	return newSession(cfg, logging.Nop(), &fakeBrowser{ctx: bctx}, bctx, page, nil), bctx
}

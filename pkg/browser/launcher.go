package browser

import (
	"fmt"
	"io"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pagewalker/pkg/config"
)

// Launcher starts a browser. The returned stop function releases whatever
// the launcher started besides the browser itself.
type Launcher interface {
	Launch(cfg config.BrowserConfig) (playwright.Browser, func() error, error)
}

// PlaywrightLauncher installs (unless told otherwise) and runs the playwright
// driver, then launches Chromium.
type PlaywrightLauncher struct{}

// Launch implements Launcher.
func (PlaywrightLauncher) Launch(cfg config.BrowserConfig) (playwright.Browser, func() error, error) {
	// Driver output would interleave with the service logs
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if !cfg.SkipInstall {
		if err := playwright.Install(opts); err != nil {
			return nil, nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return browser, pw.Stop, nil
}

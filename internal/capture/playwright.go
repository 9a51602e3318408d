package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/xerrors"
)

// PlaywrightBrowser runs one Chromium process and opens a fresh browser
// context for every session.
type PlaywrightBrowser struct {
	config  BrowserConfig
	pw      *playwright.Playwright
	browser playwright.Browser
}

func NewPlaywrightBrowser(ctx context.Context, c BrowserConfig) (*PlaywrightBrowser, error) {
	if err := c.Validate(); err != nil {
		return nil, xerrors.Errorf("invalid browser config: %w", err)
	}

	p, err := playwright.Run()
	if err != nil {
		return nil, xerrors.Errorf("failed to start playwright: %w", err)
	}

	var browser playwright.Browser
	if c.ChromeDevtoolsProtocolURL == "" {
		options := playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(c.Headless),
			Args:     c.launchArgs(),
		}
		if c.ChromePath != "" {
			options.ExecutablePath = playwright.String(c.ChromePath)
		}
		browser, err = p.Chromium.Launch(options)
		if err != nil {
			_ = p.Stop()
			return nil, xerrors.Errorf("failed to launch browser: %w", err)
		}
	} else {
		browser, err = p.Chromium.ConnectOverCDP(c.ChromeDevtoolsProtocolURL)
		if err != nil {
			_ = p.Stop()
			return nil, xerrors.Errorf("failed to connect to browser via CDP at %s: %w", c.ChromeDevtoolsProtocolURL, err)
		}
	}

	slog.Info("playwright browser ready", "version", browser.Version(), "remote", c.ChromeDevtoolsProtocolURL != "")

	return &PlaywrightBrowser{
		config:  c,
		pw:      p,
		browser: browser,
	}, nil
}

// InstallPlaywright downloads the Chromium build playwright drives.
func InstallPlaywright() error {
	if err := playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
	}); err != nil {
		return xerrors.Errorf("failed to install playwright browsers: %w", err)
	}
	return nil
}

func (b *PlaywrightBrowser) Open(ctx context.Context) (Session, error) {
	options := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  b.config.ViewportWidth,
			Height: b.config.ViewportHeight,
		},
		DeviceScaleFactor: playwright.Float(b.config.DeviceScaleFactor),
	}
	if b.config.UserAgent != "" {
		options.UserAgent = playwright.String(b.config.UserAgent)
	}
	if b.config.AcceptLanguage != "" {
		options.ExtraHttpHeaders = map[string]string{"Accept-Language": b.config.AcceptLanguage}
	}

	browserContext, err := b.browser.NewContext(options)
	if err != nil {
		return nil, xerrors.Errorf("failed to create browser context: %w", err)
	}

	if len(b.config.BlockResourceTypes) > 0 {
		if err := browserContext.Route("**/*", func(route playwright.Route) {
			if b.config.blocked(route.Request().ResourceType()) {
				_ = route.Abort("blockedbyclient")
				return
			}
			_ = route.Continue()
		}); err != nil {
			_ = browserContext.Close()
			return nil, xerrors.Errorf("failed to install request filter: %w", err)
		}
	}

	page, err := browserContext.NewPage()
	if err != nil {
		_ = browserContext.Close()
		return nil, xerrors.Errorf("failed to create new page: %w", err)
	}

	return &playwrightSession{
		context: browserContext,
		page:    page,
	}, nil
}

func (b *PlaywrightBrowser) Close() error {
	var errs []error
	if err := b.browser.Close(); err != nil {
		errs = append(errs, xerrors.Errorf("failed to close browser: %w", err))
	}
	if err := b.pw.Stop(); err != nil {
		errs = append(errs, xerrors.Errorf("failed to stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

type playwrightSession struct {
	context playwright.BrowserContext
	page    playwright.Page

	closeOnce sync.Once
	closeErr  error
}

// watch closes the page when ctx ends so that navigation and screenshots,
// which fail the capture anyway, cannot outlive the caller.
func (s *playwrightSession) watch(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = s.page.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func timeoutMillis(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	return playwright.Float(float64(max(time.Until(deadline), time.Millisecond).Milliseconds()))
}

func (s *playwrightSession) Navigate(ctx context.Context, link string) error {
	defer s.watch(ctx)()

	if _, err := s.page.Goto(link, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   timeoutMillis(ctx),
	}); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			err = markAs(ErrNavigationTimeout, err)
		}
		return classifyNavigationError(ctx, xerrors.Errorf("failed to navigate to %s: %w", link, err))
	}
	return nil
}

// evaluate leaves the page open when ctx ends first. Scripts back the soft
// settle steps, and a slow one must not take the page down with it.
func (s *playwrightSession) evaluate(ctx context.Context, expression string) (string, error) {
	v, err := abandonOnDone(ctx, func() (any, error) {
		return s.page.Evaluate(expression)
	})
	if err != nil {
		return "", err
	}
	raw, ok := v.(string)
	if !ok {
		return "", xerrors.Errorf("unexpected script result %T", v)
	}
	return raw, nil
}

// abandonOnDone runs f and stops waiting for it once ctx is done. f keeps
// running until it returns on its own, at the latest when the session closes.
func abandonOnDone[T any](ctx context.Context, f func() (T, error)) (T, error) {
	type reply struct {
		v   T
		err error
	}
	done := make(chan reply, 1)
	go func() {
		v, err := f()
		done <- reply{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (s *playwrightSession) Visible(ctx context.Context, selector string) (bool, error) {
	return visible(ctx, s.evaluate, selector)
}

func (s *playwrightSession) Remove(ctx context.Context, selector string, all bool) (int, error) {
	return remove(ctx, s.evaluate, selector, all)
}

func (s *playwrightSession) AddStyle(ctx context.Context, css string) error {
	return addStyle(ctx, s.evaluate, css)
}

func (s *playwrightSession) Bounds(ctx context.Context, selector string) (*Box, error) {
	return bounds(ctx, s.evaluate, selector)
}

func (s *playwrightSession) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	defer s.watch(ctx)()

	data, err := s.page.Locator(selector).First().Screenshot(playwright.LocatorScreenshotOptions{
		Type:    playwright.ScreenshotTypePng,
		Timeout: timeoutMillis(ctx),
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to take screenshot of %s: %w", selector, err)
	}
	return data, nil
}

func (s *playwrightSession) Close() error {
	s.closeOnce.Do(func() {
		if err := s.context.Close(); err != nil {
			s.closeErr = xerrors.Errorf("failed to close browser context: %w", err)
		}
	})
	return s.closeErr
}

package capture

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"golang.org/x/xerrors"
)

const idlePollInterval = 50 * time.Millisecond

var cdpResourceTypes = map[string]network.ResourceType{
	"stylesheet": network.ResourceTypeStylesheet,
	"font":       network.ResourceTypeFont,
	"media":      network.ResourceTypeMedia,
	"texttrack":  network.ResourceTypeTextTrack,
	"websocket":  network.ResourceTypeWebSocket,
	"manifest":   network.ResourceTypeManifest,
	"ping":       network.ResourceTypePing,
	"prefetch":   network.ResourceTypePrefetch,
	"other":      network.ResourceTypeOther,
}

// ChromedpBrowser drives Chromium over the DevTools protocol directly. Each
// session gets its own incognito browser context in the same process.
type ChromedpBrowser struct {
	config   BrowserConfig
	patterns []*fetch.RequestPattern

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

func NewChromedpBrowser(ctx context.Context, c BrowserConfig) (*ChromedpBrowser, error) {
	if err := c.Validate(); err != nil {
		return nil, xerrors.Errorf("invalid browser config: %w", err)
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if c.ChromeDevtoolsProtocolURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, c.ChromeDevtoolsProtocolURL)
	} else {
		options := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", c.Headless),
			chromedp.NoSandbox,
			chromedp.WindowSize(c.ViewportWidth, c.ViewportHeight),
		)
		for _, arg := range c.launchArgs() {
			options = append(options, chromedp.Flag(arg[len("--"):], true))
		}
		if c.ChromePath != "" {
			options = append(options, chromedp.ExecPath(c.ChromePath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, options...)
	}

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, xerrors.Errorf("failed to start browser: %w", err)
	}

	var patterns []*fetch.RequestPattern
	for _, t := range c.BlockResourceTypes {
		rt, ok := cdpResourceTypes[t]
		if !ok {
			slog.Warn("resource type cannot be blocked over CDP, ignoring", "type", t)
			continue
		}
		patterns = append(patterns, &fetch.RequestPattern{
			URLPattern:   "*",
			ResourceType: rt,
			RequestStage: fetch.RequestStageRequest,
		})
	}

	slog.Info("chromedp browser ready", "remote", c.ChromeDevtoolsProtocolURL != "")

	return &ChromedpBrowser{
		config:      c,
		patterns:    patterns,
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}, nil
}

func (b *ChromedpBrowser) Open(ctx context.Context) (Session, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, xerrors.Errorf("browser is closed: %w", err)
	}

	sessionCtx, cancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	s := &chromedpSession{
		ctx:    sessionCtx,
		cancel: cancel,
		idle:   newIdleTracker(b.config.NetworkIdleConnections, b.config.NetworkIdleQuiet),
	}
	chromedp.ListenTarget(sessionCtx, s.listen)

	// The first Run attaches the tab and ties its event loop to the context
	// it is given, so it must be the long-lived session context and not one
	// derived per call.
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(sessionCtx)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = s.Close()
		return nil, xerrors.Errorf("failed to open tab: %w", err)
	}

	actions := []chromedp.Action{
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(b.config.ViewportWidth), int64(b.config.ViewportHeight), b.config.DeviceScaleFactor, false),
	}
	if len(b.patterns) > 0 {
		actions = append(actions, fetch.Enable().WithPatterns(b.patterns))
	}
	if b.config.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(b.config.UserAgent).WithAcceptLanguage(b.config.AcceptLanguage))
	}
	if b.config.AcceptLanguage != "" {
		actions = append(actions, network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": b.config.AcceptLanguage}))
	}

	if err := s.run(ctx, actions...); err != nil {
		_ = s.Close()
		return nil, xerrors.Errorf("failed to prepare browser context: %w", err)
	}
	return s, nil
}

func (b *ChromedpBrowser) Close() error {
	b.cancel()
	b.allocCancel()
	return nil
}

type chromedpSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	idle   *idleTracker

	closeOnce sync.Once
}

func (s *chromedpSession) listen(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		s.idle.started(string(e.RequestID))
	case *network.EventLoadingFinished:
		s.idle.finished(string(e.RequestID))
	case *network.EventLoadingFailed:
		s.idle.finished(string(e.RequestID))
	case *fetch.EventRequestPaused:
		// Listeners must not block on CDP calls.
		go func() {
			c := chromedp.FromContext(s.ctx)
			if c == nil || c.Target == nil {
				return
			}
			_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(cdp.WithExecutor(s.ctx, c.Target))
		}()
	}
}

// run executes actions on the session's tab, bounded by ctx as well as the
// session lifetime.
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *chromedpSession) Navigate(ctx context.Context, link string) error {
	s.idle.reset()
	err := s.run(ctx, chromedp.Navigate(link), chromedp.ActionFunc(func(ctx context.Context) error {
		return s.idle.wait(ctx, idlePollInterval)
	}))
	if err != nil {
		return classifyNavigationError(ctx, xerrors.Errorf("failed to navigate to %s: %w", link, err))
	}
	return nil
}

func (s *chromedpSession) evaluate(ctx context.Context, expression string) (string, error) {
	var raw string
	if err := s.run(ctx, chromedp.Evaluate(expression, &raw)); err != nil {
		return "", err
	}
	return raw, nil
}

func (s *chromedpSession) Visible(ctx context.Context, selector string) (bool, error) {
	return visible(ctx, s.evaluate, selector)
}

func (s *chromedpSession) Remove(ctx context.Context, selector string, all bool) (int, error) {
	return remove(ctx, s.evaluate, selector, all)
}

func (s *chromedpSession) AddStyle(ctx context.Context, css string) error {
	return addStyle(ctx, s.evaluate, css)
}

func (s *chromedpSession) Bounds(ctx context.Context, selector string) (*Box, error) {
	return bounds(ctx, s.evaluate, selector)
}

func (s *chromedpSession) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	box, err := s.Bounds(ctx, selector)
	if err != nil {
		return nil, err
	}
	if box == nil {
		return nil, xerrors.Errorf("%s: %w", selector, ErrNodeNotFound)
	}
	if box.Empty() {
		return nil, xerrors.Errorf("%s: %w", selector, ErrEmptyRegion)
	}

	var data []byte
	if err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		data, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithFromSurface(true).
			WithCaptureBeyondViewport(true).
			WithClip(&page.Viewport{
				X:      math.Floor(box.X),
				Y:      math.Floor(box.Y),
				Width:  math.Ceil(box.Width),
				Height: math.Ceil(box.Height),
				Scale:  1,
			}).
			Do(ctx)
		return err
	})); err != nil {
		return nil, xerrors.Errorf("failed to take screenshot of %s: %w", selector, err)
	}
	return data, nil
}

func (s *chromedpSession) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

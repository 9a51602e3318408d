package capture

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type BrowserConfig struct {
	ViewportWidth     int
	ViewportHeight    int
	DeviceScaleFactor float64

	UserAgent      string
	AcceptLanguage string
	// BlockResourceTypes lists lower-case resource types ("stylesheet",
	// "font", ...) that are failed before they reach the network.
	BlockResourceTypes []string

	// NetworkIdleConnections and NetworkIdleQuiet define when navigation is
	// considered settled: at most that many requests in flight for the quiet
	// window. Only the chromedp backend honours them; playwright's
	// networkidle always waits for zero connections over 500ms.
	NetworkIdleConnections int
	NetworkIdleQuiet       time.Duration

	Headless                  bool
	ChromePath                string
	ChromeDevtoolsProtocolURL string
}

func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		ViewportWidth:          1920,
		ViewportHeight:         1080,
		DeviceScaleFactor:      2,
		UserAgent:              DefaultUserAgent,
		AcceptLanguage:         "en",
		BlockResourceTypes:     []string{"stylesheet", "font"},
		NetworkIdleConnections: 2,
		NetworkIdleQuiet:       500 * time.Millisecond,
		Headless:               true,
	}
}

// Page rendering depends on these, so they can never be blocked.
var essentialResourceTypes = []string{"document", "script", "image", "xhr", "fetch"}

func (c BrowserConfig) Validate() error {
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return xerrors.Errorf("viewport must be positive, got %dx%d", c.ViewportWidth, c.ViewportHeight)
	}
	if c.DeviceScaleFactor <= 0 || c.DeviceScaleFactor > 4 {
		return xerrors.Errorf("device scale factor must be in (0, 4], got %v", c.DeviceScaleFactor)
	}
	for _, t := range c.BlockResourceTypes {
		if slices.Contains(essentialResourceTypes, strings.ToLower(t)) {
			return xerrors.Errorf("resource type %q cannot be blocked", t)
		}
	}
	if c.NetworkIdleConnections < 0 {
		return xerrors.Errorf("network idle connections must not be negative")
	}
	return nil
}

func (c BrowserConfig) blocked(resourceType string) bool {
	for _, t := range c.BlockResourceTypes {
		if strings.EqualFold(t, resourceType) {
			return true
		}
	}
	return false
}

// launchArgs are the Chromium flags for running inside a container.
func (c BrowserConfig) launchArgs() []string {
	return []string{
		"--no-sandbox",
		"--disable-setuid-sandbox",
		"--disable-dev-shm-usage",
		"--disable-accelerated-2d-canvas",
		"--no-first-run",
		"--no-zygote",
		"--disable-gpu",
		"--hide-scrollbars",
	}
}

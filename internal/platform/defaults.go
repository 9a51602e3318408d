package platform

import (
	"time"

	"post2image/internal/env"
)

// Timings are applied to every default profile.
type Timings struct {
	NavigationTimeout time.Duration
	ReadinessTimeout  time.Duration
	SettleDelay       time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		NavigationTimeout: 30 * time.Second,
		ReadinessTimeout:  20 * time.Second,
		SettleDelay:       1 * time.Second,
	}
}

// xStyleOverride lifts the blur X puts on posts behind its logged-out
// interstitial and hides the sign-in chrome.
const xStyleOverride = `
* {
  filter: none !important;
  -webkit-filter: none !important;
}
div[data-testid="inlinePrompt"],
div[data-testid="loggedOutHome"],
div[data-testid="TopNavBar"],
div[data-testid="BottomBar"] {
  display: none !important;
}
`

const cookieDialog = `[data-testid="cookie-policy-dialog"]`

// DefaultProfiles returns the profiles for every supported platform.
func DefaultProfiles(t Timings) []Profile {
	base := Profile{
		NavigationTimeout: t.NavigationTimeout,
		ReadinessTimeout:  t.ReadinessTimeout,
	}

	x := base
	x.ID = X
	x.ReadySelectors = []string{`article[data-testid="tweet"]`}
	x.OverlayRemovals = []OverlayRemoval{
		{Selector: `#layers div[data-testid="sheetDialog"]`, All: true},
	}
	x.StyleOverride = xStyleOverride
	x.SettleDelay = t.SettleDelay
	x.ExtractSelectors = []string{`article[data-testid="tweet"]`, `article`}

	instagram := base
	instagram.ID = Instagram
	instagram.ReadySelectors = []string{`div._aam1`, `main article`}
	instagram.OverlayRemovals = []OverlayRemoval{
		{Selector: cookieDialog},
		{Selector: `div._ac4d`},
		{Selector: `div._ab8w`},
	}
	instagram.ExtractSelectors = []string{`div._aam1`, `main article`}

	threads := base
	threads.ID = Threads
	threads.ReadySelectors = []string{`[role="main"] div.x1ypdohk`, `[role="main"] article`}
	threads.OverlayRemovals = []OverlayRemoval{
		{Selector: `[role="dialog"]`, All: true},
	}
	threads.ExtractSelectors = []string{`[role="main"] div.x1ypdohk`, `[role="main"] article`}

	facebook := base
	facebook.ID = Facebook
	facebook.ReadySelectors = []string{`div.x1lliihq`, `div[role="article"]`}
	facebook.OverlayRemovals = []OverlayRemoval{
		{Selector: cookieDialog},
		{Selector: `div[role="dialog"]`, All: true},
	}
	facebook.ExtractSelectors = []string{`div.x1lliihq`, `div[role="article"]`}

	tiktok := base
	tiktok.ID = TikTok
	tiktok.ReadySelectors = []string{`div.tiktok-1y6genuq-DivBrowserModeContainer`, `[data-e2e="browse-video"]`}
	tiktok.OverlayRemovals = []OverlayRemoval{
		{Selector: `#login-modal`},
		{Selector: `tiktok-cookie-banner`},
	}
	tiktok.ExtractSelectors = []string{`div.tiktok-1y6genuq-DivBrowserModeContainer`, `[data-e2e="browse-video"]`}

	return []Profile{x, instagram, threads, facebook, tiktok}
}

func NewDefaultRegistry(t Timings) (*Registry, error) {
	return NewRegistry(DefaultProfiles(t)...)
}

// TimingsFromEnv overrides DefaultTimings with NAVIGATION_TIMEOUT,
// READINESS_TIMEOUT and SETTLE_DELAY.
func TimingsFromEnv() Timings {
	d := DefaultTimings()
	return Timings{
		NavigationTimeout: env.OrDefault("NAVIGATION_TIMEOUT", d.NavigationTimeout),
		ReadinessTimeout:  env.OrDefault("READINESS_TIMEOUT", d.ReadinessTimeout),
		SettleDelay:       env.OrDefault("SETTLE_DELAY", d.SettleDelay),
	}
}

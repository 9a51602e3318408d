package capture

import (
	"context"

	"post2image/internal/env"

	"golang.org/x/xerrors"
)

const (
	BackendPlaywright = "playwright"
	BackendChromedp   = "chromedp"
)

// NewBrowser starts the named browser backend.
func NewBrowser(ctx context.Context, backend string, c BrowserConfig) (Browser, error) {
	switch backend {
	case BackendPlaywright:
		if err := InstallPlaywright(); err != nil {
			return nil, err
		}
		return NewPlaywrightBrowser(ctx, c)
	case BackendChromedp:
		return NewChromedpBrowser(ctx, c)
	default:
		return nil, xerrors.Errorf("unknown browser backend %q", backend)
	}
}

// BrowserConfigFromEnv overrides DefaultBrowserConfig with the environment.
func BrowserConfigFromEnv() BrowserConfig {
	d := DefaultBrowserConfig()
	return BrowserConfig{
		ViewportWidth:             env.OrDefault("VIEWPORT_WIDTH", d.ViewportWidth),
		ViewportHeight:            env.OrDefault("VIEWPORT_HEIGHT", d.ViewportHeight),
		DeviceScaleFactor:         env.OrDefault("DEVICE_SCALE_FACTOR", d.DeviceScaleFactor),
		UserAgent:                 env.OrDefault("USER_AGENT", d.UserAgent),
		AcceptLanguage:            env.OrDefault("ACCEPT_LANGUAGE", d.AcceptLanguage),
		BlockResourceTypes:        env.OrDefault("BLOCK_RESOURCE_TYPES", d.BlockResourceTypes),
		NetworkIdleConnections:    env.OrDefault("NETWORK_IDLE_CONNECTIONS", d.NetworkIdleConnections),
		NetworkIdleQuiet:          env.OrDefault("NETWORK_IDLE_QUIET", d.NetworkIdleQuiet),
		Headless:                  env.OrDefault("HEADLESS", d.Headless),
		ChromePath:                env.OrDefault("CHROME_PATH", d.ChromePath),
		ChromeDevtoolsProtocolURL: env.OrDefault("CHROME_DEVTOOLS_PROTOCOL_URL", d.ChromeDevtoolsProtocolURL),
	}
}

// ConfigFromEnv overrides DefaultConfig with LINK_POLICY, POLL_INTERVAL and
// EXTRACT_TIMEOUT.
func ConfigFromEnv() (Config, error) {
	d := DefaultConfig()
	policy, err := ParseLinkPolicy(env.OrDefault("LINK_POLICY", string(d.LinkPolicy)))
	if err != nil {
		return Config{}, err
	}
	return Config{
		LinkPolicy:     policy,
		PollInterval:   env.OrDefault("POLL_INTERVAL", d.PollInterval),
		ExtractTimeout: env.OrDefault("EXTRACT_TIMEOUT", d.ExtractTimeout),
	}, nil
}

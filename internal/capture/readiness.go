package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"post2image/internal/platform"

	"golang.org/x/xerrors"
)

// softStepTimeout bounds each overlay removal and the style injection.
var softStepTimeout = 5 * time.Second

// Settle waits for the post to render, then strips overlays and applies the
// profile's style override. Only a post that never renders is an error.
func Settle(ctx context.Context, s Session, p platform.Profile, poll time.Duration) error {
	if err := awaitContent(ctx, s, p, poll); err != nil {
		return err
	}
	removeOverlays(ctx, s, p)
	return normalizeStyle(ctx, s, p)
}

func awaitContent(ctx context.Context, s Session, p platform.Profile, poll time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.ReadinessTimeout)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var lastErr error
	for {
		for _, selector := range p.ReadySelectors {
			ok, err := s.Visible(waitCtx, selector)
			if err != nil {
				lastErr = err
				continue
			}
			if ok {
				slog.DebugContext(ctx, "post content ready", "platform", p.ID.String(), "selector", selector)
				return nil
			}
		}

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			if lastErr != nil {
				slog.DebugContext(ctx, fmt.Sprintf("last readiness check failed: %s", lastErr))
			}
			return xerrors.Errorf("none of %q became visible within %s: %w", p.ReadySelectors, p.ReadinessTimeout, ErrContentNotFound)
		case <-ticker.C:
		}
	}
}

func removeOverlays(ctx context.Context, s Session, p platform.Profile) {
	for _, o := range p.OverlayRemovals {
		stepCtx, cancel := context.WithTimeout(ctx, softStepTimeout)
		n, err := s.Remove(stepCtx, o.Selector, o.All)
		cancel()
		if err != nil {
			slog.WarnContext(ctx, fmt.Sprintf("failed to remove overlay: %s", err), "platform", p.ID.String(), "selector", o.Selector)
			continue
		}
		slog.DebugContext(ctx, "overlay removal", "platform", p.ID.String(), "selector", o.Selector, "removed", n)
	}
}

func normalizeStyle(ctx context.Context, s Session, p platform.Profile) error {
	if p.StyleOverride != "" {
		stepCtx, cancel := context.WithTimeout(ctx, softStepTimeout)
		err := s.AddStyle(stepCtx, p.StyleOverride)
		cancel()
		if err != nil {
			slog.WarnContext(ctx, fmt.Sprintf("failed to inject style override: %s", err), "platform", p.ID.String())
		}
	}
	if p.SettleDelay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(p.SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package capture

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/xerrors"
)

// evaluator runs a JavaScript expression in the page and returns its string result.
// Every script below stringifies its own result so both backends decode the
// same way.
type evaluator func(ctx context.Context, expression string) (string, error)

func evaluateJSON(ctx context.Context, eval evaluator, expression string, out any) error {
	raw, err := eval(ctx, expression)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return xerrors.Errorf("failed to decode script result %q: %w", raw, err)
	}
	return nil
}

func visibleScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%q);
	if (!el || !el.isConnected) return JSON.stringify(false);
	const style = window.getComputedStyle(el);
	if (style.display === 'none' || style.visibility === 'hidden') return JSON.stringify(false);
	const r = el.getBoundingClientRect();
	return JSON.stringify(r.width > 0 && r.height > 0);
})()`, selector)
}

func removeScript(selector string, all bool) string {
	return fmt.Sprintf(`(() => {
	const els = %t ? Array.from(document.querySelectorAll(%q)) : [document.querySelector(%q)].filter(Boolean);
	els.forEach(el => el.remove());
	return JSON.stringify(els.length);
})()`, all, selector, selector)
}

func styleScript(css string) string {
	return fmt.Sprintf(`(() => {
	const style = document.createElement('style');
	style.textContent = %q;
	(document.head || document.documentElement).appendChild(style);
	return JSON.stringify(true);
})()`, css)
}

func boundsScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%q);
	if (!el) return JSON.stringify(null);
	const r = el.getBoundingClientRect();
	return JSON.stringify({ x: r.x + window.scrollX, y: r.y + window.scrollY, width: r.width, height: r.height });
})()`, selector)
}

func visible(ctx context.Context, eval evaluator, selector string) (bool, error) {
	var ok bool
	if err := evaluateJSON(ctx, eval, visibleScript(selector), &ok); err != nil {
		return false, xerrors.Errorf("failed to check visibility of %s: %w", selector, err)
	}
	return ok, nil
}

func remove(ctx context.Context, eval evaluator, selector string, all bool) (int, error) {
	var n int
	if err := evaluateJSON(ctx, eval, removeScript(selector, all), &n); err != nil {
		return 0, xerrors.Errorf("failed to remove %s: %w", selector, err)
	}
	return n, nil
}

func addStyle(ctx context.Context, eval evaluator, css string) error {
	var ok bool
	if err := evaluateJSON(ctx, eval, styleScript(css), &ok); err != nil {
		return xerrors.Errorf("failed to inject style: %w", err)
	}
	return nil
}

func bounds(ctx context.Context, eval evaluator, selector string) (*Box, error) {
	var box *Box
	if err := evaluateJSON(ctx, eval, boundsScript(selector), &box); err != nil {
		return nil, xerrors.Errorf("failed to measure %s: %w", selector, err)
	}
	return box, nil
}

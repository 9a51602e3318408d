package platform

import (
	"slices"
	"time"
)

// OverlayRemoval detaches nodes matching Selector from the document. Only the
// first match is removed unless All is set.
type OverlayRemoval struct {
	Selector string
	All      bool
}

// Profile describes how a platform's post is located and cleaned up before capture.
type Profile struct {
	ID ID

	// ReadySelectors signal that the post has rendered; the first one to
	// become visible ends the wait.
	ReadySelectors  []string
	OverlayRemovals []OverlayRemoval
	// StyleOverride is injected after overlays are removed. SettleDelay is
	// waited afterwards so the override can take visual effect.
	StyleOverride string
	SettleDelay   time.Duration
	// ExtractSelectors are tried in order and the first one resolving to a
	// visible node is captured. Older selectors stay listed after newer ones
	// because platforms keep serving stale markup to some clients.
	ExtractSelectors []string

	NavigationTimeout time.Duration
	ReadinessTimeout  time.Duration
}

func (p Profile) clone() Profile {
	p.ReadySelectors = slices.Clone(p.ReadySelectors)
	p.OverlayRemovals = slices.Clone(p.OverlayRemovals)
	p.ExtractSelectors = slices.Clone(p.ExtractSelectors)
	return p
}

package platform

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

var ErrInvalidProfile = xerrors.New("invalid platform profile")

// Registry is an immutable set of profiles keyed by platform. It is safe for
// concurrent use.
type Registry struct {
	profiles map[ID]Profile
}

func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{
		profiles: make(map[ID]Profile, len(profiles)),
	}
	for _, p := range profiles {
		if err := validate(p); err != nil {
			return nil, err
		}
		if _, ok := r.profiles[p.ID]; ok {
			return nil, xerrors.Errorf("%s registered twice: %w", p.ID, ErrInvalidProfile)
		}
		r.profiles[p.ID] = p.clone()
	}
	return r, nil
}

func validate(p Profile) error {
	if p.ID.String() == "Unknown" {
		return xerrors.Errorf("platform %d: %w", p.ID, ErrInvalidProfile)
	}
	if len(p.ReadySelectors) == 0 {
		return xerrors.Errorf("%s has no ready selectors: %w", p.ID, ErrInvalidProfile)
	}
	if len(p.ExtractSelectors) == 0 {
		return xerrors.Errorf("%s has no extract selectors: %w", p.ID, ErrInvalidProfile)
	}
	for _, s := range slices.Concat(p.ReadySelectors, p.ExtractSelectors) {
		if strings.TrimSpace(s) == "" {
			return xerrors.Errorf("%s has a blank selector: %w", p.ID, ErrInvalidProfile)
		}
	}
	for _, o := range p.OverlayRemovals {
		if strings.TrimSpace(o.Selector) == "" {
			return xerrors.Errorf("%s has a blank overlay selector: %w", p.ID, ErrInvalidProfile)
		}
	}
	if p.NavigationTimeout <= 0 || p.ReadinessTimeout <= 0 {
		return xerrors.Errorf("%s needs positive timeouts: %w", p.ID, ErrInvalidProfile)
	}
	if p.SettleDelay < 0 {
		return xerrors.Errorf("%s has a negative settle delay: %w", p.ID, ErrInvalidProfile)
	}
	return nil
}

// Lookup returns a copy of the profile registered for id.
func (r *Registry) Lookup(id ID) (Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, xerrors.Errorf("%s: %w", id, ErrUnsupportedPlatform)
	}
	return p.clone(), nil
}

// IDs returns the registered platforms in their declaration order.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.profiles))
	for _, id := range IDs {
		if _, ok := r.profiles[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// MaxBudget is the longest time a capture can spend navigating, settling and
// waiting across all registered profiles.
func (r *Registry) MaxBudget() time.Duration {
	var budget time.Duration
	for _, p := range r.profiles {
		budget = max(budget, p.NavigationTimeout+p.ReadinessTimeout+p.SettleDelay)
	}
	return budget
}

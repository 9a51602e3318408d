package platform_test

import (
	"errors"
	"post2image/internal/platform"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func validProfile(id platform.ID) platform.Profile {
	return platform.Profile{
		ID:                id,
		ReadySelectors:    []string{"article"},
		ExtractSelectors:  []string{"article"},
		NavigationTimeout: time.Second,
		ReadinessTimeout:  time.Second,
	}
}

func TestDefaultRegistry(t *testing.T) {
	r, err := platform.NewDefaultRegistry(platform.DefaultTimings())
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}

	if diff := cmp.Diff(platform.IDs, r.IDs()); diff != "" {
		t.Errorf("every platform must have a profile (-want +got):\n%s", diff)
	}

	for _, id := range platform.IDs {
		p, err := r.Lookup(id)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", id, err)
		}
		if len(p.ReadySelectors) == 0 || len(p.ExtractSelectors) == 0 {
			t.Errorf("%s profile has no targets", id)
		}
		if p.ID != id {
			t.Errorf("Lookup(%s) returned profile for %s", id, p.ID)
		}
	}

	x, _ := r.Lookup(platform.X)
	if x.StyleOverride == "" || x.SettleDelay != time.Second {
		t.Errorf("X profile should normalize styles and settle, got %q / %v", x.StyleOverride, x.SettleDelay)
	}
	if got, want := r.MaxBudget(), 51*time.Second; got != want {
		t.Errorf("MaxBudget() = %v, want %v", got, want)
	}
}

func TestNewRegistryRejectsInvalidProfiles(t *testing.T) {
	tests := map[string]func(p *platform.Profile){
		"no ready selectors":   func(p *platform.Profile) { p.ReadySelectors = nil },
		"no extract selectors": func(p *platform.Profile) { p.ExtractSelectors = []string{} },
		"blank selector":       func(p *platform.Profile) { p.ExtractSelectors = []string{"article", " "} },
		"blank overlay":        func(p *platform.Profile) { p.OverlayRemovals = []platform.OverlayRemoval{{}} },
		"zero timeout":         func(p *platform.Profile) { p.ReadinessTimeout = 0 },
		"negative settle":      func(p *platform.Profile) { p.SettleDelay = -time.Second },
		"unknown platform":     func(p *platform.Profile) { p.ID = 99 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := validProfile(platform.X)
			mutate(&p)
			if _, err := platform.NewRegistry(p); !errors.Is(err, platform.ErrInvalidProfile) {
				t.Errorf("NewRegistry() error = %v, want ErrInvalidProfile", err)
			}
		})
	}

	t.Run("duplicate", func(t *testing.T) {
		if _, err := platform.NewRegistry(validProfile(platform.X), validProfile(platform.X)); !errors.Is(err, platform.ErrInvalidProfile) {
			t.Errorf("NewRegistry() error = %v, want ErrInvalidProfile", err)
		}
	})
}

func TestRegistryIsImmutable(t *testing.T) {
	p := validProfile(platform.Threads)
	r, err := platform.NewRegistry(p)
	if err != nil {
		t.Fatal(err)
	}

	p.ExtractSelectors[0] = "mutated"
	got, _ := r.Lookup(platform.Threads)
	got.ReadySelectors[0] = "mutated"

	again, _ := r.Lookup(platform.Threads)
	if diff := cmp.Diff([]string{"article"}, again.ExtractSelectors); diff != "" {
		t.Errorf("registry shares caller slices (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"article"}, again.ReadySelectors); diff != "" {
		t.Errorf("registry leaks its slices (-want +got):\n%s", diff)
	}

	if _, err := r.Lookup(platform.X); !errors.Is(err, platform.ErrUnsupportedPlatform) {
		t.Errorf("Lookup(X) error = %v, want ErrUnsupportedPlatform", err)
	}
}

package capture

import (
	"context"
	"sync"
	"time"
)

// idleTracker follows in-flight requests of a page and reports when the
// network has been quiet for long enough.
type idleTracker struct {
	maxInflight int
	quiet       time.Duration
	now         func() time.Time

	mu        sync.Mutex
	inflight  map[string]struct{}
	idleSince time.Time
}

func newIdleTracker(maxInflight int, quiet time.Duration) *idleTracker {
	t := &idleTracker{
		maxInflight: maxInflight,
		quiet:       quiet,
		now:         time.Now,
		inflight:    map[string]struct{}{},
	}
	t.idleSince = t.now()
	return t
}

func (t *idleTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight = map[string]struct{}{}
	t.idleSince = t.now()
}

func (t *idleTracker) started(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	t.update()
}

func (t *idleTracker) finished(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	t.update()
}

func (t *idleTracker) update() {
	switch {
	case len(t.inflight) > t.maxInflight:
		t.idleSince = time.Time{}
	case t.idleSince.IsZero():
		t.idleSince = t.now()
	}
}

func (t *idleTracker) idle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.idleSince.IsZero() && t.now().Sub(t.idleSince) >= t.quiet
}

// wait blocks until the network is idle or ctx ends.
func (t *idleTracker) wait(ctx context.Context, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if t.idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

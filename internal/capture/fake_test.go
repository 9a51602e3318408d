package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
)

type fakeBrowser struct {
	session *fakeSession
	openErr error
	// openPanic makes Open panic with this value.
	openPanic any

	mu    sync.Mutex
	opens int
}

func (b *fakeBrowser) Open(ctx context.Context) (Session, error) {
	if b.openPanic != nil {
		panic(b.openPanic)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opens++
	return b.session, nil
}

func (b *fakeBrowser) Close() error {
	return nil
}

// fakeSession renders a page made of the nodes it is configured with.
type fakeSession struct {
	// navigate replaces the default successful navigation.
	navigate func(ctx context.Context, link string) error
	// visible selectors are reported as rendered by Visible.
	visible    map[string]bool
	visibleErr error
	removeErr  error
	styleErr   error
	// stall makes Remove and AddStyle hang until their context ends.
	stall bool
	bounds     map[string]*Box
	images     map[string][]byte
	// panicOn makes Screenshot panic with this value.
	panicOn any

	mu      sync.Mutex
	removed []string
	styles  []string
	shots   []string
	closes  int
}

func (s *fakeSession) Navigate(ctx context.Context, link string) error {
	if s.navigate != nil {
		return s.navigate(ctx, link)
	}
	return ctx.Err()
}

func (s *fakeSession) Visible(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.visibleErr != nil {
		return false, s.visibleErr
	}
	return s.visible[selector], nil
}

func (s *fakeSession) Remove(ctx context.Context, selector string, all bool) (int, error) {
	if s.stall {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if s.removeErr != nil {
		return 0, s.removeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, selector)
	return 1, nil
}

func (s *fakeSession) AddStyle(ctx context.Context, css string) error {
	if s.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.styleErr != nil {
		return s.styleErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.styles = append(s.styles, css)
	return nil
}

func (s *fakeSession) Bounds(ctx context.Context, selector string) (*Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.bounds[selector], nil
}

func (s *fakeSession) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	if s.panicOn != nil {
		panic(s.panicOn)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shots = append(s.shots, selector)
	return s.images[selector], nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 29, G: 161, B: 242, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

package capture

import (
	"context"

	"post2image/internal/platform"
)

const MimeTypePNG = "image/png"

type Request struct {
	Link     string
	Platform string
}

type Result struct {
	Image    []byte
	MimeType string
	Platform platform.ID
	// Selector is the extract selector that produced the image.
	Selector string
	Width    int
	Height   int
}

// Box is a node's rendered bounding box in CSS pixels, relative to the document.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Browser hands out isolated sessions. Implementations must be safe for
// concurrent use; sessions must not be.
type Browser interface {
	Open(ctx context.Context) (Session, error)
	Close() error
}

// Session is one isolated browsing context owned by a single capture.
type Session interface {
	// Navigate loads link and returns once the network is idle.
	Navigate(ctx context.Context, link string) error
	// Visible reports whether selector matches a rendered node.
	Visible(ctx context.Context, selector string) (bool, error)
	// Remove detaches the first node matching selector, or every node when
	// all is set, and returns how many were removed.
	Remove(ctx context.Context, selector string, all bool) (int, error)
	AddStyle(ctx context.Context, css string) error
	// Bounds returns nil when selector matches no node.
	Bounds(ctx context.Context, selector string) (*Box, error)
	// Screenshot captures the first node matching selector as PNG.
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	// Close releases the session. It is safe to call more than once.
	Close() error
}

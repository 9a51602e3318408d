package capture

import (
	"bytes"
	"context"
	"image"
	_ "image/png"

	"post2image/internal/platform"

	"golang.org/x/xerrors"
)

// Extract captures the first extract selector of p that resolves to a
// rendered node.
func Extract(ctx context.Context, s Session, p platform.Profile) (*Result, error) {
	var empty []string
	for _, selector := range p.ExtractSelectors {
		box, err := s.Bounds(ctx, selector)
		if err != nil {
			return nil, err
		}
		if box == nil {
			continue
		}
		if box.Empty() {
			empty = append(empty, selector)
			continue
		}

		data, err := s.Screenshot(ctx, selector)
		if err != nil {
			return nil, err
		}
		c, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, xerrors.Errorf("screenshot of %s is not a valid image: %w", selector, err)
		}
		if format != "png" {
			return nil, xerrors.Errorf("screenshot of %s is %s, not png", selector, format)
		}
		if c.Width == 0 || c.Height == 0 {
			return nil, xerrors.Errorf("screenshot of %s: %w", selector, ErrEmptyRegion)
		}

		return &Result{
			Image:    data,
			MimeType: MimeTypePNG,
			Platform: p.ID,
			Selector: selector,
			Width:    c.Width,
			Height:   c.Height,
		}, nil
	}

	if len(empty) > 0 {
		return nil, xerrors.Errorf("%q matched only zero-size nodes: %w", empty, ErrEmptyRegion)
	}
	return nil, xerrors.Errorf("none of %q matched: %w", p.ExtractSelectors, ErrNodeNotFound)
}

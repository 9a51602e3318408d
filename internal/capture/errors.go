package capture

import (
	"context"
	"errors"
	"strings"

	"post2image/internal/platform"

	"golang.org/x/xerrors"
)

var (
	ErrNavigationTimeout = xerrors.New("navigation timed out")
	ErrUnreachable       = xerrors.New("target unreachable")
	ErrContentNotFound   = xerrors.New("post content not found")
	ErrNodeNotFound      = xerrors.New("post element not found")
	ErrEmptyRegion       = xerrors.New("post element has an empty bounding box")
	ErrSessionFault      = xerrors.New("browser session fault")
)

type classified struct {
	kind error
	err  error
}

func (c *classified) Error() string {
	return c.kind.Error() + ": " + c.err.Error()
}

func (c *classified) Unwrap() []error {
	return []error{c.kind, c.err}
}

// markAs makes err match kind under errors.Is while keeping its own chain.
func markAs(kind error, err error) error {
	if err == nil || errors.Is(err, kind) {
		return err
	}
	return &classified{kind: kind, err: err}
}

// Kind names the failure class of err for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, platform.ErrInvalidLink):
		return "invalid_link"
	case errors.Is(err, platform.ErrUnsupportedPlatform):
		return "unsupported_platform"
	case errors.Is(err, ErrNavigationTimeout):
		return "navigation_timeout"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrContentNotFound):
		return "content_not_found"
	case errors.Is(err, ErrNodeNotFound):
		return "node_not_found"
	case errors.Is(err, ErrEmptyRegion):
		return "empty_region"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "aborted"
	default:
		return "fault"
	}
}

// classifyNavigationError tags a browser navigation failure. ctx is the
// context the navigation ran under.
func classifyNavigationError(ctx context.Context, err error) error {
	if errors.Is(err, ErrNavigationTimeout) || errors.Is(err, ErrUnreachable) {
		return err
	}

	msg := err.Error()
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		strings.Contains(msg, "net::ERR_TIMED_OUT"),
		strings.Contains(msg, "net::ERR_CONNECTION_TIMED_OUT"):
		return markAs(ErrNavigationTimeout, err)
	case strings.Contains(msg, "net::ERR_"),
		strings.Contains(msg, "NS_ERROR_"):
		return markAs(ErrUnreachable, err)
	default:
		return markAs(ErrSessionFault, err)
	}
}

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"post2image/internal/platform"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/xerrors"
)

type LinkPolicy string

const (
	// LinkPolicyWarn logs a caller platform that disagrees with the link and
	// captures anyway.
	LinkPolicyWarn LinkPolicy = "warn"
	// LinkPolicyStrict rejects such requests as invalid links.
	LinkPolicyStrict LinkPolicy = "strict"
)

func ParseLinkPolicy(s string) (LinkPolicy, error) {
	switch p := LinkPolicy(s); p {
	case LinkPolicyWarn, LinkPolicyStrict:
		return p, nil
	}
	return "", xerrors.Errorf("unknown link policy %q", s)
}

type Config struct {
	LinkPolicy     LinkPolicy
	PollInterval   time.Duration
	ExtractTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		LinkPolicy:     LinkPolicyWarn,
		PollInterval:   250 * time.Millisecond,
		ExtractTimeout: 15 * time.Second,
	}
}

// Capturer runs one capture per call, each in a session of its own.
type Capturer struct {
	browser  Browser
	registry *platform.Registry
	config   Config

	tracer        trace.Tracer
	duration      metric.Int64Histogram
	sessionsInUse metric.Int64UpDownCounter
}

func NewCapturer(browser Browser, registry *platform.Registry, config Config, meter metric.Meter) (*Capturer, error) {
	if config.PollInterval <= 0 {
		return nil, xerrors.Errorf("poll interval must be positive, got %s", config.PollInterval)
	}
	if config.ExtractTimeout <= 0 {
		return nil, xerrors.Errorf("extract timeout must be positive, got %s", config.ExtractTimeout)
	}
	if _, err := ParseLinkPolicy(string(config.LinkPolicy)); err != nil {
		return nil, err
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("post2image")
	}

	duration, err := meter.Int64Histogram("capture_duration_micro_seconds")
	if err != nil {
		return nil, xerrors.Errorf("failed to create histogram: %w", err)
	}
	sessionsInUse, err := meter.Int64UpDownCounter("capture_sessions_in_use")
	if err != nil {
		return nil, xerrors.Errorf("failed to create counter: %w", err)
	}

	return &Capturer{
		browser:       browser,
		registry:      registry,
		config:        config,
		tracer:        otel.Tracer("post2image/internal/capture"),
		duration:      duration,
		sessionsInUse: sessionsInUse,
	}, nil
}

// Budget is the longest a successful capture may take, excluding session
// open and close.
func (c *Capturer) Budget() time.Duration {
	return c.registry.MaxBudget() + c.config.ExtractTimeout
}

func (c *Capturer) Capture(ctx context.Context, req Request) (result *Result, err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "Capture")
	defer span.End()

	id, err := platform.ParseID(req.Platform)
	if err == nil {
		span.SetAttributes(attribute.String("platform", id.String()))
	}
	defer func() {
		outcome := Kind(err)
		c.duration.Record(ctx, time.Since(start).Microseconds(), metric.WithAttributes(
			attribute.String("platform", id.String()),
			attribute.String("outcome", outcome),
		))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
	}()
	if err != nil {
		return nil, err
	}

	profile, err := c.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	if err := c.checkLink(ctx, req.Link, id); err != nil {
		return nil, err
	}

	return c.run(ctx, req.Link, profile)
}

func (c *Capturer) checkLink(ctx context.Context, link string, id platform.ID) error {
	if _, err := platform.ParseLink(link); err != nil {
		return err
	}
	inferred, err := platform.Classify(link)
	if err == nil && inferred == id {
		return nil
	}
	if c.config.LinkPolicy == LinkPolicyStrict {
		if err != nil {
			return err
		}
		return xerrors.Errorf("link belongs to %s, not %s: %w", inferred, id, platform.ErrInvalidLink)
	}
	slog.WarnContext(ctx, "link does not match the requested platform", "link", link, "platform", id.String(), "inferred", inferred.String(), "error", err)
	return nil
}

func (c *Capturer) run(ctx context.Context, link string, p platform.Profile) (result *Result, err error) {
	// Registered first so it runs last, after the session is closed.
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, fmt.Sprint(r), "stack", string(debug.Stack()))
			result, err = nil, xerrors.Errorf("panic during capture: %v: %w", r, ErrSessionFault)
		}
	}()

	session, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	c.sessionsInUse.Add(ctx, 1)
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			slog.ErrorContext(ctx, fmt.Sprintf("failed to close session: %s", closeErr))
		}
		c.sessionsInUse.Add(context.WithoutCancel(ctx), -1)
	}()

	if err := c.stage(ctx, "Navigate", func(ctx context.Context) error {
		navCtx, cancel := context.WithTimeout(ctx, p.NavigationTimeout)
		defer cancel()
		return session.Navigate(navCtx, link)
	}); err != nil {
		return nil, err
	}

	if err := c.stage(ctx, "Settle", func(ctx context.Context) error {
		return Settle(ctx, session, p, c.config.PollInterval)
	}); err != nil {
		return nil, err
	}

	if err := c.stage(ctx, "Extract", func(ctx context.Context) error {
		extractCtx, cancel := context.WithTimeout(ctx, c.config.ExtractTimeout)
		defer cancel()
		result, err = Extract(extractCtx, session, p)
		return err
	}); err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "captured post", "platform", p.ID.String(), "selector", result.Selector, "width", result.Width, "height", result.Height)
	return result, nil
}

func (c *Capturer) open(ctx context.Context) (Session, error) {
	ctx, span := c.tracer.Start(ctx, "Open")
	defer span.End()

	session, err := c.browser.Open(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, markAs(ErrSessionFault, xerrors.Errorf("failed to open session: %w", err))
	}
	return session, nil
}

func (c *Capturer) stage(ctx context.Context, name string, f func(ctx context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, name)
	defer span.End()

	slog.DebugContext(ctx, "capture stage", "stage", name)
	if err := f(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Kind(err))
		return xerrors.Errorf("%s: %w", name, err)
	}
	return nil
}

package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/nao1215/uxaudit/internal/model"
	"github.com/nao1215/uxaudit/internal/render"
)

// WarningStabilizationTimeout is attached to artifacts captured before the
// page reached network quiescence.
const WarningStabilizationTimeout = "stabilization timeout"

// ErrRegionUnavailable is returned when a section element is gone or has no
// visible area at capture time.
var ErrRegionUnavailable = render.ErrRegionUnavailable

// Observer receives the duration and result of every capture attempt.
type Observer func(kind model.TargetKind, elapsed time.Duration, err error)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOpenOptions sets the navigation options (viewport, user agent,
// navigation timeout, cookies and headers).
func WithOpenOptions(opts render.OpenOptions) Option {
	return func(p *Pipeline) {
		p.open = opts
	}
}

// WithQuiescenceTimeout bounds the wait for network idle.
func WithQuiescenceTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.quiescence = d
	}
}

// WithPoliteness spaces navigations to one host by interval.
func WithPoliteness(interval time.Duration) Option {
	return func(p *Pipeline) {
		p.limiter = NewHostLimiter(interval)
	}
}

// WithObserver registers a capture observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pipeline captures targets through a render.Browser.
// It is safe for concurrent use when the browser is.
type Pipeline struct {
	browser    render.Browser
	open       render.OpenOptions
	quiescence time.Duration
	limiter    *HostLimiter
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Pipeline.
func New(browser render.Browser, opts ...Option) *Pipeline {
	p := &Pipeline{
		browser:    browser,
		quiescence: 10 * time.Second,
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CapturePage navigates to ref.URL and captures the full page. On success
// the returned page is open and owned by the caller.
func (p *Pipeline) CapturePage(ctx context.Context, ref model.TargetRef) (page render.Page, art *model.CaptureArtifact, err error) {
	start := p.now()
	defer func() { p.observe(model.TargetPage, start, err) }()

	if u, perr := url.Parse(ref.URL); perr == nil {
		if err := p.limiter.Wait(ctx, u.Host); err != nil {
			return nil, nil, err
		}
	}

	page, err = p.browser.Open(ctx, ref.URL, p.open)
	if err != nil {
		return nil, nil, err
	}

	art, err = p.capturePage(ctx, page, ref)
	if err != nil {
		_ = page.Close()
		return nil, nil, err
	}
	return page, art, nil
}

func (p *Pipeline) capturePage(ctx context.Context, page render.Page, ref model.TargetRef) (*model.CaptureArtifact, error) {
	var warnings []string
	if err := page.WaitQuiescent(ctx, p.quiescence); err != nil {
		if !errors.Is(err, render.ErrQuiescenceTimeout) {
			return nil, fmt.Errorf("failed to wait for page: %w", err)
		}
		p.logger.Warn("page did not settle, capturing as rendered", "id", ref.ID, "url", ref.URL)
		warnings = append(warnings, WarningStabilizationTimeout)
	}

	width, height, err := page.DocumentSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to measure page: %w", err)
	}
	data, err := page.Screenshot(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to capture page: %w", err)
	}

	return &model.CaptureArtifact{
		Target:     ref,
		Raw:        data,
		Geometry:   model.Rect{Width: width, Height: height},
		CapturedAt: p.now().UTC(),
		Title:      page.Title(),
		StatusCode: page.StatusCode(),
		Warnings:   warnings,
	}, nil
}

// CaptureSection clips the section's current region from an open page.
func (p *Pipeline) CaptureSection(ctx context.Context, page render.Page, ref model.TargetRef, section model.SectionTarget) (art *model.CaptureArtifact, err error) {
	start := p.now()
	defer func() { p.observe(model.TargetSection, start, err) }()

	region, err := p.locate(ctx, page, section)
	if err != nil {
		return nil, err
	}
	data, err := page.Screenshot(ctx, &region)
	if err != nil {
		return nil, fmt.Errorf("failed to capture section %s: %w", section.Selector, err)
	}
	return &model.CaptureArtifact{
		Target:     ref,
		Raw:        data,
		Geometry:   region,
		CapturedAt: p.now().UTC(),
		Title:      section.Title,
		StatusCode: page.StatusCode(),
	}, nil
}

// locate resolves the section's region in the current DOM.
func (p *Pipeline) locate(ctx context.Context, page render.Page, section model.SectionTarget) (model.Rect, error) {
	box, err := page.Locate(ctx, section.Selector)
	if err != nil {
		return model.Rect{}, err
	}
	width, height, err := page.DocumentSize(ctx)
	if err != nil {
		return model.Rect{}, fmt.Errorf("failed to measure page: %w", err)
	}

	var region model.Rect
	if section.Source == model.SectionFromHeading {
		var end *model.Rect
		if section.EndSelector != "" {
			if endBox, err := page.Locate(ctx, section.EndSelector); err == nil {
				end = &endBox
			}
		}
		region = model.BandBetween(box, end, width, height)
	} else {
		region = box.ClampTo(width, height)
	}

	if region.Empty() {
		return model.Rect{}, fmt.Errorf("%w: %s has no visible area", ErrRegionUnavailable, section.Selector)
	}
	return region, nil
}

func (p *Pipeline) observe(kind model.TargetKind, start time.Time, err error) {
	if p.observer != nil {
		p.observer(kind, p.now().Sub(start), err)
	}
}

package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/nao1215/uxaudit/internal/model"
)

// requestIdleWindow is how long the network must stay quiet to count as idle.
const requestIdleWindow = 500 * time.Millisecond

// RodBrowser drives Chrome over the DevTools protocol.
//
// Design decision: We use one browser process with one tab per target
// rather than one browser per worker because:
//  1. Tabs are isolated enough for cookies set per URL and viewport emulation
//  2. Chrome startup dominates the cost of small audits
//  3. Closing a tab releases its memory immediately
type RodBrowser struct {
	remoteURL string
	headless  bool
	stealth   bool
	logger    *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// RodOption configures a RodBrowser.
type RodOption func(*RodBrowser)

// WithRemoteURL connects to an existing DevTools websocket instead of
// launching a local Chrome.
func WithRemoteURL(u string) RodOption {
	return func(b *RodBrowser) {
		b.remoteURL = u
	}
}

// WithHeadless controls whether a launched Chrome is headless.
func WithHeadless(headless bool) RodOption {
	return func(b *RodBrowser) {
		b.headless = headless
	}
}

// WithStealth applies anti-bot-detection patches to every new tab.
func WithStealth(enabled bool) RodOption {
	return func(b *RodBrowser) {
		b.stealth = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RodOption {
	return func(b *RodBrowser) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewRodBrowser creates a browser. Chrome is started lazily by Start.
func NewRodBrowser(opts ...RodOption) *RodBrowser {
	b := &RodBrowser{
		headless: true,
		stealth:  true,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches or connects to Chrome.
func (b *RodBrowser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return nil
	}

	wsURL := b.remoteURL
	if wsURL == "" {
		l := launcher.New().Context(ctx).Headless(b.headless)
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		b.launcher = l
		b.logger.Debug("browser: launched local chrome", "headless", b.headless)
	} else {
		b.logger.Debug("browser: connecting to remote", "url", wsURL)
	}

	br := rod.New().ControlURL(wsURL)
	if err := br.Connect(); err != nil {
		b.killLauncher()
		return fmt.Errorf("browser: connect: %w", err)
	}
	b.browser = br
	return nil
}

// Open implements Browser.
func (b *RodBrowser) Open(ctx context.Context, rawURL string, opts OpenOptions) (Page, error) {
	b.mu.Lock()
	br := b.browser
	b.mu.Unlock()
	if br == nil {
		return nil, ErrBrowserClosed
	}

	var (
		page *rod.Page
		err  error
	)
	if b.stealth {
		page, err = stealth.Page(br)
	} else {
		page, err = br.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: new tab: %w", err)
	}

	rp := &rodPage{page: page}
	if err := rp.prepare(rawURL, opts); err != nil {
		_ = page.Close()
		return nil, err
	}

	navCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if err := page.Context(navCtx).Navigate(rawURL); err != nil {
		_ = page.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyNavigation(rawURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		_ = page.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyNavigation(rawURL, err)
	}

	if err := rp.refresh(ctx); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("browser: read document: %w", err)
	}
	if rp.status != 0 && (rp.status < 200 || rp.status > 299) {
		_ = page.Close()
		return nil, &NavigationError{Kind: KindHTTPStatus, URL: rawURL, Status: rp.status}
	}

	return rp, nil
}

// Close implements Browser.
func (b *RodBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	b.killLauncher()
	return err
}

func (b *RodBrowser) killLauncher() {
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher = nil
	}
}

// rodPage implements Page for a go-rod tab.
type rodPage struct {
	page *rod.Page

	url    string
	title  string
	status int
}

// prepare applies viewport, user agent, headers and cookies before navigation.
func (p *rodPage) prepare(rawURL string, opts OpenOptions) error {
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		if err := p.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Viewport.Width,
			Height:            opts.Viewport.Height,
			DeviceScaleFactor: 1,
		}); err != nil {
			return fmt.Errorf("browser: set viewport: %w", err)
		}
	}
	if opts.UserAgent != "" {
		if err := p.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			return fmt.Errorf("browser: set user agent: %w", err)
		}
	}
	if len(opts.Headers) > 0 {
		dict := make([]string, 0, len(opts.Headers)*2)
		for k, v := range opts.Headers {
			dict = append(dict, k, v)
		}
		if _, err := p.page.SetExtraHeaders(dict); err != nil {
			return fmt.Errorf("browser: set headers: %w", err)
		}
	}
	if cookies := parseCookies(rawURL, opts.Cookie); len(cookies) > 0 {
		if err := p.page.SetCookies(cookies); err != nil {
			return fmt.Errorf("browser: set cookies: %w", err)
		}
	}
	return nil
}

// parseCookies turns "a=1; b=2" into cookie params scoped to rawURL.
func parseCookies(rawURL, header string) []*proto.NetworkCookieParam {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	origin := u.Scheme + "://" + u.Host + "/"

	var cookies []*proto.NetworkCookieParam
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, &proto.NetworkCookieParam{Name: name, Value: value, URL: origin})
	}
	return cookies
}

type documentInfo struct {
	Title  string  `json:"title"`
	URL    string  `json:"url"`
	Status int     `json:"status"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (p *rodPage) document(ctx context.Context) (documentInfo, error) {
	var info documentInfo
	res, err := p.page.Context(ctx).Eval(documentScript)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &info); err != nil {
		return info, fmt.Errorf("decode document info: %w", err)
	}
	return info, nil
}

func (p *rodPage) refresh(ctx context.Context) error {
	info, err := p.document(ctx)
	if err != nil {
		return err
	}
	p.url = info.URL
	p.title = info.Title
	p.status = info.Status
	return nil
}

func (p *rodPage) URL() string     { return p.url }
func (p *rodPage) Title() string   { return p.title }
func (p *rodPage) StatusCode() int { return p.status }

func (p *rodPage) WaitQuiescent(ctx context.Context, timeout time.Duration) error {
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wait := p.page.Context(qctx).WaitRequestIdle(requestIdleWindow, nil, nil, nil)
	wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(qctx.Err(), context.DeadlineExceeded) {
		return ErrQuiescenceTimeout
	}
	// Titles set by client-side routers are only final after idle.
	return p.refresh(ctx)
}

func (p *rodPage) Query(ctx context.Context, selector string) ([]ElementInfo, error) {
	res, err := p.page.Context(ctx).Eval(queryScript, selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	var out []ElementInfo
	if err := json.Unmarshal([]byte(res.Value.Str()), &out); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	return out, nil
}

func (p *rodPage) Locate(ctx context.Context, selector string) (model.Rect, error) {
	res, err := p.page.Context(ctx).Eval(locateScript, selector)
	if err != nil {
		return model.Rect{}, fmt.Errorf("locate %q: %w", selector, err)
	}
	raw := res.Value.Str()
	if raw == "null" {
		return model.Rect{}, fmt.Errorf("%w: %s not found", ErrRegionUnavailable, selector)
	}
	var box model.Rect
	if err := json.Unmarshal([]byte(raw), &box); err != nil {
		return model.Rect{}, fmt.Errorf("decode box: %w", err)
	}
	return box, nil
}

func (p *rodPage) DocumentSize(ctx context.Context) (float64, float64, error) {
	info, err := p.document(ctx)
	if err != nil {
		return 0, 0, err
	}
	return info.Width, info.Height, nil
}

func (p *rodPage) Screenshot(ctx context.Context, clip *model.Rect) ([]byte, error) {
	req := &proto.PageCaptureScreenshot{
		Format:                proto.PageCaptureScreenshotFormatPng,
		CaptureBeyondViewport: true,
	}
	if clip == nil {
		return p.page.Context(ctx).Screenshot(true, req)
	}
	req.Clip = &proto.PageViewport{
		X:      clip.X,
		Y:      clip.Y,
		Width:  clip.Width,
		Height: clip.Height,
		Scale:  1,
	}
	return p.page.Context(ctx).Screenshot(false, req)
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

// Package rendertest provides an in-memory render.Browser for tests.
//
// Pages are scripted: each URL maps to a Page that declares its title,
// status, query results and screenshot pattern. Screenshots are real PNGs
// generated from a seed, so pages that share a seed render identical images
// and pages with different seeds are perceptually distinct.
package rendertest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/nao1215/uxaudit/internal/model"
	"github.com/nao1215/uxaudit/internal/render"
)

const (
	defaultWidth  = 800
	defaultHeight = 1200
	blockSize     = 40
)

// Page scripts the behavior of one URL.
type Page struct {
	// Title is the document title.
	Title string

	// Status is the HTTP status. Zero means 200.
	Status int

	// Width and Height are the document size. Zero means 800x1200.
	Width, Height float64

	// Seed selects the screenshot pattern.
	Seed uint64

	// Elements maps a selector to the snapshots Query returns for it.
	Elements map[string][]render.ElementInfo

	// OpenErrs are returned by successive Open calls before OpenErr applies.
	OpenErrs []error

	// OpenErr is returned by every Open call once OpenErrs is exhausted.
	OpenErr error

	// QuiescenceTimeout makes WaitQuiescent report ErrQuiescenceTimeout.
	QuiescenceTimeout bool

	// Vanished lists element selectors that are gone by capture time.
	Vanished map[string]bool

	// Delay holds Open for this long, or until the context is done.
	Delay time.Duration
}

// Browser is a scripted render.Browser. It is safe for concurrent use.
type Browser struct {
	// OnOpen, when set, is called at the start of every Open.
	OnOpen func(rawURL string)

	mu        sync.Mutex
	pages     map[string]*Page
	opens     map[string]int
	order     []string
	shots     int
	inflight  int
	maxFlight int
	closed    bool
}

var _ render.Browser = (*Browser)(nil)

// NewBrowser returns a browser serving the given pages. Unknown URLs answer
// with a 404 navigation error.
func NewBrowser(pages map[string]*Page) *Browser {
	return &Browser{
		pages: pages,
		opens: make(map[string]int),
	}
}

// Open implements render.Browser.
func (b *Browser) Open(ctx context.Context, rawURL string, _ render.OpenOptions) (render.Page, error) {
	if b.OnOpen != nil {
		b.OnOpen(rawURL)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, render.ErrBrowserClosed
	}
	attempt := b.opens[rawURL]
	b.opens[rawURL]++
	b.order = append(b.order, rawURL)
	spec, ok := b.pages[rawURL]
	b.mu.Unlock()

	if !ok {
		return nil, &render.NavigationError{Kind: render.KindHTTPStatus, URL: rawURL, Status: 404}
	}

	if spec.Delay > 0 {
		timer := time.NewTimer(spec.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &render.NavigationError{Kind: render.KindTimeout, URL: rawURL, Err: ctx.Err()}
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &render.NavigationError{Kind: render.KindTimeout, URL: rawURL, Err: err}
	}

	if attempt < len(spec.OpenErrs) && spec.OpenErrs[attempt] != nil {
		return nil, spec.OpenErrs[attempt]
	}
	if attempt >= len(spec.OpenErrs) && spec.OpenErr != nil {
		return nil, spec.OpenErr
	}
	status := spec.Status
	if status == 0 {
		status = 200
	}
	if status < 200 || status >= 300 {
		return nil, &render.NavigationError{Kind: render.KindHTTPStatus, URL: rawURL, Status: status}
	}

	b.mu.Lock()
	b.inflight++
	b.maxFlight = max(b.maxFlight, b.inflight)
	b.mu.Unlock()

	return &page{browser: b, url: rawURL, spec: spec, status: status}, nil
}

// Close implements render.Browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Opens returns how many times rawURL was opened.
func (b *Browser) Opens(rawURL string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens[rawURL]
}

// OpenOrder returns the URLs in the order Open was called.
func (b *Browser) OpenOrder() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.order...)
}

// Screenshots returns the number of screenshots taken.
func (b *Browser) Screenshots() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shots
}

// MaxConcurrent returns the highest number of simultaneously open tabs.
func (b *Browser) MaxConcurrent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxFlight
}

type page struct {
	browser *Browser
	url     string
	spec    *Page
	status  int
	once    sync.Once
}

func (p *page) URL() string     { return p.url }
func (p *page) Title() string   { return p.spec.Title }
func (p *page) StatusCode() int { return p.status }

func (p *page) WaitQuiescent(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.spec.QuiescenceTimeout {
		return render.ErrQuiescenceTimeout
	}
	return nil
}

func (p *page) Query(ctx context.Context, selector string) ([]render.ElementInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]render.ElementInfo(nil), p.spec.Elements[selector]...), nil
}

func (p *page) Locate(ctx context.Context, selector string) (model.Rect, error) {
	if err := ctx.Err(); err != nil {
		return model.Rect{}, err
	}
	if p.spec.Vanished[selector] {
		return model.Rect{}, fmt.Errorf("%w: %s", render.ErrRegionUnavailable, selector)
	}
	for _, elems := range p.spec.Elements {
		for _, el := range elems {
			if el.Selector == selector || (el.ID != "" && "#"+el.ID == selector) {
				return el.Box, nil
			}
		}
	}
	return model.Rect{}, fmt.Errorf("%w: %s", render.ErrRegionUnavailable, selector)
}

func (p *page) DocumentSize(ctx context.Context) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	w, h := p.size()
	return w, h, nil
}

func (p *page) Screenshot(ctx context.Context, clip *model.Rect) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h := p.size()
	region := model.Rect{Width: w, Height: h}
	if clip != nil {
		region = *clip
	}
	if region.Empty() {
		return nil, fmt.Errorf("%w: empty clip", render.ErrRegionUnavailable)
	}

	p.browser.mu.Lock()
	p.browser.shots++
	p.browser.mu.Unlock()

	return Pattern(p.spec.Seed, region)
}

func (p *page) Close() error {
	p.once.Do(func() {
		p.browser.mu.Lock()
		p.browser.inflight--
		p.browser.mu.Unlock()
	})
	return nil
}

func (p *page) size() (float64, float64) {
	w, h := p.spec.Width, p.spec.Height
	if w == 0 {
		w = defaultWidth
	}
	if h == 0 {
		h = defaultHeight
	}
	return w, h
}

// Pattern renders the region of a seeded block pattern as PNG. The same seed
// and region always produce the same bytes.
func Pattern(seed uint64, region model.Rect) ([]byte, error) {
	w, h := int(region.Width), int(region.Height)
	img := image.NewGray(image.Rect(0, 0, w, h))
	ox, oy := int(region.X), int(region.Y)
	for y := range h {
		by := uint64((y + oy) / blockSize)
		for x := range w {
			bx := uint64((x + ox) / blockSize)
			img.SetGray(x, y, color.Gray{Y: uint8(mix(seed, bx, by))})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mix is a splitmix64 step over the seed and block coordinates.
func mix(seed, x, y uint64) uint64 {
	z := seed + 0x9e3779b97f4a7c15 + x*0xbf58476d1ce4e5b9 + y*0x94d049bb133111eb
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

package crawler

import (
	"context"
	"slices"
	"testing"

	"github.com/nao1215/uxaudit/internal/model"
	"github.com/nao1215/uxaudit/internal/render"
	"github.com/nao1215/uxaudit/internal/render/rendertest"
)

const seedURL = "https://example.com/"

func discoveryPage() *rendertest.Page {
	link := func(order int, href string) render.ElementInfo {
		return render.ElementInfo{Order: order, Tag: "a", Href: href}
	}
	return &rendertest.Page{
		Width:  1000,
		Height: 3000,
		Elements: map[string][]render.ElementInfo{
			render.NavLinkSelector: {
				link(1, "/pricing"),
				link(2, "#top"),
				link(3, "javascript:void(0)"),
				link(4, "https://other.org/"),
				link(5, "/pricing#plans"),
				link(6, "about"),
				link(7, "mailto:hi@example.com"),
			},
			render.LandmarkSelector: {
				{Order: 10, Selector: "section#hero", ID: "hero", Title: "Hero", HasText: true, Box: model.Rect{Width: 1000, Height: 500}},
				{Order: 20, Selector: "section#tiny", ID: "tiny", HasText: true, Box: model.Rect{Y: 600, Width: 200, Height: 100}},
				{Order: 30, Selector: "section#empty", ID: "empty", Box: model.Rect{Y: 800, Width: 1000, Height: 300}},
			},
			render.HeadingSelector: {
				{Order: 40, Selector: "h2:nth-of-type(1)", Title: "Features", Level: 2, HasText: true, Box: model.Rect{X: 100, Y: 1200, Width: 400, Height: 40}},
				{Order: 45, Selector: "h3:nth-of-type(1)", Title: "Details", Level: 3, HasText: true, Box: model.Rect{X: 100, Y: 1400, Width: 400, Height: 30}},
				{Order: 50, Selector: "h2:nth-of-type(2)", Title: "FAQ", Level: 2, HasText: true, Box: model.Rect{X: 100, Y: 1800, Width: 400, Height: 40}},
			},
			render.InPageAnchorSelector: {
				link(70, "#pricing-table"),
				link(71, "#hero"),
			},
			render.IDSelector: {
				{Order: 10, Selector: "section#hero", ID: "hero", HasText: true, Box: model.Rect{Width: 1000, Height: 500}},
				{Order: 60, Selector: "div#pricing-table", ID: "pricing-table", Title: "Plans", HasText: true, Box: model.Rect{Y: 2000, Width: 1000, Height: 400}},
				{Order: 65, Selector: "div#unlinked", ID: "unlinked", HasText: true, Box: model.Rect{Y: 2500, Width: 1000, Height: 400}},
			},
		},
	}
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	scope, err := NewScope(seedURL, ScopeOptions{SameDomainOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	return NewExtractor(NewNormalizer(nil), scope, model.Viewport{Width: 1000, Height: 600})
}

func openPage(t *testing.T, spec *rendertest.Page) render.Page {
	t.Helper()
	browser := rendertest.NewBrowser(map[string]*rendertest.Page{seedURL: spec})
	page, err := browser.Open(context.Background(), seedURL, render.OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = page.Close() })
	return page
}

func TestExtractorLinks(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	page := openPage(t, discoveryPage())
	from := model.PageTarget{URL: seedURL, Depth: 1}

	d, err := e.Discover(context.Background(), page, from, true)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	var got []LinkCandidate
	for c := range d.Links(context.Background()) {
		got = append(got, c)
	}
	want := []LinkCandidate{
		{Target: model.PageTarget{URL: "https://example.com/pricing", Depth: 2, DiscoveredFrom: seedURL}},
		{Target: model.PageTarget{URL: "https://other.org/", Depth: 2, DiscoveredFrom: seedURL}, Rejected: RejectDomain},
		{Target: model.PageTarget{URL: "https://example.com/about", Depth: 2, DiscoveredFrom: seedURL}},
	}
	if !slices.Equal(got, want) {
		t.Errorf("unexpected links\n got: %+v\nwant: %+v", got, want)
	}

	for range d.Links(context.Background()) {
		t.Fatal("expected links to be single-use")
	}
}

func TestExtractorLinksBeyondDepth(t *testing.T) {
	t.Parallel()

	d, err := newTestExtractor(t).Discover(context.Background(), openPage(t, discoveryPage()), model.PageTarget{URL: seedURL}, false)
	if err != nil {
		t.Fatal(err)
	}
	for c := range d.Links(context.Background()) {
		t.Errorf("expected no links, got %+v", c)
	}
}

func TestExtractorSections(t *testing.T) {
	t.Parallel()

	d, err := newTestExtractor(t).Discover(context.Background(), openPage(t, discoveryPage()), model.PageTarget{URL: seedURL}, false)
	if err != nil {
		t.Fatal(err)
	}

	var got []model.SectionTarget
	for s := range d.Sections() {
		got = append(got, s)
	}

	want := []struct {
		selector string
		source   model.SectionSource
		title    string
		end      string
		region   model.Rect
	}{
		{"section#hero", model.SectionFromLandmark, "Hero", "", model.Rect{Width: 1000, Height: 500}},
		{"h2:nth-of-type(1)", model.SectionFromHeading, "Features", "h2:nth-of-type(2)", model.Rect{Y: 1200, Width: 1000, Height: 600}},
		{"h2:nth-of-type(2)", model.SectionFromHeading, "FAQ", "", model.Rect{Y: 1800, Width: 1000, Height: 1200}},
		{"div#pricing-table", model.SectionFromAnchor, "Plans", "", model.Rect{Y: 2000, Width: 1000, Height: 400}},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d sections, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		g := got[i]
		if g.Selector != w.selector || g.Source != w.source || g.Title != w.title || g.EndSelector != w.end || g.Region != w.region {
			t.Errorf("section %d: got %+v, want %+v", i, g, w)
		}
		if g.PageURL != seedURL {
			t.Errorf("section %d: unexpected page url %q", i, g.PageURL)
		}
	}

	for range d.Sections() {
		t.Fatal("expected sections to be single-use")
	}
}

func TestExtractorSectionPrefersPassingRule(t *testing.T) {
	t.Parallel()

	// The heading is also an anchor target. Its own box is too small, so the
	// heading band is used instead.
	heading := render.ElementInfo{Order: 5, Selector: "h2#plans", ID: "plans", Title: "Plans", Level: 2, HasText: true, Box: model.Rect{Y: 300, Width: 600, Height: 40}}
	spec := &rendertest.Page{
		Width:  1000,
		Height: 800,
		Elements: map[string][]render.ElementInfo{
			render.HeadingSelector:      {heading},
			render.InPageAnchorSelector: {{Order: 1, Tag: "a", Href: "#plans"}},
			render.IDSelector:           {heading},
		},
	}
	d, err := newTestExtractor(t).Discover(context.Background(), openPage(t, spec), model.PageTarget{URL: seedURL}, false)
	if err != nil {
		t.Fatal(err)
	}
	got := slices.Collect(d.Sections())
	if len(got) != 1 || got[0].Source != model.SectionFromHeading {
		t.Fatalf("expected a single heading section, got %+v", got)
	}
	if got[0].Region != (model.Rect{Y: 300, Width: 1000, Height: 500}) {
		t.Errorf("unexpected region %+v", got[0].Region)
	}
}

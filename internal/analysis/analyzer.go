package analysis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/uxaudit/internal/manifest"
	"github.com/nao1215/uxaudit/internal/model"
)

// Request is one accepted screenshot to analyze.
type Request struct {
	Target         model.TargetRef
	Depth          int
	DiscoveredFrom string
	PageTitle      string
	Section        *model.SectionTarget
	Image          *model.PreparedImage
}

// Result is the outcome of analyzing a batch of requests.
type Result struct {
	// Items holds one summary per analyzed screenshot, in request order.
	Items []model.AnalysisItem

	// Recommendations are the findings of all items, in request order.
	Recommendations []model.Recommendation

	// Failed maps target IDs to their failure.
	Failed map[string]*Failure
}

// Observer is notified after every request with its result kind
// ("ok" or a failure kind) and duration.
type Observer func(kind string, elapsed time.Duration)

// Analyzer runs model requests with bounded concurrency.
type Analyzer struct {
	gen         Generator
	ledger      *manifest.Accumulator
	concurrency int
	observer    Observer
	logger      *slog.Logger
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithConcurrency sets the number of requests in flight.
func WithConcurrency(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithObserver registers a per-request callback.
func WithObserver(o Observer) AnalyzerOption {
	return func(a *Analyzer) {
		a.observer = o
	}
}

// WithAnalyzerLogger sets the logger.
func WithAnalyzerLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAnalyzer creates an Analyzer. Failures are appended to ledger when it
// is not nil.
func NewAnalyzer(gen Generator, ledger *manifest.Accumulator, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		gen:         gen,
		ledger:      ledger,
		concurrency: 2,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type itemResult struct {
	item    model.AnalysisItem
	recs    []model.Recommendation
	failure *Failure
}

// Analyze sends every request to the model. Individual failures become
// "analysis_failed" manifest entries; the returned error is only the
// context error when the run was cancelled.
func (a *Analyzer) Analyze(ctx context.Context, reqs []Request) (*Result, error) {
	results := make([]itemResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = a.analyzeOne(ctx, req)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	out := &Result{Failed: make(map[string]*Failure)}
	for i, r := range results {
		req := reqs[i]
		if r.failure != nil {
			out.Failed[req.Target.ID] = r.failure
			if a.ledger != nil {
				a.ledger.Append(model.ManifestEntry{
					Target:         req.Target,
					Depth:          req.Depth,
					DiscoveredFrom: req.DiscoveredFrom,
					Outcome:        model.OutcomeAnalysisFailed,
					ErrorKind:      r.failure.Kind,
					Error:          r.failure.Err.Error(),
				})
			}
			continue
		}
		out.Items = append(out.Items, r.item)
		out.Recommendations = append(out.Recommendations, r.recs...)
	}
	return out, ctx.Err()
}

func (a *Analyzer) analyzeOne(ctx context.Context, req Request) itemResult {
	start := time.Now()
	res := a.run(ctx, req)
	kind := "ok"
	if res.failure != nil {
		kind = res.failure.Kind
		a.logger.Warn("analysis failed", "target", req.Target.ID, "kind", kind, "error", res.failure.Err)
	} else {
		a.logger.Debug("analysis complete", "target", req.Target.ID, "recommendations", len(res.recs))
	}
	if a.observer != nil {
		a.observer(kind, time.Since(start))
	}
	return res
}

func (a *Analyzer) run(ctx context.Context, req Request) itemResult {
	if err := ctx.Err(); err != nil {
		return itemResult{failure: Classify(err)}
	}
	if req.Image == nil {
		return itemResult{failure: &Failure{Kind: KindInvalidResponse, Err: ErrMissingImage}}
	}

	shotID := req.Image.ScreenshotID
	if shotID == "" {
		shotID = model.ScreenshotID(req.Target)
	}
	prompt := BuildPrompt(PromptInput{
		PageURL:      req.Target.URL,
		PageTitle:    req.PageTitle,
		ScreenshotID: shotID,
		Section:      req.Section,
	})

	text, err := a.gen.Generate(ctx, prompt, req.Image)
	if err != nil {
		return itemResult{failure: Classify(err)}
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return itemResult{failure: &Failure{Kind: KindInvalidResponse, Err: err}}
	}

	recs := NormalizeRecommendations(raw)
	for i := range recs {
		recs[i].TargetID = req.Target.ID
	}
	item := model.AnalysisItem{
		TargetID:     req.Target.ID,
		ScreenshotID: shotID,
		URL:          req.Target.URL,
		Title:        req.PageTitle,
		Summary:      Summary(raw),
		RawResponse:  text,
	}
	if payload, err := json.Marshal(raw); err == nil {
		item.Analysis = payload
	}
	if req.Section != nil {
		item.SectionTitle = req.Section.Title
	}
	return itemResult{item: item, recs: recs}
}

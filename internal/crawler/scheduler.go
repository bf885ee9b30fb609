package crawler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/uxaudit/internal/dedup"
	"github.com/nao1215/uxaudit/internal/manifest"
	"github.com/nao1215/uxaudit/internal/model"
	"github.com/nao1215/uxaudit/internal/render"
)

// Capturer renders targets into artifacts. CapturePage returns the open page
// so sections can be captured from the same tab; the caller closes it.
type Capturer interface {
	CapturePage(ctx context.Context, ref model.TargetRef) (render.Page, *model.CaptureArtifact, error)
	CaptureSection(ctx context.Context, page render.Page, ref model.TargetRef, section model.SectionTarget) (*model.CaptureArtifact, error)
}

// Deduper decides whether an artifact is a near-duplicate. Check does not
// remember the artifact; Commit is called once it has been persisted.
type Deduper interface {
	Check(art *model.CaptureArtifact) (dedup.Decision, error)
	Commit(d dedup.Decision)
}

// Stored describes where an accepted artifact was persisted.
type Stored struct {
	// Ref is the artifact path relative to the run directory.
	Ref string

	// Image is the analysis-ready rendition, if one was produced.
	Image *model.PreparedImage
}

// Sink persists accepted artifacts. It owns the artifact after the call.
type Sink func(ctx context.Context, art *model.CaptureArtifact) (Stored, error)

// Capture describes one accepted artifact.
type Capture struct {
	Target      model.TargetRef
	Depth       int
	PageTitle   string
	Section     *model.SectionTarget
	Fingerprint string
	Geometry    model.Rect
	ArtifactRef string
	Image       *model.PreparedImage

	seq   int
	index int
}

// Result is the outcome of a crawl. It is returned even when Run fails.
type Result struct {
	// SeedURL is the normalized seed.
	SeedURL string

	// Status describes how the crawl terminated.
	Status model.RunStatus

	// Pages lists every page that reached the capture stage, in admission order.
	Pages []model.PageRecord

	// Sections lists every section that reached the capture stage.
	Sections []model.SectionRecord

	// Captures lists accepted artifacts in admission order.
	Captures []Capture

	// Visits is the final VisitSet snapshot.
	Visits map[string]model.VisitStatus

	// Stats holds the final budget counters.
	Stats Stats
}

// Images returns the prepared images keyed by target ID.
func (r *Result) Images() map[string]*model.PreparedImage {
	out := make(map[string]*model.PreparedImage, len(r.Captures))
	for _, c := range r.Captures {
		if c.Image != nil {
			out[c.Target.ID] = c.Image
		}
	}
	return out
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLimits sets the budget ceilings.
func WithLimits(limits Limits) Option {
	return func(s *Scheduler) {
		s.limits = limits
	}
}

// WithMaxDepth sets the maximum link depth from the seed.
func WithMaxDepth(depth int) Option {
	return func(s *Scheduler) {
		s.maxDepth = depth
	}
}

// WithWorkers sets the number of concurrent page captures.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxConsecutiveFailures sets the systemic failure ceiling.
// Zero disables it.
func WithMaxConsecutiveFailures(n int) Option {
	return func(s *Scheduler) {
		s.maxConsecutive = n
	}
}

// WithRetries sets how often a transient page navigation failure is retried
// and the linear backoff step between attempts.
func WithRetries(retries int, backoff time.Duration) Option {
	return func(s *Scheduler) {
		s.retries = max(retries, 0)
		s.backoff = backoff
	}
}

// WithSink sets where accepted artifacts are persisted.
func WithSink(sink Sink) Option {
	return func(s *Scheduler) {
		s.sink = sink
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scheduler runs a breadth-first crawl. A Scheduler is single-use: each Run
// creates fresh per-run state, but the budget and dedup filter it was built
// with are shared, so build one Scheduler per run.
type Scheduler struct {
	capturer   Capturer
	extractor  *Extractor
	deduper    Deduper
	normalizer *Normalizer
	ledger     *manifest.Accumulator
	sink       Sink
	logger     *slog.Logger

	limits         Limits
	maxDepth       int
	workers        int
	maxConsecutive int
	retries        int
	backoff        time.Duration
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	capturer Capturer,
	extractor *Extractor,
	deduper Deduper,
	ledger *manifest.Accumulator,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		capturer:   capturer,
		extractor:  extractor,
		deduper:    deduper,
		normalizer: extractor.normalizer,
		ledger:     ledger,
		logger:     slog.New(slog.DiscardHandler),
		limits:     Limits{MaxPages: 1, MaxSectionsPerPage: 8, MaxScreenshots: 1},
		maxDepth:   2,
		workers:    1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// stopReason says why admission stopped. Later reasons take precedence over
// earlier ones, except that systemic failure and cancellation never replace
// each other.
type stopReason int

const (
	stopNone stopReason = iota
	// stopPages ends page admission; sections of admitted pages still run.
	stopPages
	// stopBudget ends all admission.
	stopBudget
	stopCancelled
	stopSystemic
)

type pageJob struct {
	seq    int
	ticket int
	ref    model.TargetRef
	target model.PageTarget
}

type sectionJob struct {
	index  int
	ticket int
	ref    model.TargetRef
	target model.SectionTarget
}

// pageEvent is sent by a worker once its page has settled. The scheduler
// answers on reply with the admitted sections and then closes it.
type pageEvent struct {
	job      pageJob
	outcome  model.Outcome
	err      error
	sections []model.SectionTarget
	links    []LinkCandidate
	reply    chan sectionJob
}

// crawl is the state of one Run. Fields without a lock are owned by the
// scheduler goroutine.
type crawl struct {
	s      *Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	budget *Budget
	visits *VisitSet
	turns  *turns

	frontier    []model.PageTarget
	nextSeq     int
	nextResult  int
	pending     map[int]*pageEvent
	inflight    int
	consecutive int
	stop        stopReason
	stopErr     error
	scoped      map[string]bool

	results chan *pageEvent
	done    chan struct{}

	mu       sync.Mutex
	pages    map[int]model.PageRecord
	sections []sectionRecord
	captures []Capture
}

type sectionRecord struct {
	seq    int
	index  int
	record model.SectionRecord
}

// Run crawls from seedURL until the frontier is empty, a budget is reached,
// the consecutive failure ceiling is hit or ctx is cancelled. The returned
// Result is never nil once the seed is valid. The error is a
// *SystemicFailureError or the context error for early stops.
func (s *Scheduler) Run(ctx context.Context, seedURL string) (*Result, error) {
	seed, err := s.normalizer.Normalize(seedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &crawl{
		s:          s,
		ctx:        runCtx,
		cancel:     cancel,
		budget:     NewBudget(s.limits),
		visits:     NewVisitSet(),
		turns:      newTurns(),
		nextSeq:    1,
		nextResult: 1,
		pending:    make(map[int]*pageEvent),
		scoped:     make(map[string]bool),
		results:    make(chan *pageEvent),
		done:       make(chan struct{}),
		pages:      make(map[int]model.PageRecord),
	}
	stopTurns := context.AfterFunc(runCtx, c.turns.stop)
	defer stopTurns()

	c.visits.MarkVisited(seed)
	c.frontier = append(c.frontier, model.PageTarget{URL: seed})

	s.logger.Info("crawl started", "seed", seed, "workers", s.workers,
		"max_pages", s.limits.MaxPages, "max_depth", s.maxDepth)

	var g errgroup.Group
	g.SetLimit(s.workers)

	cancelled := ctx.Done()
	for {
		c.dispatch(&g)
		if c.inflight == 0 {
			break
		}
		select {
		case ev := <-c.results:
			c.pending[ev.job.seq] = ev
			c.flush()
		case <-c.done:
			c.inflight--
		case <-cancelled:
			cancelled = nil
			c.halt(stopCancelled, ctx.Err())
		}
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		c.halt(stopCancelled, err)
	}
	c.drain()

	result := c.result(seed)
	s.logger.Info("crawl finished", "status", result.Status,
		"pages", result.Stats.Pages, "accepted", result.Stats.Accepted, "attempts", result.Stats.Attempts)

	switch c.stop {
	case stopSystemic, stopCancelled:
		return result, c.stopErr
	default:
		return result, nil
	}
}

// dispatch admits frontier entries while worker slots are free.
func (c *crawl) dispatch(g *errgroup.Group) {
	for c.stop == stopNone && len(c.frontier) > 0 && c.inflight < c.s.workers {
		if err := c.ctx.Err(); err != nil {
			c.halt(stopCancelled, err)
			return
		}
		if err := c.budget.CanAdmitPage(); err != nil {
			c.halt(stopPages, err)
			return
		}
		if err := c.budget.Reserve(c.ctx); err != nil {
			c.haltOn(err)
			return
		}

		target := c.frontier[0]
		c.frontier = c.frontier[1:]
		c.budget.CommitPage()
		c.visits.Resolve(target.URL, model.VisitVisited)

		job := pageJob{
			seq:    c.nextSeq,
			ticket: c.turns.issue(),
			target: target,
			ref:    model.TargetRef{ID: model.PageID(c.nextSeq), Kind: model.TargetPage, URL: target.URL},
		}
		c.nextSeq++
		c.inflight++
		c.s.logger.Debug("page admitted", "id", job.ref.ID, "url", target.URL, "depth", target.Depth)

		g.Go(func() error {
			c.work(job)
			return nil
		})
	}
}

// halt stops admission for the given reason.
func (c *crawl) halt(reason stopReason, err error) {
	if reason <= c.stop || c.stop >= stopCancelled {
		return
	}
	c.stop = reason
	c.stopErr = err
	if reason >= stopCancelled {
		c.cancel()
	}
	c.s.logger.Info("crawl stopping", "reason", reason.String(), "error", err)
}

// haltOn stops admission after a failed reservation.
func (c *crawl) haltOn(err error) {
	if isBudgetError(err) {
		c.halt(stopBudget, err)
		return
	}
	c.halt(stopCancelled, err)
}

// admittingSections reports whether section candidates may still be admitted.
func (c *crawl) admittingSections() bool {
	return c.stop == stopNone || c.stop == stopPages
}

func (r stopReason) String() string {
	switch r {
	case stopPages:
		return "page_budget"
	case stopBudget:
		return "budget"
	case stopCancelled:
		return "cancelled"
	case stopSystemic:
		return "systemic_failure"
	default:
		return "none"
	}
}

// flush handles buffered page events in admission order.
func (c *crawl) flush() {
	for {
		ev, ok := c.pending[c.nextResult]
		if !ok {
			return
		}
		delete(c.pending, c.nextResult)
		c.nextResult++
		c.handle(ev)
	}
}

// handle applies a settled page: failure accounting, section admission and
// link admission.
func (c *crawl) handle(ev *pageEvent) {
	switch ev.outcome {
	case model.OutcomeFailed:
		c.visits.Resolve(ev.job.target.URL, model.VisitFailed)
		if c.admittingSections() {
			c.consecutive++
			if c.s.maxConsecutive > 0 && c.consecutive >= c.s.maxConsecutive {
				c.halt(stopSystemic, &SystemicFailureError{Consecutive: c.consecutive, Last: ev.err})
			}
		}
	case model.OutcomeCaptured, model.OutcomeDuplicate:
		if c.admittingSections() {
			c.consecutive = 0
		}
	}

	c.admitSections(ev)
	for _, link := range ev.links {
		c.admitLink(link)
	}
}

func (c *crawl) admitSections(ev *pageEvent) {
	defer close(ev.reply)

	for i, section := range ev.sections {
		ref := model.TargetRef{
			ID:       model.SectionID(ev.job.ref.ID, i+1),
			Kind:     model.TargetSection,
			URL:      ev.job.target.URL,
			Selector: section.Selector,
		}
		if c.admittingSections() {
			if err := c.budget.CanAdmitSection(i); err != nil {
				c.skip(ref, ev.job.target, model.OutcomeSkippedBudget, err.Error())
				continue
			}
			if err := c.budget.Reserve(c.ctx); err != nil {
				c.haltOn(err)
			} else {
				ev.reply <- sectionJob{index: i + 1, ticket: c.turns.issue(), ref: ref, target: section}
				continue
			}
		}
		c.skip(ref, ev.job.target, c.skipOutcome(), c.skipMessage())
	}
}

// admitLink records out-of-scope links once and queues new in-scope URLs.
func (c *crawl) admitLink(link LinkCandidate) {
	u := link.Target.URL
	if link.Rejected != "" {
		if c.scoped[u] || c.visits.HasVisited(u) {
			return
		}
		c.scoped[u] = true
		c.skip(model.TargetRef{Kind: model.TargetPage, URL: u}, link.Target,
			model.OutcomeSkippedScope, "out of scope: "+link.Rejected)
		return
	}
	if !c.visits.MarkVisited(u) {
		return
	}
	c.frontier = append(c.frontier, link.Target)
}

// drain records every remaining frontier entry as skipped.
func (c *crawl) drain() {
	outcome, msg := c.skipOutcome(), c.skipMessage()
	for _, t := range c.frontier {
		if outcome == model.OutcomeSkippedBudget {
			c.visits.Resolve(t.URL, model.VisitSkippedBudget)
		}
		c.skip(model.TargetRef{Kind: model.TargetPage, URL: t.URL}, t, outcome, msg)
	}
	c.frontier = nil
}

func (c *crawl) skipOutcome() model.Outcome {
	switch c.stop {
	case stopCancelled, stopSystemic:
		return model.OutcomeSkippedCancelled
	default:
		return model.OutcomeSkippedBudget
	}
}

func (c *crawl) skipMessage() string {
	switch c.stop {
	case stopSystemic:
		return "run halted: systemic failure"
	case stopCancelled:
		return "run cancelled"
	case stopPages, stopBudget:
		if c.stopErr != nil {
			return c.stopErr.Error()
		}
	}
	return ErrPageBudget.Error()
}

func (c *crawl) skip(ref model.TargetRef, page model.PageTarget, outcome model.Outcome, msg string) {
	c.s.ledger.Append(model.ManifestEntry{
		Target:         ref,
		Depth:          page.Depth,
		DiscoveredFrom: page.DiscoveredFrom,
		Outcome:        outcome,
		Error:          msg,
	})
}

// work captures a page and its sections. It always sends exactly one page
// event and one done signal.
func (c *crawl) work(job pageJob) {
	defer func() { c.done <- struct{}{} }()

	ev := &pageEvent{job: job, reply: make(chan sectionJob, max(c.s.limits.MaxSectionsPerPage, 0))}
	record := model.PageRecord{ID: job.ref.ID, URL: job.target.URL, Depth: job.target.Depth}

	page, art, err := c.capturePage(job)
	if err != nil {
		c.turns.done(job.ticket)
		c.budget.Release()
		ev.outcome, ev.err = c.fail(job.ref, job.target, err), err
		record.Outcome, record.Error = ev.outcome, err.Error()
		c.addPage(job.seq, record)
		c.results <- ev
		for range ev.reply {
		}
		return
	}
	defer func() {
		if err := page.Close(); err != nil {
			c.s.logger.Debug("failed to close page", "id", job.ref.ID, "error", err)
		}
	}()

	record.Title, record.StatusCode = art.Title, art.StatusCode
	capture := Capture{Target: job.ref, Depth: job.target.Depth, PageTitle: art.Title, seq: job.seq}
	ev.outcome, ev.err = c.settle(art, job.target, &capture, job.ticket)
	record.Outcome = ev.outcome
	if ev.err != nil {
		record.Error = ev.err.Error()
	}
	c.addPage(job.seq, record)

	if ev.outcome != model.OutcomeSkippedCancelled {
		disc, err := c.s.extractor.Discover(c.ctx, page, job.target, job.target.Depth+1 <= c.s.maxDepth)
		if err != nil {
			c.s.logger.Warn("discovery failed", "id", job.ref.ID, "url", job.target.URL, "error", err)
		} else {
			if ev.outcome == model.OutcomeCaptured {
				ev.sections = slices.Collect(disc.Sections())
			}
			for link := range disc.Links(c.ctx) {
				ev.links = append(ev.links, link)
			}
		}
	}

	c.results <- ev
	for sj := range ev.reply {
		c.captureSection(page, job, sj, art.Title)
	}
}

// capturePage captures a page, retrying transient navigation failures.
func (c *crawl) capturePage(job pageJob) (render.Page, *model.CaptureArtifact, error) {
	for attempt := 0; ; attempt++ {
		page, art, err := c.s.capturer.CapturePage(c.ctx, job.ref)
		if err == nil {
			return page, art, nil
		}
		var navErr *render.NavigationError
		if attempt >= c.s.retries || !errors.As(err, &navErr) || !navErr.Transient() || c.ctx.Err() != nil {
			return nil, nil, err
		}
		if !c.budget.TryAttempt() {
			return nil, nil, err
		}
		wait := c.s.backoff * time.Duration(attempt+1)
		c.s.logger.Debug("retrying page capture", "id", job.ref.ID, "attempt", attempt+2, "wait", wait, "error", err)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-c.ctx.Done():
				timer.Stop()
				return nil, nil, err
			case <-timer.C:
			}
		}
	}
}

func (c *crawl) captureSection(page render.Page, job pageJob, sj sectionJob, pageTitle string) {
	record := model.SectionRecord{
		ID:       sj.ref.ID,
		PageID:   job.ref.ID,
		PageURL:  job.target.URL,
		Title:    sj.target.Title,
		Selector: sj.target.Selector,
	}

	art, err := c.s.capturer.CaptureSection(c.ctx, page, sj.ref, sj.target)
	if err != nil {
		c.turns.done(sj.ticket)
		c.budget.Release()
		record.Outcome, record.Error = c.fail(sj.ref, job.target, err), err.Error()
		c.addSection(job.seq, sj.index, record)
		return
	}

	section := sj.target
	capture := Capture{
		Target:    sj.ref,
		Depth:     job.target.Depth,
		PageTitle: pageTitle,
		Section:   &section,
		seq:       job.seq,
		index:     sj.index,
	}
	outcome, serr := c.settle(art, job.target, &capture, sj.ticket)
	record.Outcome = outcome
	if serr != nil {
		record.Error = serr.Error()
	}
	c.addSection(job.seq, sj.index, record)
}

// settle passes an artifact through the dedup filter and the sink, resolves
// its budget reservation and writes the manifest entry. Artifacts settle one
// at a time in reservation order, so the first admitted of two near-identical
// captures is the one kept.
func (c *crawl) settle(art *model.CaptureArtifact, page model.PageTarget, capture *Capture, ticket int) (model.Outcome, error) {
	defer c.turns.done(ticket)

	entry := model.ManifestEntry{
		Target:         art.Target,
		Depth:          page.Depth,
		DiscoveredFrom: page.DiscoveredFrom,
		Warnings:       art.Warnings,
	}

	if !c.turns.wait(ticket) {
		c.budget.Release()
		art.Release()
		entry.Outcome, entry.Error = model.OutcomeSkippedCancelled, "run stopped during capture"
		c.s.ledger.Append(entry)
		return entry.Outcome, c.ctx.Err()
	}

	decision, err := c.s.deduper.Check(art)
	if err != nil {
		c.budget.Release()
		art.Release()
		entry.Outcome, entry.ErrorKind, entry.Error = model.OutcomeFailed, "fingerprint", err.Error()
		c.s.ledger.Append(entry)
		return entry.Outcome, err
	}
	if !decision.Accepted {
		c.budget.Release()
		art.Release()
		entry.Outcome, entry.DuplicateOf = model.OutcomeDuplicate, decision.DuplicateOf
		c.s.ledger.Append(entry)
		c.s.logger.Debug("duplicate capture", "id", art.Target.ID, "duplicate_of", decision.DuplicateOf, "distance", decision.Distance)
		return entry.Outcome, nil
	}

	var stored Stored
	if c.s.sink != nil {
		if stored, err = c.s.sink(c.ctx, art); err != nil {
			c.budget.Release()
			art.Release()
			entry.Outcome, entry.ErrorKind, entry.Error = model.OutcomeFailed, "store", err.Error()
			if c.ctx.Err() != nil {
				entry.Outcome, entry.ErrorKind, entry.Error = model.OutcomeSkippedCancelled, "", "run stopped during capture"
			}
			c.s.ledger.Append(entry)
			return entry.Outcome, err
		}
	}
	c.s.deduper.Commit(decision)
	c.budget.Commit()

	entry.Outcome, entry.ArtifactRef = model.OutcomeCaptured, stored.Ref
	c.s.ledger.Append(entry)

	capture.Fingerprint = art.Fingerprint
	capture.Geometry = art.Geometry
	capture.ArtifactRef = stored.Ref
	capture.Image = stored.Image
	c.mu.Lock()
	c.captures = append(c.captures, *capture)
	c.mu.Unlock()
	return entry.Outcome, nil
}

// fail records a capture failure. Errors caused by the run being stopped are
// recorded as cancelled skips instead.
func (c *crawl) fail(ref model.TargetRef, page model.PageTarget, err error) model.Outcome {
	entry := model.ManifestEntry{
		Target:         ref,
		Depth:          page.Depth,
		DiscoveredFrom: page.DiscoveredFrom,
		Outcome:        model.OutcomeFailed,
		ErrorKind:      render.ErrorKind(err),
		Error:          err.Error(),
	}
	if c.ctx.Err() != nil {
		entry.Outcome, entry.ErrorKind, entry.Error = model.OutcomeSkippedCancelled, "", "run stopped during capture"
	}
	c.s.ledger.Append(entry)
	c.s.logger.Debug("capture failed", "id", ref.ID, "url", ref.URL, "outcome", entry.Outcome, "error", err)
	return entry.Outcome
}

func (c *crawl) addPage(seq int, record model.PageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[seq] = record
}

func (c *crawl) addSection(seq, index int, record model.SectionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sections = append(c.sections, sectionRecord{seq: seq, index: index, record: record})
}

func (c *crawl) result(seed string) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := &Result{
		SeedURL: seed,
		Status:  model.RunCompleted,
		Visits:  c.visits.Snapshot(),
		Stats:   c.budget.Stats(),
	}
	switch c.stop {
	case stopSystemic:
		r.Status = model.RunSystemicFailure
	case stopCancelled:
		r.Status = model.RunCancelled
	}

	seqs := make([]int, 0, len(c.pages))
	for seq := range c.pages {
		seqs = append(seqs, seq)
	}
	slices.Sort(seqs)
	for _, seq := range seqs {
		r.Pages = append(r.Pages, c.pages[seq])
	}

	slices.SortFunc(c.sections, func(a, b sectionRecord) int {
		return cmp.Or(cmp.Compare(a.seq, b.seq), cmp.Compare(a.index, b.index))
	})
	for _, s := range c.sections {
		r.Sections = append(r.Sections, s.record)
	}

	r.Captures = slices.Clone(c.captures)
	slices.SortFunc(r.Captures, func(a, b Capture) int {
		return cmp.Or(cmp.Compare(a.seq, b.seq), cmp.Compare(a.index, b.index))
	})
	return r
}

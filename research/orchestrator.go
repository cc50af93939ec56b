package research

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bububa/instructor-go/pkg/instructor"

	"github.com/bububa/research-agents/tools/googlesearch"
	"github.com/bububa/research-agents/tools/webscraper"
)

// State names a phase of the research loop.
type State int

const (
	StatePlanning State = iota
	StateRetrieving
	StateFetching
	StateSynthesizing
	StateEvaluating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateRetrieving:
		return "retrieving"
	case StateFetching:
		return "fetching"
	case StateSynthesizing:
		return "synthesizing"
	case StateEvaluating:
		return "evaluating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Orchestrator drives one research session through repeated rounds of
// planning, retrieval, fetching and synthesis until coverage is adequate,
// the iteration cap is hit, or a fatal failure ends the session.
type Orchestrator struct {
	cfg         *Config
	planner     *Planner
	synthesizer *Synthesizer
	retriever   *Retriever
	fetcher     *Fetcher
	relevance   *RelevanceFilter
	exporter    ReportExporter
	stateHook   func(State, *SessionState)
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithConfig sets the session limits. The config is normalized in place.
func WithConfig(cfg *Config) OrchestratorOption {
	return func(o *Orchestrator) {
		o.cfg = cfg
	}
}

// WithPlanner sets the query planner.
func WithPlanner(p *Planner) OrchestratorOption {
	return func(o *Orchestrator) {
		o.planner = p
	}
}

// WithSynthesizer sets the report synthesizer.
func WithSynthesizer(s *Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.synthesizer = s
	}
}

// WithRetriever sets the search retriever.
func WithRetriever(r *Retriever) OrchestratorOption {
	return func(o *Orchestrator) {
		o.retriever = r
	}
}

// WithFetcher sets the page fetcher.
func WithFetcher(f *Fetcher) OrchestratorOption {
	return func(o *Orchestrator) {
		o.fetcher = f
	}
}

// WithRelevanceFilter enables evidence ranking before synthesis.
func WithRelevanceFilter(f *RelevanceFilter) OrchestratorOption {
	return func(o *Orchestrator) {
		o.relevance = f
	}
}

// WithExporter persists the finished report after a successful session.
func WithExporter(e ReportExporter) OrchestratorOption {
	return func(o *Orchestrator) {
		o.exporter = e
	}
}

// WithStateHook observes state transitions, for logging or progress UIs.
// The hook must not mutate the session.
func WithStateHook(fn func(State, *SessionState)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.stateHook = fn
	}
}

// NewOrchestrator builds an Orchestrator. Planner, synthesizer, retriever
// and fetcher are required; Run fails without them.
func NewOrchestrator(options ...OrchestratorOption) *Orchestrator {
	ret := new(Orchestrator)
	for _, opt := range options {
		opt(ret)
	}
	if ret.cfg == nil {
		ret.cfg = new(Config)
	}
	ret.cfg.Normalize()
	return ret
}

// NewDefault wires an Orchestrator with the stock collaborators: an LLM
// planner and synthesizer on clt, Google Custom Search retrieval and
// webscraper fetching, exporting to <topic>_report.md in the working
// directory.
func NewDefault(cfg *Config, clt instructor.Instructor) *Orchestrator {
	if cfg == nil {
		cfg = new(Config)
	}
	cfg.Normalize()
	searcher := NewGoogleSearcher(googlesearch.New(
		googlesearch.WithAPIKey(cfg.SearchAPIKey),
		googlesearch.WithEngineID(cfg.SearchEngineID),
		googlesearch.WithMaxResults(cfg.MaxResultsPerQuery),
	))
	fetcher := NewWebscraperPageFetcher(webscraper.New(
		webscraper.WithTimeout(int(cfg.PerCallTimeout / time.Second)),
	))
	var counter TokenCounter
	if c, err := NewTikTokenCounter(""); err == nil {
		counter = c
	}
	return NewOrchestrator(
		WithConfig(cfg),
		WithPlanner(NewLLMPlanner(clt, cfg.Model, cfg.MaxQueriesPerIteration)),
		WithSynthesizer(NewLLMSynthesizer(clt, cfg.Model, counter, cfg.MaxPromptTokens)),
		WithRetriever(NewRetriever(searcher, cfg)),
		WithFetcher(NewFetcher(fetcher, cfg)),
		WithExporter(NewFileExporter("")),
	)
}

func (o *Orchestrator) transition(state State, session *SessionState) {
	if o.stateHook != nil {
		o.stateHook(state, session)
	}
}

// Run executes one research session for topic. The returned Result is
// non-nil even on failure and carries whatever report and evidence had
// accumulated. A failed session reports its cause as err; a completed
// session returns a nil err unless exporting the report failed.
func (o *Orchestrator) Run(ctx context.Context, topic string) (*Result, error) {
	session := newSessionState(topic)
	if err := o.checkReady(); err != nil {
		return o.fail(session, err.Error()), err
	}

	o.transition(StatePlanning, session)
	queries, err := o.planner.PlanInitial(ctx, topic)
	if err != nil {
		return o.fail(session, err.Error()), err
	}
	seen := make(map[string]struct{})

	for {
		queries = o.admitQueries(session, seen, queries)

		fatal, err := o.retrieve(ctx, session, queries)
		if err != nil && !fatal {
			return o.fail(session, err.Error()), err
		}

		if ctx.Err() != nil {
			return o.fail(session, ctx.Err().Error()), ctx.Err()
		}
		o.transition(StateFetching, session)
		if ferr := o.fetcher.FetchPending(ctx, session.Store); ferr != nil {
			return o.fail(session, ferr.Error()), ferr
		}

		if session.Store.Len() == 0 {
			reason := "no evidence could be gathered"
			if err != nil {
				reason = err.Error()
			}
			return o.fail(session, reason), errors.Join(err, fmt.Errorf("%s", reason))
		}

		o.transition(StateSynthesizing, session)
		draft, serr := o.synthesize(ctx, session)
		if serr != nil {
			// A prior draft still makes a usable partial report.
			return o.fail(session, serr.Error()), serr
		}
		session.Draft = draft

		if fatal {
			// Non-transient provider failure: the draft built from the
			// evidence gathered so far is the best this session can do.
			return o.fail(session, err.Error()), err
		}

		o.transition(StateEvaluating, session)
		if session.Iteration >= o.cfg.MaxIterations {
			session.Reason = "iteration limit reached"
			break
		}
		gaps, gerr := o.synthesizer.AssessGaps(ctx, session.Topic, session.Draft)
		if gerr != nil {
			if ctx.Err() != nil {
				return o.fail(session, ctx.Err().Error()), ctx.Err()
			}
			session.Reason = "coverage assessment unavailable"
			break
		}
		if !gaps.Continue || len(gaps.MissingAspects) == 0 {
			session.Reason = "coverage adequate"
			break
		}

		o.transition(StatePlanning, session)
		next, perr := o.planner.PlanGapFill(ctx, session.Topic, gaps, session.Iteration+1)
		if perr != nil {
			if ctx.Err() != nil {
				return o.fail(session, ctx.Err().Error()), ctx.Err()
			}
			// Mid-session planning failure ends the loop, not the session.
			session.Reason = "gap-fill planning failed"
			break
		}
		next = dedupeAgainst(seen, next)
		if len(next) == 0 {
			session.Reason = "no further queries"
			break
		}
		session.Iteration++
		queries = next
	}

	o.transition(StateDone, session)
	result := o.result(session, StatusCompleted)
	if o.exporter != nil {
		if _, err := o.exporter.Export(ctx, result); err != nil {
			return result, fmt.Errorf("export report: %w", err)
		}
	}
	return result, nil
}

func (o *Orchestrator) checkReady() error {
	switch {
	case o.planner == nil:
		return errors.New("orchestrator: no planner configured")
	case o.synthesizer == nil:
		return errors.New("orchestrator: no synthesizer configured")
	case o.retriever == nil:
		return errors.New("orchestrator: no retriever configured")
	case o.fetcher == nil:
		return errors.New("orchestrator: no fetcher configured")
	}
	return nil
}

// admitQueries records this round's queries on the session, dropping ones
// already issued in an earlier round.
func (o *Orchestrator) admitQueries(session *SessionState, seen map[string]struct{}, queries []Query) []Query {
	queries = dedupeAgainst(seen, queries)
	session.Queries = append(session.Queries, queries...)
	return queries
}

func dedupeAgainst(seen map[string]struct{}, queries []Query) []Query {
	out := queries[:0:0]
	for _, q := range queries {
		key := normalizeQuery(q.Text)
		if _, found := seen[key]; found {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// retrieve runs this round's queries against the search provider and files
// every hit into the store. Per-query transient failures are tolerated; a
// non-transient provider error stops retrieval and reports fatal=true so
// the caller can finish with the evidence gathered so far.
func (o *Orchestrator) retrieve(ctx context.Context, session *SessionState, queries []Query) (fatal bool, err error) {
	o.transition(StateRetrieving, session)
	concurrency := o.cfg.SearchConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	var (
		mu       sync.Mutex
		fatalErr error
		sem      = make(chan struct{}, concurrency)
		wg       sync.WaitGroup
	)
	for _, query := range queries {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(query Query) {
			defer wg.Done()
			defer func() { <-sem }()
			hits, err := o.retriever.Retrieve(ctx, query)
			if err != nil {
				var provErr *ProviderError
				if errors.As(err, &provErr) && !provErr.Transient {
					mu.Lock()
					if fatalErr == nil {
						fatalErr = provErr
					}
					mu.Unlock()
				}
				return
			}
			items := make([]EvidenceItem, 0, len(hits))
			for _, hit := range hits {
				items = append(items, EvidenceItem{
					URL:     hit.URL,
					Title:   hit.Title,
					Snippet: hit.Snippet,
					Query:   query.Text,
					Origin:  query.Origin,
				})
			}
			session.Store.Add(items...)
		}(query)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if fatalErr != nil {
		return true, fatalErr
	}
	return false, nil
}

// synthesize extends the draft from the store, ranking evidence first when
// a relevance filter is configured.
func (o *Orchestrator) synthesize(ctx context.Context, session *SessionState) (*Draft, error) {
	snapshot := session.Store.Snapshot()
	if o.relevance != nil && o.cfg.RelevanceTopK > 0 {
		ranked, err := o.relevance.Rank(ctx, session.Topic, snapshot)
		if err == nil && len(ranked) > 0 {
			snapshot = ranked
		}
	}
	return o.synthesizer.ExtendDraft(ctx, session.Topic, session.Draft, session.Store, snapshot)
}

// fail finalizes the session as failed-partial, keeping whatever draft and
// evidence had accumulated.
func (o *Orchestrator) fail(session *SessionState, reason string) *Result {
	session.Reason = reason
	o.transition(StateFailed, session)
	return o.result(session, StatusFailedPartial)
}

func (o *Orchestrator) result(session *SessionState, status Status) *Result {
	result := &Result{
		Topic:      session.Topic,
		Status:     status,
		Reason:     session.Reason,
		Iterations: session.Iteration,
		Evidence:   session.Store.Snapshot(),
	}
	if session.Draft != nil {
		result.Report = session.Draft.Report
		result.Citations = session.Draft.Citations
	}
	return result
}

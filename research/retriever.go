package research

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bububa/research-agents/tools/googlesearch"
)

// Hit is a single search engine result.
type Hit struct {
	URL     string
	Title   string
	Snippet string
}

// Searcher executes one search query against a web search backend.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Hit, error)
}

// rateGate spaces outgoing calls by a minimum interval. Callers block
// until their slot comes up.
type rateGate struct {
	mu       sync.Mutex
	interval time.Duration
	readyAt  time.Time
}

func newRateGate(interval time.Duration) *rateGate {
	return &rateGate{interval: interval}
}

// wait blocks until the next slot, or returns early when ctx is done.
func (g *rateGate) wait(ctx context.Context) error {
	if g.interval <= 0 {
		return ctx.Err()
	}
	g.mu.Lock()
	now := time.Now()
	slot := g.readyAt
	if slot.Before(now) {
		slot = now
	}
	g.readyAt = slot.Add(g.interval)
	g.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retriever wraps a Searcher with rate spacing, per-call timeouts and
// bounded retries for transient provider failures.
type Retriever struct {
	searcher   Searcher
	gate       *rateGate
	timeout    time.Duration
	maxResults int
	attempts   int
	backoff    time.Duration
}

// NewRetriever builds a Retriever around searcher using cfg's limits.
func NewRetriever(searcher Searcher, cfg *Config) *Retriever {
	return &Retriever{
		searcher:   searcher,
		gate:       newRateGate(cfg.MinSearchInterval),
		timeout:    cfg.PerCallTimeout,
		maxResults: cfg.MaxResultsPerQuery,
		attempts:   maxRetryAttempts,
		backoff:    time.Second,
	}
}

// Retrieve runs one query and returns its hits. Transient provider errors
// are retried with exponential backoff; a non-transient error or exhausted
// retries surface as a *ProviderError.
func (r *Retriever) Retrieve(ctx context.Context, query Query) ([]Hit, error) {
	var lastErr error
	delay := r.backoff
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}
		if err := r.gate.wait(ctx); err != nil {
			return nil, err
		}
		hits, err := r.search(ctx, query.Text)
		if err == nil {
			return hits, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		var provErr *ProviderError
		if errors.As(err, &provErr) && !provErr.Transient {
			return nil, provErr
		}
		lastErr = err
	}
	var provErr *ProviderError
	if errors.As(lastErr, &provErr) {
		return nil, provErr
	}
	return nil, &ProviderError{Query: query.Text, Transient: true, Err: lastErr}
}

func (r *Retriever) search(ctx context.Context, query string) ([]Hit, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	hits, err := r.searcher.Search(ctx, query, r.maxResults)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &ProviderError{Query: query, Transient: true, Err: err}
		}
		return nil, err
	}
	return hits, nil
}

// googleSearcher adapts the Google Custom Search tool to the Searcher
// interface, mapping API status errors to provider errors.
type googleSearcher struct {
	tool *googlesearch.GoogleSearch
}

// NewGoogleSearcher wraps a Google Custom Search client as a Searcher.
func NewGoogleSearcher(tool *googlesearch.GoogleSearch) Searcher {
	return &googleSearcher{tool: tool}
}

func (s *googleSearcher) Search(ctx context.Context, query string, maxResults int) ([]Hit, error) {
	output, err := s.tool.Run(ctx, &googlesearch.Input{Queries: []string{query}})
	if err != nil {
		var statusErr *googlesearch.StatusError
		if errors.As(err, &statusErr) {
			return nil, &ProviderError{Query: query, Transient: statusErr.Transient(), Err: statusErr}
		}
		return nil, &ProviderError{Query: query, Transient: true, Err: err}
	}
	hits := make([]Hit, 0, len(output.Results))
	for _, item := range output.Results {
		hits = append(hits, Hit{URL: item.URL, Title: item.Title, Snippet: item.Snippet})
		if maxResults > 0 && len(hits) >= maxResults {
			break
		}
	}
	return hits, nil
}

package research

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bububa/research-agents/tools/webscraper"
)

// PageFetcher downloads one page and returns its extracted text.
type PageFetcher interface {
	Fetch(ctx context.Context, link string) (string, error)
}

// Fetcher downloads pending evidence items with bounded concurrency and
// records the outcome of each attempt in the store.
type Fetcher struct {
	fetcher     PageFetcher
	concurrency int
	timeout     time.Duration
	maxChars    int
}

// NewFetcher builds a Fetcher around fetcher using cfg's limits.
func NewFetcher(fetcher PageFetcher, cfg *Config) *Fetcher {
	return &Fetcher{
		fetcher:     fetcher,
		concurrency: cfg.FetchConcurrency,
		timeout:     cfg.PerCallTimeout,
		maxChars:    cfg.MaxExtractedChars,
	}
}

// FetchPending downloads every item in the store that has no fetch outcome
// yet. Individual page failures are recorded per item and never abort the
// batch; only context cancellation stops it early.
func (f *Fetcher) FetchPending(ctx context.Context, store *EvidenceStore) error {
	pending := store.PendingFetch()
	if len(pending) == 0 {
		return ctx.Err()
	}
	concurrency := f.concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, item := range pending {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(item EvidenceItem) {
			defer wg.Done()
			defer func() { <-sem }()
			store.SetFetchResult(f.fetchOne(ctx, item))
		}(item)
	}
	wg.Wait()
	return ctx.Err()
}

func (f *Fetcher) fetchOne(ctx context.Context, item EvidenceItem) FetchResult {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	text, err := f.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		kind := classifyFetchError(err)
		return FetchResult{SourceID: item.SourceID, Kind: kind, Err: err}
	}
	if f.maxChars > 0 {
		text = capText(text, f.maxChars)
	}
	if text == "" {
		return FetchResult{SourceID: item.SourceID, Kind: FetchEmpty, Err: webscraper.ErrEmptyDocument}
	}
	return FetchResult{SourceID: item.SourceID, Kind: FetchOK, Text: text}
}

// classifyFetchError buckets a page download failure so the synthesizer
// and the final report can account for excluded sources.
func classifyFetchError(err error) FetchKind {
	var blocked *webscraper.BlockedError
	var unsupported *webscraper.UnsupportedContentError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return FetchTimeout
	case errors.As(err, &blocked):
		return FetchBlocked
	case errors.Is(err, webscraper.ErrEmptyDocument):
		return FetchEmpty
	case errors.As(err, &unsupported):
		return FetchUnsupported
	default:
		return FetchParseError
	}
}

// webscraperPageFetcher adapts the scraping tool to the PageFetcher
// interface.
type webscraperPageFetcher struct {
	tool *webscraper.Webscraper
}

// NewWebscraperPageFetcher wraps a Webscraper as a PageFetcher.
func NewWebscraperPageFetcher(tool *webscraper.Webscraper) PageFetcher {
	return &webscraperPageFetcher{tool: tool}
}

func (f *webscraperPageFetcher) Fetch(ctx context.Context, link string) (string, error) {
	output, err := f.tool.Run(ctx, &webscraper.Input{URL: link})
	if err != nil {
		return "", err
	}
	return output.Content, nil
}

package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bububa/research-agents/tools/webscraper"
)

type stubPageFetcher struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	fn       func(link string) (string, error)
}

func (f *stubPageFetcher) Fetch(_ context.Context, link string) (string, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	return f.fn(link)
}

func TestFetchPendingBoundsConcurrency(t *testing.T) {
	store := NewEvidenceStore()
	for i := 0; i < 10; i++ {
		store.Add(EvidenceItem{URL: fmt.Sprintf("https://example.com/p%d", i)})
	}
	stub := &stubPageFetcher{fn: func(string) (string, error) { return "content", nil }}
	cfg := &Config{FetchConcurrency: 2}
	cfg.Normalize()
	cfg.FetchConcurrency = 2
	f := NewFetcher(stub, cfg)

	if err := f.FetchPending(context.Background(), store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.maxSeen > 2 {
		t.Errorf("expected at most 2 concurrent fetches, saw %d", stub.maxSeen)
	}
	if len(store.PendingFetch()) != 0 {
		t.Error("all items should have a fetch outcome")
	}
	if stats := store.Stats(); stats.Fetched != 10 {
		t.Errorf("expected 10 fetched, got %+v", stats)
	}
}

func TestFetchPendingClassifiesFailures(t *testing.T) {
	store := NewEvidenceStore()
	urls := map[string]error{
		"https://example.com/timeout":     context.DeadlineExceeded,
		"https://example.com/blocked":     &webscraper.BlockedError{StatusCode: 403},
		"https://example.com/empty":       webscraper.ErrEmptyDocument,
		"https://example.com/unsupported": &webscraper.UnsupportedContentError{MIME: "image/png"},
		"https://example.com/broken":      errors.New("malformed html"),
	}
	for u := range urls {
		store.Add(EvidenceItem{URL: u, Snippet: "snippet"})
	}
	stub := &stubPageFetcher{fn: func(link string) (string, error) {
		return "", urls[link]
	}}
	cfg := new(Config)
	cfg.Normalize()
	f := NewFetcher(stub, cfg)

	if err := f.FetchPending(context.Background(), store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]FetchKind{
		"https://example.com/timeout":     FetchTimeout,
		"https://example.com/blocked":     FetchBlocked,
		"https://example.com/empty":       FetchEmpty,
		"https://example.com/unsupported": FetchUnsupported,
		"https://example.com/broken":      FetchParseError,
	}
	for _, item := range store.Snapshot() {
		if item.Fetch != want[item.URL] {
			t.Errorf("%s: expected kind %q, got %q", item.URL, want[item.URL], item.Fetch)
		}
		if item.FullText != "" {
			t.Errorf("%s: failed fetch must not store text", item.URL)
		}
	}
}

func TestFetchPendingCapsExtractedText(t *testing.T) {
	store := NewEvidenceStore()
	store.Add(EvidenceItem{URL: "https://example.com/long"})
	long := strings.Repeat("A sentence about the topic. ", 100)
	stub := &stubPageFetcher{fn: func(string) (string, error) { return long, nil }}
	cfg := new(Config)
	cfg.Normalize()
	cfg.MaxExtractedChars = 100
	f := NewFetcher(stub, cfg)

	if err := f.FetchPending(context.Background(), store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	item := store.Snapshot()[0]
	if item.Fetch != FetchOK {
		t.Fatalf("expected ok, got %q", item.Fetch)
	}
	if len(item.FullText) > 100 {
		t.Errorf("expected text capped at 100 chars, got %d", len(item.FullText))
	}
}

func TestFetchPendingEmptyExtraction(t *testing.T) {
	store := NewEvidenceStore()
	store.Add(EvidenceItem{URL: "https://example.com/blank"})
	stub := &stubPageFetcher{fn: func(string) (string, error) { return "", nil }}
	cfg := new(Config)
	cfg.Normalize()
	f := NewFetcher(stub, cfg)

	if err := f.FetchPending(context.Background(), store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item := store.Snapshot()[0]; item.Fetch != FetchEmpty {
		t.Errorf("expected empty classification, got %q", item.Fetch)
	}
}

func TestClassifyFetchError(t *testing.T) {
	wrapped := fmt.Errorf("fetch: %w", &webscraper.BlockedError{StatusCode: 429})
	if kind := classifyFetchError(wrapped); kind != FetchBlocked {
		t.Errorf("wrapped blocked error should classify as blocked, got %q", kind)
	}
}

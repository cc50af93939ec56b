package research

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubSearcher struct {
	calls int
	fn    func(call int) ([]Hit, error)
}

func (s *stubSearcher) Search(_ context.Context, _ string, _ int) ([]Hit, error) {
	s.calls++
	return s.fn(s.calls)
}

func newTestRetriever(s Searcher) *Retriever {
	cfg := &Config{MinSearchInterval: time.Millisecond}
	cfg.Normalize()
	cfg.MinSearchInterval = time.Millisecond
	r := NewRetriever(s, cfg)
	r.backoff = time.Millisecond
	return r
}

func TestRetrieveRetriesTransientErrors(t *testing.T) {
	searcher := &stubSearcher{fn: func(call int) ([]Hit, error) {
		if call < 3 {
			return nil, &ProviderError{Query: "q", Transient: true, Err: errors.New("rate limited")}
		}
		return []Hit{{URL: "https://example.com", Title: "hit"}}, nil
	}}
	r := newTestRetriever(searcher)

	hits, err := r.Retrieve(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || searcher.calls != 3 {
		t.Errorf("expected success on third call, got %d hits after %d calls", len(hits), searcher.calls)
	}
}

func TestRetrieveStopsOnFatalError(t *testing.T) {
	fatal := &ProviderError{Query: "q", Transient: false, Err: errors.New("quota exceeded")}
	searcher := &stubSearcher{fn: func(int) ([]Hit, error) {
		return nil, fatal
	}}
	r := newTestRetriever(searcher)

	_, err := r.Retrieve(context.Background(), Query{Text: "q"})
	var provErr *ProviderError
	if !errors.As(err, &provErr) || provErr.Transient {
		t.Fatalf("expected non-transient provider error, got %v", err)
	}
	if searcher.calls != 1 {
		t.Errorf("fatal error must not be retried, got %d calls", searcher.calls)
	}
}

func TestRetrieveExhaustsRetries(t *testing.T) {
	searcher := &stubSearcher{fn: func(int) ([]Hit, error) {
		return nil, errors.New("connection reset")
	}}
	r := newTestRetriever(searcher)

	_, err := r.Retrieve(context.Background(), Query{Text: "q"})
	var provErr *ProviderError
	if !errors.As(err, &provErr) || !provErr.Transient {
		t.Fatalf("expected transient provider error after exhausted retries, got %v", err)
	}
	if searcher.calls != maxRetryAttempts {
		t.Errorf("expected %d attempts, got %d", maxRetryAttempts, searcher.calls)
	}
}

func TestRetrieveHonorsCancellation(t *testing.T) {
	searcher := &stubSearcher{fn: func(int) ([]Hit, error) {
		return nil, errors.New("transient")
	}}
	r := newTestRetriever(searcher)
	r.backoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := r.Retrieve(ctx, Query{Text: "q"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRateGateSpacesCalls(t *testing.T) {
	gate := newRateGate(20 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := gate.wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("three calls should span at least two intervals, took %v", elapsed)
	}
}

func TestRateGateCancellation(t *testing.T) {
	gate := newRateGate(time.Minute)
	if err := gate.wait(context.Background()); err != nil {
		t.Fatalf("first call should pass immediately: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := gate.wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

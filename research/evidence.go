package research

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// FetchKind classifies the outcome of content extraction for one source.
type FetchKind string

const (
	// FetchPending marks evidence whose content has not been fetched yet.
	FetchPending FetchKind = ""
	FetchOK      FetchKind = "ok"
	FetchTimeout FetchKind = "timeout"
	FetchBlocked FetchKind = "blocked"
	FetchEmpty   FetchKind = "empty"
	// FetchParseError covers pages that were retrieved but could not be reduced to text.
	FetchParseError FetchKind = "parse-error"
	// FetchUnsupported covers non-text content types.
	FetchUnsupported FetchKind = "unsupported"
)

// Failed reports whether the kind records a failed extraction.
func (k FetchKind) Failed() bool {
	return k != FetchPending && k != FetchOK
}

// FetchResult is the outcome of content extraction for one evidence item.
// Failures are retained as evidence of absence, never silently dropped.
type FetchResult struct {
	SourceID string
	Kind     FetchKind
	Text     string
	Err      error
}

// EvidenceItem is one deduplicated search hit, optionally enriched with
// fetched page text.
type EvidenceItem struct {
	// SourceID is a stable hash of the normalized URL.
	SourceID string `json:"source_id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet,omitempty"`
	// FullText is filled in after a successful content fetch.
	FullText    string    `json:"full_text,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at"`
	// Query is the search text that surfaced the item.
	Query string `json:"query,omitempty"`
	// Origin is the planning pass of that query.
	Origin QueryOrigin `json:"origin,omitempty"`
	// Fetch is the outcome of content extraction, FetchPending until attempted.
	Fetch FetchKind `json:"fetch,omitempty"`
}

// normalizeURL canonicalizes a URL so that trivially different spellings of
// the same address produce the same source ID.
func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	if query := u.Query(); len(query) > 0 {
		for key := range query {
			if strings.HasPrefix(strings.ToLower(key), "utm_") {
				query.Del(key)
			}
		}
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// SourceID returns the stable identifier for a source URL.
func SourceID(rawURL string) string {
	sum := sha256.Sum256([]byte(normalizeURL(rawURL)))
	return hex.EncodeToString(sum[:8])
}

// StoreStats are running counters of store activity.
type StoreStats struct {
	Added      int64
	Duplicates int64
	Fetched    int64
	Failed     int64
}

// EvidenceStore holds deduplicated evidence for one session. Add and
// SetFetchResult are safe for concurrent use; the check-and-insert per
// source ID is atomic under the store lock.
type EvidenceStore struct {
	mtx        sync.RWMutex
	items      map[string]*EvidenceItem
	order      []string
	added      *atomic.Int64
	duplicates *atomic.Int64
	fetched    *atomic.Int64
	failed     *atomic.Int64
}

// NewEvidenceStore returns an empty store.
func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{
		items:      make(map[string]*EvidenceItem),
		added:      atomic.NewInt64(0),
		duplicates: atomic.NewInt64(0),
		fetched:    atomic.NewInt64(0),
		failed:     atomic.NewInt64(0),
	}
}

// Add deduplicates and appends evidence items, returning the number of
// items actually added. On collision the first-seen item wins and later
// duplicates are discarded without re-fetching.
func (s *EvidenceStore) Add(items ...EvidenceItem) int {
	count := 0
	s.mtx.Lock()
	for _, item := range items {
		if item.SourceID == "" {
			item.SourceID = SourceID(item.URL)
		}
		if _, found := s.items[item.SourceID]; found {
			s.duplicates.Inc()
			continue
		}
		if item.RetrievedAt.IsZero() {
			item.RetrievedAt = time.Now()
		}
		stored := item
		s.items[item.SourceID] = &stored
		s.order = append(s.order, item.SourceID)
		s.added.Inc()
		count++
	}
	s.mtx.Unlock()
	return count
}

// SetFetchResult records the outcome of content extraction for a source.
// Only FullText and the fetch kind are mutated; URL and SourceID are fixed
// once added. Returns false for unknown sources.
func (s *EvidenceStore) SetFetchResult(res FetchResult) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	item, found := s.items[res.SourceID]
	if !found {
		return false
	}
	item.Fetch = res.Kind
	if res.Kind == FetchOK {
		item.FullText = res.Text
		s.fetched.Inc()
	} else {
		s.failed.Inc()
	}
	return true
}

// PendingFetch returns the items whose content has not been fetched yet.
func (s *EvidenceStore) PendingFetch() []EvidenceItem {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	out := make([]EvidenceItem, 0, len(s.order))
	for _, id := range s.order {
		if item := s.items[id]; item.Fetch == FetchPending {
			out = append(out, *item)
		}
	}
	return out
}

// Snapshot returns a copy of all evidence ordered by retrieval time.
func (s *EvidenceStore) Snapshot() []EvidenceItem {
	s.mtx.RLock()
	out := make([]EvidenceItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.items[id])
	}
	s.mtx.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RetrievedAt.Before(out[j].RetrievedAt)
	})
	return out
}

// Contains reports whether a source ID is present.
func (s *EvidenceStore) Contains(sourceID string) bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	_, found := s.items[sourceID]
	return found
}

// Len returns the number of stored items.
func (s *EvidenceStore) Len() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.order)
}

// Stats returns running counters of store activity.
func (s *EvidenceStore) Stats() StoreStats {
	return StoreStats{
		Added:      s.added.Load(),
		Duplicates: s.duplicates.Load(),
		Fetched:    s.fetched.Load(),
		Failed:     s.failed.Load(),
	}
}

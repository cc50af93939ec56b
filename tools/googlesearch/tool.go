package googlesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bububa/research-agents/schema"
	"github.com/bububa/research-agents/tools"
)

// DefaultEndpoint is the Google Custom Search JSON API endpoint.
const DefaultEndpoint = "https://www.googleapis.com/customsearch/v1"

// Input schema for the Google Custom Search tool.
// Returns a list of search results with a short snippet and URLs for further exploration.
type Input struct {
	schema.Base
	// Queries list of search queries.
	Queries []string `json:"queries" jsonschema:"title=queries,description=List of search queries." validate:"required"`
}

func NewInput(queries []string) *Input {
	return &Input{
		Queries: queries,
	}
}

func (s Input) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// SearchResultItem represents a single search result item
type SearchResultItem struct {
	schema.Base
	// URL The URL of the search result
	URL string `json:"url" jsonschema:"title=url,description=The URL of the search result" validate:"required,url"`
	// Title The title of the search result
	Title string `json:"title" jsonschema:"title=title,description=The title of the search result" validate:"required"`
	// Snippet The content snippet of the search result
	Snippet string `json:"snippet,omitempty" jsonschema:"title=snippet,description=The content snippet of the search result"`
	// Query The query used to obtain this search result
	Query string `json:"query" jsonschema:"title=query,description=The query used to obtain this search result" validate:"required"`
}

func (s SearchResultItem) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// Output represents the output of the Google Custom Search tool.
type Output struct {
	schema.Base
	// Results List of search result items
	Results []SearchResultItem `json:"results,omitempty" jsonschema:"title=results,description=List of search result items"`
}

func (s Output) String() string {
	bs, _ := json.Marshal(s)
	return string(bs)
}

// searchResponse mirrors the customsearch v1 response body.
type searchResponse struct {
	Items []struct {
		Link    string `json:"link"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"items"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
	Errors  []struct {
		Reason string `json:"reason"`
	} `json:"errors"`
}

// StatusError is a non-200 reply from the search API.
type StatusError struct {
	// Code is the HTTP status code of the reply.
	Code int
	// Status is the API status string, e.g. RESOURCE_EXHAUSTED.
	Status string
	// Reason is the first error reason, e.g. rateLimitExceeded.
	Reason string
	// Message is the API error message.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("googlesearch: %d %s: %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("googlesearch: http %d", e.Code)
}

// Transient reports whether the error is worth retrying. Per-second rate
// limits and server errors are transient; quota exhaustion and bad
// credentials are not.
func (e *StatusError) Transient() bool {
	switch e.Reason {
	case "rateLimitExceeded", "userRateLimitExceeded":
		return true
	case "dailyLimitExceeded", "quotaExceeded":
		return false
	}
	switch e.Status {
	case "RESOURCE_EXHAUSTED":
		return false
	}
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

type Config struct {
	tools.Config
	apiKey     string
	engineID   string
	baseURL    string
	maxResults int
	httpClient *http.Client
}

// GoogleSearch is a tool for performing searches with the Google Custom
// Search JSON API based on the provided queries.
type GoogleSearch struct {
	Config
}

func New(opts ...Option) *GoogleSearch {
	ret := new(GoogleSearch)
	for _, opt := range opts {
		opt(&ret.Config)
	}
	if ret.Title() == "" {
		ret.SetTitle("GoogleSearchTool")
	}
	if ret.baseURL == "" {
		ret.baseURL = DefaultEndpoint
	}
	if ret.maxResults == 0 {
		ret.maxResults = 10
	}
	if ret.httpClient == nil {
		ret.httpClient = http.DefaultClient
	}
	return ret
}

// Run runs the GoogleSearch tool synchronously with the given parameters
func (t *GoogleSearch) Run(ctx context.Context, input *Input) (*Output, error) {
	out := new(Output)
	for _, query := range input.Queries {
		items, err := t.fetchSearchResults(ctx, query)
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, items...)
	}
	return out, nil
}

// fetchSearchResults queries the search API and returns the parsed results
func (t *GoogleSearch) fetchSearchResults(ctx context.Context, query string) ([]SearchResultItem, error) {
	values := url.Values{}
	values.Set("key", t.apiKey)
	values.Set("cx", t.engineID)
	values.Set("q", query)
	values.Set("num", strconv.Itoa(t.maxResults))
	searchURL := fmt.Sprintf("%s?%s", t.baseURL, values.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error querying search engine: %w", err)
	}
	defer httpResp.Body.Close()

	var searchResp searchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&searchResp); err != nil {
		if httpResp.StatusCode != http.StatusOK {
			return nil, &StatusError{Code: httpResp.StatusCode}
		}
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK || searchResp.Error != nil {
		statusErr := &StatusError{Code: httpResp.StatusCode}
		if apiErr := searchResp.Error; apiErr != nil {
			if apiErr.Code != 0 {
				statusErr.Code = apiErr.Code
			}
			statusErr.Status = apiErr.Status
			statusErr.Message = apiErr.Message
			if len(apiErr.Errors) > 0 {
				statusErr.Reason = apiErr.Errors[0].Reason
			}
		}
		return nil, statusErr
	}

	items := make([]SearchResultItem, 0, len(searchResp.Items))
	for _, item := range searchResp.Items {
		if item.Link == "" || item.Title == "" {
			continue
		}
		items = append(items, SearchResultItem{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
			Query:   query,
		})
		if len(items) >= t.maxResults {
			break
		}
	}
	return items, nil
}

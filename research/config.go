package research

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config bounds one research session. The zero value is usable; Normalize
// fills in defaults.
type Config struct {
	// MaxIterations caps plan/retrieve/synthesize loop rounds.
	MaxIterations int `yaml:"max_iterations"`
	// MaxQueriesPerIteration caps the queries planned per round.
	MaxQueriesPerIteration int `yaml:"max_queries_per_iteration"`
	// MaxResultsPerQuery caps hits requested from the search provider.
	MaxResultsPerQuery int `yaml:"max_results_per_query"`
	// SearchConcurrency bounds concurrent provider calls within one round.
	SearchConcurrency int `yaml:"search_concurrency"`
	// FetchConcurrency bounds concurrent page fetches.
	FetchConcurrency int `yaml:"fetch_concurrency"`
	// PerCallTimeout applies to each external call: search, fetch, LLM.
	PerCallTimeout time.Duration `yaml:"per_call_timeout"`
	// MinSearchInterval is the minimum delay between provider calls.
	MinSearchInterval time.Duration `yaml:"min_search_interval"`
	// MaxExtractedChars caps extracted page text to bound prompt size.
	MaxExtractedChars int `yaml:"max_extracted_chars"`
	// MaxPromptTokens budgets evidence text serialized into synthesis prompts.
	MaxPromptTokens int `yaml:"max_prompt_tokens"`
	// RelevanceTopK keeps only the most topic-relevant evidence for
	// synthesis when a relevance filter is configured. 0 disables ranking.
	RelevanceTopK int `yaml:"relevance_top_k"`
	// SearchAPIKey and SearchEngineID are the Google Custom Search
	// credentials. Supplied externally, never persisted with session state.
	SearchAPIKey   string `yaml:"search_api_key"`
	SearchEngineID string `yaml:"search_engine_id"`
	// LLMAPIKey is the language model credential, consumed by the caller
	// when constructing the instructor client.
	LLMAPIKey string `yaml:"llm_api_key"`
	// Model is the language model name used by planner and synthesizer.
	Model string `yaml:"model"`
}

const (
	defaultMaxIterations          = 4
	defaultMaxQueriesPerIteration = 3
	defaultMaxResultsPerQuery     = 10
	defaultSearchConcurrency      = 8
	defaultFetchConcurrency       = 4
	defaultPerCallTimeout         = 30 * time.Second
	defaultMinSearchInterval      = time.Second
	defaultMaxExtractedChars      = 20000
	defaultMaxPromptTokens        = 6000
	// planner output is clamped into this range
	minPlannedQueries = 3
	maxPlannedQueries = 8
	maxRetryAttempts  = 3
)

// rawConfig mirrors Config for YAML decoding, with durations carried in
// time.ParseDuration notation, e.g. "30s" or "1m30s".
type rawConfig struct {
	MaxIterations          int    `yaml:"max_iterations"`
	MaxQueriesPerIteration int    `yaml:"max_queries_per_iteration"`
	MaxResultsPerQuery     int    `yaml:"max_results_per_query"`
	SearchConcurrency      int    `yaml:"search_concurrency"`
	FetchConcurrency       int    `yaml:"fetch_concurrency"`
	PerCallTimeout         string `yaml:"per_call_timeout"`
	MinSearchInterval      string `yaml:"min_search_interval"`
	MaxExtractedChars      int    `yaml:"max_extracted_chars"`
	MaxPromptTokens        int    `yaml:"max_prompt_tokens"`
	RelevanceTopK          int    `yaml:"relevance_top_k"`
	SearchAPIKey           string `yaml:"search_api_key"`
	SearchEngineID         string `yaml:"search_engine_id"`
	LLMAPIKey              string `yaml:"llm_api_key"`
	Model                  string `yaml:"model"`
}

// UnmarshalYAML decodes the YAML representation, parsing durations with
// time.ParseDuration.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.MaxIterations = raw.MaxIterations
	c.MaxQueriesPerIteration = raw.MaxQueriesPerIteration
	c.MaxResultsPerQuery = raw.MaxResultsPerQuery
	c.SearchConcurrency = raw.SearchConcurrency
	c.FetchConcurrency = raw.FetchConcurrency
	c.MaxExtractedChars = raw.MaxExtractedChars
	c.MaxPromptTokens = raw.MaxPromptTokens
	c.RelevanceTopK = raw.RelevanceTopK
	c.SearchAPIKey = raw.SearchAPIKey
	c.SearchEngineID = raw.SearchEngineID
	c.LLMAPIKey = raw.LLMAPIKey
	c.Model = raw.Model
	if raw.PerCallTimeout != "" {
		d, err := time.ParseDuration(raw.PerCallTimeout)
		if err != nil {
			return fmt.Errorf("per_call_timeout: %w", err)
		}
		c.PerCallTimeout = d
	}
	if raw.MinSearchInterval != "" {
		d, err := time.ParseDuration(raw.MinSearchInterval)
		if err != nil {
			return fmt.Errorf("min_search_interval: %w", err)
		}
		c.MinSearchInterval = d
	}
	return nil
}

// Normalize fills zero fields with defaults and clamps bounds.
func (c *Config) Normalize() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = defaultMaxIterations
	}
	if c.MaxQueriesPerIteration <= 0 {
		c.MaxQueriesPerIteration = defaultMaxQueriesPerIteration
	}
	if c.MaxQueriesPerIteration > maxPlannedQueries {
		c.MaxQueriesPerIteration = maxPlannedQueries
	}
	if c.MaxResultsPerQuery <= 0 {
		c.MaxResultsPerQuery = defaultMaxResultsPerQuery
	}
	if c.SearchConcurrency <= 0 || c.SearchConcurrency > defaultSearchConcurrency {
		c.SearchConcurrency = defaultSearchConcurrency
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = defaultFetchConcurrency
	}
	if c.PerCallTimeout <= 0 {
		c.PerCallTimeout = defaultPerCallTimeout
	}
	if c.MinSearchInterval <= 0 {
		c.MinSearchInterval = defaultMinSearchInterval
	}
	if c.MaxExtractedChars <= 0 {
		c.MaxExtractedChars = defaultMaxExtractedChars
	}
	if c.MaxPromptTokens <= 0 {
		c.MaxPromptTokens = defaultMaxPromptTokens
	}
}

// LoadConfig reads a YAML config file and normalizes it.
func LoadConfig(path string) (*Config, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := new(Config)
	if err := yaml.Unmarshal(bs, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

package googlesearch

import "net/http"

type Option func(*Config)

// WithAPIKey sets the Google API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.apiKey = key
	}
}

// WithEngineID sets the custom search engine ID (cx).
func WithEngineID(id string) Option {
	return func(c *Config) {
		c.engineID = id
	}
}

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Config) {
		c.baseURL = baseURL
	}
}

func WithMaxResults(n int) Option {
	return func(c *Config) {
		c.maxResults = n
	}
}

func WithHttpClient(clt *http.Client) Option {
	return func(c *Config) {
		c.httpClient = clt
	}
}

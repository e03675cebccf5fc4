package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/riskradar/riskradar/pkg/errkind"
)

// SearchBasicClient runs quick web searches. Non-critical source: failures
// degrade report quality but never fail the workflow.
type SearchBasicClient struct {
	deps Deps
}

// NewSearchBasicClient builds the basic search client.
func NewSearchBasicClient(deps Deps) *SearchBasicClient {
	return &SearchBasicClient{deps: deps}
}

func (c *SearchBasicClient) Name() string { return SourceSearchBasic }

func (c *SearchBasicClient) Configured() bool {
	return c.deps.Providers.SearchBaseURL != ""
}

// Search runs one query and concatenates the top results.
func (c *SearchBasicClient) Search(ctx context.Context, query string) (*SearchResult, error) {
	if !c.Configured() {
		return nil, errkind.New(errkind.ProviderError, "search provider is not configured")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errkind.New(errkind.InvalidInput, "search query is empty")
	}

	profile := c.deps.Services.Profile(SourceSearchBasic)
	return cachedCall(ctx, c.deps.Store, SourceSearchBasic, query, profile.CacheTTL,
		func(ctx context.Context) (*SearchResult, error) {
			return c.fetch(ctx, query, profile.Timeout)
		})
}

func (c *SearchBasicClient) fetch(ctx context.Context, query string, timeout time.Duration) (*SearchResult, error) {
	body, err := json.Marshal(map[string]any{
		"query":       query,
		"max_results": 5,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.deps.HTTP.Do(ctx, httpcoreRequest(
		http.MethodPost,
		c.deps.Providers.SearchBaseURL+"/search",
		c.deps.Providers.SearchAPIKey,
		body,
		timeout,
	))
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Results []struct {
			Content string `json:"content"`
			URL     string `json:"url"`
		} `json:"results"`
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, errkind.Wrap(errkind.ProviderError, err, "search returned malformed JSON")
	}

	result := &SearchResult{Query: query, Content: decoded.Answer}
	var parts []string
	if decoded.Answer != "" {
		parts = append(parts, decoded.Answer)
	}
	for _, r := range decoded.Results {
		if r.Content != "" {
			parts = append(parts, r.Content)
		}
		if r.URL != "" {
			result.Citations = append(result.Citations, r.URL)
		}
	}
	result.Content = strings.Join(parts, "\n")
	return result, nil
}

// Healthcheck runs a trivial query.
func (c *SearchBasicClient) Healthcheck(ctx context.Context, timeout time.Duration) error {
	if !c.Configured() {
		return errkind.New(errkind.ProviderError, "search provider is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.fetch(ctx, "ping", timeout)
	return err
}

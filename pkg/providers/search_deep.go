package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/riskradar/riskradar/pkg/errkind"
)

// SearchDeepClient runs research-grade searches through a chat-completions
// style endpoint. Slowest provider in the set; non-critical.
type SearchDeepClient struct {
	deps Deps
}

// NewSearchDeepClient builds the deep search client.
func NewSearchDeepClient(deps Deps) *SearchDeepClient {
	return &SearchDeepClient{deps: deps}
}

func (c *SearchDeepClient) Name() string { return SourceSearchDeep }

func (c *SearchDeepClient) Configured() bool {
	return c.deps.Providers.SearchBaseURL != "" && c.deps.Providers.DeepSearchModel != ""
}

// Search runs one research query.
func (c *SearchDeepClient) Search(ctx context.Context, query string) (*SearchResult, error) {
	if !c.Configured() {
		return nil, errkind.New(errkind.ProviderError, "deep search provider is not configured")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errkind.New(errkind.InvalidInput, "search query is empty")
	}

	profile := c.deps.Services.Profile(SourceSearchDeep)
	return cachedCall(ctx, c.deps.Store, SourceSearchDeep, query, profile.CacheTTL,
		func(ctx context.Context) (*SearchResult, error) {
			return c.fetch(ctx, query, profile.Timeout)
		})
}

func (c *SearchDeepClient) fetch(ctx context.Context, query string, timeout time.Duration) (*SearchResult, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.deps.Providers.DeepSearchModel,
		"messages": []map[string]string{
			{"role": "user", "content": query},
		},
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.deps.HTTP.Do(ctx, httpcoreRequest(
		http.MethodPost,
		c.deps.Providers.SearchBaseURL+"/chat/completions",
		c.deps.Providers.SearchAPIKey,
		body,
		timeout,
	))
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Citations []string `json:"citations"`
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, errkind.Wrap(errkind.ProviderError, err, "deep search returned malformed JSON")
	}
	if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == "" {
		return nil, errkind.New(errkind.ProviderError, "deep search returned empty content")
	}

	return &SearchResult{
		Query:     query,
		Content:   decoded.Choices[0].Message.Content,
		Citations: decoded.Citations,
	}, nil
}

// Healthcheck runs a trivial query.
func (c *SearchDeepClient) Healthcheck(ctx context.Context, timeout time.Duration) error {
	if !c.Configured() {
		return errkind.New(errkind.ProviderError, "deep search provider is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.fetch(ctx, "ping", timeout)
	return err
}

package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/httpcore"
	"github.com/riskradar/riskradar/pkg/inn"
)

// CourtClient fetches arbitration cases by INN. The upstream paginates by
// cursor; the full case list is drained through the HTTP core's pagination
// driver.
type CourtClient struct {
	deps Deps
}

// NewCourtClient builds the court client.
func NewCourtClient(deps Deps) *CourtClient {
	return &CourtClient{deps: deps}
}

func (c *CourtClient) Name() string { return SourceCourt }

func (c *CourtClient) Configured() bool {
	return c.deps.Providers.CourtBaseURL != ""
}

// Cases fetches all arbitration cases for a validated INN.
func (c *CourtClient) Cases(ctx context.Context, companyINN string) (*CourtData, error) {
	if !c.Configured() {
		return nil, errkind.New(errkind.ProviderError, "court provider is not configured")
	}
	if err := inn.Validate(companyINN); err != nil {
		return nil, errkind.Wrap(errkind.InvalidInput, err, "court lookup requires a valid INN")
	}

	profile := c.deps.Services.Profile(SourceCourt)
	return cachedCall(ctx, c.deps.Store, SourceCourt, companyINN, profile.CacheTTL,
		func(ctx context.Context) (*CourtData, error) {
			return c.fetchAll(ctx, companyINN, profile.Timeout)
		})
}

func (c *CourtClient) fetchAll(ctx context.Context, companyINN string, timeout time.Duration) (*CourtData, error) {
	items, err := httpcore.FetchAllPages(ctx, func(ctx context.Context, cursor string) (httpcore.Page, error) {
		params := url.Values{"inn": {companyINN}}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		resp, err := c.deps.HTTP.Do(ctx, httpcoreRequest(
			http.MethodGet,
			withQuery(c.deps.Providers.CourtBaseURL+"/api/v1/cases", params),
			c.deps.Providers.CourtAPIKey,
			nil,
			timeout,
		))
		if err != nil {
			return httpcore.Page{}, err
		}

		var decoded struct {
			Cases      []CourtCase `json:"cases"`
			NextCursor string      `json:"next_cursor"`
		}
		if err := json.Unmarshal(resp.Body, &decoded); err != nil {
			return httpcore.Page{}, errkind.Wrap(errkind.ProviderError, err, "court returned malformed JSON")
		}
		page := httpcore.Page{NextCursor: decoded.NextCursor}
		for _, cs := range decoded.Cases {
			page.Items = append(page.Items, cs)
		}
		return page, nil
	})

	data := &CourtData{INN: companyINN, Cases: make([]CourtCase, 0, len(items))}
	for _, item := range items {
		if cs, ok := item.(CourtCase); ok {
			data.Cases = append(data.Cases, cs)
		}
	}
	if err != nil {
		// Cycle or page-cap truncation still yields the partial case list.
		if errkind.KindOf(err) == errkind.ProviderError && len(data.Cases) > 0 {
			data.Truncated = true
			return data, nil
		}
		return nil, err
	}
	return data, nil
}

// Healthcheck requests the first page for a well-known INN.
func (c *CourtClient) Healthcheck(ctx context.Context, timeout time.Duration) error {
	if !c.Configured() {
		return errkind.New(errkind.ProviderError, "court provider is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	params := url.Values{"inn": {"7707083893"}, "limit": {"1"}}
	_, err := c.deps.HTTP.Do(ctx, httpcoreRequest(
		http.MethodGet,
		withQuery(c.deps.Providers.CourtBaseURL+"/api/v1/cases", params),
		c.deps.Providers.CourtAPIKey,
		nil,
		timeout,
	))
	return err
}

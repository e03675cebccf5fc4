package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/inn"
)

// AnalyticsClient fetches financial indicators by INN. Critical source
// alongside the registry.
type AnalyticsClient struct {
	deps Deps
}

// NewAnalyticsClient builds the analytics client.
func NewAnalyticsClient(deps Deps) *AnalyticsClient {
	return &AnalyticsClient{deps: deps}
}

func (c *AnalyticsClient) Name() string { return SourceAnalytics }

func (c *AnalyticsClient) Configured() bool {
	return c.deps.Providers.AnalyticsBaseURL != ""
}

// Indicators fetches the financial profile for a validated INN.
func (c *AnalyticsClient) Indicators(ctx context.Context, companyINN string) (*AnalyticsData, error) {
	if !c.Configured() {
		return nil, errkind.New(errkind.ProviderError, "analytics provider is not configured")
	}
	if err := inn.Validate(companyINN); err != nil {
		return nil, errkind.Wrap(errkind.InvalidInput, err, "analytics lookup requires a valid INN")
	}

	profile := c.deps.Services.Profile(SourceAnalytics)
	return cachedCall(ctx, c.deps.Store, SourceAnalytics, companyINN, profile.CacheTTL,
		func(ctx context.Context) (*AnalyticsData, error) {
			return c.fetch(ctx, companyINN, profile.Timeout)
		})
}

func (c *AnalyticsClient) fetch(ctx context.Context, companyINN string, timeout time.Duration) (*AnalyticsData, error) {
	resp, err := c.deps.HTTP.Do(ctx, httpcoreRequest(
		http.MethodGet,
		c.deps.Providers.AnalyticsBaseURL+"/api/companies/"+companyINN+"/financials",
		c.deps.Providers.AnalyticsAPIKey,
		nil,
		timeout,
	))
	if err != nil {
		return nil, err
	}

	var data AnalyticsData
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, errkind.Wrap(errkind.ProviderError, err, "analytics returned malformed JSON")
	}
	data.INN = companyINN
	return &data, nil
}

// Healthcheck probes the analytics backend with a well-known INN.
func (c *AnalyticsClient) Healthcheck(ctx context.Context, timeout time.Duration) error {
	if !c.Configured() {
		return errkind.New(errkind.ProviderError, "analytics provider is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.fetch(ctx, "7707083893", timeout)
	return err
}

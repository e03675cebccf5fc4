package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/httpcore"
	"github.com/riskradar/riskradar/pkg/inn"
)

// RegistryClient looks companies up in the state registry by INN. Critical
// source: the workflow cannot proceed if both this and analytics fail.
type RegistryClient struct {
	deps Deps
}

// NewRegistryClient builds the registry client.
func NewRegistryClient(deps Deps) *RegistryClient {
	return &RegistryClient{deps: deps}
}

func (c *RegistryClient) Name() string { return SourceRegistry }

func (c *RegistryClient) Configured() bool {
	return c.deps.Providers.RegistryBaseURL != ""
}

// Lookup fetches company facts for a validated INN.
func (c *RegistryClient) Lookup(ctx context.Context, companyINN string) (*RegistryCompany, error) {
	if !c.Configured() {
		return nil, errkind.New(errkind.ProviderError, "registry provider is not configured")
	}
	if err := inn.Validate(companyINN); err != nil {
		return nil, errkind.Wrap(errkind.InvalidInput, err, "registry lookup requires a valid INN")
	}

	profile := c.deps.Services.Profile(SourceRegistry)
	return cachedCall(ctx, c.deps.Store, SourceRegistry, companyINN, profile.CacheTTL,
		func(ctx context.Context) (*RegistryCompany, error) {
			return c.fetch(ctx, companyINN, profile.Timeout)
		})
}

func (c *RegistryClient) fetch(ctx context.Context, companyINN string, timeout time.Duration) (*RegistryCompany, error) {
	body, err := json.Marshal(map[string]string{"query": companyINN})
	if err != nil {
		return nil, err
	}
	resp, err := c.deps.HTTP.Do(ctx, httpcoreRequest(
		http.MethodPost,
		c.deps.Providers.RegistryBaseURL+"/suggestions/api/4_1/rs/findById/party",
		c.deps.Providers.RegistryAPIKey,
		body,
		timeout,
	))
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Suggestions []struct {
			Value string `json:"value"`
			Data  struct {
				INN  string `json:"inn"`
				OGRN string `json:"ogrn"`
				KPP  string `json:"kpp"`
				State struct {
					Status string `json:"status"`
				} `json:"state"`
				Address struct {
					Value string `json:"value"`
				} `json:"address"`
				OKVED      string `json:"okved"`
				Management struct {
					Name string `json:"name"`
				} `json:"management"`
			} `json:"data"`
		} `json:"suggestions"`
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, errkind.Wrap(errkind.ProviderError, err, "registry returned malformed JSON")
	}
	if len(decoded.Suggestions) == 0 {
		return nil, errkind.New(errkind.ProviderError, "registry has no company with INN %s", companyINN)
	}

	s := decoded.Suggestions[0]
	return &RegistryCompany{
		Name:      s.Value,
		INN:       s.Data.INN,
		OGRN:      s.Data.OGRN,
		KPP:       s.Data.KPP,
		Status:    s.Data.State.Status,
		Address:   s.Data.Address.Value,
		OKVED:     s.Data.OKVED,
		Manager:   s.Data.Management.Name,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Healthcheck probes the registry with a well-known INN.
func (c *RegistryClient) Healthcheck(ctx context.Context, timeout time.Duration) error {
	if !c.Configured() {
		return errkind.New(errkind.ProviderError, "registry provider is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.fetch(ctx, "7707083893", timeout)
	return err
}

// httpcoreRequest assembles the shared request shape: JSON body plus bearer
// auth when the provider has a key.
func httpcoreRequest(method, rawURL, apiKey string, body []byte, timeout time.Duration) httpcore.Request {
	headers := map[string]string{"Content-Type": "application/json"}
	if apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}
	return httpcore.Request{Method: method, URL: rawURL, Headers: headers, Body: body, Timeout: timeout}
}

// withQuery appends URL query parameters.
func withQuery(base string, params url.Values) string {
	if len(params) == 0 {
		return base
	}
	return fmt.Sprintf("%s?%s", base, params.Encode())
}

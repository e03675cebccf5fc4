package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskradar/riskradar/pkg/config"
	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/httpcore"
	"github.com/riskradar/riskradar/pkg/storage"
)

func testDeps(t *testing.T, baseURL string) Deps {
	t.Helper()
	providers := &config.ProvidersConfig{
		RegistryBaseURL:  baseURL,
		CourtBaseURL:     baseURL,
		AnalyticsBaseURL: baseURL,
		SearchBaseURL:    baseURL,
		DeepSearchModel:  "sonar-deep-research",
	}
	return Deps{
		HTTP:      httpcore.NewClient(httpcore.NewMetrics(prometheus.NewRegistry()), httpcore.WithRetryWait(time.Millisecond)),
		Store:     storage.New(context.Background(), storage.Options{}),
		Services:  config.DefaultServicesConfig(),
		Providers: providers,
	}
}

func TestRegistryLookupAndCaching(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/suggestions/api/4_1/rs/findById/party", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"suggestions": []map[string]any{{
				"value": "ПАО СБЕРБАНК",
				"data": map[string]any{
					"inn":   "7707083893",
					"ogrn":  "1027700132195",
					"state": map[string]any{"status": "ACTIVE"},
				},
			}},
		})
	}))
	defer srv.Close()

	client := NewRegistryClient(testDeps(t, srv.URL))
	ctx := context.Background()

	company, err := client.Lookup(ctx, "7707083893")
	require.NoError(t, err)
	assert.Equal(t, "ПАО СБЕРБАНК", company.Name)
	assert.Equal(t, "ACTIVE", company.Status)

	// Second call is served from cache.
	_, err = client.Lookup(ctx, "7707083893")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistryRejectsInvalidINN(t *testing.T) {
	client := NewRegistryClient(testDeps(t, "http://registry.invalid"))
	_, err := client.Lookup(context.Background(), "7736050004")
	require.Error(t, err)
	assert.Equal(t, errkind.InvalidInput, errkind.KindOf(err))
}

func TestCourtCasesPaginated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			json.NewEncoder(w).Encode(map[string]any{
				"cases": []map[string]any{
					{"number": "А40-1", "role": "defendant", "category": "Взыскание"},
					{"number": "А40-2", "role": "plaintiff"},
				},
				"next_cursor": "p2",
			})
		case "p2":
			json.NewEncoder(w).Encode(map[string]any{
				"cases":       []map[string]any{{"number": "А40-3", "role": "defendant"}},
				"next_cursor": "",
			})
		}
	}))
	defer srv.Close()

	client := NewCourtClient(testDeps(t, srv.URL))
	data, err := client.Cases(context.Background(), "7707083893")
	require.NoError(t, err)
	require.Len(t, data.Cases, 3)
	assert.Equal(t, "А40-1", data.Cases[0].Number)
	assert.False(t, data.Truncated)
}

func TestAnalyticsIndicators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/companies/7707083893/financials", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"liquidity_ratio": 1.4,
			"debt_ratio":      0.3,
			"credit_rating":   "AA",
		})
	}))
	defer srv.Close()

	client := NewAnalyticsClient(testDeps(t, srv.URL))
	data, err := client.Indicators(context.Background(), "7707083893")
	require.NoError(t, err)
	require.NotNil(t, data.LiquidityRatio)
	assert.InDelta(t, 1.4, *data.LiquidityRatio, 0.001)
	assert.Equal(t, "AA", data.CreditRating)
}

func TestSearchBasicAggregatesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"answer": "Компания работает с 2001 года.",
			"results": []map[string]any{
				{"content": "Стабильный рост выручки.", "url": "https://example.com/a"},
				{"content": "", "url": "https://example.com/b"},
			},
		})
	}))
	defer srv.Close()

	client := NewSearchBasicClient(testDeps(t, srv.URL))
	result, err := client.Search(context.Background(), "ООО Ромашка отзывы")
	require.NoError(t, err)
	assert.Contains(t, result.Content, "работает с 2001")
	assert.Contains(t, result.Content, "Стабильный рост")
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, result.Citations)
}

func TestSearchDeepEmptyContentIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client := NewSearchDeepClient(testDeps(t, srv.URL))
	_, err := client.Search(context.Background(), "ООО Ромашка санкции")
	require.Error(t, err)
	assert.Equal(t, errkind.ProviderError, errkind.KindOf(err))
}

func TestCacheKeyCanonicalizesArgs(t *testing.T) {
	assert.Equal(t, cacheKey("search_basic", "ООО  Ромашка   Отзывы"), cacheKey("search_basic", "ооо ромашка отзывы"))
	assert.NotEqual(t, cacheKey("search_basic", "a"), cacheKey("search_deep", "a"))
}

func TestUnconfiguredProviderFailsFast(t *testing.T) {
	deps := testDeps(t, "")
	client := NewRegistryClient(deps)
	assert.False(t, client.Configured())
	_, err := client.Lookup(context.Background(), "7707083893")
	assert.Equal(t, errkind.ProviderError, errkind.KindOf(err))
}

func TestSetHealthcheckReportsAllProviders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Minimal valid payloads per endpoint.
		switch r.URL.Path {
		case "/suggestions/api/4_1/rs/findById/party":
			json.NewEncoder(w).Encode(map[string]any{"suggestions": []map[string]any{{"value": "X", "data": map[string]any{"inn": "7707083893"}}}})
		case "/chat/completions":
			json.NewEncoder(w).Encode(map[string]any{"choices": []map[string]any{{"message": map[string]any{"content": "pong"}}}})
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	set := NewSet(testDeps(t, srv.URL))
	reports := set.Healthcheck(context.Background(), time.Second)
	require.Len(t, reports, 5)
	for _, r := range reports {
		assert.True(t, r.Configured, r.Source)
		assert.True(t, r.Healthy, "%s: %s", r.Source, r.Error)
	}
}

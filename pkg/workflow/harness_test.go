package workflow

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/riskradar/riskradar/pkg/config"
	"github.com/riskradar/riskradar/pkg/httpcore"
	"github.com/riskradar/riskradar/pkg/llm"
	"github.com/riskradar/riskradar/pkg/providers"
	"github.com/riskradar/riskradar/pkg/storage"
)

const testINN = "7707083893"

// providerServer fakes all four upstream providers behind one httptest
// server; path routing keeps them apart.
type providerServer struct {
	*httptest.Server

	mu              sync.Mutex
	registryStatus  string
	courtRoles      []string
	failRegistry    bool
	failAnalytics   bool
	failCourt       bool
	failSearch      bool
	failSearchQuery string        // fail /search only for bodies containing this
	delay           time.Duration // applied to every request
}

func newProviderServer(t *testing.T) *providerServer {
	t.Helper()
	ps := &providerServer{registryStatus: "ACTIVE"}
	ps.Server = httptest.NewServer(http.HandlerFunc(ps.handle))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *providerServer) set(mutate func(*providerServer)) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	mutate(ps)
}

func (ps *providerServer) handle(w http.ResponseWriter, r *http.Request) {
	ps.mu.Lock()
	status := ps.registryStatus
	roles := ps.courtRoles
	failRegistry, failAnalytics, failCourt, failSearch := ps.failRegistry, ps.failAnalytics, ps.failCourt, ps.failSearch
	failSearchQuery := ps.failSearchQuery
	delay := ps.delay
	ps.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/suggestions/"):
		if failRegistry {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{
			"suggestions": []map[string]any{{
				"value": "ООО Ромашка",
				"data": map[string]any{
					"inn":        testINN,
					"ogrn":       "1027700132195",
					"state":      map[string]any{"status": status},
					"address":    map[string]any{"value": "Москва, ул. Ленина, 1"},
					"management": map[string]any{"name": "Иванов И.И."},
				},
			}},
		})

	case r.URL.Path == "/api/v1/cases":
		if failCourt {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		cases := make([]map[string]any, 0, len(roles))
		for i, role := range roles {
			cases = append(cases, map[string]any{
				"number": "А40-" + string(rune('1'+i)),
				"role":   role,
			})
		}
		writeJSON(w, map[string]any{"cases": cases, "next_cursor": ""})

	case strings.HasPrefix(r.URL.Path, "/api/companies/"):
		if failAnalytics {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{
			"liquidity_ratio": 2.0,
			"debt_ratio":      0.3,
			"credit_rating":   "AAA",
		})

	case r.URL.Path == "/search":
		if failSearch {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if failSearchQuery != "" {
			body, _ := io.ReadAll(r.Body)
			if strings.Contains(string(body), failSearchQuery) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
		}
		writeJSON(w, map[string]any{
			"answer": "Компания работает стабильно, надежный партнер",
			"results": []map[string]any{
				{"content": "хорошие отзывы клиентов", "url": "https://example.ru/reviews"},
			},
		})

	case r.URL.Path == "/chat/completions":
		if failSearch {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{"content": "Глубокое исследование: существенных проблем не выявлено"},
			}},
		})

	default:
		http.Error(w, "unknown path "+r.URL.Path, http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestConfig(baseURL string) *config.Config {
	return &config.Config{
		Services: config.DefaultServicesConfig(),
		Providers: &config.ProvidersConfig{
			RegistryBaseURL:  baseURL,
			CourtBaseURL:     baseURL,
			AnalyticsBaseURL: baseURL,
			SearchBaseURL:    baseURL,
		},
		LLM:                &config.LLMConfig{RequestTimeout: 5 * time.Second, MaxTokens: 2000},
		Risk:               config.DefaultRiskConfig(),
		Queue:              config.DefaultQueueConfig(),
		RateLimit:          config.DefaultRateLimitConfig(),
		WorkflowTimeout:    10 * time.Second,
		MaxFeedbackRetries: 3,
	}
}

func newTestSet(t *testing.T, cfg *config.Config) (*providers.Set, *storage.Store) {
	t.Helper()
	store := storage.New(context.Background(), storage.Options{})
	client := httpcore.NewClient(
		httpcore.NewMetrics(prometheus.NewRegistry()),
		httpcore.WithRetryWait(time.Millisecond),
	)
	set := providers.NewSet(providers.Deps{
		HTTP:      client,
		Store:     store,
		Services:  cfg.Services,
		Providers: cfg.Providers,
	})
	return set, store
}

// fakeLLM scripts the cascade for machine tests.
type fakeLLM struct {
	name       string
	configured bool
	responses  []string
	err        error

	mu    sync.Mutex
	calls int
}

func (f *fakeLLM) Name() string     { return f.name }
func (f *fakeLLM) Configured() bool { return f.configured }

func (f *fakeLLM) Generate(_ context.Context, _ string, _ llm.Params) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

// validReportJSON is an LLM answer that passes schema validation. The score
// it claims is deliberately wrong so tests can assert the scorer wins.
const validReportJSON = `{
  "metadata": {"client_name": "ООО Ромашка", "inn": "7707083893"},
  "company_info": {"status": "ACTIVE"},
  "risk_assessment": {"score": 99, "level": "critical", "factors": ["выдумано"]},
  "findings": [
    {"category": "reputation", "source": "search_basic", "sentiment": "positive", "key_points": ["надежный партнер"]}
  ],
  "summary": "Компания выглядит устойчивой.",
  "recommendations": ["Продолжить сотрудничество"]
}`

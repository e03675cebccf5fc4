// Package e2e exercises the assembled service over HTTP: real router, real
// services, real workflow machine and queue, with upstream providers faked
// behind one httptest server and the LLM cascade scripted in-process.
package e2e

import (
	"bytes"
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
	"github.com/stretchr/testify/require"

	"github.com/riskradar/riskradar/pkg/api"
	"github.com/riskradar/riskradar/pkg/config"
	"github.com/riskradar/riskradar/pkg/httpcore"
	"github.com/riskradar/riskradar/pkg/llm"
	"github.com/riskradar/riskradar/pkg/providers"
	"github.com/riskradar/riskradar/pkg/queue"
	"github.com/riskradar/riskradar/pkg/services"
	"github.com/riskradar/riskradar/pkg/storage"
	"github.com/riskradar/riskradar/pkg/workflow"
)

const (
	testINN   = "7736050003"
	testToken = "e2e-admin-token"
)

// upstream fakes all five data providers behind one server.
type upstream struct {
	*httptest.Server

	mu            sync.Mutex
	failRegistry  bool
	failAnalytics bool
	failCourt     bool
	failSearch    bool
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(u.handle))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) set(mutate func(*upstream)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	mutate(u)
}

func (u *upstream) handle(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	failRegistry, failAnalytics, failCourt, failSearch := u.failRegistry, u.failAnalytics, u.failCourt, u.failSearch
	u.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/suggestions/"):
		if failRegistry {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{
			"suggestions": []map[string]any{{
				"value": "Acme LLC",
				"data": map[string]any{
					"inn":        testINN,
					"ogrn":       "1047700000000",
					"state":      map[string]any{"status": "ACTIVE"},
					"address":    map[string]any{"value": "Москва, Тверская, 1"},
					"management": map[string]any{"name": "Петров П.П."},
				},
			}},
		})

	case r.URL.Path == "/api/v1/cases":
		if failCourt {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{"cases": []map[string]any{}, "next_cursor": ""})

	case strings.HasPrefix(r.URL.Path, "/api/companies/"):
		if failAnalytics {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{
			"liquidity_ratio": 1.8,
			"debt_ratio":      0.4,
			"credit_rating":   "AA",
		})

	case r.URL.Path == "/search":
		if failSearch {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{
			"answer": "Надежный контрагент, жалоб не обнаружено",
			"results": []map[string]any{
				{"content": "положительные отзывы", "url": "https://example.ru/acme"},
			},
		})

	case r.URL.Path == "/chat/completions":
		if failSearch {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{"content": "Глубокое исследование: негатива не выявлено"},
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

// scriptedLLM plays canned responses call by call.
type scriptedLLM struct {
	name       string
	configured bool
	responses  []string
	err        error

	mu    sync.Mutex
	calls int
}

func (f *scriptedLLM) Name() string     { return f.name }
func (f *scriptedLLM) Configured() bool { return f.configured }

func (f *scriptedLLM) Generate(_ context.Context, _ string, _ llm.Params) (string, error) {
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

func (f *scriptedLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

const reportJSON = `{
  "metadata": {"client_name": "Acme LLC", "inn": "7736050003"},
  "company_info": {"status": "ACTIVE"},
  "risk_assessment": {"score": 99, "level": "critical", "factors": ["выдумано"]},
  "findings": [
    {"category": "reputation", "source": "search_basic", "sentiment": "positive", "key_points": ["надежный контрагент"]}
  ],
  "summary": "Контрагент выглядит устойчивым.",
  "recommendations": ["Работать по предоплате не требуется"]
}`

func healthyLLM() *scriptedLLM {
	return &scriptedLLM{name: "scripted", configured: true, responses: []string{reportJSON}}
}

// env is one fully assembled service instance.
type env struct {
	ts       *httptest.Server
	store    *storage.Store
	broker   queue.Broker
	upstream *upstream
}

func newEnv(t *testing.T, llmProviders ...llm.Provider) *env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	u := newUpstream(t)
	cfg := &config.Config{
		AuthToken: testToken,
		Services:  config.DefaultServicesConfig(),
		Providers: &config.ProvidersConfig{
			RegistryBaseURL:  u.URL,
			CourtBaseURL:     u.URL,
			AnalyticsBaseURL: u.URL,
			SearchBaseURL:    u.URL,
			DeepSearchModel:  "sonar-deep-research",
		},
		LLM:                &config.LLMConfig{RequestTimeout: 5 * time.Second, MaxTokens: 2000},
		Risk:               config.DefaultRiskConfig(),
		Queue:              config.DefaultQueueConfig(),
		RateLimit:          config.DefaultRateLimitConfig(),
		WorkflowTimeout:    10 * time.Second,
		MaxFeedbackRetries: 3,
	}
	cfg.Queue.PollInterval = 10 * time.Millisecond
	cfg.Queue.PollIntervalJitter = 5 * time.Millisecond
	cfg.Queue.WorkerCount = 2
	cfg.Queue.MaxConcurrentTasks = 2

	store := storage.New(ctx, storage.Options{})
	metrics := httpcore.NewMetrics(prometheus.NewRegistry())
	outbound := httpcore.NewClient(metrics, httpcore.WithRetryWait(time.Millisecond))
	set := providers.NewSet(providers.Deps{
		HTTP:      outbound,
		Store:     store,
		Services:  cfg.Services,
		Providers: cfg.Providers,
	})
	bus := workflow.NewBus()
	machine := workflow.NewMachine(cfg, set, llm.NewCascadeWith(llmProviders...), store, bus)
	broker := queue.NewMemoryBroker(queue.AnalysisQueue, cfg.Queue.MaxDeliveries)

	pool := queue.NewPool("e2e", queue.AnalysisQueue, broker, cfg.Queue,
		queue.NewAnalysisExecutor(machine, store))
	require.NoError(t, pool.Start(ctx))
	t.Cleanup(pool.Stop)

	server := api.NewServer(cfg, api.Deps{
		Store:     store,
		Bus:       bus,
		Analysis:  services.NewAnalysisService(ctx, machine, store, broker),
		Reports:   services.NewReportService(store),
		Threads:   services.NewThreadService(store),
		Tasks:     services.NewTaskService(broker),
		Providers: set,
		Outbound:  outbound,
		Metrics:   metrics,
		Pool:      pool,
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &env{ts: ts, store: store, broker: broker, upstream: u}
}

func (e *env) post(t *testing.T, path string, body any) (*http.Response, []byte) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, data
}

func (e *env) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, data
}

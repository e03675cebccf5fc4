package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskradar/riskradar/pkg/config"
	"github.com/riskradar/riskradar/pkg/errkind"
	"github.com/riskradar/riskradar/pkg/httpcore"
	"github.com/riskradar/riskradar/pkg/llm"
	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/providers"
	"github.com/riskradar/riskradar/pkg/queue"
	"github.com/riskradar/riskradar/pkg/services"
	"github.com/riskradar/riskradar/pkg/storage"
	"github.com/riskradar/riskradar/pkg/workflow"
)

const testToken = "test-admin-token"

type testEnv struct {
	ts     *httptest.Server
	store  *storage.Store
	broker queue.Broker
}

// newTestEnv assembles a full server over in-memory storage and an
// in-memory broker, with no providers configured.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{
		AuthToken:          testToken,
		Services:           config.DefaultServicesConfig(),
		Providers:          &config.ProvidersConfig{},
		LLM:                &config.LLMConfig{RequestTimeout: time.Second, MaxTokens: 2000},
		Risk:               config.DefaultRiskConfig(),
		Queue:              config.DefaultQueueConfig(),
		RateLimit:          config.DefaultRateLimitConfig(),
		WorkflowTimeout:    5 * time.Second,
		MaxFeedbackRetries: 3,
	}
	if mutate != nil {
		mutate(cfg)
	}

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
	machine := workflow.NewMachine(cfg, set, llm.NewCascadeWith(), store, bus)
	broker := queue.NewMemoryBroker(queue.AnalysisQueue, cfg.Queue.MaxDeliveries)

	server := NewServer(cfg, Deps{
		Store:     store,
		Bus:       bus,
		Analysis:  services.NewAnalysisService(ctx, machine, store, broker),
		Reports:   services.NewReportService(store),
		Threads:   services.NewThreadService(store),
		Tasks:     services.NewTaskService(broker),
		Providers: set,
		Outbound:  outbound,
		Metrics:   metrics,
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, store: store, broker: broker}
}

func (env *testEnv) do(t *testing.T, method, path string, body any, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, env.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, data
}

func (env *testEnv) seedReport(t *testing.T, reportID, sessionID, clientName string, level models.RiskLevel, score int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, env.store.SaveReport(context.Background(), &models.StoredReport{
		ReportID:   reportID,
		SessionID:  sessionID,
		INN:        "7707083893",
		ClientName: clientName,
		ReportData: models.ClientAnalysisReport{
			Metadata:       models.ReportMetadata{ClientName: clientName, AnalysisDate: now},
			RiskAssessment: models.RiskAssessment{Score: score, Level: level},
			Summary:        "итог анализа",
		},
		CreatedAt: now,
		ExpiresAt: now.Add(models.ReportTTL),
		RiskLevel: level,
		RiskScore: score,
	}))
}

func (env *testEnv) seedThread(t *testing.T, threadID string, stage models.Stage) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, env.store.SaveThread(context.Background(), &models.ThreadRecord{
		ThreadID:   threadID,
		ClientName: "ООО Ромашка",
		INN:        "7707083893",
		ThreadData: models.WorkflowState{SessionID: threadID, ClientName: "ООО Ромашка", Stage: stage},
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

func decodeError(t *testing.T, data []byte) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}

func TestAnalyzeRejectsMissingClientName(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, data := env.do(t, http.MethodPost, "/api/v1/agent/analyze-client",
		map[string]any{"inn": "7707083893"}, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body AnalyzeResponse
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "failed", body.Status)
	require.NotNil(t, body.Error)
	assert.Equal(t, errkind.InvalidInput, body.Error.Kind)
}

func TestStreamedAnalyzeEmitsEventStream(t *testing.T) {
	env := newTestEnv(t, nil)

	payload, err := json.Marshal(map[string]any{"client_name": "ООО Ромашка"})
	require.NoError(t, err)
	resp, err := http.Post(env.ts.URL+"/api/v1/agent/analyze-client?stream=true",
		"application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// With no providers configured the run fails after planning; the stream
	// still opens, reports progress, and closes with a terminal error event.
	var names []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "event: ") {
			continue
		}
		name := strings.TrimPrefix(line, "event: ")
		names = append(names, name)
		if name == "complete" || name == "error" {
			break
		}
	}
	require.NoError(t, scanner.Err())

	require.NotEmpty(t, names)
	assert.Equal(t, "start", names[0])
	assert.Contains(t, names, "orchestrator")
	assert.Equal(t, "error", names[len(names)-1])
}

func TestAsyncEnqueueAndTaskStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, data := env.do(t, http.MethodPost, "/api/v1/agent/analyze-client/async",
		map[string]any{"client_name": "ООО Ромашка", "inn": "7707083893", "priority": 7}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var enq EnqueueResponse
	require.NoError(t, json.Unmarshal(data, &enq))
	require.NotEmpty(t, enq.TaskID)
	assert.Equal(t, "queued", enq.Status)

	resp, data = env.do(t, http.MethodGet, "/api/v1/agent/task/"+enq.TaskID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view services.TaskView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, models.TaskPending, view.Status)

	resp, data = env.do(t, http.MethodGet, "/api/v1/agent/task/no-such-task", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errkind.NotFound, decodeError(t, data).Kind)
}

func TestCompletedTaskCarriesResult(t *testing.T) {
	env := newTestEnv(t, nil)
	result := &models.TaskResult{
		TaskID: "task-done",
		Status: models.TaskCompleted,
		Report: &models.ClientAnalysisReport{
			Metadata:       models.ReportMetadata{ClientName: "ООО Ромашка"},
			RiskAssessment: models.RiskAssessment{Score: 15, Level: models.RiskLow},
			Summary:        "всё в порядке",
		},
		CompletedAt: time.Now().UTC(),
	}
	require.NoError(t, env.broker.SetResult(context.Background(), result))

	resp, data := env.do(t, http.MethodGet, "/api/v1/agent/task/task-done", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view services.TaskView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, models.TaskCompleted, view.Status)
	require.NotNil(t, view.Report)
	assert.Equal(t, "всё в порядке", view.Report.Summary)
}

func TestReportListingAndFilters(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedReport(t, "rep-low", "sess-a", "ООО Ромашка", models.RiskLow, 10)
	env.seedReport(t, "rep-high", "sess-b", "АО Вектор", models.RiskHigh, 75)

	resp, data := env.do(t, http.MethodGet, "/api/v1/reports", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list services.ReportList
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Equal(t, 2, list.Total)

	resp, data = env.do(t, http.MethodGet, "/api/v1/reports?risk_level=high", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Reports, 1)
	assert.Equal(t, "rep-high", list.Reports[0].ReportID)

	resp, data = env.do(t, http.MethodGet, "/api/v1/reports?risk_level=catastrophic", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errkind.InvalidInput, decodeError(t, data).Kind)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/reports?min_risk_score=200", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = env.do(t, http.MethodGet, "/api/v1/reports/rep-low", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report models.StoredReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "ООО Ромашка", report.ClientName)

	resp, data = env.do(t, http.MethodGet, "/api/v1/reports/rep-missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errkind.NotFound, decodeError(t, data).Kind)
}

func TestDeleteReportRequiresAdminToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedReport(t, "rep-1", "sess-1", "ООО Ромашка", models.RiskLow, 10)

	resp, _ := env.do(t, http.MethodDelete, "/api/v1/reports/rep-1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/reports/rep-1", nil,
		map[string]string{"X-Auth-Token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/reports/rep-1", nil,
		map[string]string{"X-Auth-Token": testToken})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/reports/rep-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestThreadRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedThread(t, "sess-1", models.StageCompleted)
	env.seedThread(t, "sess-2", models.StageFailed)

	resp, data := env.do(t, http.MethodGet, "/api/v1/agent/threads", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list ThreadListResponse
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Len(t, list.Threads, 2)

	resp, data = env.do(t, http.MethodGet, "/api/v1/agent/thread_history/sess-1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var thread models.ThreadRecord
	require.NoError(t, json.Unmarshal(data, &thread))
	assert.Equal(t, models.StageCompleted, thread.ThreadData.Stage)

	resp, data = env.do(t, http.MethodGet, "/api/v1/agent/threads?inn=7707083893", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Len(t, list.Threads, 2)

	resp, data = env.do(t, http.MethodGet, "/api/v1/agent/threads?inn=5009053292", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Empty(t, list.Threads)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/agent/thread_history/sess-missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/agent/threads?limit=-5", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelUnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, data := env.do(t, http.MethodDelete, "/api/v1/agent/analyze/no-such-session", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errkind.NotFound, decodeError(t, data).Kind)
}

func TestFeedbackValidationOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, data := env.do(t, http.MethodPost, "/api/v1/agent/feedback",
		map[string]any{"report_id": "rep-1", "rating": "amazing"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errkind.InvalidInput, decodeError(t, data).Kind)

	resp, data = env.do(t, http.MethodPost, "/api/v1/agent/feedback",
		map[string]any{"report_id": "rep-missing", "rating": "accurate"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errkind.NotFound, decodeError(t, data).Kind)
}

func TestHealthReportsDegradedOnMemoryStorage(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, data := env.do(t, http.MethodGet, "/api/v1/utility/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(data, &health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "degraded", health.Checks["storage"].Status)
}

func TestDeepHealthIncludesProviderProbes(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, data := env.do(t, http.MethodGet, "/api/v1/utility/health?deep=true", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(data, &health))
	check, ok := health.Checks["provider_registry"]
	require.True(t, ok)
	assert.Equal(t, "degraded", check.Status, "unconfigured provider is degraded, not unhealthy")
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, http.MethodGet, "/api/v1/utility/health", nil, nil)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, _ = env.do(t, http.MethodGet, "/api/v1/utility/health", nil,
		map[string]string{"X-Request-ID": "caller-chosen-id"})
	assert.Equal(t, "caller-chosen-id", resp.Header.Get("X-Request-ID"))
}

func TestAnalyzeRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimit.AnalyzePerMinute = 1
	})

	// First request spends the only token; the body is invalid so the
	// handler fails fast without running a workflow.
	resp, _ := env.do(t, http.MethodPost, "/api/v1/agent/analyze-client",
		map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data := env.do(t, http.MethodPost, "/api/v1/agent/analyze-client",
		map[string]any{}, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, errkind.RateLimited, decodeError(t, data).Kind)
}

func TestCircuitBreakerRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, http.MethodGet, "/api/v1/utility/circuit-breakers", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := env.do(t, http.MethodPost, "/api/v1/utility/circuit-breakers/nonexistent/reset",
		nil, map[string]string{"X-Auth-Token": testToken})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errkind.NotFound, decodeError(t, data).Kind)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/utility/circuit-breakers/nonexistent/reset", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStorageStats(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedReport(t, "rep-1", "sess-1", "ООО Ромашка", models.RiskLow, 10)
	env.seedThread(t, "sess-1", models.StageCompleted)

	resp, data := env.do(t, http.MethodGet, "/api/v1/utility/stats/storage", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats StorageStatsResponse
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, "memory", stats.Backend)
	assert.NotZero(t, stats.Sets)
	assert.Equal(t, int64(1), stats.Spaces.Reports)
	assert.Equal(t, int64(1), stats.Spaces.Threads)
	assert.Zero(t, stats.Spaces.Cache)
}

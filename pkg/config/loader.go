package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Initialize resolves the full configuration from the environment and
// validates it. This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Start from built-in defaults for every section
//  2. Overlay environment variables
//  3. Validate the result
//  4. Return Config ready for use
func Initialize(_ context.Context) (*Config, error) {
	cfg := &Config{
		Host:            envStr("RISKRADAR_HOST", "0.0.0.0"),
		Port:            envInt("RISKRADAR_PORT", 8000),
		AuthToken:       os.Getenv("RISKRADAR_AUTH_TOKEN"),
		ShutdownTimeout: envDuration("RISKRADAR_SHUTDOWN_TIMEOUT", 30*time.Second),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		Services:  DefaultServicesConfig(),
		Providers: loadProviders(),
		LLM:       loadLLM(),
		Risk:      DefaultRiskConfig(),
		Queue:     loadQueue(),
		RateLimit: DefaultRateLimitConfig(),

		WorkflowTimeout:    envDuration("WORKFLOW_TIMEOUT", 300*time.Second),
		MaxFeedbackRetries: envInt("MAX_FEEDBACK_RETRIES", 3),

		CompressionThreshold: envInt("STORAGE_COMPRESSION_THRESHOLD", 1024),
		CleanupInterval:      envDuration("CLEANUP_INTERVAL", time.Hour),
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	slog.Info("Configuration initialized",
		"providers", stats.Providers,
		"llm_providers", stats.LLMProviders,
		"workers", stats.Workers,
		"redis_backed", stats.RedisBacked)

	return cfg, nil
}

func loadProviders() *ProvidersConfig {
	return &ProvidersConfig{
		RegistryBaseURL:  os.Getenv("REGISTRY_BASE_URL"),
		RegistryAPIKey:   os.Getenv("REGISTRY_API_KEY"),
		CourtBaseURL:     os.Getenv("COURT_BASE_URL"),
		CourtAPIKey:      os.Getenv("COURT_API_KEY"),
		AnalyticsBaseURL: os.Getenv("ANALYTICS_BASE_URL"),
		AnalyticsAPIKey:  os.Getenv("ANALYTICS_API_KEY"),
		SearchBaseURL:    os.Getenv("SEARCH_BASE_URL"),
		SearchAPIKey:     os.Getenv("SEARCH_API_KEY"),
		DeepSearchModel:  envStr("SEARCH_DEEP_MODEL", "sonar-deep-research"),
	}
}

func loadLLM() *LLMConfig {
	return &LLMConfig{
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:  envStr("OPENROUTER_MODEL", "deepseek/deepseek-chat"),
		HuggingFaceToken: os.Getenv("HUGGINGFACE_API_TOKEN"),
		HuggingFaceModel: envStr("HUGGINGFACE_MODEL", "Qwen/Qwen2.5-72B-Instruct"),
		GigaChatAuthKey:  os.Getenv("GIGACHAT_AUTH_KEY"),
		GigaChatScope:    envStr("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
		YandexAPIKey:     os.Getenv("YANDEX_API_KEY"),
		YandexFolderID:   os.Getenv("YANDEX_FOLDER_ID"),
		RequestTimeout:   envDuration("LLM_REQUEST_TIMEOUT", 60*time.Second),
		MaxTokens:        envInt("LLM_MAX_TOKENS", 4096),
	}
}

func loadQueue() *QueueConfig {
	q := DefaultQueueConfig()
	q.WorkerCount = envInt("QUEUE_WORKER_COUNT", q.WorkerCount)
	q.MaxConcurrentTasks = envInt("QUEUE_MAX_CONCURRENT_TASKS", q.MaxConcurrentTasks)
	q.TaskTimeout = envDuration("QUEUE_TASK_TIMEOUT", q.TaskTimeout)
	q.GracefulShutdownTimeout = envDuration("QUEUE_GRACEFUL_SHUTDOWN_TIMEOUT", q.GracefulShutdownTimeout)
	q.MaxDeliveries = envInt("QUEUE_MAX_DELIVERIES", q.MaxDeliveries)
	return q
}

func validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return NewValidationError("RISKRADAR_PORT", fmt.Errorf("%w: %d", ErrInvalidValue, cfg.Port))
	}
	if cfg.Queue.WorkerCount < 1 {
		return NewValidationError("QUEUE_WORKER_COUNT", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if cfg.Queue.MaxDeliveries < 1 {
		return NewValidationError("QUEUE_MAX_DELIVERIES", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if cfg.MaxFeedbackRetries < 0 {
		return NewValidationError("MAX_FEEDBACK_RETRIES", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	if cfg.WorkflowTimeout <= 0 {
		return NewValidationError("WORKFLOW_TIMEOUT", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	sum := cfg.Risk.LegalWeight + cfg.Risk.FinancialWeight + cfg.Risk.ReputationWeight + cfg.Risk.SanctionsWeight
	if sum < 0.999 || sum > 1.001 {
		return NewValidationError("risk weights", fmt.Errorf("%w: must sum to 1.0, got %v", ErrInvalidValue, sum))
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-integer environment value", "key", key, "value", v)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Accept both Go duration syntax and bare seconds.
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	slog.Warn("Ignoring unparseable duration environment value", "key", key, "value", v)
	return fallback
}

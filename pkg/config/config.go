// Package config loads and validates the service configuration. Everything
// comes from the environment (optionally seeded from a .env file by main);
// each section has built-in defaults so a bare environment still yields a
// runnable configuration with external integrations disabled.
package config

import "time"

// Config is the fully resolved service configuration.
type Config struct {
	// Server settings.
	Host            string
	Port            int
	AuthToken       string // empty disables auth on mutating routes
	ShutdownTimeout time.Duration

	// Redis connection. Empty Addr means in-memory storage only.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Services  *ServicesConfig
	Providers *ProvidersConfig
	LLM       *LLMConfig
	Risk      *RiskConfig
	Queue     *QueueConfig
	RateLimit *RateLimitConfig

	// Workflow settings.
	WorkflowTimeout    time.Duration
	MaxFeedbackRetries int

	// Storage settings.
	CompressionThreshold int // bytes; payloads above this are gzipped
	CleanupInterval      time.Duration
}

// Stats summarizes the resolved configuration for startup logging.
type Stats struct {
	Providers    int
	LLMProviders int
	Workers      int
	RedisBacked  bool
}

// Stats returns counters describing the resolved configuration.
func (c *Config) Stats() Stats {
	return Stats{
		Providers:    c.Providers.enabledCount(),
		LLMProviders: c.LLM.configuredCount(),
		Workers:      c.Queue.WorkerCount,
		RedisBacked:  c.RedisAddr != "",
	}
}

// ProvidersConfig holds the upstream data-source endpoints. An empty base URL
// disables the provider; the collector reports it as failed with a config
// error rather than calling it.
type ProvidersConfig struct {
	RegistryBaseURL  string
	RegistryAPIKey   string
	CourtBaseURL     string
	CourtAPIKey      string
	AnalyticsBaseURL string
	AnalyticsAPIKey  string
	SearchBaseURL    string
	SearchAPIKey     string
	DeepSearchModel  string
}

func (p *ProvidersConfig) enabledCount() int {
	n := 0
	for _, u := range []string{p.RegistryBaseURL, p.CourtBaseURL, p.AnalyticsBaseURL, p.SearchBaseURL} {
		if u != "" {
			n++
		}
	}
	return n
}

// LLMConfig holds credentials for the LLM cascade, in fallback order.
// A provider with an empty key is skipped without counting as a failure.
type LLMConfig struct {
	OpenRouterAPIKey string
	OpenRouterModel  string
	HuggingFaceToken string
	HuggingFaceModel string
	GigaChatAuthKey  string
	GigaChatScope    string
	YandexAPIKey     string
	YandexFolderID   string

	RequestTimeout time.Duration
	MaxTokens      int
}

func (l *LLMConfig) configuredCount() int {
	n := 0
	if l.OpenRouterAPIKey != "" {
		n++
	}
	if l.HuggingFaceToken != "" {
		n++
	}
	if l.GigaChatAuthKey != "" {
		n++
	}
	if l.YandexAPIKey != "" {
		n++
	}
	return n
}

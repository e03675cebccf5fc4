package config

// RateLimitConfig holds per-client-IP token bucket settings for inbound
// routes, in requests per minute, plus a global ceiling shared by all
// clients.
type RateLimitConfig struct {
	AnalyzePerMinute int // analyze + async enqueue
	SearchPerMinute  int // read routes (threads, reports, tasks)
	AdminPerMinute   int // utility/admin routes
	GlobalPerMinute  int
	GlobalPerHour    int
}

// DefaultRateLimitConfig returns the built-in inbound rate limits.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		AnalyzePerMinute: 5,
		SearchPerMinute:  30,
		AdminPerMinute:   60,
		GlobalPerMinute:  100,
		GlobalPerHour:    2000,
	}
}

package api

import (
	"github.com/riskradar/riskradar/pkg/models"
	"github.com/riskradar/riskradar/pkg/storage"
)

// AnalyzeResponse is the synchronous analysis outcome.
type AnalyzeResponse struct {
	Status    string                       `json:"status"` // success | failed
	SessionID string                       `json:"session_id,omitempty"`
	ReportID  string                       `json:"report_id,omitempty"`
	Report    *models.ClientAnalysisReport `json:"report,omitempty"`
	Error     *ErrorBody                   `json:"error,omitempty"`
}

// EnqueueResponse acknowledges an async analysis submission.
type EnqueueResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// FeedbackResponse describes what a feedback submission did.
type FeedbackResponse struct {
	Status   string                       `json:"status"` // accepted | success
	ReportID string                       `json:"report_id,omitempty"`
	Report   *models.ClientAnalysisReport `json:"report,omitempty"`
}

// CancelResponse acknowledges a session cancellation.
type CancelResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// ThreadListResponse is one page of thread summaries.
type ThreadListResponse struct {
	Threads []models.ThreadSummary `json:"threads"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}

// HealthCheck is one component's health entry.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the GET /utility/health body.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// BreakerStatesResponse maps host keys to circuit breaker states.
type BreakerStatesResponse struct {
	Breakers map[string]string `json:"breakers"`
}

// StorageStatsResponse is the GET /utility/stats/storage body.
type StorageStatsResponse struct {
	Backend         string              `json:"backend"`
	CacheHits       int64               `json:"cache_hits"`
	CacheMisses     int64               `json:"cache_misses"`
	HitRate         float64             `json:"hit_rate"`
	Sets            int64               `json:"sets"`
	Deletes         int64               `json:"deletes"`
	Evictions       int64               `json:"evictions"`
	Failovers       int64               `json:"failovers"`
	CompressedSaves int64               `json:"compressed_saves"`
	BytesSaved      int64               `json:"bytes_saved"`
	Spaces          storage.SpaceCounts `json:"spaces"`
	QueueDepth      int                 `json:"queue_depth"`
	DeadLetterDepth int                 `json:"dead_letter_depth"`
}

// Package storage persists the three data spaces — cache, reports, and
// threads — on Redis, with a process-local in-memory fallback when Redis is
// unreachable. Values above a size threshold are gzip-compressed
// transparently.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/riskradar/riskradar/pkg/models"
)

// ErrNotFound is returned when a key does not exist in its space.
var ErrNotFound = errors.New("storage: not found")

// Key layout. Everything lives under a flat namespace; sets and sorted sets
// act as secondary indexes over the report and thread spaces.
const (
	cacheKeyPrefix  = "cache:"
	reportKeyPrefix = "report:"
	threadKeyPrefix = "thread:"

	reportsByCreated = "reports:by_created"
	reportsByExpires = "reports:by_expires"
	reportsByINN     = "reports:inn:"  // + inn -> set of report ids
	reportsByRisk    = "reports:risk:" // + level -> set of report ids

	threadsByUpdated = "threads:by_updated"
	threadsByINN     = "threads:inn:"    // + inn -> set of thread ids
	threadsByClient  = "threads:client:" // + lowercased name -> set of thread ids

	// legacyThreadPrefix is the pre-v2 thread key scheme, migrated on
	// startup. The original unified space used "thread:", which collides
	// with the current value prefix; MigrateLegacyThreads recognizes those
	// rows by their missing index membership instead.
	legacyThreadPrefix = "analysis_thread:"
)

// Repository is the storage contract shared by the Redis and in-memory
// backends.
type Repository interface {
	// Cache space. Entries carry a TTL and expire silently.
	CacheGet(ctx context.Context, key string) ([]byte, bool, error)
	CacheSet(ctx context.Context, key string, value []byte, ttl time.Duration, source string) error
	CacheDelete(ctx context.Context, key string) error

	// Report space. Reports expire after their retention window but are
	// indexed for filtered listing until then.
	SaveReport(ctx context.Context, report *models.StoredReport) error
	GetReport(ctx context.Context, reportID string) (*models.StoredReport, error)
	ListReports(ctx context.Context, filters models.ReportFilters) ([]models.StoredReport, int, error)
	DeleteReport(ctx context.Context, reportID string) error

	// Thread space. Threads have no TTL and are indexed by INN and client
	// name in addition to recency.
	SaveThread(ctx context.Context, thread *models.ThreadRecord) error
	GetThread(ctx context.Context, threadID string) (*models.ThreadRecord, error)
	ListThreads(ctx context.Context, limit, offset int) ([]models.ThreadSummary, error)
	ListThreadsByINN(ctx context.Context, inn string, limit, offset int) ([]models.ThreadSummary, error)
	DeleteThread(ctx context.Context, threadID string) error

	// EvictExpired removes report entries (and their index members) whose
	// retention has lapsed. Cache entries expire natively.
	EvictExpired(ctx context.Context, now time.Time) (int, error)

	// SpaceCounts reports live entries per space.
	SpaceCounts(ctx context.Context) (SpaceCounts, error)

	Ping(ctx context.Context) error
	Close() error
}

// SpaceCounts is the per-space entry tally surfaced by the storage stats
// endpoint.
type SpaceCounts struct {
	Cache   int64 `json:"cache"`
	Reports int64 `json:"reports"`
	Threads int64 `json:"threads"`
}

// matchesFilters applies the in-process portion of report filtering, shared
// by both backends.
func matchesFilters(r *models.StoredReport, f models.ReportFilters) bool {
	if f.INN != "" && r.INN != f.INN {
		return false
	}
	if f.RiskLevel != "" && r.RiskLevel != f.RiskLevel {
		return false
	}
	if f.ClientName != "" && !containsFold(r.ClientName, f.ClientName) {
		return false
	}
	if f.DateFrom != nil && r.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && r.CreatedAt.After(*f.DateTo) {
		return false
	}
	if f.MinRiskScore != nil && r.RiskScore < *f.MinRiskScore {
		return false
	}
	if f.MaxRiskScore != nil && r.RiskScore > *f.MaxRiskScore {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// paginate applies offset/limit to an already-filtered slice.
func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

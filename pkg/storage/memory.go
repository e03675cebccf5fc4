package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riskradar/riskradar/pkg/models"
)

// MemoryRepository is the process-local fallback backend. Data does not
// survive a restart; the service keeps working when Redis is down.
type MemoryRepository struct {
	mu      sync.RWMutex
	cache   map[string]memCacheEntry
	reports map[string]models.StoredReport
	threads map[string]models.ThreadRecord
	stats   *Stats
}

type memCacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryRepository returns an empty in-memory backend.
func NewMemoryRepository(stats *Stats) *MemoryRepository {
	return &MemoryRepository{
		cache:   make(map[string]memCacheEntry),
		reports: make(map[string]models.StoredReport),
		threads: make(map[string]models.ThreadRecord),
		stats:   stats,
	}
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }
func (m *MemoryRepository) Close() error               { return nil }

func (m *MemoryRepository) CacheGet(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.cache[key]
	m.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		m.stats.cacheMisses.Add(1)
		return nil, false, nil
	}
	m.stats.cacheHits.Add(1)
	return entry.value, true, nil
}

func (m *MemoryRepository) CacheSet(_ context.Context, key string, value []byte, ttl time.Duration, _ string) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	m.cache[key] = memCacheEntry{value: cp, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	m.stats.sets.Add(1)
	return nil
}

func (m *MemoryRepository) CacheDelete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.cache, key)
	m.mu.Unlock()
	m.stats.deletes.Add(1)
	return nil
}

func (m *MemoryRepository) SaveReport(_ context.Context, report *models.StoredReport) error {
	m.mu.Lock()
	m.reports[report.ReportID] = *report
	m.mu.Unlock()
	m.stats.sets.Add(1)
	return nil
}

func (m *MemoryRepository) GetReport(_ context.Context, reportID string) (*models.StoredReport, error) {
	m.mu.RLock()
	report, ok := m.reports[reportID]
	m.mu.RUnlock()
	if !ok || time.Now().After(report.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &report, nil
}

func (m *MemoryRepository) ListReports(_ context.Context, filters models.ReportFilters) ([]models.StoredReport, int, error) {
	now := time.Now()
	m.mu.RLock()
	var matched []models.StoredReport
	for _, report := range m.reports {
		if now.After(report.ExpiresAt) {
			continue
		}
		r := report
		if matchesFilters(&r, filters) {
			matched = append(matched, r)
		}
	}
	m.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	return paginate(matched, filters.Limit, filters.Offset), total, nil
}

func (m *MemoryRepository) DeleteReport(_ context.Context, reportID string) error {
	m.mu.Lock()
	_, ok := m.reports[reportID]
	delete(m.reports, reportID)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	m.stats.deletes.Add(1)
	return nil
}

func (m *MemoryRepository) SaveThread(_ context.Context, thread *models.ThreadRecord) error {
	m.mu.Lock()
	m.threads[thread.ThreadID] = *thread
	m.mu.Unlock()
	m.stats.sets.Add(1)
	return nil
}

func (m *MemoryRepository) GetThread(_ context.Context, threadID string) (*models.ThreadRecord, error) {
	m.mu.RLock()
	thread, ok := m.threads[threadID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &thread, nil
}

func (m *MemoryRepository) ListThreads(_ context.Context, limit, offset int) ([]models.ThreadSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	all := make([]models.ThreadRecord, 0, len(m.threads))
	for _, t := range m.threads {
		all = append(all, t)
	}
	m.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})
	page := paginate(all, limit, offset)
	summaries := make([]models.ThreadSummary, 0, len(page))
	for i := range page {
		summaries = append(summaries, summarize(&page[i]))
	}
	return summaries, nil
}

func (m *MemoryRepository) ListThreadsByINN(_ context.Context, inn string, limit, offset int) ([]models.ThreadSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	var matched []models.ThreadRecord
	for _, t := range m.threads {
		if t.INN == inn {
			matched = append(matched, t)
		}
	}
	m.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	page := paginate(matched, limit, offset)
	summaries := make([]models.ThreadSummary, 0, len(page))
	for i := range page {
		summaries = append(summaries, summarize(&page[i]))
	}
	return summaries, nil
}

func (m *MemoryRepository) DeleteThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	_, ok := m.threads[threadID]
	delete(m.threads, threadID)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	m.stats.deletes.Add(1)
	return nil
}

func (m *MemoryRepository) SpaceCounts(_ context.Context) (SpaceCounts, error) {
	now := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var counts SpaceCounts
	for _, entry := range m.cache {
		if now.Before(entry.expiresAt) {
			counts.Cache++
		}
	}
	for _, report := range m.reports {
		if now.Before(report.ExpiresAt) {
			counts.Reports++
		}
	}
	counts.Threads = int64(len(m.threads))
	return counts, nil
}

func (m *MemoryRepository) EvictExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for key, entry := range m.cache {
		if now.After(entry.expiresAt) {
			delete(m.cache, key)
			evicted++
		}
	}
	for id, report := range m.reports {
		if now.After(report.ExpiresAt) {
			delete(m.reports, id)
			evicted++
		}
	}
	m.stats.evictions.Add(int64(evicted))
	return evicted, nil
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riskradar/riskradar/pkg/models"
)

// listScanCap bounds how many candidate report ids a filtered listing pulls
// from an index before in-process filtering.
const listScanCap = 1000

// RedisRepository is the primary storage backend.
type RedisRepository struct {
	client    *redis.Client
	stats     *Stats
	threshold int
	log       *slog.Logger
}

// NewRedisRepository wraps an established Redis client.
func NewRedisRepository(client *redis.Client, stats *Stats, compressionThreshold int) *RedisRepository {
	return &RedisRepository{
		client:    client,
		stats:     stats,
		threshold: compressionThreshold,
		log:       slog.With("component", "storage.redis"),
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// --- cache space ---

func (r *RedisRepository) CacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.stats.cacheMisses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	value, err := maybeDecompress(raw)
	if err != nil {
		return nil, false, err
	}
	r.stats.cacheHits.Add(1)
	return value, true, nil
}

func (r *RedisRepository) CacheSet(ctx context.Context, key string, value []byte, ttl time.Duration, source string) error {
	stored, compressed, err := maybeCompress(value, r.threshold)
	if err != nil {
		return err
	}
	if compressed {
		r.stats.noteCompression(len(value), len(stored))
	}
	if err := r.client.Set(ctx, cacheKeyPrefix+key, stored, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	r.stats.sets.Add(1)
	r.log.Debug("Cached payload", "key", key, "source", source, "ttl", ttl, "bytes", len(stored))
	return nil
}

func (r *RedisRepository) CacheDelete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, cacheKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	r.stats.deletes.Add(1)
	return nil
}

// --- report space ---

func (r *RedisRepository) SaveReport(ctx context.Context, report *models.StoredReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report %s: %w", report.ReportID, err)
	}
	stored, compressed, err := maybeCompress(payload, r.threshold)
	if err != nil {
		return err
	}
	if compressed {
		r.stats.noteCompression(len(payload), len(stored))
	}
	ttl := time.Until(report.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("report %s already expired", report.ReportID)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, reportKeyPrefix+report.ReportID, stored, ttl)
	pipe.ZAdd(ctx, reportsByCreated, redis.Z{Score: float64(report.CreatedAt.Unix()), Member: report.ReportID})
	pipe.ZAdd(ctx, reportsByExpires, redis.Z{Score: float64(report.ExpiresAt.Unix()), Member: report.ReportID})
	if report.INN != "" {
		pipe.SAdd(ctx, reportsByINN+report.INN, report.ReportID)
	}
	pipe.SAdd(ctx, reportsByRisk+string(report.RiskLevel), report.ReportID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save report %s: %w", report.ReportID, err)
	}
	r.stats.sets.Add(1)
	return nil
}

func (r *RedisRepository) GetReport(ctx context.Context, reportID string) (*models.StoredReport, error) {
	raw, err := r.client.Get(ctx, reportKeyPrefix+reportID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", reportID, err)
	}
	return decodeReport(raw)
}

func (r *RedisRepository) ListReports(ctx context.Context, filters models.ReportFilters) ([]models.StoredReport, int, error) {
	ids, err := r.candidateReportIDs(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return nil, 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = reportKeyPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}

	var matched []models.StoredReport
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // expired between index read and fetch
		}
		report, err := decodeReport([]byte(s))
		if err != nil {
			r.log.Warn("Skipping undecodable report", "error", err)
			continue
		}
		if matchesFilters(report, filters) {
			matched = append(matched, *report)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	return paginate(matched, filters.Limit, filters.Offset), total, nil
}

// candidateReportIDs picks the narrowest index for the given filters.
func (r *RedisRepository) candidateReportIDs(ctx context.Context, filters models.ReportFilters) ([]string, error) {
	switch {
	case filters.INN != "":
		return r.client.SMembers(ctx, reportsByINN+filters.INN).Result()
	case filters.RiskLevel != "":
		return r.client.SMembers(ctx, reportsByRisk+string(filters.RiskLevel)).Result()
	default:
		return r.client.ZRevRange(ctx, reportsByCreated, 0, listScanCap-1).Result()
	}
}

func (r *RedisRepository) DeleteReport(ctx context.Context, reportID string) error {
	report, err := r.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	if err := r.removeReportKeys(ctx, report); err != nil {
		return err
	}
	r.stats.deletes.Add(1)
	return nil
}

func (r *RedisRepository) removeReportKeys(ctx context.Context, report *models.StoredReport) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, reportKeyPrefix+report.ReportID)
	pipe.ZRem(ctx, reportsByCreated, report.ReportID)
	pipe.ZRem(ctx, reportsByExpires, report.ReportID)
	if report.INN != "" {
		pipe.SRem(ctx, reportsByINN+report.INN, report.ReportID)
	}
	pipe.SRem(ctx, reportsByRisk+string(report.RiskLevel), report.ReportID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete report %s: %w", report.ReportID, err)
	}
	return nil
}

// --- thread space ---

func (r *RedisRepository) SaveThread(ctx context.Context, thread *models.ThreadRecord) error {
	payload, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("marshal thread %s: %w", thread.ThreadID, err)
	}
	stored, compressed, err := maybeCompress(payload, r.threshold)
	if err != nil {
		return err
	}
	if compressed {
		r.stats.noteCompression(len(payload), len(stored))
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, threadKeyPrefix+thread.ThreadID, stored, 0)
	pipe.ZAdd(ctx, threadsByUpdated, redis.Z{Score: float64(thread.UpdatedAt.Unix()), Member: thread.ThreadID})
	if thread.INN != "" {
		pipe.SAdd(ctx, threadsByINN+thread.INN, thread.ThreadID)
	}
	if thread.ClientName != "" {
		pipe.SAdd(ctx, threadsByClient+strings.ToLower(thread.ClientName), thread.ThreadID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save thread %s: %w", thread.ThreadID, err)
	}
	r.stats.sets.Add(1)
	return nil
}

func (r *RedisRepository) GetThread(ctx context.Context, threadID string) (*models.ThreadRecord, error) {
	raw, err := r.client.Get(ctx, threadKeyPrefix+threadID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thread %s: %w", threadID, err)
	}
	return decodeThread(raw)
}

func (r *RedisRepository) ListThreads(ctx context.Context, limit, offset int) ([]models.ThreadSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := r.client.ZRevRange(ctx, threadsByUpdated, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	summaries := make([]models.ThreadSummary, 0, len(ids))
	for _, id := range ids {
		thread, err := r.GetThread(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summarize(thread))
	}
	return summaries, nil
}

// ListThreadsByINN returns summaries of the threads recorded for one INN,
// most recently updated first, via the threads:inn index.
func (r *RedisRepository) ListThreadsByINN(ctx context.Context, inn string, limit, offset int) ([]models.ThreadSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := r.client.SMembers(ctx, threadsByINN+inn).Result()
	if err != nil {
		return nil, fmt.Errorf("list threads by inn %s: %w", inn, err)
	}
	summaries := make([]models.ThreadSummary, 0, len(ids))
	for _, id := range ids {
		thread, err := r.GetThread(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summarize(thread))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return paginate(summaries, limit, offset), nil
}

func (r *RedisRepository) DeleteThread(ctx context.Context, threadID string) error {
	thread, err := r.GetThread(ctx, threadID)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, threadKeyPrefix+threadID)
	pipe.ZRem(ctx, threadsByUpdated, threadID)
	if thread.INN != "" {
		pipe.SRem(ctx, threadsByINN+thread.INN, threadID)
	}
	if thread.ClientName != "" {
		pipe.SRem(ctx, threadsByClient+strings.ToLower(thread.ClientName), threadID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	r.stats.deletes.Add(1)
	return nil
}

// SpaceCounts tallies live entries per space. Report and thread counts come
// from their primary indexes; cache keys carry no index, so they are counted
// with a prefix scan.
func (r *RedisRepository) SpaceCounts(ctx context.Context) (SpaceCounts, error) {
	var counts SpaceCounts
	reports, err := r.client.ZCard(ctx, reportsByCreated).Result()
	if err != nil {
		return counts, fmt.Errorf("count reports: %w", err)
	}
	threads, err := r.client.ZCard(ctx, threadsByUpdated).Result()
	if err != nil {
		return counts, fmt.Errorf("count threads: %w", err)
	}
	counts.Reports = reports
	counts.Threads = threads

	iter := r.client.Scan(ctx, 0, cacheKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		counts.Cache++
	}
	if err := iter.Err(); err != nil {
		return counts, fmt.Errorf("count cache keys: %w", err)
	}
	return counts, nil
}

// --- maintenance ---

// EvictExpired drops report index members whose retention lapsed. The report
// values themselves expire via native TTL; this keeps the indexes honest.
func (r *RedisRepository) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	max := fmt.Sprintf("%d", now.Unix())
	ids, err := r.client.ZRangeByScore(ctx, reportsByExpires, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired reports: %w", err)
	}
	evicted := 0
	for _, id := range ids {
		report, err := r.GetReport(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Value already gone; scrub the indexes directly.
			pipe := r.client.TxPipeline()
			pipe.ZRem(ctx, reportsByCreated, id)
			pipe.ZRem(ctx, reportsByExpires, id)
			if _, err := pipe.Exec(ctx); err != nil {
				return evicted, err
			}
			evicted++
			continue
		}
		if err != nil {
			return evicted, err
		}
		if err := r.removeReportKeys(ctx, report); err != nil {
			return evicted, err
		}
		evicted++
	}
	// Orphaned inn/risk set members are scrubbed lazily on listing.
	r.stats.evictions.Add(int64(evicted))
	return evicted, nil
}

func decodeReport(raw []byte) (*models.StoredReport, error) {
	payload, err := maybeDecompress(raw)
	if err != nil {
		return nil, err
	}
	var report models.StoredReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

func decodeThread(raw []byte) (*models.ThreadRecord, error) {
	payload, err := maybeDecompress(raw)
	if err != nil {
		return nil, err
	}
	var thread models.ThreadRecord
	if err := json.Unmarshal(payload, &thread); err != nil {
		return nil, fmt.Errorf("unmarshal thread: %w", err)
	}
	return &thread, nil
}

func summarize(t *models.ThreadRecord) models.ThreadSummary {
	return models.ThreadSummary{
		ThreadID:   t.ThreadID,
		ClientName: t.ClientName,
		INN:        t.INN,
		Stage:      t.ThreadData.Stage,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

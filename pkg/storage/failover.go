package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riskradar/riskradar/pkg/models"
)

// Store is the storage entry point the rest of the service uses. It fronts
// the Redis backend and fails over to the in-memory backend per operation
// when Redis is unreachable, so an outage degrades durability instead of
// availability.
type Store struct {
	primary  Repository // nil when Redis is not configured
	fallback *MemoryRepository
	stats    *Stats
	log      *slog.Logger
}

// Options configures New.
type Options struct {
	// RedisAddr empty means memory-only operation.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CompressionThreshold int
}

// New connects to Redis when configured and verifies the connection. A
// failed initial ping is not fatal: the store starts in fallback mode and
// retries Redis on subsequent operations.
func New(ctx context.Context, opts Options) *Store {
	stats := &Stats{}
	s := &Store{
		fallback: NewMemoryRepository(stats),
		stats:    stats,
		log:      slog.With("component", "storage"),
	}
	if opts.RedisAddr == "" {
		s.log.Warn("Redis not configured, using in-memory storage only")
		return s
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})
	s.primary = NewRedisRepository(client, stats, opts.CompressionThreshold)
	if err := s.primary.Ping(ctx); err != nil {
		s.log.Warn("Redis unreachable at startup, operations will fail over until it recovers",
			"addr", opts.RedisAddr, "error", err)
	} else {
		s.log.Info("Connected to Redis", "addr", opts.RedisAddr)
	}
	return s
}

// NewWithBackends wires explicit backends, used by tests.
func NewWithBackends(primary Repository, fallback *MemoryRepository, stats *Stats) *Store {
	return &Store{
		primary:  primary,
		fallback: fallback,
		stats:    stats,
		log:      slog.With("component", "storage"),
	}
}

// shouldFailover reports whether an error means the primary backend is
// unavailable (as opposed to a domain outcome like a missing key).
func (s *Store) shouldFailover(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func (s *Store) noteFailover(op string, err error) {
	s.stats.failovers.Add(1)
	s.log.Warn("Storage failover to in-memory backend", "op", op, "error", err)
}

// Backend names the currently preferred backend.
func (s *Store) Backend() string {
	if s.primary == nil {
		return "memory"
	}
	return "redis"
}

// StatsSnapshot returns operation counters plus the active backend name.
func (s *Store) StatsSnapshot() StatsSnapshot {
	snap := s.stats.Snapshot()
	snap.Backend = s.Backend()
	return snap
}

func (s *Store) Ping(ctx context.Context) error {
	if s.primary == nil {
		return nil
	}
	return s.primary.Ping(ctx)
}

func (s *Store) Close() error {
	if s.primary != nil {
		return s.primary.Close()
	}
	return nil
}

// --- delegated operations ---

func (s *Store) CacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	if s.primary != nil {
		value, ok, err := s.primary.CacheGet(ctx, key)
		if !s.shouldFailover(err) {
			return value, ok, err
		}
		s.noteFailover("cache_get", err)
	}
	return s.fallback.CacheGet(ctx, key)
}

func (s *Store) CacheSet(ctx context.Context, key string, value []byte, ttl time.Duration, source string) error {
	if s.primary != nil {
		err := s.primary.CacheSet(ctx, key, value, ttl, source)
		if !s.shouldFailover(err) {
			return err
		}
		s.noteFailover("cache_set", err)
	}
	return s.fallback.CacheSet(ctx, key, value, ttl, source)
}

func (s *Store) CacheDelete(ctx context.Context, key string) error {
	if s.primary != nil {
		err := s.primary.CacheDelete(ctx, key)
		if !s.shouldFailover(err) {
			return err
		}
		s.noteFailover("cache_delete", err)
	}
	return s.fallback.CacheDelete(ctx, key)
}

func (s *Store) SaveReport(ctx context.Context, report *models.StoredReport) error {
	if s.primary != nil {
		err := s.primary.SaveReport(ctx, report)
		if !s.shouldFailover(err) {
			return err
		}
		s.noteFailover("save_report", err)
	}
	return s.fallback.SaveReport(ctx, report)
}

func (s *Store) GetReport(ctx context.Context, reportID string) (*models.StoredReport, error) {
	if s.primary != nil {
		report, err := s.primary.GetReport(ctx, reportID)
		if !s.shouldFailover(err) {
			return report, err
		}
		s.noteFailover("get_report", err)
	}
	return s.fallback.GetReport(ctx, reportID)
}

func (s *Store) ListReports(ctx context.Context, filters models.ReportFilters) ([]models.StoredReport, int, error) {
	if s.primary != nil {
		reports, total, err := s.primary.ListReports(ctx, filters)
		if !s.shouldFailover(err) {
			return reports, total, err
		}
		s.noteFailover("list_reports", err)
	}
	return s.fallback.ListReports(ctx, filters)
}

func (s *Store) DeleteReport(ctx context.Context, reportID string) error {
	if s.primary != nil {
		err := s.primary.DeleteReport(ctx, reportID)
		if !s.shouldFailover(err) {
			return err
		}
		s.noteFailover("delete_report", err)
	}
	return s.fallback.DeleteReport(ctx, reportID)
}

func (s *Store) SaveThread(ctx context.Context, thread *models.ThreadRecord) error {
	if s.primary != nil {
		err := s.primary.SaveThread(ctx, thread)
		if !s.shouldFailover(err) {
			return err
		}
		s.noteFailover("save_thread", err)
	}
	return s.fallback.SaveThread(ctx, thread)
}

func (s *Store) GetThread(ctx context.Context, threadID string) (*models.ThreadRecord, error) {
	if s.primary != nil {
		thread, err := s.primary.GetThread(ctx, threadID)
		if !s.shouldFailover(err) {
			return thread, err
		}
		s.noteFailover("get_thread", err)
	}
	return s.fallback.GetThread(ctx, threadID)
}

func (s *Store) ListThreads(ctx context.Context, limit, offset int) ([]models.ThreadSummary, error) {
	if s.primary != nil {
		threads, err := s.primary.ListThreads(ctx, limit, offset)
		if !s.shouldFailover(err) {
			return threads, err
		}
		s.noteFailover("list_threads", err)
	}
	return s.fallback.ListThreads(ctx, limit, offset)
}

func (s *Store) ListThreadsByINN(ctx context.Context, inn string, limit, offset int) ([]models.ThreadSummary, error) {
	if s.primary != nil {
		threads, err := s.primary.ListThreadsByINN(ctx, inn, limit, offset)
		if !s.shouldFailover(err) {
			return threads, err
		}
		s.noteFailover("list_threads_by_inn", err)
	}
	return s.fallback.ListThreadsByINN(ctx, inn, limit, offset)
}

func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	if s.primary != nil {
		err := s.primary.DeleteThread(ctx, threadID)
		if !s.shouldFailover(err) {
			return err
		}
		s.noteFailover("delete_thread", err)
	}
	return s.fallback.DeleteThread(ctx, threadID)
}

func (s *Store) SpaceCounts(ctx context.Context) (SpaceCounts, error) {
	if s.primary != nil {
		counts, err := s.primary.SpaceCounts(ctx)
		if !s.shouldFailover(err) {
			return counts, err
		}
		s.noteFailover("space_counts", err)
	}
	return s.fallback.SpaceCounts(ctx)
}

func (s *Store) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	total := 0
	if s.primary != nil {
		n, err := s.primary.EvictExpired(ctx, now)
		total += n
		if s.shouldFailover(err) {
			s.noteFailover("evict_expired", err)
		} else if err != nil {
			return total, err
		}
	}
	n, err := s.fallback.EvictExpired(ctx, now)
	return total + n, err
}

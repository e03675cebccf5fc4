package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// MigrateLegacyThreads rewrites threads stored under the pre-v2 key schemes
// into the current layout. Two generations exist: the original unified space
// wrote "thread:<id>" with no index, and a later deployment renamed that to
// "analysis_thread:<id>". The former collides with the current value prefix,
// so those rows keep their key and are detected by their missing index
// membership and backfilled in place; the latter is rewritten key and all.
// Runs once at startup; a no-op when no legacy rows remain.
func (r *RedisRepository) MigrateLegacyThreads(ctx context.Context) (int, error) {
	migrated, err := r.migrateRenamedThreads(ctx)
	if err != nil {
		return migrated, err
	}
	reindexed, err := r.reindexUnifiedThreads(ctx)
	migrated += reindexed
	if err != nil {
		return migrated, err
	}
	if migrated > 0 {
		r.log.Info("Migrated legacy threads", "count", migrated)
	}
	return migrated, nil
}

func (r *RedisRepository) migrateRenamedThreads(ctx context.Context) (int, error) {
	migrated := 0
	iter := r.client.Scan(ctx, 0, legacyThreadPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		legacyKey := iter.Val()
		raw, err := r.client.Get(ctx, legacyKey).Bytes()
		if err != nil {
			return migrated, fmt.Errorf("read legacy thread %s: %w", legacyKey, err)
		}
		thread, err := decodeThread(raw)
		if err != nil {
			r.log.Warn("Dropping undecodable legacy thread", "key", legacyKey, "error", err)
			if err := r.client.Del(ctx, legacyKey).Err(); err != nil {
				return migrated, err
			}
			continue
		}
		if thread.ThreadID == "" {
			thread.ThreadID = strings.TrimPrefix(legacyKey, legacyThreadPrefix)
		}
		if err := r.SaveThread(ctx, thread); err != nil {
			return migrated, err
		}
		if err := r.client.Del(ctx, legacyKey).Err(); err != nil {
			return migrated, err
		}
		migrated++
	}
	if err := iter.Err(); err != nil {
		return migrated, fmt.Errorf("scan legacy threads: %w", err)
	}
	return migrated, nil
}

// reindexUnifiedThreads backfills index membership for rows written by the
// original unified space. Their keys already match the current scheme, so a
// row is legacy iff it is absent from the recency index.
func (r *RedisRepository) reindexUnifiedThreads(ctx context.Context) (int, error) {
	migrated := 0
	iter := r.client.Scan(ctx, 0, threadKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		threadID := strings.TrimPrefix(key, threadKeyPrefix)
		_, err := r.client.ZScore(ctx, threadsByUpdated, threadID).Result()
		if err == nil {
			continue // already indexed
		}
		if !errors.Is(err, redis.Nil) {
			return migrated, fmt.Errorf("check thread index %s: %w", threadID, err)
		}
		raw, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			return migrated, fmt.Errorf("read legacy thread %s: %w", key, err)
		}
		thread, err := decodeThread(raw)
		if err != nil {
			r.log.Warn("Dropping undecodable legacy thread", "key", key, "error", err)
			if err := r.client.Del(ctx, key).Err(); err != nil {
				return migrated, err
			}
			continue
		}
		if thread.ThreadID == "" {
			thread.ThreadID = threadID
		}
		if err := r.SaveThread(ctx, thread); err != nil {
			return migrated, err
		}
		migrated++
	}
	if err := iter.Err(); err != nil {
		return migrated, fmt.Errorf("scan threads for reindex: %w", err)
	}
	return migrated, nil
}

// Migrate runs storage migrations against the primary backend. Memory-only
// stores have nothing to migrate.
func (s *Store) Migrate(ctx context.Context) error {
	rr, ok := s.primary.(*RedisRepository)
	if !ok {
		return nil
	}
	if err := rr.Ping(ctx); err != nil {
		s.log.Warn("Skipping storage migration, Redis unreachable", "error", err)
		return nil
	}
	_, err := rr.MigrateLegacyThreads(ctx)
	return err
}

package providers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/riskradar/riskradar/pkg/storage"
)

// cacheKey builds the deterministic cache key "source:args". Args are
// lowercased and space-normalized so equivalent queries share an entry.
func cacheKey(source string, args string) string {
	return source + ":" + strings.Join(strings.Fields(strings.ToLower(args)), " ")
}

// cachedCall returns the cached payload for (source, args) or invokes fn and
// caches its result with the source's TTL. Cache failures never fail the
// call.
func cachedCall[T any](ctx context.Context, store *storage.Store, source, args string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	key := cacheKey(source, args)

	if raw, ok, err := store.CacheGet(ctx, key); err == nil && ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		slog.Warn("Dropping undecodable cache entry", "key", key)
		_ = store.CacheDelete(ctx, key)
	}

	result, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	if raw, err := json.Marshal(result); err == nil {
		if err := store.CacheSet(ctx, key, raw, ttl, source); err != nil {
			slog.Warn("Cache write failed", "key", key, "error", err)
		}
	}
	return result, nil
}

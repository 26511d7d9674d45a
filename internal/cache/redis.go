package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/biorag/engine/internal/service"
)

// RedisResultCache is the cross-process counterpart to the in-process
// QueryCache: it backs service.PipelineService's SearchCache seam with a
// shared Redis keyspace so a repeated identical question hits the same
// cached SearchResult regardless of which server process answers it.
// A miss or a Redis-side error is treated as a cache miss rather than a
// request failure — caching is a latency optimization, never load-bearing.
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisResultCache creates a RedisResultCache against addr (host:port).
// Call Close when done to release the connection pool.
func NewRedisResultCache(addr string, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// Ping verifies connectivity to Redis, used by main.go at startup so a
// misconfigured REDIS_ADDR fails fast instead of silently degrading every
// request to a cache miss.
func (c *RedisResultCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *RedisResultCache) Close() error {
	return c.client.Close()
}

// Get returns a cached service.SearchResult if present in Redis.
func (c *RedisResultCache) Get(sourceType, sourceID, query string) (*service.SearchResult, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, redisCacheKey(sourceType, sourceID, query)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("[REDIS-CACHE] get failed", "source_type", sourceType, "source_id", sourceID, "error", err)
		}
		return nil, false
	}

	var result service.SearchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		slog.Warn("[REDIS-CACHE] corrupt entry", "source_type", sourceType, "source_id", sourceID, "error", err)
		return nil, false
	}
	slog.Info("[REDIS-CACHE] hit", "source_type", sourceType, "source_id", sourceID)
	return &result, true
}

// Set stores a service.SearchResult in Redis under the cache's TTL.
func (c *RedisResultCache) Set(sourceType, sourceID, query string, result *service.SearchResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		slog.Warn("[REDIS-CACHE] marshal failed", "source_type", sourceType, "source_id", sourceID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.client.Set(ctx, redisCacheKey(sourceType, sourceID, query), raw, c.ttl).Err(); err != nil {
		slog.Warn("[REDIS-CACHE] set failed", "source_type", sourceType, "source_id", sourceID, "error", err)
	}
}

// InvalidateScope removes every cached entry for a (sourceType, sourceID)
// scope by scanning its key prefix. Call this when a source is re-ingested
// or re-embedded, mirroring QueryCache.InvalidateScope.
func (c *RedisResultCache) InvalidateScope(ctx context.Context, sourceType, sourceID string) error {
	prefix := fmt.Sprintf("rc:%s:%s:", sourceType, sourceID)
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache.RedisResultCache.InvalidateScope: scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache.RedisResultCache.InvalidateScope: del: %w", err)
	}
	return nil
}

func redisCacheKey(sourceType, sourceID, query string) string {
	h := sha256.Sum256([]byte(query))
	return fmt.Sprintf("rc:%s:%s:%x", sourceType, sourceID, h[:8])
}

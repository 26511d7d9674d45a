// Package cache provides in-memory query result caching for the RAG pipeline.
package cache

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/biorag/engine/internal/service"
)

// QueryCache caches service.SearchResult by (sourceType, sourceID, query).
// Thread-safe via sync.RWMutex. Entries auto-expire after TTL. Keyed by
// scope rather than a requesting user, since this module has no per-user
// session concept (§1: authentication is out of scope) — the donor's
// per-user cache isolation becomes per-scope isolation here.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	stopCh  chan struct{}
}

type cacheEntry struct {
	result    *service.SearchResult
	createdAt time.Time
	expiresAt time.Time
}

// New creates a QueryCache with the given TTL and starts background cleanup.
func New(ttl time.Duration) *QueryCache {
	c := &QueryCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns a cached SearchResult if present and not expired.
func (c *QueryCache) Get(sourceType, sourceID, query string) (*service.SearchResult, bool) {
	key := cacheKey(sourceType, sourceID, query)
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	slog.Info("[CACHE] hit",
		"source_type", sourceType,
		"source_id", sourceID,
		"age_ms", time.Since(entry.createdAt).Milliseconds(),
	)
	return entry.result, true
}

// Set stores a SearchResult in the cache.
func (c *QueryCache) Set(sourceType, sourceID, query string, result *service.SearchResult) {
	key := cacheKey(sourceType, sourceID, query)
	now := time.Now()
	c.mu.Lock()
	c.entries[key] = &cacheEntry{
		result:    result,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
	c.mu.Unlock()

	slog.Info("[CACHE] set",
		"source_type", sourceType,
		"source_id", sourceID,
		"ttl_s", int(c.ttl.Seconds()),
		"total_entries", c.Len(),
	)
}

// InvalidateScope removes all cached entries for a (sourceType, sourceID)
// scope. Call this when a source is re-ingested or re-embedded.
func (c *QueryCache) InvalidateScope(sourceType, sourceID string) {
	prefix := "qc:" + sourceType + ":" + sourceID + ":"
	c.mu.Lock()
	count := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			count++
		}
	}
	c.mu.Unlock()

	if count > 0 {
		slog.Info("[CACHE] invalidated scope",
			"source_type", sourceType,
			"source_id", sourceID,
			"entries_removed", count,
		)
	}
}

// Len returns the number of entries in the cache.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop halts the background cleanup goroutine.
func (c *QueryCache) Stop() {
	close(c.stopCh)
}

// cleanup removes expired entries every 5 minutes.
func (c *QueryCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			before := len(c.entries)
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			after := len(c.entries)
			c.mu.Unlock()
			if before != after {
				slog.Info("[CACHE] cleanup", "removed", before-after, "remaining", after)
			}
		case <-c.stopCh:
			return
		}
	}
}

// cacheKey builds a deterministic key: "qc:{sourceType}:{sourceID}:{hex of the first 8 bytes of sha256(query)}"
func cacheKey(sourceType, sourceID, query string) string {
	h := sha256.Sum256([]byte(query))
	return fmt.Sprintf("qc:%s:%s:%x", sourceType, sourceID, h[:8])
}

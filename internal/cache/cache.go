// Package cache provides the response cache in front of the
// recommend/search pipeline: Redis-backed when configured, falling back
// to an in-memory map with the teacher's TTL/cleanup-goroutine shape.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/discovery-engine/internal/recommend"
)

// ResultCache caches recommend.RankedDocument pages by (tenant, user,
// query, page). Thread-safe; entries auto-expire after TTL.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]*entry

	redisClient *redis.Client
	useRedis    bool

	ttl    time.Duration
	stopCh chan struct{}
}

type entry struct {
	result    []recommend.RankedDocument
	createdAt time.Time
	expiresAt time.Time
}

// New builds a ResultCache. If redisAddr is non-empty, it attempts a
// Redis connection first (5s timeout), falling back to the in-memory map
// on failure, matching the tas-agent-builder cache-with-fallback
// pattern.
func New(ttl time.Duration, redisAddr, redisPassword string, redisDB int) *ResultCache {
	c := &ResultCache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPassword, DB: redisDB})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err == nil {
			c.redisClient = client
			c.useRedis = true
		} else {
			slog.Warn("cache: redis unavailable, falling back to in-memory", "error", err)
		}
	}

	go c.cleanup()
	return c
}

// Get returns a cached page if present and not expired.
func (c *ResultCache) Get(ctx context.Context, tenantID, userID, query string, page int) ([]recommend.RankedDocument, bool) {
	key := cacheKey(tenantID, userID, query, page)

	if c.useRedis {
		raw, err := c.redisClient.Get(ctx, key).Bytes()
		if err != nil {
			return nil, false
		}
		var result []recommend.RankedDocument
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, false
		}
		return result, true
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.result, true
}

// Set stores a page in the cache.
func (c *ResultCache) Set(ctx context.Context, tenantID, userID, query string, page int, result []recommend.RankedDocument) {
	key := cacheKey(tenantID, userID, query, page)

	if c.useRedis {
		raw, err := json.Marshal(result)
		if err != nil {
			return
		}
		c.redisClient.Set(ctx, key, raw, c.ttl)
		return
	}

	now := time.Now()
	c.mu.Lock()
	c.entries[key] = &entry{result: result, createdAt: now, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}

// InvalidateUser removes all cached entries for a (tenant, user) pair,
// called after interaction updates invalidate prior pages.
func (c *ResultCache) InvalidateUser(ctx context.Context, tenantID, userID string) {
	prefix := fmt.Sprintf("rc:%s:%s:", tenantID, userID)

	if c.useRedis {
		iter := c.redisClient.Scan(ctx, 0, prefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			c.redisClient.Del(ctx, iter.Val())
		}
		return
	}

	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

func (c *ResultCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if c.useRedis {
				continue
			}
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

// Stop halts the background cleanup goroutine.
func (c *ResultCache) Stop() { close(c.stopCh) }

func cacheKey(tenantID, userID, query string, page int) string {
	h := sha256.Sum256([]byte(query))
	return fmt.Sprintf("rc:%s:%s:%d:%x", tenantID, userID, page, h[:8])
}

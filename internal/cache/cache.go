package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/trollcity/wallsync/internal/wall"
	"go.uber.org/zap"
)

const (
	feedPageKey = "wallsync:feed:page:%d" // wallsync:feed:page:<limit>

	// FeedPageTTL keeps the hot feed page fresh enough that a missed
	// invalidation self-heals quickly.
	FeedPageTTL = 45 * time.Second
)

// FeedPageCache is a Redis-backed cache for the bulk feed page. A nil
// receiver or nil client disables caching entirely, so the store can be
// wired with or without Redis.
type FeedPageCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	limits map[int]struct{}
}

// NewFeedPageCache wraps a Redis client; ttl <= 0 selects FeedPageTTL.
func NewFeedPageCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *FeedPageCache {
	if ttl <= 0 {
		ttl = FeedPageTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedPageCache{
		client: client,
		ttl:    ttl,
		logger: logger,
		limits: make(map[int]struct{}),
	}
}

// GetPage returns a cached feed page, reporting a miss on any error so
// the caller falls through to the store.
func (c *FeedPageCache) GetPage(ctx context.Context, limit int) ([]wall.Post, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	cached, err := c.client.Get(ctx, fmt.Sprintf(feedPageKey, limit)).Result()
	if err != nil {
		return nil, false
	}

	var posts []wall.Post
	if err := json.Unmarshal([]byte(cached), &posts); err != nil {
		c.logger.Warn("feed page cache entry corrupt", zap.Int("limit", limit), zap.Error(err))
		return nil, false
	}
	return posts, true
}

// SetPage stores a feed page under its limit key. Failures are logged
// and otherwise ignored; the cache is an optimization, not a source of
// truth.
func (c *FeedPageCache) SetPage(ctx context.Context, limit int, posts []wall.Post) {
	if c == nil || c.client == nil {
		return
	}

	data, err := json.Marshal(posts)
	if err != nil {
		c.logger.Warn("feed page cache marshal failed", zap.Int("limit", limit), zap.Error(err))
		return
	}

	c.mu.Lock()
	c.limits[limit] = struct{}{}
	c.mu.Unlock()

	if err := c.client.Set(ctx, fmt.Sprintf(feedPageKey, limit), data, c.ttl).Err(); err != nil {
		c.logger.Warn("feed page cache set failed", zap.Int("limit", limit), zap.Error(err))
	}
}

// Invalidate drops every cached page after a wall mutation.
func (c *FeedPageCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}

	c.mu.Lock()
	keys := make([]string, 0, len(c.limits))
	for limit := range c.limits {
		keys = append(keys, fmt.Sprintf(feedPageKey, limit))
	}
	c.mu.Unlock()

	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("feed page cache invalidation failed", zap.Error(err))
	}
}

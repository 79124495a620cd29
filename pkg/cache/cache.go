package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"ai-lecture-be/internal/model"
	"ai-lecture-be/internal/pkg/logger"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Version is baked into every key hash. Bumping it invalidates the whole
// cache without a destructive sweep: old-version keys become unreachable
// and expire via their TTL.
const Version = "v1"

const (
	KindPlan  = "plan"
	KindChunk = "chunk"

	keyPrefix = "cache:"
	hashWidth = 16
)

// ContentCache is the content-addressed cache for plans and per-step chunks.
// Redis is the shared tier; a small in-process go-cache sits in front of it
// so replayed jobs on the same worker skip the network.
type ContentCache struct {
	rdb      *redis.Client
	local    *gocache.Cache
	planTTL  time.Duration
	chunkTTL time.Duration
	logger   logger.ILogger
}

func NewContentCache(rdb *redis.Client, planTTL, chunkTTL time.Duration, log logger.ILogger) *ContentCache {
	return &ContentCache{
		rdb:      rdb,
		local:    gocache.New(10*time.Minute, 15*time.Minute),
		planTTL:  planTTL,
		chunkTTL: chunkTTL,
		logger:   log,
	}
}

// NormalizeQuery case-folds, strips non-alphanumerics and collapses
// whitespace so trivially different phrasings share one cache entry.
func NormalizeQuery(query string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(query) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			// dropped
		}
	}
	return strings.TrimSpace(b.String())
}

// PlanKey returns cache:plan:{hash}.
func PlanKey(query string) string {
	return keyPrefix + KindPlan + ":" + queryHash(query)
}

// ChunkKey returns cache:chunk:{hash}:step:{stepID}.
func ChunkKey(query string, stepID int) string {
	return fmt.Sprintf("%s%s:%s:step:%d", keyPrefix, KindChunk, queryHash(query), stepID)
}

func queryHash(query string) string {
	return hashWithVersion(Version, query)
}

func hashWithVersion(version, query string) string {
	sum := sha256.Sum256([]byte(version + ":" + NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])[:hashWidth]
}

// PutPlan stores a fully produced plan. Store errors degrade to a no-op;
// a cache failure must never fail the pipeline.
func (c *ContentCache) PutPlan(ctx context.Context, query string, plan *model.Plan) {
	c.put(ctx, PlanKey(query), plan, c.planTTL)
}

func (c *ContentCache) GetPlan(ctx context.Context, query string) (*model.Plan, bool) {
	var plan model.Plan
	if !c.get(ctx, PlanKey(query), &plan) {
		return nil, false
	}
	return &plan, true
}

func (c *ContentCache) PutChunk(ctx context.Context, query string, stepID int, chunk *model.Chunk) {
	c.put(ctx, ChunkKey(query, stepID), chunk, c.chunkTTL)
}

func (c *ContentCache) GetChunk(ctx context.Context, query string, stepID int) (*model.Chunk, bool) {
	var chunk model.Chunk
	if !c.get(ctx, ChunkKey(query, stepID), &chunk) {
		return nil, false
	}
	return &chunk, true
}

// Has reports whether an entry exists without decoding it (prefetch check).
func (c *ContentCache) Has(ctx context.Context, key string) bool {
	if _, found := c.local.Get(key); found {
		return true
	}
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		c.logger.Warn("Cache", "Exists check failed, treating as miss", map[string]interface{}{"key": key, "error": err.Error()})
		return false
	}
	return n > 0
}

func (c *ContentCache) put(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("Cache", "Marshal failed", map[string]interface{}{"key": key, "error": err.Error()})
		return
	}
	c.local.Set(key, data, ttl)
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("Cache", "Redis SET failed, entry kept local only", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func (c *ContentCache) get(ctx context.Context, key string, out interface{}) bool {
	if raw, found := c.local.Get(key); found {
		if err := json.Unmarshal(raw.([]byte), out); err == nil {
			return true
		}
		c.local.Delete(key)
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Warn("Cache", "Redis GET failed, treating as miss", map[string]interface{}{"key": key, "error": err.Error()})
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("Cache", "Corrupt cache entry", map[string]interface{}{"key": key, "error": err.Error()})
		return false
	}
	c.local.Set(key, data, gocache.DefaultExpiration)
	return true
}

// Stats reports key counts per kind plus Redis memory usage.
type Stats struct {
	TotalKeys   int    `json:"total_keys"`
	PlanKeys    int    `json:"plan_keys"`
	ChunkKeys   int    `json:"chunk_keys"`
	MemoryUsage string `json:"memory_usage"`
}

func (c *ContentCache) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		stats.TotalKeys++
		switch {
		case strings.HasPrefix(iter.Val(), keyPrefix+KindPlan+":"):
			stats.PlanKeys++
		case strings.HasPrefix(iter.Val(), keyPrefix+KindChunk+":"):
			stats.ChunkKeys++
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache stats scan: %w", err)
	}

	if info, err := c.rdb.Info(ctx, "memory").Result(); err == nil {
		for _, line := range strings.Split(info, "\r\n") {
			if strings.HasPrefix(line, "used_memory_human:") {
				stats.MemoryUsage = strings.TrimPrefix(line, "used_memory_human:")
				break
			}
		}
	}

	return stats, nil
}

// ClearAll deletes every key under the cache namespace and flushes the
// local tier. Normal invalidation is a Version bump, not this.
func (c *ContentCache) ClearAll(ctx context.Context) (int, error) {
	deleted := 0
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("Cache", "Delete failed during clear", map[string]interface{}{"key": iter.Val(), "error": err.Error()})
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("cache clear scan: %w", err)
	}
	c.local.Flush()
	return deleted, nil
}

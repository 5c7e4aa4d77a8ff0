// Package cache keeps recently generated datasets so identical requests are
// served without resampling. Tier 1 is an in-process LRU, tier 2 an optional
// shared Redis.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/metrics"
)

// DatasetCache is a two-tier dataset cache. Returned slices are copies, so
// callers may modify them freely.
type DatasetCache struct {
	memory  *lru.Cache[string, *cacheEntry]
	remote  *RedisTier
	ttl     time.Duration
	metrics *metrics.Collector
	logger  *logrus.Logger

	stats   Stats
	statsMu sync.RWMutex
}

// Stats represents cache performance statistics
type Stats struct {
	MemoryHits   int64         `json:"memory_hits"`
	MemoryMisses int64         `json:"memory_misses"`
	RedisHits    int64         `json:"redis_hits"`
	RedisMisses  int64         `json:"redis_misses"`
	RedisErrors  int64         `json:"redis_errors"`
	Evictions    int64         `json:"evictions"`
	Entries      int           `json:"entries"`
	TTL          time.Duration `json:"ttl"`
}

type cacheEntry struct {
	records   []domain.CaseRecord
	expiresAt time.Time
}

func (e *cacheEntry) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// NewDatasetCache creates the cache. remote and m may be nil.
func NewDatasetCache(cfg domain.CacheConfig, remote *RedisTier, m *metrics.Collector, logger *logrus.Logger) (*DatasetCache, error) {
	if cfg.MemoryItems <= 0 {
		cfg.MemoryItems = 32
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 30 * time.Minute
	}

	c := &DatasetCache{
		remote:  remote,
		ttl:     cfg.DefaultTTL,
		metrics: m,
		logger:  logger,
	}
	memory, err := lru.NewWithEvict(cfg.MemoryItems, func(string, *cacheEntry) {
		c.statsMu.Lock()
		c.stats.Evictions++
		c.statsMu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	c.memory = memory

	logger.WithFields(logrus.Fields{
		"memory_items": cfg.MemoryItems,
		"ttl":          cfg.DefaultTTL,
		"redis":        remote != nil,
	}).Info("Initialized dataset cache")

	return c, nil
}

// Get looks key up in memory, then Redis. A Redis hit is promoted to memory.
func (c *DatasetCache) Get(ctx context.Context, key string) ([]domain.CaseRecord, bool) {
	if c == nil {
		return nil, false
	}

	if entry, ok := c.memory.Get(key); ok && !entry.isExpired() {
		c.record(func(s *Stats) { s.MemoryHits++ })
		c.metrics.ObserveCacheLookup("memory", true)
		c.logger.WithFields(logrus.Fields{"key": key, "cache_tier": "memory"}).Debug("Dataset cache hit")
		return clone(entry.records), true
	} else if ok {
		c.memory.Remove(key)
	}
	c.record(func(s *Stats) { s.MemoryMisses++ })
	c.metrics.ObserveCacheLookup("memory", false)

	if c.remote == nil {
		return nil, false
	}

	records, found, err := c.remote.Get(ctx, key)
	if err != nil {
		c.record(func(s *Stats) { s.RedisErrors++ })
		c.logger.WithError(err).WithField("cache_tier", "redis").Warn("Dataset cache lookup failed")
		return nil, false
	}
	c.metrics.ObserveCacheLookup("redis", found)
	if !found {
		c.record(func(s *Stats) { s.RedisMisses++ })
		return nil, false
	}

	c.record(func(s *Stats) { s.RedisHits++ })
	c.logger.WithFields(logrus.Fields{"key": key, "cache_tier": "redis"}).Debug("Dataset cache hit")
	c.memory.Add(key, &cacheEntry{records: records, expiresAt: time.Now().Add(c.ttl)})
	return clone(records), true
}

// Set stores records in both tiers. Redis failures are logged, not returned.
func (c *DatasetCache) Set(ctx context.Context, key string, records []domain.CaseRecord) {
	if c == nil {
		return
	}
	c.memory.Add(key, &cacheEntry{records: clone(records), expiresAt: time.Now().Add(c.ttl)})

	if c.remote == nil {
		return
	}
	if err := c.remote.Set(ctx, key, records, c.ttl); err != nil {
		c.record(func(s *Stats) { s.RedisErrors++ })
		c.logger.WithError(err).WithField("cache_tier", "redis").Warn("Failed to store dataset in cache")
	}
}

// Invalidate drops key from both tiers.
func (c *DatasetCache) Invalidate(ctx context.Context, key string) error {
	if c == nil {
		return nil
	}
	c.memory.Remove(key)
	if c.remote != nil {
		return c.remote.Delete(ctx, key)
	}
	return nil
}

// Stats returns cache performance statistics
func (c *DatasetCache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()

	stats := c.stats
	stats.Entries = c.memory.Len()
	stats.TTL = c.ttl
	return stats
}

// Close releases the Redis tier, if any.
func (c *DatasetCache) Close() error {
	if c == nil || c.remote == nil {
		return nil
	}
	return c.remote.Close()
}

func (c *DatasetCache) record(update func(*Stats)) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	update(&c.stats)
}

func clone(records []domain.CaseRecord) []domain.CaseRecord {
	out := make([]domain.CaseRecord, len(records))
	copy(out, records)
	return out
}

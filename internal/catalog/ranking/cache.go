// Package ranking caches each dataset's quality ranking, the maximum ranking
// across its resources, for read-heavy dashboard access.
package ranking

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/opendatath/catalog/internal/catalog/metrics"
	"github.com/opendatath/catalog/internal/catalog/schema"
)

// DefaultSize is the number of dataset rankings kept in memory.
const DefaultSize = 1024

// Store is the part of the Record Store the cache reads and writes.
// *db.DB satisfies it.
type Store interface {
	MaxRanking(ctx context.Context, datasetID string) (int, error)
	MaxRankings(ctx context.Context, datasetIDs []string) (map[string]int, error)
	SetResourceRanking(ctx context.Context, datasetID string, ranking int) (int64, error)
}

// Cache is a bounded LRU of dataset rankings in front of the store.
//
// Concurrent misses for the same dataset share one store query. Writes only
// ever remove entries, and each bumps a generation counter so a load that
// started before a write never populates the cache with its older result.
type Cache struct {
	store   Store
	entries *lru.Cache[string, int]
	group   singleflight.Group
	mu      sync.Mutex // guards gen and cache writes that depend on it
	writeMu sync.Mutex // serializes SetRanking
	gen     uint64
	metrics *metrics.Metrics
	logger  *log.Logger
}

// Config configures a Cache.
type Config struct {
	Size    int              // entries; DefaultSize when <= 0
	Metrics *metrics.Metrics // optional
	Logger  *log.Logger      // optional; stderr with "[ranking] " prefix
}

// New creates a Cache over store.
func New(store Store, cfg Config) (*Cache, error) {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, int](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create ranking cache: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[ranking] ", log.LstdFlags)
	}
	return &Cache{
		store:   store,
		entries: entries,
		metrics: cfg.Metrics,
		logger:  logger,
	}, nil
}

// RankingFor returns the dataset's ranking: the maximum ranking among its
// resources, or 0 when it has none or does not exist.
func (c *Cache) RankingFor(ctx context.Context, datasetID string) (int, error) {
	if v, ok := c.entries.Get(datasetID); ok {
		c.metrics.RankingHits(1)
		return v, nil
	}
	c.metrics.RankingMisses(1)

	gen := c.generation()
	v, err, _ := c.group.Do(datasetID, func() (any, error) {
		ranking, err := c.store.MaxRanking(ctx, datasetID)
		if err != nil {
			return 0, err
		}
		c.storeIfCurrent(gen, datasetID, ranking)
		return ranking, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// RankingsFor returns RankingFor for every id. Cached ids are answered from
// memory and all misses are resolved with a single batched store query. The
// result has one entry per distinct input id.
func (c *Cache) RankingsFor(ctx context.Context, datasetIDs []string) (map[string]int, error) {
	result := make(map[string]int, len(datasetIDs))
	var misses []string
	for _, id := range datasetIDs {
		if _, done := result[id]; done {
			continue
		}
		if v, ok := c.entries.Get(id); ok {
			result[id] = v
			continue
		}
		result[id] = 0
		misses = append(misses, id)
	}

	c.metrics.RankingHits(len(result) - len(misses))
	c.metrics.RankingMisses(len(misses))
	if len(misses) == 0 {
		return result, nil
	}

	gen := c.generation()
	loaded, err := c.store.MaxRankings(ctx, misses)
	if err != nil {
		return nil, err
	}
	for _, id := range misses {
		result[id] = loaded[id]
		c.storeIfCurrent(gen, id, loaded[id])
	}
	return result, nil
}

// SetRanking sets every resource of the dataset to ranking and drops the
// cached value. It returns false when ranking is outside 0..4 or the store
// fails. A dataset without resources is not an error; its ranking stays 0.
// The next read loads from the store, so a refresh that commits between
// the update and the invalidation is never masked.
func (c *Cache) SetRanking(ctx context.Context, datasetID string, ranking int) bool {
	if err := schema.ValidateRanking(ranking); err != nil {
		c.logger.Printf("Rejected ranking for %s: %v", datasetID, err)
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.Invalidate(datasetID)
	_, err := c.store.SetResourceRanking(ctx, datasetID, ranking)
	c.Invalidate(datasetID)
	if err != nil {
		c.logger.Printf("WARNING: failed to set ranking for %s: %v", datasetID, err)
		return false
	}
	return true
}

// Invalidate drops one dataset from the cache. Call it after writing the
// dataset's resources without going through the cache.
func (c *Cache) Invalidate(datasetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries.Remove(datasetID)
}

// Purge drops every cached ranking.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries.Purge()
}

// Len returns the number of cached rankings.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Cache) storeIfCurrent(gen uint64, datasetID string, ranking int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.entries.Add(datasetID, ranking)
	}
}

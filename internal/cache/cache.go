package cache

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ultratest-hq/ultra/internal/filehash"
	"github.com/ultratest-hq/ultra/internal/profile"
)

// warmLimit caps how many high-value entries Warm promotes
const warmLimit = 50

// SmartCache decides whether a previously recorded test result can be
// reused. Validity requires both a live TTL and a matching dependency
// content hash; any mismatch is an invalidation, never silently served.
//
// One mutex guards the memory tier and all counters. Persistent store
// failures are logged and degrade to miss semantics; they never
// propagate to the orchestrator.
type SmartCache struct {
	store  Store
	hasher *filehash.Hasher
	now    func() time.Time

	mu            sync.Mutex
	memory        *memoryTier
	hits          int64
	misses        int64
	invalidations int64
}

// Stats is a point-in-time snapshot of cache effectiveness
type Stats struct {
	TotalEntries       int     `json:"total_entries"`
	ValidEntries       int     `json:"valid_entries"`
	MemoryCacheSize    int     `json:"memory_cache_size"`
	HitRate            float64 `json:"hit_rate"`
	Hits               int64   `json:"hits"`
	Misses             int64   `json:"misses"`
	Invalidations      int64   `json:"invalidations"`
	AvgAccessCount     float64 `json:"avg_access_count"`
	TotalBusinessValue float64 `json:"total_business_value"`
	CacheSizeMB        float64 `json:"cache_size_mb"`
}

// CacheOption configures a SmartCache
type CacheOption func(*SmartCache)

// WithClock injects a clock for deterministic TTL tests
func WithClock(now func() time.Time) CacheOption {
	return func(c *SmartCache) { c.now = now }
}

// WithMemoryCap overrides the in-memory tier capacity
func WithMemoryCap(n int) CacheOption {
	return func(c *SmartCache) { c.memory = newMemoryTier(n) }
}

// New creates a smart cache over the given persistent store
func New(store Store, hasher *filehash.Hasher, opts ...CacheOption) *SmartCache {
	c := &SmartCache{
		store:  store,
		hasher: hasher,
		now:    time.Now,
		memory: newMemoryTier(defaultMemoryCap),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsValid reports whether a cached result for the test can be reused.
// The memory tier is consulted first, then the persistent store.
func (c *SmartCache) IsValid(ctx context.Context, testName, testPath string, dependencies []string) bool {
	entry := c.lookup(ctx, testName)
	if entry == nil {
		c.count(&c.misses)
		return false
	}

	if entry.Expired(c.now()) {
		c.count(&c.invalidations)
		log.Debug().Str("test", testName).Msg("cache entry expired")
		return false
	}

	if c.hasher.DependencyHash(testPath, dependencies) != entry.FileHash {
		c.count(&c.invalidations)
		log.Debug().Str("test", testName).Msg("cache entry hash mismatch")
		return false
	}

	c.count(&c.hits)
	return true
}

// Get returns the cached result blob for a test, or nil. A hit
// promotes the entry into the memory tier.
func (c *SmartCache) Get(ctx context.Context, testName string) json.RawMessage {
	entry := c.lookup(ctx, testName)
	if entry == nil {
		return nil
	}

	entry.AccessCount++
	c.mu.Lock()
	c.memory.put(testName, entry)
	c.mu.Unlock()

	// Best-effort persistence of the access count
	if err := c.store.Put(ctx, entry); err != nil {
		log.Warn().Err(err).Str("test", testName).Msg("failed to persist access count")
	}

	return entry.Result
}

// Put records a test result. TTL is assigned from business value and
// the dependency hash is captured for later invalidation checks.
func (c *SmartCache) Put(ctx context.Context, testName, testPath string, result json.RawMessage, dependencies []string, businessValue float64) error {
	entry := &Entry{
		TestName:      testName,
		TestPath:      testPath,
		FileHash:      c.hasher.DependencyHash(testPath, dependencies),
		Result:        result,
		Timestamp:     c.now(),
		Dependencies:  dependencies,
		TTLHours:      ttlForValue(businessValue),
		BusinessValue: businessValue,
	}

	if err := c.store.Put(ctx, entry); err != nil {
		log.Warn().Err(err).Str("test", testName).Msg("failed to persist cache entry")
		return err
	}

	c.mu.Lock()
	c.memory.put(testName, entry)
	c.mu.Unlock()

	return nil
}

// InvalidateByPattern removes every entry, in both tiers, whose test
// name contains the substring. Used when a shared module changes and
// the caller knows which name family is affected.
func (c *SmartCache) InvalidateByPattern(ctx context.Context, substring string) int {
	c.mu.Lock()
	removed := c.memory.deleteMatching(substring)
	c.mu.Unlock()

	entries, err := c.store.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list store for pattern invalidation")
		return removed
	}

	var storeRemoved int
	for _, entry := range entries {
		if strings.Contains(entry.TestName, substring) {
			if err := c.store.Delete(ctx, entry.TestName); err == nil {
				storeRemoved++
			}
		}
	}

	log.Info().
		Str("pattern", substring).
		Int("removed", removed+storeRemoved).
		Msg("invalidated cache entries by pattern")

	return removed + storeRemoved
}

// InvalidateByDependency removes entries whose dependency set touches
// any of the given paths. Called with the changed-file list from vcs.
func (c *SmartCache) InvalidateByDependency(ctx context.Context, changed []string) int {
	if len(changed) == 0 {
		return 0
	}

	changedSet := make(map[string]bool, len(changed))
	for _, path := range changed {
		changedSet[path] = true
	}

	entries, err := c.store.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list store for dependency invalidation")
		return 0
	}

	var removed int
	for _, entry := range entries {
		affected := changedSet[entry.TestPath]
		for _, dep := range entry.Dependencies {
			if affected {
				break
			}
			affected = changedSet[dep]
		}
		if affected {
			c.mu.Lock()
			c.memory.delete(entry.TestName)
			c.mu.Unlock()
			if err := c.store.Delete(ctx, entry.TestName); err == nil {
				removed++
			}
		}
	}

	return removed
}

// CleanupExpired removes entries past their own TTL from memory and
// applies the hard absolute cutoff to the persistent store, then asks
// the store to reclaim space.
func (c *SmartCache) CleanupExpired(ctx context.Context) (int, error) {
	now := c.now()

	c.mu.Lock()
	removed := c.memory.deleteExpired(now)
	c.mu.Unlock()

	cutoff := now.Add(-hardCutoffHours * time.Hour)
	storeRemoved, err := c.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return removed, err
	}

	if err := c.store.Compact(ctx); err != nil {
		log.Warn().Err(err).Msg("cache store compaction failed")
	}

	log.Info().
		Int("memory", removed).
		Int("store", storeRemoved).
		Msg("cleaned up expired cache entries")

	return removed + storeRemoved, nil
}

// Clear drops everything from both tiers
func (c *SmartCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.memory = newMemoryTier(c.memory.capN)
	c.mu.Unlock()

	entries, err := c.store.List(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := c.store.Delete(ctx, entry.TestName); err != nil {
			return err
		}
	}
	return c.store.Compact(ctx)
}

// Warm promotes cached entries for the highest-business-value profiles
// into the memory tier before the main run.
func (c *SmartCache) Warm(ctx context.Context, profiles []*profile.Profile) int {
	candidates := make([]*profile.Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.BusinessValue > highValueThreshold {
			candidates = append(candidates, p)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].BusinessValue > candidates[j].BusinessValue
	})
	if len(candidates) > warmLimit {
		candidates = candidates[:warmLimit]
	}

	var warmed int
	for _, p := range candidates {
		entry, err := c.store.Get(ctx, p.Name)
		if err != nil || entry == nil {
			continue
		}
		c.mu.Lock()
		c.memory.put(p.Name, entry)
		c.mu.Unlock()
		warmed++
	}

	if warmed > 0 {
		log.Info().Int("warmed", warmed).Msg("warmed cache for high-value tests")
	}

	return warmed
}

// Stats returns a snapshot of the running counters and store contents
func (c *SmartCache) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	stats := Stats{
		MemoryCacheSize: c.memory.len(),
		Hits:            c.hits,
		Misses:          c.misses,
		Invalidations:   c.invalidations,
	}
	c.mu.Unlock()

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	entries, err := c.store.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list store for stats")
		return stats
	}

	now := c.now()
	var accessTotal int
	for _, entry := range entries {
		stats.TotalEntries++
		if !entry.Expired(now) {
			stats.ValidEntries++
		}
		accessTotal += entry.AccessCount
		stats.TotalBusinessValue += entry.BusinessValue
	}
	if stats.TotalEntries > 0 {
		stats.AvgAccessCount = float64(accessTotal) / float64(stats.TotalEntries)
	}

	if size, err := c.store.SizeBytes(ctx); err == nil {
		stats.CacheSizeMB = float64(size) / (1024 * 1024)
	}

	return stats
}

// lookup consults the memory tier first, then the persistent store.
// Store errors degrade to miss semantics.
func (c *SmartCache) lookup(ctx context.Context, testName string) *Entry {
	c.mu.Lock()
	if entry, ok := c.memory.get(testName); ok {
		c.mu.Unlock()
		return entry
	}
	c.mu.Unlock()

	entry, err := c.store.Get(ctx, testName)
	if err != nil {
		log.Warn().Err(err).Str("test", testName).Msg("cache store read failed, treating as miss")
		return nil
	}
	return entry
}

// count increments a shared counter under the cache lock
func (c *SmartCache) count(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

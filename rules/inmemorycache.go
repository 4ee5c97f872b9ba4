package rules

import (
	"sync"
	"time"
)

// InMemoryRulesetCache is a simple in-memory implementation of RulesetCache.
// Thread-safe for concurrent access.
type InMemoryRulesetCache struct {
	snapshot *Ruleset
	cachedAt time.Time
	config   CacheConfig
	mu       sync.RWMutex
	isValid  bool
}

// NewInMemoryRulesetCache creates a new in-memory ruleset cache
func NewInMemoryRulesetCache(config CacheConfig) *InMemoryRulesetCache {
	return &InMemoryRulesetCache{
		config: config,
	}
}

// Get retrieves the cached snapshot, nil if the cache is invalid or expired
func (c *InMemoryRulesetCache) Get() *Ruleset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return nil
	}

	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return nil
	}

	return c.snapshot
}

// Set stores a snapshot in the cache
func (c *InMemoryRulesetCache) Set(rs *Ruleset) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = rs
	c.cachedAt = time.Now()
	c.isValid = true
}

// Invalidate clears the cache
func (c *InMemoryRulesetCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.snapshot = nil
}

// IsValid returns true if the cache contains valid data
func (c *InMemoryRulesetCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return false
	}

	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}

	return true
}

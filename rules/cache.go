package rules

import "time"

// RulesetCache caches the active ruleset snapshot between evaluations.
// This allows swapping between in-memory, Redis, or other caching implementations.
type RulesetCache interface {
	// Get retrieves the cached snapshot, nil on cache miss or expiry
	Get() *Ruleset

	// Set stores a snapshot in the cache
	Set(rs *Ruleset)

	// Invalidate clears the cache, forcing a store reload on next Get
	Invalidate()

	// IsValid returns true if the cache has valid data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for the cached snapshot.
	// Set to 0 for no expiration (manual invalidation only).
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for ruleset caching
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 0, // No TTL - only invalidate on mutations
	}
}

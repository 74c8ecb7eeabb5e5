package config

import "time"

// CacheConfig controls the Redis cache in front of the public billboard.
// Entries expire after TTL and are dropped whenever the schedule changes.
// Bodies larger than MaxBodyBytes are served but never stored.
type CacheConfig struct {
	Enabled      bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads the CACHE_* variables.
func LoadCacheConfig() CacheConfig {
	c := CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		TTL:          envDur("CACHE_TTL", 5*time.Second),
		Prefix:       envStr("CACHE_PREFIX", "screening:billboard"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 256<<10),
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Second
	}
	return c
}

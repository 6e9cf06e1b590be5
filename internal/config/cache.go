package config

import "time"

// CacheConfig tunes the in-memory card-config cache.
// Only card configurations are cached; computed card values are always
// recalculated on demand.
type CacheConfig struct {
	// Capacity is the maximum number of entries held in memory.
	Capacity int `envconfig:"CAPACITY" default:"1024" validate:"min=1"`

	// TTL bounds staleness when no invalidation event arrives
	// (e.g., Redis not configured, or a missed pub/sub message).
	TTL time.Duration `envconfig:"TTL" default:"30s" validate:"min=1s"`
}

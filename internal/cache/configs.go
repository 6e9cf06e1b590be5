package cache

import (
	"time"

	"github.com/maypok86/otter"

	"github.com/inclue/pulse/internal/observability"
	"github.com/inclue/pulse/internal/store"
)

// ConfigCache is the L1 cache for active card configurations, keyed by
// component kind. It avoids hitting PostgreSQL on every dashboard poll.
//
// Only configurations are cached, never computed values: card results depend
// on the actor and the live data, so they are recomputed on every request.
type ConfigCache struct {
	store otter.Cache[string, []*store.Card]
}

// NewConfigCache initializes the in-memory cache with strict limits.
// capacity: Max number of entries (Hard Cap to prevent OOM).
// ttl: Time-To-Live, the staleness bound when no invalidation arrives.
func NewConfigCache(capacity int, ttl time.Duration) (*ConfigCache, error) {
	builder := otter.MustBuilder[string, []*store.Card](capacity).
		WithTTL(ttl)

	cache, err := builder.Build()
	if err != nil {
		return nil, err
	}

	return &ConfigCache{store: cache}, nil
}

// Get retrieves the cached card list for a component kind.
func (c *ConfigCache) Get(kind store.ComponentKind) ([]*store.Card, bool) {
	cards, ok := c.store.Get(string(kind))
	if ok {
		observability.ConfigCacheHits.Inc()
	} else {
		observability.ConfigCacheMisses.Inc()
	}
	return cards, ok
}

// Set stores the card list for a component kind.
// The TTL configured in NewConfigCache is applied automatically.
func (c *ConfigCache) Set(kind store.ComponentKind, cards []*store.Card) {
	c.store.Set(string(kind), cards)
}

// Clear drops all cached entries. Called when an invalidation event arrives:
// card edits are rare, so dropping everything is simpler than tracking which
// kinds a write touched.
func (c *ConfigCache) Clear() {
	c.store.Clear()
}

// Close gracefully shuts down the cache and its background cleanup goroutines.
func (c *ConfigCache) Close() {
	c.store.Close()
}

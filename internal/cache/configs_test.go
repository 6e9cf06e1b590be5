package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inclue/pulse/internal/cache"
	"github.com/inclue/pulse/internal/store"
	"github.com/inclue/pulse/internal/testsupport"
)

func TestConfigCache(t *testing.T) {
	c, err := cache.NewConfigCache(16, 1*time.Minute)
	require.NoError(t, err)
	defer c.Close()

	cards := []*store.Card{
		{ID: 1, Name: "Active Participants"},
		{ID: 2, Name: "Completion Rate"},
	}

	t.Run("miss before set", func(t *testing.T) {
		testsupport.AssertMetricDelta(t, "pulse_engine_config_cache_misses_total", nil, 1, func() {
			_, found := c.Get(store.ComponentCard)
			assert.False(t, found)
		})
	})

	t.Run("hit after set", func(t *testing.T) {
		c.Set(store.ComponentCard, cards)
		testsupport.AssertMetricDelta(t, "pulse_engine_config_cache_hits_total", nil, 1, func() {
			got, found := c.Get(store.ComponentCard)
			require.True(t, found)
			assert.Equal(t, cards, got)
		})
	})

	t.Run("kinds are cached independently", func(t *testing.T) {
		_, found := c.Get(store.ComponentParticipationStats)
		assert.False(t, found)
	})

	t.Run("clear drops all entries", func(t *testing.T) {
		c.Set(store.ComponentCard, cards)
		c.Set(store.ComponentParticipationStats, cards[:1])
		c.Clear()

		_, found := c.Get(store.ComponentCard)
		assert.False(t, found)
		_, found = c.Get(store.ComponentParticipationStats)
		assert.False(t, found)
	})
}

func TestConfigCache_TTLExpiry(t *testing.T) {
	c, err := cache.NewConfigCache(16, 20*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	c.Set(store.ComponentCard, []*store.Card{{ID: 1}})

	require.Eventually(t, func() bool {
		_, found := c.Get(store.ComponentCard)
		return !found
	}, 2*time.Second, 10*time.Millisecond, "entry should expire after its TTL")
}

func TestNoopPublisher(t *testing.T) {
	assert.NoError(t, cache.NoopPublisher{}.PublishInvalidation(context.Background()))
}

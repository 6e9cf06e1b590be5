package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/inclue/pulse/internal/observability"
	"github.com/inclue/pulse/internal/validation"
)

// InvalidationChannel is the Pub/Sub channel card mutations are announced on.
const InvalidationChannel = "pulse:cards:invalidate"

// Publisher announces card configuration changes to all running instances.
type Publisher interface {
	// PublishInvalidation signals that the card set changed and cached
	// configurations must be dropped.
	PublishInvalidation(ctx context.Context) error
}

// Compile-time checks.
var (
	_ Publisher = (*RedisPublisher)(nil)
	_ Publisher = (*NoopPublisher)(nil)
)

// RedisPublisher implements Publisher over Redis Pub/Sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher on the given client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	validation.AssertNotNil(client, "redis client")
	return &RedisPublisher{client: client}
}

// PublishInvalidation publishes an invalidation event. The payload carries no
// information; receipt alone triggers a full config reload.
func (p *RedisPublisher) PublishInvalidation(ctx context.Context) error {
	if err := p.client.Publish(ctx, InvalidationChannel, "invalidate").Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// NoopPublisher is used when Redis is not configured (single-instance
// deployments). The L1 TTL alone bounds staleness in that mode.
type NoopPublisher struct{}

// PublishInvalidation does nothing.
func (NoopPublisher) PublishInvalidation(context.Context) error {
	return nil
}

// Subscriber listens for invalidation events and clears the local L1.
type Subscriber struct {
	client *redis.Client
	cache  *ConfigCache
	logger *slog.Logger
}

// NewSubscriber creates a subscriber clearing the given cache on each event.
func NewSubscriber(client *redis.Client, cache *ConfigCache, logger *slog.Logger) *Subscriber {
	validation.AssertNotNil(client, "redis client")
	validation.AssertNotNil(cache, "config cache")
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{client: client, cache: cache, logger: logger}
}

// Run subscribes to the invalidation channel and blocks until the context is
// cancelled. go-redis reconnects the subscription transparently on network
// errors, so the loop only ends when the channel is closed.
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, InvalidationChannel)
	defer sub.Close()

	// Fail fast if the subscription cannot be established at all.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", InvalidationChannel, err)
	}

	s.logger.Info("cache invalidation subscriber started",
		slog.String("channel", InvalidationChannel),
	)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cache invalidation subscriber stopping...")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel %s closed", InvalidationChannel)
			}
			s.cache.Clear()
			observability.ConfigCacheInvalidations.Inc()
			s.logger.Info("card config cache cleared",
				slog.String("payload", msg.Payload),
			)
		}
	}
}

package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/carbonmax/carbonmax/internal/apperrors"
)

// RedisPublisher publishes events as JSON on a Redis pub/sub channel so every API
// instance can forward them to its own subscribers.
type RedisPublisher struct {
	cache   *redis.Client
	channel string
}

// NewRedisPublisher builds a publisher for the given channel.
func NewRedisPublisher(cache *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{cache: cache, channel: channel}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.cache.Publish(ctx, p.channel, payload).Err(); err != nil {
		return apperrors.Unavailable(fmt.Errorf("publish event: %w", err))
	}
	return nil
}

type wireEvent struct {
	Event
	Payload json.RawMessage `json:"payload"`
}

// Relay forwards events received on the Redis channel to a local publisher until ctx
// is cancelled. Payloads arrive as raw JSON.
func Relay(ctx context.Context, cache *redis.Client, channel string, to Publisher, logger *slog.Logger) error {
	sub := cache.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return apperrors.Unavailable(fmt.Errorf("subscribe %s: %w", channel, err))
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var wire wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
				logger.Warn("discarding malformed event", slog.Any("error", err))
				continue
			}
			event := wire.Event
			event.Payload = wire.Payload
			if err := to.Publish(ctx, event); err != nil {
				logger.Warn("relay event failed", slog.String("event_id", event.ID), slog.Any("error", err))
			}
		}
	}
}

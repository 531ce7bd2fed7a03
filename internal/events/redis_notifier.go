package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes JSON encoded events over Redis Pub/Sub so every
// API instance can forward them to its connected clients.
type RedisNotifier struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisNotifier builds a notifier. prefix is prepended to channel names.
func NewRedisNotifier(client redis.UniversalClient, prefix string) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: prefix}
}

func (n *RedisNotifier) Publish(ctx context.Context, channel string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return n.client.Publish(ctx, n.Channel(channel), body).Err()
}

// Channel returns the fully qualified Redis channel.
func (n *RedisNotifier) Channel(channel string) string {
	if n.prefix == "" {
		return channel
	}
	return n.prefix + ":" + channel
}

// Subscribe listens on the given channels and invokes handler for each
// decodable message until ctx is done.
func (n *RedisNotifier) Subscribe(ctx context.Context, handler EventHandler, channels ...string) error {
	qualified := make([]string, len(channels))
	for i, c := range channels {
		qualified[i] = n.Channel(c)
	}
	sub := n.client.Subscribe(ctx, qualified...)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
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
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			if err := handler(ctx, event); err != nil {
				return err
			}
		}
	}
}

package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// eventsChannel is the pub/sub channel the gateway's websocket fanout
// subscribes to.
const eventsChannel = "teamchat:events"

// RedisNotifier publishes events over Redis pub/sub.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier creates a notifier on an existing Redis client.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// MessageAppended publishes the event as JSON.
func (n *RedisNotifier) MessageAppended(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, eventsChannel, data).Err()
}

// Close is a no-op; the Redis client is shared and closed by its owner.
func (n *RedisNotifier) Close() error { return nil }

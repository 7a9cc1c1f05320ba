// Package activity exposes the read-only domain activity feed the assistant
// consults before generating a reply. The feed is produced by the surrounding
// application (jobs, invoices, calendar); this core only reads it.
package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is one opaque record of recent domain activity.
type Event struct {
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"ts"`
}

// Feed returns recent domain events, newest first.
type Feed interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// NopFeed returns no events. Used when no feed backend is configured.
type NopFeed struct{}

func (NopFeed) Recent(context.Context, int) ([]Event, error) { return nil, nil }

const feedKey = "teamchat:activity"

// RedisFeed reads the capped event list the surrounding application keeps in
// Redis.
type RedisFeed struct {
	client *redis.Client
	cap    int64
}

// NewRedisFeed creates a feed over an existing Redis client.
func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client, cap: 200}
}

// Recent returns up to limit events, newest first.
func (f *RedisFeed) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	raw, err := f.client.LRange(ctx, feedKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(raw))
	for _, data := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Record prepends an event and trims the list to its cap. Exposed for the
// surrounding application's write side.
func (f *RedisFeed) Record(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe := f.client.Pipeline()
	pipe.LPush(ctx, feedKey, data)
	pipe.LTrim(ctx, feedKey, 0, f.cap-1)
	_, err = pipe.Exec(ctx)
	return err
}

// Package presence is thin glue over Redis for online status and typing
// indicators. It is deliberately outside the correctness-critical core:
// everything here is best-effort and expires on its own.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	heartbeatTTL = 60 * time.Second
	typingTTL    = 5 * time.Second

	typingChannel = "teamchat:typing"
)

// Tracker records heartbeats and typing signals in Redis.
type Tracker struct {
	client *redis.Client
}

// NewTracker creates a tracker on an existing Redis client.
func NewTracker(client *redis.Client) *Tracker {
	return &Tracker{client: client}
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

func typingKey(channelID, userID string) string {
	return fmt.Sprintf("typing:%s:%s", channelID, userID)
}

// Ping checks Redis connectivity.
func (t *Tracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Heartbeat marks a user online for the TTL window.
func (t *Tracker) Heartbeat(ctx context.Context, userID uuid.UUID) error {
	return t.client.Set(ctx, presenceKey(userID.String()), "1", heartbeatTTL).Err()
}

// Online filters the given users down to those with a live heartbeat.
func (t *Tracker) Online(ctx context.Context, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	pipe := t.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, presenceKey(id.String()))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	var online []uuid.UUID
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			online = append(online, userIDs[i])
		}
	}
	return online, nil
}

// typingEvent is what the broadcast side receives on the typing channel.
type typingEvent struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	At        int64  `json:"ts"`
}

// Typing signals that a user is composing in a channel. The signal expires by
// itself; there is no explicit "stopped typing".
func (t *Tracker) Typing(ctx context.Context, channelID, userID uuid.UUID) error {
	if err := t.client.Set(ctx, typingKey(channelID.String(), userID.String()), "1", typingTTL).Err(); err != nil {
		return err
	}
	ev := typingEvent{ChannelID: channelID.String(), UserID: userID.String(), At: time.Now().UnixMilli()}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return t.client.Publish(ctx, typingChannel, data).Err()
}

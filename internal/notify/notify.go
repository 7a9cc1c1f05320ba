// Package notify is the narrow seam between the messaging core and the
// external broadcast transport. Delivery mechanics (websocket fanout, mobile
// push) live outside this service; the core only signals that a channel has a
// new message and lets the transport decide what to do with it.
package notify

import "context"

// Event describes one appended message.
type Event struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	AuthorID  string `json:"author_id"`
	SentAt    int64  `json:"ts"` // Unix ms
}

// Notifier publishes "message appended" events. Implementations must be safe
// for concurrent use. Callers treat failures as non-critical: logged, never
// propagated into the primary request.
type Notifier interface {
	MessageAppended(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards all events. Used when no transport is configured.
type Nop struct{}

func (Nop) MessageAppended(context.Context, Event) error { return nil }
func (Nop) Close() error                                 { return nil }

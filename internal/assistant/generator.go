// Package assistant bridges the generation backend to live subscribers: it
// turns the backend's incremental output into an ordered, cancellable event
// stream for one conversational turn, and offers a one-shot draft transform.
package assistant

import "context"

// Turn is one (role, text) pair of conversation history.
type Turn struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// Generator is the generation backend contract. Stream returns a channel of
// text fragments in production order and a channel carrying at most one
// terminal error; both are closed when the backend is done. The backend may
// fail asynchronously at any point in the sequence.
type Generator interface {
	Stream(ctx context.Context, system string, history []Turn, newText string) (<-chan string, <-chan error)
	Complete(ctx context.Context, system, prompt string) (string, error)
}

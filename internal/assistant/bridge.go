package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/fieldworks/teamchat/internal/activity"
	"github.com/fieldworks/teamchat/internal/chat"
	"github.com/fieldworks/teamchat/internal/metrics"
	"github.com/fieldworks/teamchat/internal/models"
)

// State of a streaming turn. The only legal paths are
// Idle → Streaming → {Completed, Errored, Cancelled}, except a pre-flight
// validation failure which goes Idle → Errored without ever streaming.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateErrored
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Fragment is one incremental piece of generated text. The final fragment of
// a successful turn carries Done=true and empty text; nothing follows it.
type Fragment struct {
	Text string `json:"fragment"`
	Done bool   `json:"done"`
}

// TurnStream is the subscriber's handle on one conversational turn.
type TurnStream struct {
	id     string
	frags  chan Fragment
	cancel context.CancelFunc
	state  atomic.Int32

	mu   sync.Mutex
	text strings.Builder
	err  error
}

// Fragments returns the ordered fragment stream. The channel is closed on
// any terminal state; after it closes, Err distinguishes completion from
// failure and Text holds whatever was produced.
func (t *TurnStream) Fragments() <-chan Fragment { return t.frags }

// State returns the turn's current state.
func (t *TurnStream) State() State { return State(t.state.Load()) }

// Err returns the terminal error, if any. Valid once Fragments is closed.
func (t *TurnStream) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Text returns the text accumulated so far. After a mid-stream failure this
// is the partial output the subscriber can reconcile against.
func (t *TurnStream) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text.String()
}

// Cancel stops the turn. Backend consumption halts within one pending
// fragment; no background work continues afterwards.
func (t *TurnStream) Cancel() { t.cancel() }

// transition moves to next only if the turn is still in from.
func (t *TurnStream) transition(from, next State) bool {
	return t.state.CompareAndSwap(int32(from), int32(next))
}

func (t *TurnStream) append(s string) {
	t.mu.Lock()
	t.text.WriteString(s)
	t.mu.Unlock()
}

func (t *TurnStream) setErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

// Bridge owns the live turn registry and drives the generation backend.
type Bridge struct {
	gen    Generator
	feed   activity.Feed
	logger zerolog.Logger

	mu     sync.Mutex
	active map[string]*TurnStream
}

// NewBridge creates a streaming bridge over the given backend and activity
// feed.
func NewBridge(gen Generator, feed activity.Feed, logger zerolog.Logger) *Bridge {
	if feed == nil {
		feed = activity.NopFeed{}
	}
	return &Bridge{
		gen:    gen,
		feed:   feed,
		logger: logger,
		active: make(map[string]*TurnStream),
	}
}

const systemPreamble = `You are the team assistant inside a field-service ` +
	`business application. Answer concisely using the conversation and the ` +
	`recent activity listed below. If the activity feed does not cover the ` +
	`question, say so instead of guessing.`

// Stream opens a one-shot turn tied to the caller-chosen turnID and starts
// pulling from the backend. Fragments are forwarded strictly in production
// order, one at a time; ctx cancellation (the subscriber going away) stops
// backend consumption within one pending fragment.
//
// Pre-flight validation failures return an error without streaming; a turnID
// already in flight returns chat.ErrConflict.
func (b *Bridge) Stream(ctx context.Context, turnID string, history []Turn, newText string) (*TurnStream, error) {
	if turnID == "" {
		metrics.AssistantStreams.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: turn id is required", chat.ErrBadRequest)
	}
	if n := utf8.RuneCountInString(newText); n < models.MinContentLen || n > models.MaxContentLen {
		metrics.AssistantStreams.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: prompt must be 1-%d characters", chat.ErrBadRequest, models.MaxContentLen)
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &TurnStream{
		id: turnID,
		// Unbuffered: at most one fragment is in flight between backend
		// and subscriber, which is what bounds cancellation latency.
		frags:  make(chan Fragment),
		cancel: cancel,
	}

	b.mu.Lock()
	if _, exists := b.active[turnID]; exists {
		b.mu.Unlock()
		cancel()
		metrics.AssistantStreams.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: turn %q already in flight", chat.ErrConflict, turnID)
	}
	b.active[turnID] = t
	b.mu.Unlock()

	t.transition(StateIdle, StateStreaming)
	go b.run(ctx, t, history, newText)
	return t, nil
}

// Cancel stops the turn with the given id, if it is still live.
func (b *Bridge) Cancel(turnID string) bool {
	b.mu.Lock()
	t, ok := b.active[turnID]
	b.mu.Unlock()
	if ok {
		t.Cancel()
	}
	return ok
}

func (b *Bridge) unregister(t *TurnStream) {
	b.mu.Lock()
	delete(b.active, t.id)
	b.mu.Unlock()
}

// run pulls fragments from the backend and forwards them until a terminal
// event. It owns the fragment channel and closes it exactly once.
func (b *Bridge) run(ctx context.Context, t *TurnStream, history []Turn, newText string) {
	defer b.unregister(t)
	defer t.cancel()

	frags, errs := b.gen.Stream(ctx, b.composeSystem(ctx), history, newText)

	for {
		select {
		case <-ctx.Done():
			b.finishCancelled(t)
			return

		case err, ok := <-errs:
			if !ok {
				// Error channel closed without a terminal error; keep
				// draining fragments.
				errs = nil
				continue
			}
			if err != nil {
				b.finishErrored(t, err)
				return
			}

		case frag, ok := <-frags:
			if !ok {
				// Backend done. A terminal error may still be pending on
				// the error channel.
				if errs != nil {
					if err := <-errs; err != nil {
						b.finishErrored(t, err)
						return
					}
				}
				b.finishCompleted(ctx, t)
				return
			}
			t.append(frag)
			select {
			case t.frags <- Fragment{Text: frag}:
				metrics.AssistantFragments.Inc()
			case <-ctx.Done():
				b.finishCancelled(t)
				return
			}
		}
	}
}

func (b *Bridge) finishCompleted(ctx context.Context, t *TurnStream) {
	// The final empty fragment with done=true signals normal completion.
	select {
	case t.frags <- Fragment{Done: true}:
	case <-ctx.Done():
		b.finishCancelled(t)
		return
	}
	t.transition(StateStreaming, StateCompleted)
	close(t.frags)
	metrics.AssistantStreams.WithLabelValues("completed").Inc()
	b.logger.Debug().Str("turn", t.id).Int("len", len(t.Text())).Msg("assistant turn completed")
}

func (b *Bridge) finishErrored(t *TurnStream, err error) {
	t.setErr(fmt.Errorf("%w: %v", chat.ErrUpstream, err))
	t.transition(StateStreaming, StateErrored)
	close(t.frags)
	metrics.AssistantStreams.WithLabelValues("errored").Inc()
	b.logger.Warn().Err(err).Str("turn", t.id).Msg("assistant turn failed mid-stream")
}

func (b *Bridge) finishCancelled(t *TurnStream) {
	if !t.transition(StateStreaming, StateCancelled) {
		return
	}
	close(t.frags)
	metrics.AssistantStreams.WithLabelValues("cancelled").Inc()
	b.logger.Debug().Str("turn", t.id).Msg("assistant turn cancelled")
}

// composeSystem folds recent domain activity into the system context. Feed
// failures degrade to the bare preamble; they never fail the turn.
func (b *Bridge) composeSystem(ctx context.Context) string {
	events, err := b.feed.Recent(ctx, 20)
	if err != nil {
		b.logger.Warn().Err(err).Msg("activity feed unavailable, streaming without context")
		return systemPreamble
	}
	if len(events) == 0 {
		return systemPreamble
	}

	var sb strings.Builder
	sb.WriteString(systemPreamble)
	sb.WriteString("\n\nRecent activity:\n")
	for _, ev := range events {
		fmt.Fprintf(&sb, "- [%s] %s (%s)\n", ev.Kind, ev.Text, ev.Timestamp.Format("2006-01-02 15:04"))
	}
	return sb.String()
}

package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/teamchat/internal/chat"
)

// fakeGen replays a scripted fragment sequence, optionally ending in a
// failure, and records whether the bridge cancelled its context.
type fakeGen struct {
	frags []string
	fail  error

	mu        sync.Mutex
	cancelled bool
}

func (f *fakeGen) Stream(ctx context.Context, system string, history []Turn, newText string) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(out)
		for _, s := range f.frags {
			select {
			case out <- s:
			case <-ctx.Done():
				f.mu.Lock()
				f.cancelled = true
				f.mu.Unlock()
				return
			}
		}
		if f.fail != nil {
			errs <- f.fail
		}
	}()
	return out, errs
}

func (f *fakeGen) Complete(ctx context.Context, system, prompt string) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	out := ""
	for _, s := range f.frags {
		out += s
	}
	return out, nil
}

func (f *fakeGen) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func newTestBridge(gen Generator) *Bridge {
	return NewBridge(gen, nil, zerolog.Nop())
}

func collect(t *testing.T, ts *TurnStream) []Fragment {
	t.Helper()
	var got []Fragment
	timeout := time.After(5 * time.Second)
	for {
		select {
		case frag, ok := <-ts.Fragments():
			if !ok {
				return got
			}
			got = append(got, frag)
		case <-timeout:
			t.Fatal("fragment stream did not terminate")
		}
	}
}

func TestStream_OrderedFragmentsThenDone(t *testing.T) {
	gen := &fakeGen{frags: []string{"The ", "pump ", "is ", "fixed."}}
	b := newTestBridge(gen)

	ts, err := b.Stream(context.Background(), "turn-1", nil, "status?")
	require.NoError(t, err)

	got := collect(t, ts)
	require.Len(t, got, 5)
	for i, want := range gen.frags {
		assert.Equal(t, want, got[i].Text)
		assert.False(t, got[i].Done)
	}
	assert.True(t, got[4].Done)
	assert.Empty(t, got[4].Text)

	assert.Equal(t, StateCompleted, ts.State())
	assert.NoError(t, ts.Err())
	assert.Equal(t, "The pump is fixed.", ts.Text())
}

func TestStream_MidStreamFailureKeepsPartialText(t *testing.T) {
	gen := &fakeGen{frags: []string{"partial ", "answer "}, fail: errors.New("backend hiccup")}
	b := newTestBridge(gen)

	ts, err := b.Stream(context.Background(), "turn-1", nil, "status?")
	require.NoError(t, err)

	got := collect(t, ts)
	// Fragments delivered before the failure, and no done marker after it.
	require.Len(t, got, 2)
	for _, frag := range got {
		assert.False(t, frag.Done)
	}

	assert.Equal(t, StateErrored, ts.State())
	assert.ErrorIs(t, ts.Err(), chat.ErrUpstream)
	assert.Equal(t, "partial answer ", ts.Text())
}

func TestStream_CancelStopsBackend(t *testing.T) {
	frags := make([]string, 200)
	for i := range frags {
		frags[i] = "chunk "
	}
	gen := &fakeGen{frags: frags}
	b := newTestBridge(gen)

	ts, err := b.Stream(context.Background(), "turn-1", nil, "status?")
	require.NoError(t, err)

	// Consume a few fragments, then cancel mid-stream.
	for i := 0; i < 3; i++ {
		frag, ok := <-ts.Fragments()
		require.True(t, ok)
		require.False(t, frag.Done)
	}
	ts.Cancel()

	got := collect(t, ts)
	for _, frag := range got {
		assert.False(t, frag.Done, "no done marker after a cancel")
	}

	assert.Equal(t, StateCancelled, ts.State())
	require.Eventually(t, gen.wasCancelled, 2*time.Second, 10*time.Millisecond,
		"backend consumption must stop after cancel")
}

func TestStream_TurnIDInFlightConflicts(t *testing.T) {
	gen := &fakeGen{frags: make([]string, 100)}
	b := newTestBridge(gen)

	ts, err := b.Stream(context.Background(), "turn-1", nil, "status?")
	require.NoError(t, err)

	_, err = b.Stream(context.Background(), "turn-1", nil, "again")
	assert.ErrorIs(t, err, chat.ErrConflict)

	ts.Cancel()
	collect(t, ts)
}

func TestStream_Validation(t *testing.T) {
	b := newTestBridge(&fakeGen{})

	_, err := b.Stream(context.Background(), "", nil, "status?")
	assert.ErrorIs(t, err, chat.ErrBadRequest)

	_, err = b.Stream(context.Background(), "turn-1", nil, "")
	assert.ErrorIs(t, err, chat.ErrBadRequest)
}

func TestCancel_UnknownTurn(t *testing.T) {
	b := newTestBridge(&fakeGen{})
	assert.False(t, b.Cancel("never-started"))
}

func TestGenerateDraft(t *testing.T) {
	b := newTestBridge(&fakeGen{frags: []string{"  drafted reply  "}})

	out, err := b.GenerateDraft(context.Background(), DraftReply, "customer asked about the invoice")
	require.NoError(t, err)
	assert.Equal(t, "drafted reply", out)

	_, err = b.GenerateDraft(context.Background(), "translate", "text")
	assert.ErrorIs(t, err, chat.ErrBadRequest)

	failing := newTestBridge(&fakeGen{fail: errors.New("quota exceeded")})
	_, err = failing.GenerateDraft(context.Background(), DraftSummarize, "long text")
	assert.ErrorIs(t, err, chat.ErrUpstream)
}

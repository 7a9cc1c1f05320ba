package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/teamchat/internal/api/middleware"
	"github.com/fieldworks/teamchat/internal/assistant"
	"github.com/fieldworks/teamchat/internal/chat"
	"github.com/fieldworks/teamchat/internal/models"
	"github.com/fieldworks/teamchat/internal/notify"
	"github.com/fieldworks/teamchat/internal/store"
)

type scriptedGen struct {
	frags []string
}

func (g *scriptedGen) Stream(ctx context.Context, system string, history []assistant.Turn, newText string) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(out)
		for _, s := range g.frags {
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errs
}

func (g *scriptedGen) Complete(ctx context.Context, system, prompt string) (string, error) {
	return strings.Join(g.frags, ""), nil
}

func newTestHandler(t *testing.T, gen assistant.Generator) (*Handler, store.DataStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	logger := zerolog.Nop()
	svc := chat.NewService(st, notify.Nop{}, logger, "")
	bridge := assistant.NewBridge(gen, nil, logger)
	return NewHandler(svc, bridge, nil, st, logger), st
}

func seedMember(t *testing.T, st store.DataStore) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New()
	require.NoError(t, st.UpsertUser(ctx, &models.User{ID: userID, Name: "Dana", Role: "tech", Active: true}))
	ch := &models.Channel{ID: uuid.New(), Name: "ops", Kind: models.KindPublic, CreatedAt: time.Now().UTC()}
	require.NoError(t, st.InsertChannel(ctx, ch, []uuid.UUID{userID}))
	return userID, ch.ID
}

// parseSSE splits a text/event-stream body into data payloads.
func parseSSE(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "data: ") {
			out = append(out, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func TestStreamAssistant_FragmentsMatchPersistedReply(t *testing.T) {
	gen := &scriptedGen{frags: []string{"Check ", "the ", "valve."}}
	h, st := newTestHandler(t, gen)
	userID, chID := seedMember(t, st)

	body, _ := json.Marshal(StreamRequest{TurnID: "turn-1", ChannelID: chID.String(), Text: "what next?"})
	req := httptest.NewRequest(http.MethodPost, "/assistant/stream", bytes.NewReader(body))
	req.Header.Set("X-User-ID", userID.String())
	rec := httptest.NewRecorder()

	middleware.Identity(http.HandlerFunc(h.StreamAssistant)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 4)

	var streamed strings.Builder
	for i, raw := range events {
		var frag assistant.Fragment
		require.NoError(t, json.Unmarshal([]byte(raw), &frag))
		if i < len(events)-1 {
			assert.False(t, frag.Done)
			streamed.WriteString(frag.Text)
		} else {
			assert.True(t, frag.Done)
			assert.Empty(t, frag.Text)
		}
	}
	assert.Equal(t, "Check the valve.", streamed.String())

	// What was streamed is exactly what got persisted, under the reserved
	// assistant author.
	msgs, err := st.ListMessagesDesc(context.Background(), chID, 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, streamed.String(), msgs[0].Content)
	assert.Equal(t, models.AssistantUserID, msgs[0].AuthorID)
}

func TestStreamAssistant_NonMemberForbidden(t *testing.T) {
	h, st := newTestHandler(t, &scriptedGen{frags: []string{"nope"}})
	_, chID := seedMember(t, st)
	outsider := uuid.New()

	body, _ := json.Marshal(StreamRequest{TurnID: "turn-1", ChannelID: chID.String(), Text: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/assistant/stream", bytes.NewReader(body))
	req.Header.Set("X-User-ID", outsider.String())
	rec := httptest.NewRecorder()

	middleware.Identity(http.HandlerFunc(h.StreamAssistant)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Nothing streamed, nothing persisted.
	n, err := st.CountMessages(context.Background(), chID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDraft_ReturnsTransformedText(t *testing.T) {
	h, st := newTestHandler(t, &scriptedGen{frags: []string{"Summary: all good."}})
	userID, _ := seedMember(t, st)

	body, _ := json.Marshal(DraftRequest{Kind: assistant.DraftSummarize, Text: "long update about the job"})
	req := httptest.NewRequest(http.MethodPost, "/assistant/draft", bytes.NewReader(body))
	req.Header.Set("X-User-ID", userID.String())
	rec := httptest.NewRecorder()

	middleware.Identity(http.HandlerFunc(h.Draft)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DraftResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Summary: all good.", resp.Draft)
}

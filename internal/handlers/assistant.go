package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fieldworks/teamchat/internal/api/middleware"
	"github.com/fieldworks/teamchat/internal/assistant"
	"github.com/fieldworks/teamchat/internal/models"
)

// historyWindow is how many recent channel messages feed the generation
// backend as conversational context.
const historyWindow = 30

// StreamRequest represents the start-streaming request body. History is
// optional; when absent the recent channel log is used instead.
type StreamRequest struct {
	TurnID    string           `json:"turn_id"`
	ChannelID string           `json:"channel_id"`
	History   []assistant.Turn `json:"history,omitempty"`
	Text      string           `json:"text"`
}

// StreamAssistant opens a streaming conversational turn and relays its
// fragments as server-sent events. Each event's data is one fragment; a
// successful turn ends with the done marker, after which the concatenated
// reply is persisted to the channel under the assistant author. A mid-stream
// failure ends with an error event instead and nothing is persisted.
func (h *Handler) StreamAssistant(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID format")
		return
	}

	// Page doubles as the membership gate; a caller outside the channel
	// cannot open a turn in it.
	recent, err := h.chat.Page(r.Context(), channelID, p.UserID, historyWindow, 0)
	if err != nil {
		h.Fail(w, err)
		return
	}
	history := req.History
	if len(history) == 0 {
		history = make([]assistant.Turn, len(recent))
		for i, m := range recent {
			role := "user"
			if m.AuthorID == models.AssistantUserID {
				role = "assistant"
			}
			history[i] = assistant.Turn{Role: role, Text: m.Content}
		}
	}

	ts, err := h.bridge.Stream(r.Context(), req.TurnID, history, req.Text)
	if err != nil {
		h.Fail(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		ts.Cancel()
		h.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for frag := range ts.Fragments() {
		data, _ := json.Marshal(frag)
		w.Write([]byte("data: "))
		w.Write(data)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	switch ts.State() {
	case assistant.StateCompleted:
		// Persist exactly what was streamed, so the stored message equals
		// the concatenation of the fragments the subscriber saw.
		if _, err := h.chat.AppendAssistant(r.Context(), channelID, ts.Text()); err != nil {
			h.logger.Error().Err(err).Str("turn", req.TurnID).Msg("assistant reply not persisted")
		}
	case assistant.StateErrored:
		h.writeSSEError(w, flusher, "generation backend failure")
	case assistant.StateCancelled:
		// Subscriber is usually already gone; nothing to persist.
	}
}

func (h *Handler) writeSSEError(w http.ResponseWriter, flusher http.Flusher, msg string) {
	data, _ := json.Marshal(map[string]string{"error": msg})
	w.Write([]byte("event: error\ndata: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
	flusher.Flush()
}

// CancelAssistant stops a live streaming turn.
func (h *Handler) CancelAssistant(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetPrincipal(r.Context()); !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	turnID := chi.URLParam(r, "turnID")
	if !h.bridge.Cancel(turnID) {
		h.Error(w, http.StatusNotFound, "no live turn with that id")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DraftRequest represents the one-shot draft request body.
type DraftRequest struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// DraftResponse carries the generated draft text.
type DraftResponse struct {
	Draft string `json:"draft"`
}

// Draft handles the non-streaming reply, summarize and rewrite transforms.
func (h *Handler) Draft(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetPrincipal(r.Context()); !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := h.bridge.GenerateDraft(r.Context(), req.Kind, req.Text)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, DraftResponse{Draft: out})
}

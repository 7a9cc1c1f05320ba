package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fieldworks/teamchat/internal/api/middleware"
	"github.com/fieldworks/teamchat/internal/models"
)

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	From      string `json:"from"`
	Content   string `json:"content"`
	Metadata  string `json:"metadata,omitempty"`
	Timestamp int64  `json:"ts"`
	IsEdited  bool   `json:"is_edited"`
}

func toMessageResponse(m models.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		ChannelID: m.ChannelID.String(),
		From:      m.AuthorID.String(),
		Content:   m.Content,
		Metadata:  m.Metadata,
		Timestamp: m.CreatedAt.UnixMilli(),
		IsEdited:  m.IsEdited,
	}
}

// MessagesResponse represents one page of channel history, oldest-first.
type MessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// ListMessages handles fetching a page of channel history.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID format")
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid offset")
			return
		}
	}

	messages, err := h.chat.Page(r.Context(), channelID, p.UserID, limit, offset)
	if err != nil {
		h.Fail(w, err)
		return
	}

	out := make([]MessageResponse, len(messages))
	for i, m := range messages {
		out[i] = toMessageResponse(m)
	}
	h.JSON(w, http.StatusOK, MessagesResponse{Messages: out})
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Content  string `json:"content"`
	Metadata string `json:"metadata,omitempty"`
}

// SendMessage handles appending a message to a channel.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID format")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.chat.Append(r.Context(), channelID, p.UserID, req.Content, req.Metadata)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, toMessageResponse(*msg))
}

// MarkRead handles advancing the caller's read marker.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID format")
		return
	}

	if err := h.chat.MarkRead(r.Context(), channelID, p.UserID); err != nil {
		h.Fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetOrCreateDM handles resolving the unique dm channel with another user.
func (h *Handler) GetOrCreateDM(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	ch, err := h.chat.GetOrCreateDM(r.Context(), p.UserID, targetID)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, ch)
}

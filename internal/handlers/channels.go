package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fieldworks/teamchat/internal/api/middleware"
	"github.com/fieldworks/teamchat/internal/models"
)

// MemberInfo represents one roster entry in API responses.
type MemberInfo struct {
	UserID     string  `json:"user_id"`
	JoinedAt   string  `json:"joined_at"`
	LastReadAt *string `json:"last_read_at,omitempty"`
}

// ChannelInfo represents a channel in the list response.
type ChannelInfo struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Kind        string       `json:"kind"`
	Description string       `json:"description,omitempty"`
	Unread      int          `json:"unread"`
	Members     []MemberInfo `json:"members"`
}

// ChannelListResponse represents the channels list response.
type ChannelListResponse struct {
	Channels []ChannelInfo `json:"channels"`
}

func membersToInfo(members []models.Membership) []MemberInfo {
	out := make([]MemberInfo, len(members))
	for i, m := range members {
		info := MemberInfo{
			UserID:   m.UserID.String(),
			JoinedAt: m.JoinedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		if m.LastReadAt != nil {
			s := m.LastReadAt.UTC().Format("2006-01-02T15:04:05Z")
			info.LastReadAt = &s
		}
		out[i] = info
	}
	return out
}

// ListChannels handles listing the caller's channels with unread counts.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	views, err := h.chat.ListForUser(r.Context(), p.UserID)
	if err != nil {
		h.Fail(w, err)
		return
	}

	channels := make([]ChannelInfo, len(views))
	for i, v := range views {
		channels[i] = ChannelInfo{
			ID:          v.Channel.ID.String(),
			Name:        v.Channel.Name,
			Kind:        v.Channel.Kind,
			Description: v.Channel.Description,
			Unread:      v.Unread,
			Members:     membersToInfo(v.Members),
		}
	}

	h.JSON(w, http.StatusOK, ChannelListResponse{Channels: channels})
}

// GetChannelByName handles the member-only lookup of a public channel. A
// missing channel and one the caller cannot see are indistinguishable.
func (h *Handler) GetChannelByName(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ch, err := h.chat.ByName(r.Context(), chi.URLParam(r, "name"), p.UserID)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusOK, ch)
}

// CreateChannelRequest represents the channel creation request.
type CreateChannelRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	RoleFilter  []string `json:"role_filter,omitempty"`
}

// CreateChannel handles privileged channel creation.
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ch, err := h.chat.Create(r.Context(), p, req.Name, req.Description, req.RoleFilter)
	if err != nil {
		h.Fail(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, ch)
}

// UpdateChannelRequest represents the channel update request.
type UpdateChannelRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// UpdateChannel handles privileged name/description changes.
func (h *Handler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
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

	var req UpdateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.chat.Update(r.Context(), p, channelID, req.Name, req.Description); err != nil {
		h.Fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteChannel handles privileged cascading channel removal.
func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
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

	if err := h.chat.Delete(r.Context(), p, channelID); err != nil {
		h.Fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fieldworks/teamchat/internal/api/middleware"
)

// Heartbeat marks the caller online for the presence TTL window.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if h.presence == nil {
		h.Error(w, http.StatusServiceUnavailable, "presence not configured")
		return
	}
	if err := h.presence.Heartbeat(r.Context(), p.UserID); err != nil {
		h.logger.Warn().Err(err).Msg("heartbeat write failed")
		h.Error(w, http.StatusServiceUnavailable, "presence unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PresenceResponse lists the currently online users among the active roster.
type PresenceResponse struct {
	Online []string `json:"online"`
}

// Presence returns which active users have a live heartbeat.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetPrincipal(r.Context()); !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if h.presence == nil {
		h.JSON(w, http.StatusOK, PresenceResponse{Online: []string{}})
		return
	}

	users, err := h.store.ListActiveUsers(r.Context())
	if err != nil {
		h.Fail(w, err)
		return
	}
	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}

	online, err := h.presence.Online(r.Context(), ids)
	if err != nil {
		h.logger.Warn().Err(err).Msg("presence lookup failed")
		h.JSON(w, http.StatusOK, PresenceResponse{Online: []string{}})
		return
	}

	out := make([]string, len(online))
	for i, id := range online {
		out[i] = id.String()
	}
	h.JSON(w, http.StatusOK, PresenceResponse{Online: out})
}

// ChannelPresence returns which members of a channel have a live heartbeat.
// Member-only, like every other channel-scoped read.
func (h *Handler) ChannelPresence(w http.ResponseWriter, r *http.Request) {
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

	member, err := h.store.IsMember(r.Context(), channelID, p.UserID)
	if err != nil {
		h.Fail(w, err)
		return
	}
	if !member {
		h.Error(w, http.StatusForbidden, "not a member of this channel")
		return
	}

	if h.presence == nil {
		h.JSON(w, http.StatusOK, PresenceResponse{Online: []string{}})
		return
	}

	roster, err := h.store.ListMembers(r.Context(), channelID)
	if err != nil {
		h.Fail(w, err)
		return
	}
	ids := make([]uuid.UUID, len(roster))
	for i, m := range roster {
		ids[i] = m.UserID
	}

	online, err := h.presence.Online(r.Context(), ids)
	if err != nil {
		h.logger.Warn().Err(err).Msg("presence lookup failed")
		h.JSON(w, http.StatusOK, PresenceResponse{Online: []string{}})
		return
	}
	out := make([]string, len(online))
	for i, id := range online {
		out[i] = id.String()
	}
	h.JSON(w, http.StatusOK, PresenceResponse{Online: out})
}

// Typing signals that the caller is composing in a channel. Only members can
// signal; the indicator expires on its own.
func (h *Handler) Typing(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if h.presence == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID format")
		return
	}

	member, err := h.store.IsMember(r.Context(), channelID, p.UserID)
	if err != nil {
		h.Fail(w, err)
		return
	}
	if !member {
		h.Error(w, http.StatusForbidden, "not a member of this channel")
		return
	}

	if err := h.presence.Typing(r.Context(), channelID, p.UserID); err != nil {
		h.logger.Warn().Err(err).Msg("typing signal failed")
	}
	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/fieldworks/teamchat/internal/assistant"
	"github.com/fieldworks/teamchat/internal/chat"
	"github.com/fieldworks/teamchat/internal/presence"
	"github.com/fieldworks/teamchat/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	chat     *chat.Service
	bridge   *assistant.Bridge
	presence *presence.Tracker // nil when Redis is not configured
	store    store.DataStore
	logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given services.
func NewHandler(chatSvc *chat.Service, bridge *assistant.Bridge, tracker *presence.Tracker, st store.DataStore, logger zerolog.Logger) *Handler {
	return &Handler{
		chat:     chatSvc,
		bridge:   bridge,
		presence: tracker,
		store:    st,
		logger:   logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Fail maps the core's error taxonomy onto HTTP statuses and writes the
// response. Unknown errors become 500 without leaking details.
func (h *Handler) Fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrBadRequest):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrForbidden):
		h.Error(w, http.StatusForbidden, chat.ErrForbidden.Error())
	case errors.Is(err, chat.ErrNotFound):
		h.Error(w, http.StatusNotFound, chat.ErrNotFound.Error())
	case errors.Is(err, chat.ErrConflict):
		h.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrUpstream):
		h.Error(w, http.StatusBadGateway, "generation backend failure")
	case errors.Is(err, chat.ErrUnavailable):
		h.Error(w, http.StatusServiceUnavailable, "store unreachable")
	default:
		h.logger.Error().Err(err).Msg("internal error")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Content length bounds for a message, counted in characters.
const (
	MinContentLen = 1
	MaxContentLen = 5000
)

// Message is one entry in a channel's append-only log.
type Message struct {
	ID        string     `json:"id"` // ULID, sorts in creation order
	ChannelID uuid.UUID  `json:"channel_id"`
	AuthorID  uuid.UUID  `json:"author_id"`
	Content   string     `json:"content"`
	Metadata  string     `json:"metadata,omitempty"` // opaque JSON, not interpreted here
	CreatedAt time.Time  `json:"created_at"`
	IsEdited  bool       `json:"is_edited"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Channel kinds.
const (
	KindPublic = "public"
	KindDM     = "dm"
)

// Channel represents a named conversation scope, either public or a two-person
// direct-message channel.
type Channel struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"` // "public" or "dm"
	Description string    `json:"description,omitempty"`
	// DMKey is the canonical unordered-pair key for dm channels, nil for
	// public ones. A unique index on it is what makes concurrent DM
	// resolution converge on a single winner.
	DMKey     *string    `json:"-"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Membership links a user to a channel and carries that user's read marker.
// LastReadAt is nil until the first markRead; nil counts as epoch, so the
// whole history is unread.
type Membership struct {
	ChannelID  uuid.UUID  `json:"channel_id"`
	UserID     uuid.UUID  `json:"user_id"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

// DMKeyFor returns the canonical key for an unordered user pair. Both orders
// of the same pair map to the same key.
func DMKeyFor(a, b uuid.UUID) string {
	lo, hi := a.String(), b.String()
	if strings.Compare(lo, hi) > 0 {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("dm:%s:%s", lo, hi)
}

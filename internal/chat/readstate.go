package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MarkRead sets the member's read marker to now. Idempotent; calling it
// repeatedly only moves the marker forward in wall-clock terms.
func (s *Service) MarkRead(ctx context.Context, channelID, userID uuid.UUID) error {
	member, err := s.store.IsMember(ctx, channelID, userID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !member {
		return ErrForbidden
	}
	if err := s.store.SetLastRead(ctx, channelID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set read marker: %w", err)
	}
	return nil
}

// UnreadCount returns the number of messages newer than the member's read
// marker. A member who has never marked the channel read counts the whole
// history as unread.
func (s *Service) UnreadCount(ctx context.Context, channelID, userID uuid.UUID) (int, error) {
	member, err := s.store.IsMember(ctx, channelID, userID)
	if err != nil {
		return 0, fmt.Errorf("membership check: %w", err)
	}
	if !member {
		return 0, ErrForbidden
	}
	n, err := s.store.CountUnread(ctx, channelID, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

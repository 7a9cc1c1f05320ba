package chat

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/fieldworks/teamchat/internal/metrics"
	"github.com/fieldworks/teamchat/internal/models"
	"github.com/fieldworks/teamchat/internal/notify"
)

// Pagination bounds for Page.
const (
	MaxPageLimit     = 100
	DefaultPageLimit = 50
)

// Append inserts a message into a channel's log. The author must be a
// current member; a nonexistent channel produces the same ErrForbidden as a
// channel the author cannot see. As a side effect the author's own read
// marker advances to the message timestamp, so a sender never counts their
// own message as unread.
func (s *Service) Append(ctx context.Context, channelID, authorID uuid.UUID, content, metadata string) (*models.Message, error) {
	// Bounds are in characters, not bytes, so multi-byte text is not
	// penalized for its encoding.
	if n := utf8.RuneCountInString(content); n < models.MinContentLen || n > models.MaxContentLen {
		return nil, fmt.Errorf("%w: content must be 1-%d characters", ErrBadRequest, models.MaxContentLen)
	}

	member, err := s.store.IsMember(ctx, channelID, authorID)
	if err != nil {
		return nil, fmt.Errorf("membership check: %w", err)
	}
	if !member {
		return nil, ErrForbidden
	}

	now := time.Now().UTC()
	msg := &models.Message{
		ID:        ulid.Make().String(),
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	// Same timestamp as the message row, so the just-sent message is
	// already covered by the marker.
	if err := s.store.SetLastRead(ctx, channelID, authorID, now); err != nil {
		s.logger.Warn().Err(err).Str("channel", channelID.String()).Msg("advance own read marker failed")
	}

	s.notifyAppended(ctx, msg)
	s.countSent(ctx, channelID)
	return msg, nil
}

// AppendAssistant writes a completed assistant reply under the reserved
// assistant author. The assistant is not a regular roster member, so no
// membership gate applies; callers only invoke this for channels a streaming
// turn was opened in.
func (s *Service) AppendAssistant(ctx context.Context, channelID uuid.UUID, content string) (*models.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: empty assistant reply", ErrBadRequest)
	}
	if utf8.RuneCountInString(content) > models.MaxContentLen {
		content = truncateRunes(content, models.MaxContentLen)
		s.logger.Warn().Str("channel", channelID.String()).Msg("assistant reply truncated to content cap")
	}

	msg := &models.Message{
		ID:        ulid.Make().String(),
		ChannelID: channelID,
		AuthorID:  models.AssistantUserID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert assistant message: %w", err)
	}
	s.notifyAppended(ctx, msg)
	return msg, nil
}

// Page returns one page of a channel's history, oldest-first. The offset
// addresses the chronological log directly and the read is a single
// statement, so the log being append-only means a page never shifts, drops
// or duplicates a message no matter what lands concurrently; concatenating
// pages from offset 0 upward reproduces the full history exactly once.
func (s *Service) Page(ctx context.Context, channelID, requesterID uuid.UUID, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return nil, fmt.Errorf("%w: limit must be at most %d", ErrBadRequest, MaxPageLimit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrBadRequest)
	}

	member, err := s.store.IsMember(ctx, channelID, requesterID)
	if err != nil {
		return nil, fmt.Errorf("membership check: %w", err)
	}
	if !member {
		return nil, ErrForbidden
	}

	messages, err := s.store.ListMessagesAsc(ctx, channelID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// truncateRunes cuts s to at most n runes without splitting a multi-byte
// encoding.
func truncateRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}

func (s *Service) notifyAppended(ctx context.Context, msg *models.Message) {
	ev := notify.Event{
		ChannelID: msg.ChannelID.String(),
		MessageID: msg.ID,
		AuthorID:  msg.AuthorID.String(),
		SentAt:    msg.CreatedAt.UnixMilli(),
	}
	if err := s.notifier.MessageAppended(ctx, ev); err != nil {
		metrics.NotifyFailures.Inc()
		s.logger.Warn().Err(err).Str("channel", ev.ChannelID).Msg("broadcast notification dropped")
	}
}

func (s *Service) countSent(ctx context.Context, channelID uuid.UUID) {
	kind := models.KindPublic
	if ch, err := s.store.GetChannel(ctx, channelID); err == nil && ch != nil {
		kind = ch.Kind
	}
	metrics.MessagesSent.WithLabelValues(kind).Inc()
}

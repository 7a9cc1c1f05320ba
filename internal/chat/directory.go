package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/fieldworks/teamchat/internal/models"
	"github.com/fieldworks/teamchat/internal/store"
)

// Channel name validation: alphanumeric, hyphens, underscores, 1-50 chars.
var channelNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// AdminRole is the role allowed to create, update and delete public channels.
const AdminRole = "admin"

// ChannelView is a directory entry annotated with what a client sidebar
// needs: derived unread count and the member roster.
type ChannelView struct {
	Channel models.Channel      `json:"channel"`
	Unread  int                 `json:"unread"`
	Members []models.Membership `json:"members"`
}

// ListForUser returns the channels the user belongs to, each with unread
// count and roster. The bootstrap initializer runs first so baseline channels
// exist; its failures never fail the listing.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]ChannelView, error) {
	s.EnsureDefaults(ctx, userID)

	channels, err := s.store.ListChannelsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	views := make([]ChannelView, 0, len(channels))
	for _, ch := range channels {
		unread, err := s.store.CountUnread(ctx, ch.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("unread count for %s: %w", ch.ID, err)
		}
		members, err := s.store.ListMembers(ctx, ch.ID)
		if err != nil {
			return nil, fmt.Errorf("roster for %s: %w", ch.ID, err)
		}
		views = append(views, ChannelView{Channel: ch, Unread: unread, Members: members})
	}
	return views, nil
}

// ByName returns a public channel if the caller is a member. A missing
// channel and a channel the caller cannot see produce the same ErrNotFound.
func (s *Service) ByName(ctx context.Context, name string, userID uuid.UUID) (*models.Channel, error) {
	ch, err := s.store.GetChannelByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("channel by name: %w", err)
	}
	if ch == nil {
		return nil, ErrNotFound
	}
	member, err := s.store.IsMember(ctx, ch.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("membership check: %w", err)
	}
	if !member {
		return nil, ErrNotFound
	}
	return ch, nil
}

// Create inserts a public channel, enrolling the creator plus all active
// users matching roleFilter (if given). Admin only.
func (s *Service) Create(ctx context.Context, actor Principal, name, description string, roleFilter []string) (*models.Channel, error) {
	if actor.Role != AdminRole {
		return nil, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if !channelNameRegex.MatchString(name) {
		return nil, fmt.Errorf("%w: name must be 1-50 characters, alphanumeric with hyphens and underscores", ErrBadRequest)
	}

	members := []uuid.UUID{actor.UserID}
	if len(roleFilter) > 0 {
		users, err := s.store.ListActiveUsersByRoles(ctx, roleFilter)
		if err != nil {
			return nil, fmt.Errorf("role filter: %w", err)
		}
		for _, u := range users {
			if u.ID != actor.UserID {
				members = append(members, u.ID)
			}
		}
	}

	creator := actor.UserID
	ch := &models.Channel{
		ID:          uuid.New(),
		Name:        name,
		Kind:        models.KindPublic,
		Description: description,
		CreatedBy:   &creator,
	}
	if err := s.store.InsertChannel(ctx, ch, members); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: channel %q", ErrConflict, name)
		}
		return nil, fmt.Errorf("create channel: %w", err)
	}
	return ch, nil
}

// Update changes a channel's name or description. Admin only; channels are
// otherwise immutable.
func (s *Service) Update(ctx context.Context, actor Principal, id uuid.UUID, name, description string) error {
	if actor.Role != AdminRole {
		return ErrForbidden
	}
	ch, err := s.store.GetChannel(ctx, id)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return ErrNotFound
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = ch.Name
	}
	if ch.Kind == models.KindPublic && !channelNameRegex.MatchString(name) {
		return fmt.Errorf("%w: invalid channel name", ErrBadRequest)
	}
	if err := s.store.UpdateChannelInfo(ctx, id, name, description); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("%w: channel %q", ErrConflict, name)
		}
		return fmt.Errorf("update channel: %w", err)
	}
	return nil
}

// Delete removes a channel, cascading memberships then messages. Admin only.
func (s *Service) Delete(ctx context.Context, actor Principal, id uuid.UUID) error {
	if actor.Role != AdminRole {
		return ErrForbidden
	}
	ch, err := s.store.GetChannel(ctx, id)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return ErrNotFound
	}
	if err := s.store.DeleteChannel(ctx, id); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	s.logger.Info().Str("channel", id.String()).Str("name", ch.Name).Msg("channel deleted")
	return nil
}

// AddMember enrolls a user. Insert-if-absent; safe to repeat.
func (s *Service) AddMember(ctx context.Context, actor Principal, channelID, userID uuid.UUID) error {
	if actor.Role != AdminRole {
		return ErrForbidden
	}
	ch, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return ErrNotFound
	}
	if ch.Kind == models.KindDM {
		return fmt.Errorf("%w: dm membership is fixed", ErrBadRequest)
	}
	return s.store.AddMember(ctx, channelID, userID)
}

// RemoveMember drops a user from a channel roster. The read marker goes with
// the membership row, so a later rejoin starts from epoch.
func (s *Service) RemoveMember(ctx context.Context, actor Principal, channelID, userID uuid.UUID) error {
	if actor.Role != AdminRole && actor.UserID != userID {
		return ErrForbidden
	}
	ch, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return ErrNotFound
	}
	if ch.Kind == models.KindDM {
		return fmt.Errorf("%w: dm membership is fixed", ErrBadRequest)
	}
	return s.store.RemoveMember(ctx, channelID, userID)
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fieldworks/teamchat/internal/models"
)

// ErrDuplicate is returned when an insert hits a uniqueness constraint
// (public channel name, dm pair key, membership row). Callers use it to
// implement insert-or-fetch: attempt the insert, and on ErrDuplicate re-read
// to find the concurrent winner.
var ErrDuplicate = errors.New("store: duplicate row")

// DataStore defines the interface for persistent storage of users, channels,
// memberships and messages. Both PostgresStore and SQLiteStore implement it.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations (roster mirror; identity lives upstream)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpsertUser(ctx context.Context, u *models.User) error
	ListActiveUsers(ctx context.Context) ([]models.User, error)
	ListActiveUsersByRoles(ctx context.Context, roles []string) ([]models.User, error)

	// Channel operations. InsertChannel writes the channel row and its
	// initial memberships in one transaction and returns ErrDuplicate when
	// a uniqueness constraint rejects the channel row.
	InsertChannel(ctx context.Context, ch *models.Channel, memberIDs []uuid.UUID) error
	GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	GetChannelByName(ctx context.Context, name string) (*models.Channel, error)
	GetChannelByDMKey(ctx context.Context, key string) (*models.Channel, error)
	ListChannelsForUser(ctx context.Context, userID uuid.UUID) ([]models.Channel, error)
	UpdateChannelInfo(ctx context.Context, id uuid.UUID, name, description string) error
	DeleteChannel(ctx context.Context, id uuid.UUID) error

	// Membership operations. AddMember and AddMembers are insert-if-absent.
	AddMember(ctx context.Context, channelID, userID uuid.UUID) error
	AddMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID) error
	RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error
	IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error)
	ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.Membership, error)
	CountMembers(ctx context.Context, channelID uuid.UUID) (int, error)

	// Read state. CountUnread treats a missing read marker as epoch.
	SetLastRead(ctx context.Context, channelID, userID uuid.UUID, at time.Time) error
	CountUnread(ctx context.Context, channelID, userID uuid.UUID) (int, error)

	// Message operations. ListMessagesAsc serves chronological history pages
	// in one statement so a page is always a consistent snapshot of the log;
	// ListMessagesDesc is the newest-first view.
	InsertMessage(ctx context.Context, msg *models.Message) error
	ListMessagesAsc(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]models.Message, error)
	ListMessagesDesc(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]models.Message, error)
	CountMessages(ctx context.Context, channelID uuid.UUID) (int64, error)
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldworks/teamchat/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool and
// ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS channels (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('public', 'dm')),
		description TEXT NOT NULL DEFAULT '',
		dm_key TEXT,
		created_by UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS memberships (
		channel_id UUID NOT NULL REFERENCES channels(id),
		user_id UUID NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_read_at TIMESTAMPTZ,
		PRIMARY KEY (channel_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		channel_id UUID NOT NULL REFERENCES channels(id),
		author_id UUID NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		is_edited BOOLEAN NOT NULL DEFAULT FALSE,
		edited_at TIMESTAMPTZ
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_public_name ON channels(name) WHERE kind = 'public';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_dm_key ON channels(dm_key) WHERE dm_key IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel_id, created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id);

	INSERT INTO users (id, name, role, active)
	VALUES ('00000000-0000-0000-0000-0000000000a1', 'Assistant', 'assistant', FALSE)
	ON CONFLICT (id) DO NOTHING;
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// isPGDuplicate reports whether err is a unique_violation.
func isPGDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetUser retrieves a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, role, active, created_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// UpsertUser inserts or refreshes a roster mirror row.
func (s *PostgresStore) UpsertUser(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role, active = EXCLUDED.active
	`, u.ID, u.Name, u.Role, u.Active, u.CreatedAt)
	return err
}

// ListActiveUsers retrieves all active roster users.
func (s *PostgresStore) ListActiveUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, role, active, created_at
		FROM users WHERE active = TRUE
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

// ListActiveUsersByRoles retrieves active users matching any of the given roles.
func (s *PostgresStore) ListActiveUsersByRoles(ctx context.Context, roles []string) ([]models.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, role, active, created_at
		FROM users WHERE active = TRUE AND role = ANY($1)
		ORDER BY name
	`, roles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func collectUsers(rows pgx.Rows) ([]models.User, error) {
	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// InsertChannel writes a channel and its initial memberships in one
// transaction, returning ErrDuplicate on a uniqueness race.
func (s *PostgresStore) InsertChannel(ctx context.Context, ch *models.Channel, memberIDs []uuid.UUID) error {
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO channels (id, name, kind, description, dm_key, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ch.ID, ch.Name, ch.Kind, ch.Description, ch.DMKey, ch.CreatedBy, ch.CreatedAt)
	if err != nil {
		if isPGDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}

	for _, userID := range memberIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO memberships (channel_id, user_id, joined_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (channel_id, user_id) DO NOTHING
		`, ch.ID, userID, ch.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) getChannel(ctx context.Context, query string, arg interface{}) (*models.Channel, error) {
	ch := &models.Channel{}
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&ch.ID, &ch.Name, &ch.Kind, &ch.Description, &ch.DMKey, &ch.CreatedBy, &ch.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ch, nil
}

// GetChannel retrieves a channel by ID.
func (s *PostgresStore) GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	return s.getChannel(ctx, `
		SELECT id, name, kind, description, dm_key, created_by, created_at
		FROM channels WHERE id = $1
	`, id)
}

// GetChannelByName retrieves a public channel by name.
func (s *PostgresStore) GetChannelByName(ctx context.Context, name string) (*models.Channel, error) {
	return s.getChannel(ctx, `
		SELECT id, name, kind, description, dm_key, created_by, created_at
		FROM channels WHERE kind = 'public' AND name = $1
	`, name)
}

// GetChannelByDMKey retrieves a dm channel by its canonical pair key.
func (s *PostgresStore) GetChannelByDMKey(ctx context.Context, key string) (*models.Channel, error) {
	return s.getChannel(ctx, `
		SELECT id, name, kind, description, dm_key, created_by, created_at
		FROM channels WHERE dm_key = $1
	`, key)
}

// ListChannelsForUser retrieves all channels the user is a member of.
func (s *PostgresStore) ListChannelsForUser(ctx context.Context, userID uuid.UUID) ([]models.Channel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, c.kind, c.description, c.dm_key, c.created_by, c.created_at
		FROM channels c
		JOIN memberships m ON m.channel_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.created_at, c.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Kind, &ch.Description, &ch.DMKey, &ch.CreatedBy, &ch.CreatedAt); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// UpdateChannelInfo updates name and description of a channel.
func (s *PostgresStore) UpdateChannelInfo(ctx context.Context, id uuid.UUID, name, description string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE channels SET name = $1, description = $2 WHERE id = $3
	`, name, description, id)
	if isPGDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// DeleteChannel removes a channel, cascading memberships then messages first.
func (s *PostgresStore) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM memberships WHERE channel_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE channel_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AddMember enrolls a user into a channel if not already enrolled.
func (s *PostgresStore) AddMember(ctx context.Context, channelID, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memberships (channel_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel_id, user_id) DO NOTHING
	`, channelID, userID, time.Now().UTC())
	return err
}

// AddMembers enrolls users in one batch with insert-if-absent semantics.
func (s *PostgresStore) AddMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, userID := range userIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO memberships (channel_id, user_id, joined_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (channel_id, user_id) DO NOTHING
		`, channelID, userID, now)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// RemoveMember removes a membership row.
func (s *PostgresStore) RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM memberships WHERE channel_id = $1 AND user_id = $2
	`, channelID, userID)
	return err
}

// IsMember reports whether the user belongs to the channel.
func (s *PostgresStore) IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM memberships WHERE channel_id = $1 AND user_id = $2)
	`, channelID, userID).Scan(&exists)
	return exists, err
}

// ListMembers retrieves the membership roster of a channel.
func (s *PostgresStore) ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT channel_id, user_id, joined_at, last_read_at
		FROM memberships WHERE channel_id = $1
		ORDER BY joined_at, user_id
	`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.ChannelID, &m.UserID, &m.JoinedAt, &m.LastReadAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CountMembers returns the roster size of a channel.
func (s *PostgresStore) CountMembers(ctx context.Context, channelID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM memberships WHERE channel_id = $1
	`, channelID).Scan(&n)
	return n, err
}

// SetLastRead advances a member's read marker. Idempotent.
func (s *PostgresStore) SetLastRead(ctx context.Context, channelID, userID uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE memberships SET last_read_at = $1 WHERE channel_id = $2 AND user_id = $3
	`, at.UTC(), channelID, userID)
	return err
}

// CountUnread counts messages newer than the member's read marker. A missing
// marker counts as epoch.
func (s *PostgresStore) CountUnread(ctx context.Context, channelID, userID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN memberships mb ON mb.channel_id = m.channel_id AND mb.user_id = $1
		WHERE m.channel_id = $2
		  AND (mb.last_read_at IS NULL OR m.created_at > mb.last_read_at)
	`, userID, channelID).Scan(&n)
	return n, err
}

// InsertMessage appends a message to a channel's log.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, channel_id, author_id, content, metadata, created_at, is_edited, edited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.ChannelID, msg.AuthorID, msg.Content, msg.Metadata,
		msg.CreatedAt.UTC(), msg.IsEdited, msg.EditedAt)
	if isPGDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// ListMessagesAsc retrieves a chronological page of messages, ordered by
// (created_at, id) ascending. One statement, so the page is a consistent
// snapshot even while appends land concurrently.
func (s *PostgresStore) ListMessagesAsc(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]models.Message, error) {
	return s.listMessages(ctx, channelID, "ASC", limit, offset)
}

// ListMessagesDesc retrieves a newest-first page of messages ordered by
// (created_at, id) descending.
func (s *PostgresStore) ListMessagesDesc(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]models.Message, error) {
	return s.listMessages(ctx, channelID, "DESC", limit, offset)
}

func (s *PostgresStore) listMessages(ctx context.Context, channelID uuid.UUID, dir string, limit, offset int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, channel_id, author_id, content, metadata, created_at, is_edited, edited_at
		FROM messages
		WHERE channel_id = $1
		ORDER BY created_at `+dir+`, id `+dir+`
		LIMIT $2 OFFSET $3
	`, channelID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.Metadata, &m.CreatedAt, &m.IsEdited, &m.EditedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CountMessages returns the total number of messages in a channel.
func (s *PostgresStore) CountMessages(ctx context.Context, channelID uuid.UUID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages WHERE channel_id = $1
	`, channelID).Scan(&n)
	return n, err
}

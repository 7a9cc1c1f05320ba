package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/fieldworks/teamchat/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/teamchat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/teamchat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// _txlock=immediate starts transactions as writers up front, which avoids
	// lock-upgrade deadlocks when concurrent callers race through the
	// insert-or-fetch paths.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate&_loc=UTC")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('public', 'dm')),
		description TEXT NOT NULL DEFAULT '',
		dm_key TEXT,
		created_by TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS memberships (
		channel_id TEXT NOT NULL REFERENCES channels(id),
		user_id TEXT NOT NULL,
		joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_read_at DATETIME,
		PRIMARY KEY (channel_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL REFERENCES channels(id),
		author_id TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		is_edited INTEGER NOT NULL DEFAULT 0,
		edited_at DATETIME
	);

	-- Uniqueness constraints the provisioning paths probe against.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_public_name ON channels(name) WHERE kind = 'public';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_dm_key ON channels(dm_key) WHERE dm_key IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel_id, created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id);

	-- Seed the reserved assistant author. Inactive so bootstrap enrollment
	-- handles it explicitly rather than via the active-user roster.
	INSERT OR IGNORE INTO users (id, name, role, active)
	VALUES ('00000000-0000-0000-0000-0000000000a1', 'Assistant', 'assistant', 0);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isSQLiteDuplicate reports whether err is a uniqueness-constraint violation.
func isSQLiteDuplicate(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint
	}
	return false
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u := &models.User{}
	var idStr string
	var active int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, active, created_at
		FROM users WHERE id = ?
	`, id.String()).Scan(&idStr, &u.Name, &u.Role, &active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.ID = uuid.MustParse(idStr)
	u.Active = active == 1
	return u, nil
}

// UpsertUser inserts or refreshes a roster mirror row.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	active := 0
	if u.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role, active = excluded.active
	`, u.ID.String(), u.Name, u.Role, active, u.CreatedAt)
	return err
}

// ListActiveUsers retrieves all active roster users.
func (s *SQLiteStore) ListActiveUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, active, created_at
		FROM users WHERE active = 1
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListActiveUsersByRoles retrieves active users matching any of the given roles.
func (s *SQLiteStore) ListActiveUsersByRoles(ctx context.Context, roles []string) ([]models.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	query := `SELECT id, name, role, active, created_at FROM users WHERE active = 1 AND role IN (?` +
		repeatPlaceholder(len(roles)-1) + `) ORDER BY name`
	args := make([]interface{}, len(roles))
	for i, r := range roles {
		args[i] = r
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

func scanUsers(rows *sql.Rows) ([]models.User, error) {
	var users []models.User
	for rows.Next() {
		var u models.User
		var idStr string
		var active int
		if err := rows.Scan(&idStr, &u.Name, &u.Role, &active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.ID = uuid.MustParse(idStr)
		u.Active = active == 1
		users = append(users, u)
	}
	return users, rows.Err()
}

// InsertChannel writes a channel and its initial memberships in one
// transaction. Returns ErrDuplicate when the channel row loses a uniqueness
// race (public name or dm pair key).
func (s *SQLiteStore) InsertChannel(ctx context.Context, ch *models.Channel, memberIDs []uuid.UUID) error {
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var createdBy *string
	if ch.CreatedBy != nil {
		str := ch.CreatedBy.String()
		createdBy = &str
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO channels (id, name, kind, description, dm_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ch.ID.String(), ch.Name, ch.Kind, ch.Description, ch.DMKey, createdBy, ch.CreatedAt)
	if err != nil {
		if isSQLiteDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}

	for _, userID := range memberIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO memberships (channel_id, user_id, joined_at)
			VALUES (?, ?, ?)
		`, ch.ID.String(), userID.String(), ch.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func scanChannel(row *sql.Row) (*models.Channel, error) {
	ch := &models.Channel{}
	var idStr string
	var createdBy *string
	err := row.Scan(&idStr, &ch.Name, &ch.Kind, &ch.Description, &ch.DMKey, &createdBy, &ch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	ch.ID = uuid.MustParse(idStr)
	if createdBy != nil {
		id := uuid.MustParse(*createdBy)
		ch.CreatedBy = &id
	}
	return ch, nil
}

const channelColumns = `id, name, kind, description, dm_key, created_by, created_at`

// GetChannel retrieves a channel by ID.
func (s *SQLiteStore) GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	return scanChannel(s.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE id = ?`, id.String()))
}

// GetChannelByName retrieves a public channel by name.
func (s *SQLiteStore) GetChannelByName(ctx context.Context, name string) (*models.Channel, error) {
	return scanChannel(s.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE kind = 'public' AND name = ?`, name))
}

// GetChannelByDMKey retrieves a dm channel by its canonical pair key.
func (s *SQLiteStore) GetChannelByDMKey(ctx context.Context, key string) (*models.Channel, error) {
	return scanChannel(s.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE dm_key = ?`, key))
}

// ListChannelsForUser retrieves all channels the user is a member of.
func (s *SQLiteStore) ListChannelsForUser(ctx context.Context, userID uuid.UUID) ([]models.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.kind, c.description, c.dm_key, c.created_by, c.created_at
		FROM channels c
		JOIN memberships m ON m.channel_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.created_at, c.id
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var ch models.Channel
		var idStr string
		var createdBy *string
		if err := rows.Scan(&idStr, &ch.Name, &ch.Kind, &ch.Description, &ch.DMKey, &createdBy, &ch.CreatedAt); err != nil {
			return nil, err
		}
		ch.ID = uuid.MustParse(idStr)
		if createdBy != nil {
			id := uuid.MustParse(*createdBy)
			ch.CreatedBy = &id
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// UpdateChannelInfo updates name and description of a channel.
func (s *SQLiteStore) UpdateChannelInfo(ctx context.Context, id uuid.UUID, name, description string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channels SET name = ?, description = ? WHERE id = ?
	`, name, description, id.String())
	if isSQLiteDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// DeleteChannel removes a channel, cascading memberships then messages first.
func (s *SQLiteStore) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE channel_id = ?`, id.String()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE channel_id = ?`, id.String()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id.String()); err != nil {
		return err
	}
	return tx.Commit()
}

// AddMember enrolls a user into a channel if not already enrolled.
func (s *SQLiteStore) AddMember(ctx context.Context, channelID, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO memberships (channel_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`, channelID.String(), userID.String(), time.Now().UTC())
	return err
}

// AddMembers enrolls users in one batch with insert-if-absent semantics.
func (s *SQLiteStore) AddMembers(ctx context.Context, channelID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, userID := range userIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO memberships (channel_id, user_id, joined_at)
			VALUES (?, ?, ?)
		`, channelID.String(), userID.String(), now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RemoveMember removes a membership row. The read marker goes with it, so a
// rejoin starts from epoch.
func (s *SQLiteStore) RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM memberships WHERE channel_id = ? AND user_id = ?
	`, channelID.String(), userID.String())
	return err
}

// IsMember reports whether the user belongs to the channel.
func (s *SQLiteStore) IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memberships WHERE channel_id = ? AND user_id = ?
	`, channelID.String(), userID.String()).Scan(&n)
	return n > 0, err
}

// ListMembers retrieves the membership roster of a channel.
func (s *SQLiteStore) ListMembers(ctx context.Context, channelID uuid.UUID) ([]models.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, user_id, joined_at, last_read_at
		FROM memberships WHERE channel_id = ?
		ORDER BY joined_at, user_id
	`, channelID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Membership
	for rows.Next() {
		var m models.Membership
		var chStr, userStr string
		if err := rows.Scan(&chStr, &userStr, &m.JoinedAt, &m.LastReadAt); err != nil {
			return nil, err
		}
		m.ChannelID = uuid.MustParse(chStr)
		m.UserID = uuid.MustParse(userStr)
		members = append(members, m)
	}
	return members, rows.Err()
}

// CountMembers returns the roster size of a channel.
func (s *SQLiteStore) CountMembers(ctx context.Context, channelID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memberships WHERE channel_id = ?
	`, channelID.String()).Scan(&n)
	return n, err
}

// SetLastRead advances a member's read marker. Idempotent.
func (s *SQLiteStore) SetLastRead(ctx context.Context, channelID, userID uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE memberships SET last_read_at = ? WHERE channel_id = ? AND user_id = ?
	`, at.UTC(), channelID.String(), userID.String())
	return err
}

// CountUnread counts messages newer than the member's read marker. A missing
// marker counts as epoch: everything is unread.
func (s *SQLiteStore) CountUnread(ctx context.Context, channelID, userID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN memberships mb ON mb.channel_id = m.channel_id AND mb.user_id = ?
		WHERE m.channel_id = ?
		  AND (mb.last_read_at IS NULL OR m.created_at > mb.last_read_at)
	`, userID.String(), channelID.String()).Scan(&n)
	return n, err
}

// InsertMessage appends a message to a channel's log.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	edited := 0
	if msg.IsEdited {
		edited = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, channel_id, author_id, content, metadata, created_at, is_edited, edited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ChannelID.String(), msg.AuthorID.String(), msg.Content, msg.Metadata,
		msg.CreatedAt.UTC(), edited, msg.EditedAt)
	if isSQLiteDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// ListMessagesAsc retrieves a chronological page of messages, ordered by
// (created_at, id) ascending. One statement, so the page is a consistent
// snapshot even while appends land concurrently.
func (s *SQLiteStore) ListMessagesAsc(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]models.Message, error) {
	return s.listMessages(ctx, channelID, "ASC", limit, offset)
}

// ListMessagesDesc retrieves a newest-first page of messages, ordered by
// (created_at, id) descending.
func (s *SQLiteStore) ListMessagesDesc(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]models.Message, error) {
	return s.listMessages(ctx, channelID, "DESC", limit, offset)
}

func (s *SQLiteStore) listMessages(ctx context.Context, channelID uuid.UUID, dir string, limit, offset int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, author_id, content, metadata, created_at, is_edited, edited_at
		FROM messages
		WHERE channel_id = ?
		ORDER BY created_at `+dir+`, id `+dir+`
		LIMIT ? OFFSET ?
	`, channelID.String(), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var chStr, authorStr string
		var edited int
		if err := rows.Scan(&m.ID, &chStr, &authorStr, &m.Content, &m.Metadata, &m.CreatedAt, &edited, &m.EditedAt); err != nil {
			return nil, err
		}
		m.ChannelID = uuid.MustParse(chStr)
		m.AuthorID = uuid.MustParse(authorStr)
		m.IsEdited = edited == 1
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CountMessages returns the total number of messages in a channel.
func (s *SQLiteStore) CountMessages(ctx context.Context, channelID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE channel_id = ?
	`, channelID.String()).Scan(&n)
	return n, err
}

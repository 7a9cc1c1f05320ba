package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/teamchat/internal/models"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func publicChannel(name string) *models.Channel {
	return &models.Channel{
		ID:        uuid.New(),
		Name:      name,
		Kind:      models.KindPublic,
		CreatedAt: time.Now().UTC(),
	}
}

func TestInsertChannel_DuplicatePublicName(t *testing.T) {
	st := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.InsertChannel(ctx, publicChannel("ops"), nil))
	assert.ErrorIs(t, st.InsertChannel(ctx, publicChannel("ops"), nil), ErrDuplicate)
}

func TestInsertChannel_DuplicateDMKey(t *testing.T) {
	st := newSQLite(t)
	ctx := context.Background()
	key := models.DMKeyFor(uuid.New(), uuid.New())

	dm := func() *models.Channel {
		return &models.Channel{
			ID:        uuid.New(),
			Name:      key,
			Kind:      models.KindDM,
			DMKey:     &key,
			CreatedAt: time.Now().UTC(),
		}
	}
	require.NoError(t, st.InsertChannel(ctx, dm(), nil))
	assert.ErrorIs(t, st.InsertChannel(ctx, dm(), nil), ErrDuplicate)

	// DM names do not collide with the public namespace.
	pub := publicChannel(key)
	assert.NoError(t, st.InsertChannel(ctx, pub, nil))
}

func TestInsertChannel_WritesInitialRoster(t *testing.T) {
	st := newSQLite(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	ch := publicChannel("ops")
	require.NoError(t, st.InsertChannel(ctx, ch, []uuid.UUID{alice, bob, alice}))

	n, err := st.CountMembers(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n) // duplicate ids collapse
}

func TestAddMember_InsertIfAbsent(t *testing.T) {
	st := newSQLite(t)
	ctx := context.Background()
	ch := publicChannel("ops")
	require.NoError(t, st.InsertChannel(ctx, ch, nil))

	alice := uuid.New()
	require.NoError(t, st.AddMember(ctx, ch.ID, alice))
	require.NoError(t, st.AddMember(ctx, ch.ID, alice))

	n, err := st.CountMembers(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCountUnread_MissingMarkerIsEpoch(t *testing.T) {
	st := newSQLite(t)
	ctx := context.Background()
	alice := uuid.New()
	ch := publicChannel("ops")
	require.NoError(t, st.InsertChannel(ctx, ch, []uuid.UUID{alice}))

	for i := 0; i < 3; i++ {
		require.NoError(t, st.InsertMessage(ctx, &models.Message{
			ID:        ulid.Make().String(),
			ChannelID: ch.ID,
			AuthorID:  alice,
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: time.Now().UTC(),
		}))
	}

	n, err := st.CountUnread(ctx, ch.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, st.SetLastRead(ctx, ch.ID, alice, time.Now().UTC()))
	n, err = st.CountUnread(ctx, ch.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestListMessagesDesc_Ordering(t *testing.T) {
	st := newSQLite(t)
	ctx := context.Background()
	alice := uuid.New()
	ch := publicChannel("ops")
	require.NoError(t, st.InsertChannel(ctx, ch, []uuid.UUID{alice}))

	base := time.Now().UTC().Truncate(time.Second)
	var ids []string
	for i := 0; i < 5; i++ {
		id := ulid.Make().String()
		ids = append(ids, id)
		require.NoError(t, st.InsertMessage(ctx, &models.Message{
			ID:        id,
			ChannelID: ch.ID,
			AuthorID:  alice,
			Content:   "x",
			// Two messages share a timestamp; id breaks the tie.
			CreatedAt: base.Add(time.Duration(i/2) * time.Second),
		}))
	}

	msgs, err := st.ListMessagesDesc(ctx, ch.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, ids[len(ids)-1-i], m.ID)
	}

	page, err := st.ListMessagesDesc(ctx, ch.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	// The chronological view is the exact mirror.
	asc, err := st.ListMessagesAsc(ctx, ch.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, asc, 2)
	assert.Equal(t, ids[2], asc[0].ID)
	assert.Equal(t, ids[3], asc[1].ID)
}

func TestUpsertUser_RefreshAndRoleQuery(t *testing.T) {
	st := newSQLite(t)
	ctx := context.Background()

	u := &models.User{ID: uuid.New(), Name: "Dana", Role: "tech", Active: true}
	require.NoError(t, st.UpsertUser(ctx, u))

	u.Role = "office"
	require.NoError(t, st.UpsertUser(ctx, u))

	got, err := st.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "office", got.Role)

	byRole, err := st.ListActiveUsersByRoles(ctx, []string{"office", "dispatch"})
	require.NoError(t, err)
	require.Len(t, byRole, 1)
	assert.Equal(t, u.ID, byRole[0].ID)

	// Deactivated users drop out of roster queries.
	u.Active = false
	require.NoError(t, st.UpsertUser(ctx, u))
	active, err := st.ListActiveUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestAssistantUserIsSeeded(t *testing.T) {
	st := newSQLite(t)

	u, err := st.GetUser(context.Background(), models.AssistantUserID)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.False(t, u.Active)
}

package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_AdminOnly(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	tech := seedUser(t, st, "tech")

	_, err := svc.Create(ctx, Principal{UserID: tech, Role: "tech"}, "ops", "", nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreate_NameValidation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	admin := Principal{UserID: seedUser(t, st, AdminRole), Role: AdminRole}

	for _, name := range []string{"", "has space", "жжж", "way/off"} {
		_, err := svc.Create(ctx, admin, name, "", nil)
		assert.ErrorIs(t, err, ErrBadRequest, "name %q", name)
	}

	ch, err := svc.Create(ctx, admin, "dispatch-2", "dispatch desk", nil)
	require.NoError(t, err)
	assert.Equal(t, "dispatch-2", ch.Name)
}

func TestCreate_DuplicateNameConflicts(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	admin := Principal{UserID: seedUser(t, st, AdminRole), Role: AdminRole}

	_, err := svc.Create(ctx, admin, "ops", "", nil)
	require.NoError(t, err)

	_, err = svc.Create(ctx, admin, "ops", "second attempt", nil)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreate_RoleFilterEnrollsMatchingUsers(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	adminID := seedUser(t, st, AdminRole)
	tech1 := seedUser(t, st, "tech")
	tech2 := seedUser(t, st, "tech")
	office := seedUser(t, st, "office")

	ch, err := svc.Create(ctx, Principal{UserID: adminID, Role: AdminRole}, "field", "", []string{"tech"})
	require.NoError(t, err)

	for _, id := range []uuid.UUID{adminID, tech1, tech2} {
		member, err := st.IsMember(ctx, ch.ID, id)
		require.NoError(t, err)
		assert.True(t, member)
	}
	member, err := st.IsMember(ctx, ch.ID, office)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestByName_HidesExistenceFromNonMembers(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, st, "tech")
	outsider := seedUser(t, st, "tech")
	seedChannel(t, st, "ops", alice)

	_, err := svc.ByName(ctx, "ops", outsider)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ByName(ctx, "no-such-channel", outsider)
	assert.ErrorIs(t, err, ErrNotFound)

	ch, err := svc.ByName(ctx, "ops", alice)
	require.NoError(t, err)
	assert.Equal(t, "ops", ch.Name)
}

func TestDelete_Cascades(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	admin := Principal{UserID: seedUser(t, st, AdminRole), Role: AdminRole}
	alice := seedUser(t, st, "tech")
	chID := seedChannel(t, st, "ops", alice)

	_, err := svc.Append(ctx, chID, alice, "about to vanish", "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, admin, chID))

	ch, err := st.GetChannel(ctx, chID)
	require.NoError(t, err)
	assert.Nil(t, ch)

	n, err := st.CountMessages(ctx, chID)
	require.NoError(t, err)
	assert.Zero(t, n)

	member, err := st.IsMember(ctx, chID, alice)
	require.NoError(t, err)
	assert.False(t, member)

	assert.ErrorIs(t, svc.Delete(ctx, admin, chID), ErrNotFound)
}

func TestRemoveMember_RejoinStartsFromEpoch(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	admin := Principal{UserID: seedUser(t, st, AdminRole), Role: AdminRole}
	alice := seedUser(t, st, "tech")
	bob := seedUser(t, st, "tech")
	chID := seedChannel(t, st, "ops", alice, bob)

	for i := 0; i < 4; i++ {
		_, err := svc.Append(ctx, chID, alice, "history", "")
		require.NoError(t, err)
	}
	require.NoError(t, svc.MarkRead(ctx, chID, bob))

	// Leaving drops the read marker with the membership row.
	require.NoError(t, svc.RemoveMember(ctx, admin, chID, bob))
	require.NoError(t, svc.AddMember(ctx, admin, chID, bob))

	unread, err := svc.UnreadCount(ctx, chID, bob)
	require.NoError(t, err)
	assert.Equal(t, 4, unread)
}

func TestDMMembershipIsFixed(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	admin := Principal{UserID: seedUser(t, st, AdminRole), Role: AdminRole}
	alice := seedUser(t, st, "tech")
	bob := seedUser(t, st, "tech")
	carol := seedUser(t, st, "tech")

	dm, err := svc.GetOrCreateDM(ctx, alice, bob)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.AddMember(ctx, admin, dm.ID, carol), ErrBadRequest)
	assert.ErrorIs(t, svc.RemoveMember(ctx, admin, dm.ID, bob), ErrBadRequest)
}

func TestListForUser_IncludesUnreadAndRoster(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, st, "tech")
	bob := seedUser(t, st, "tech")
	chID := seedChannel(t, st, "ops", alice, bob)

	_, err := svc.Append(ctx, chID, alice, "unread for bob", "")
	require.NoError(t, err)

	views, err := svc.ListForUser(ctx, bob)
	require.NoError(t, err)

	var ops *ChannelView
	for i := range views {
		if views[i].Channel.ID == chID {
			ops = &views[i]
		}
	}
	require.NotNil(t, ops)
	assert.Equal(t, 1, ops.Unread)
	assert.Len(t, ops.Members, 2)

	// The listing also lazily provisioned the shared channel.
	general, err := st.GetChannelByName(ctx, DefaultGeneralChannel)
	require.NoError(t, err)
	require.NotNil(t, general)
	member, err := st.IsMember(ctx, general.ID, bob)
	require.NoError(t, err)
	assert.True(t, member)
}

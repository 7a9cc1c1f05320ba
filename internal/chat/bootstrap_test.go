package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/fieldworks/teamchat/internal/models"
)

func TestEnsureDefaults_SeedsSharedChannel(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, st, "tech")
	bob := seedUser(t, st, "office")

	svc.EnsureDefaults(ctx, alice)

	ch, err := st.GetChannelByName(ctx, DefaultGeneralChannel)
	require.NoError(t, err)
	require.NotNil(t, ch)

	for _, id := range []uuid.UUID{alice, bob, models.AssistantUserID} {
		member, err := st.IsMember(ctx, ch.ID, id)
		require.NoError(t, err)
		assert.True(t, member, "user %s not enrolled", id)
	}
}

func TestEnsureDefaults_IdempotentAndEnrollsLatecomers(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	alice := seedUser(t, st, "tech")

	svc.EnsureDefaults(ctx, alice)
	svc.EnsureDefaults(ctx, alice)

	ch, err := st.GetChannelByName(ctx, DefaultGeneralChannel)
	require.NoError(t, err)
	require.NotNil(t, ch)

	n, err := st.CountMembers(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n) // alice + assistant, counted once each

	// A user created after the seed gets enrolled on their first call.
	carol := seedUser(t, st, "tech")
	svc.EnsureDefaults(ctx, carol)
	member, err := st.IsMember(ctx, ch.ID, carol)
	require.NoError(t, err)
	assert.True(t, member)
}

func TestEnsureDefaults_ConcurrentColdStart(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	const callers = 6
	ids := make([]uuid.UUID, callers)
	for i := range ids {
		ids[i] = seedUser(t, st, "tech")
	}

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			svc.EnsureDefaults(ctx, id)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	ch, err := st.GetChannelByName(ctx, DefaultGeneralChannel)
	require.NoError(t, err)
	require.NotNil(t, ch, "cold start must leave exactly one shared channel")

	for _, id := range ids {
		member, err := st.IsMember(ctx, ch.ID, id)
		require.NoError(t, err)
		assert.True(t, member, "caller %s not enrolled", id)
	}

	n, err := st.CountMembers(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, callers+1, n) // every caller plus the assistant
}
